// Package prompt holds the fixed prompt templates and fills their
// {name} placeholders. Every template is rendered once at startup by
// Check, so a broken template fails the process before it serves traffic.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

type template struct {
	text string
	vars []string
}

var registry = map[string]template{
	"confirmation_detection": {text: confirmationDetection, vars: []string{"suggestion", "query"}},
	"followup_detection":     {text: followupDetection, vars: []string{"history", "query"}},
	"typo_detection":         {text: typoDetection, vars: []string{"query"}},
	"simplification":         {text: simplification, vars: []string{"context", "query"}},
	"article_simplification": {text: articleSimplification, vars: []string{"content"}},
	"action_planning":        {text: actionPlanning, vars: []string{"dom", "instruction"}},
}

var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)

// Render fills the named template with the given variables. A missing
// variable is an error. Braces inside the values pass through untouched;
// template text itself is validated by Check at startup.
func Render(name string, vars map[string]string) (string, error) {
	tpl, ok := registry[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template: %s", name)
	}

	result := tpl.text
	for _, v := range tpl.vars {
		val, ok := vars[v]
		if !ok {
			return "", fmt.Errorf("prompt %s: missing variable %q", name, v)
		}
		result = strings.ReplaceAll(result, "{"+v+"}", val)
	}

	return result, nil
}

// Check validates every registered template at startup: each placeholder
// in the template text must be declared, and a render with stand-in
// values must succeed. Any failure is a fatal configuration error.
func Check() error {
	for name, tpl := range registry {
		declared := make(map[string]bool, len(tpl.vars))
		vars := make(map[string]string, len(tpl.vars))
		for _, v := range tpl.vars {
			declared[v] = true
			vars[v] = "check"
		}
		for _, ph := range placeholderRe.FindAllString(tpl.text, -1) {
			if !declared[strings.Trim(ph, "{}")] {
				return fmt.Errorf("prompt %s: undeclared placeholder %s", name, ph)
			}
		}
		if _, err := Render(name, vars); err != nil {
			return err
		}
	}
	return nil
}

const confirmationDetection = `The assistant previously suggested corrected terms to the user:

{suggestion}

The user has now replied: "{query}"

Decide whether the reply selects one of the numbered suggestions, either by
its number (like "1" or "the first one") or by repeating the term itself.

If it does, respond with exactly:
CONFIRMED: <the selected term>

If the reply is a new question or does not select a suggestion, respond with exactly:
NO

Respond with one line only.`

const followupDetection = `Here is the recent conversation between a user and a medical assistant:

{history}

The user's new message is: "{query}"

Is the new message continuing the SAME topic as the conversation above
(asking for more detail, simpler wording, examples, a summary), or is it
starting a NEW topic?

Respond with exactly one word: FOLLOW_UP or NEW_TOPIC.`

const typoDetection = `A user asked a medical assistant about: "{query}"

Decide whether this looks like a misspelling of a medical term (for example
"diabetis" for "diabetes", or "asma" for "asthma"). Only short noun phrases
of one to four words can be misspellings; full sentences are never typos.

If it is a plausible misspelling, respond with exactly one line:
TYPO: Did you mean: 1. <most likely term> 2. <second choice> 3. <third choice>

List at most three numbered candidates. If the query is spelled correctly or
is not a medical term lookup, respond with exactly:
OK`

const simplification = `You are MediSimple, a friendly medical information assistant. Answer the
user's question in plain, simple language a layperson can understand. Avoid
jargon; when a medical term is unavoidable, explain it briefly. Do not give
personal medical advice or diagnoses; suggest seeing a doctor where
appropriate.

{context}User question: {query}

Answer clearly and concisely.`

const articleSimplification = `Rewrite the following medical article content in plain, simple language.
Keep the facts, drop the jargon, and organize it so a layperson can follow:

{content}

Simplified version:`

const actionPlanning = `You are a browser automation planner. You are given the visible elements of
the current page and an instruction from the user.

Page elements (JSON):
{dom}

Instruction: {instruction}

Produce an ordered plan of actions as a JSON array. Each action is an object:
- {"type": "fill", "selector": "<css selector>", "value": "<text>"}
- {"type": "click", "selector": "<css selector>"}
- {"type": "press", "selector": "<css selector>", "key": "Enter"}
- {"type": "wait", "selector": "<css selector>"} or {"type": "wait", "duration": 800}

Use only selectors that match the elements above. Respond with ONLY the JSON
array, no markdown fences or commentary.`
