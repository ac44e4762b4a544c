package browser

import "context"

// Element is one visible interactive element of the rendered page, in
// document order. The list is the sole channel through which scoring and
// planning observe page state.
type Element struct {
	Index       int    `json:"index"`
	Tag         string `json:"tag"`
	Text        string `json:"text"`
	Type        string `json:"type,omitempty"`
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Class       string `json:"class,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Href        string `json:"href,omitempty"`
	AriaLabel   string `json:"ariaLabel,omitempty"`
}

type rawElement struct {
	Element
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

const elementScript = `() => {
	const elements = [];
	document.querySelectorAll('a, button, input, textarea, select, li').forEach((el, idx) => {
		const rect = el.getBoundingClientRect();
		elements.push({
			index: idx,
			tag: el.tagName,
			text: (el.innerText || '').slice(0, 80) || el.value || '',
			type: el.type || '',
			id: el.id || '',
			name: el.name || '',
			class: el.className || '',
			placeholder: el.placeholder || '',
			href: el.href || '',
			ariaLabel: el.ariaLabel || '',
			width: rect.width,
			height: rect.height
		});
	});
	return elements;
}`

// Extract returns the visible interactive elements of the current page.
// Deterministic for a stable page: same DOM, same list, same order.
func (c *Controller) Extract(ctx context.Context) ([]Element, error) {
	var raw []rawElement
	if err := c.EvalJSON(ctx, elementScript, &raw); err != nil {
		return nil, err
	}
	return filterVisible(raw), nil
}

// filterVisible drops elements with a zero-area bounding box. The JS side
// reports dimensions and the filter runs here so the exclusion rule is
// unit-testable without a live page.
func filterVisible(raw []rawElement) []Element {
	elements := make([]Element, 0, len(raw))
	for _, r := range raw {
		if r.Width > 0 && r.Height > 0 {
			elements = append(elements, r.Element)
		}
	}
	return elements
}
