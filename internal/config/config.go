package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port          int
	OllamaURL     string
	Model         string
	DBPath        string
	ReferenceURL  string
	CORSOrigin    string
	Headless      bool
	NavTimeout    time.Duration
	SettleTimeout time.Duration
	ActionTimeout time.Duration
	HistoryWindow int
	MaxQueryLen   int
	LogLevel      string
	LogFile       string
}

func Load() Config {
	return Config{
		Port:          envInt("MEDISIMPLE_PORT", 8000),
		OllamaURL:     envStr("OLLAMA_URL", "http://localhost:11434"),
		Model:         envStr("MEDISIMPLE_MODEL", "granite3.1-dense:8b"),
		DBPath:        envStr("DB_PATH", "conversations.db"),
		ReferenceURL:  envStr("REFERENCE_URL", "https://www.wikipedia.org"),
		CORSOrigin:    envStr("CORS_ORIGIN", "http://localhost:5173"),
		Headless:      envBool("BROWSER_HEADLESS", false),
		NavTimeout:    time.Duration(envInt("NAV_TIMEOUT_MS", 15000)) * time.Millisecond,
		SettleTimeout: time.Duration(envInt("SETTLE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ActionTimeout: time.Duration(envInt("ACTION_TIMEOUT_MS", 5000)) * time.Millisecond,
		HistoryWindow: envInt("HISTORY_WINDOW", 6),
		MaxQueryLen:   envInt("MAX_QUERY_LEN", 500),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		LogFile:       envStr("LOG_FILE", ""),
	}
}

// Validate catches configuration that would otherwise only fail mid-request.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.OllamaURL == "" {
		return fmt.Errorf("OLLAMA_URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("MEDISIMPLE_MODEL is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.ReferenceURL == "" {
		return fmt.Errorf("REFERENCE_URL is required")
	}
	if c.NavTimeout <= 0 || c.SettleTimeout <= 0 || c.ActionTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be positive")
	}
	if c.MaxQueryLen <= 0 {
		return fmt.Errorf("MAX_QUERY_LEN must be positive")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
