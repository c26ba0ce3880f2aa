package service

import (
	"os"
	"strconv"
	"time"
)

const defaultSystemPrompt = "You are a helpful assistant that responds conversationally to user messages."

// Config carries the relay's tunables. Everything has a default so the
// service runs with an empty environment against a local backend.
type Config struct {
	Model         string
	Temperature   float64
	SystemPrompt  string
	HistoryWindow int64
	StreamTimeout time.Duration
}

// ConfigFromEnv reads the relay configuration from the environment.
func ConfigFromEnv() Config {
	cfg := Config{
		Model:         "llama3.2",
		Temperature:   0.3,
		SystemPrompt:  defaultSystemPrompt,
		HistoryWindow: 10,
		StreamTimeout: 30 * time.Second,
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Temperature = f
		}
	}
	if v := os.Getenv("SYSTEM_PROMPT"); v != "" {
		cfg.SystemPrompt = v
	}
	if v := os.Getenv("HISTORY_WINDOW"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.HistoryWindow = n
		}
	}
	if v := os.Getenv("LLM_STREAM_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamTimeout = time.Duration(n) * time.Second
		}
	}
	return cfg
}
