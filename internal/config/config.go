// Package config provides configuration management for latexgen.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted by LATEXGEN_PROVIDER.
const (
	ProviderAuto      = "auto"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration for latexgen.
type Config struct {
	// Provider selects the LLM backend: gemini, openai, anthropic or auto.
	Provider string
	// Model overrides the provider's default model.
	Model string

	GeminiAPIKey    string
	GeminiModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string

	// RequestTimeout bounds a single LLM call.
	RequestTimeout time.Duration

	// Engine is the primary LaTeX engine (pdflatex, xelatex, lualatex).
	Engine string
	// CompileTimeout bounds a single engine run.
	CompileTimeout time.Duration

	// OutputDir receives generated .tex and .pdf files.
	OutputDir string
	// SessionDir holds per-session vN.tex / vN.pdf files.
	SessionDir string
	// DataDir is the directory for persistent data (SQLite DB, etc.).
	DataDir string
	// DatabasePath is the full path to the SQLite database file.
	DatabasePath string

	// ServerAddr is the address the HTTP API listens on (e.g., ":7080").
	ServerAddr string
	// LogLevel is a zerolog level name.
	LogLevel string
	// BatchConcurrency bounds parallel jobs in `latexgen batch`.
	BatchConcurrency int

	// Telegram integration (optional, long polling).
	TelegramBotToken string

	// Slack integration (optional, Socket Mode).
	// SlackBotToken is the Bot User OAuth Token (xoxb-...).
	SlackBotToken string
	// SlackAppToken is the App-Level Token (xapp-...) required for Socket Mode.
	SlackAppToken string

	// GitHub publishing and the issues webhook channel (optional).
	GitHubToken         string
	GitHubWebhookSecret string
	GitHubTriggerLabel  string
	GitHubWebhookAddr   string
}

// Load creates a Config from the environment, ~/.latexgen/config.env and a
// project .env file. Values are resolved in order: environment variable >
// config file > .env > default.
func Load() (*Config, error) {
	loadConfigFile()
	// A project .env never overrides what is already set.
	_ = godotenv.Load()

	dataDir := envOr("LATEXGEN_DATA_DIR", defaultDataDir())
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	cfg := &Config{
		Provider:            strings.ToLower(envOr("LATEXGEN_PROVIDER", ProviderAuto)),
		Model:               os.Getenv("LATEXGEN_MODEL"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         os.Getenv("GEMINI_MODEL"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		AnthropicAPIKey:     os.Getenv("ANTHROPIC_API_KEY"),
		RequestTimeout:      envOrTimeout("LATEXGEN_REQUEST_TIMEOUT", envOrTimeout("GEMINI_REQUEST_TIMEOUT", 120*time.Second)),
		Engine:              envOr("LATEXGEN_ENGINE", "pdflatex"),
		CompileTimeout:      envOrTimeout("LATEXGEN_COMPILE_TIMEOUT", 120*time.Second),
		OutputDir:           envOr("LATEXGEN_OUTPUT_DIR", "output"),
		SessionDir:          envOr("LATEXGEN_SESSION_DIR", filepath.Join(dataDir, "sessions")),
		DataDir:             dataDir,
		DatabasePath:        filepath.Join(dataDir, "latexgen.db"),
		ServerAddr:          envOr("LATEXGEN_ADDR", ":7080"),
		LogLevel:            envOr("LATEXGEN_LOG_LEVEL", "info"),
		BatchConcurrency:    envOrInt("LATEXGEN_BATCH_CONCURRENCY", 2),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		SlackBotToken:       os.Getenv("SLACK_BOT_TOKEN"),
		SlackAppToken:       os.Getenv("SLACK_APP_TOKEN"),
		GitHubToken:         os.Getenv("GITHUB_TOKEN"),
		GitHubWebhookSecret: os.Getenv("GITHUB_WEBHOOK_SECRET"),
		GitHubTriggerLabel:  envOr("GITHUB_ISSUES_TRIGGER_LABEL", "latexgen"),
		GitHubWebhookAddr:   envOr("GITHUB_WEBHOOK_ADDR", ":7092"),
	}
	return cfg, nil
}

// loadConfigFile sets values from the config file that are not already
// present in the environment, so env vars always win.
func loadConfigFile() {
	values, err := ReadFile(FilePath())
	if err != nil {
		return
	}
	for k, v := range values {
		if os.Getenv(k) == "" {
			os.Setenv(k, v)
		}
	}
}

// ResolvedProvider returns the provider that will be used. For "auto" it is
// the first provider with an API key, checking Gemini, OpenAI, Anthropic.
func (c *Config) ResolvedProvider() string {
	if c.Provider != "" && c.Provider != ProviderAuto {
		return c.Provider
	}
	switch {
	case c.GeminiAPIKey != "":
		return ProviderGemini
	case c.OpenAIAPIKey != "":
		return ProviderOpenAI
	case c.AnthropicAPIKey != "":
		return ProviderAnthropic
	}
	return ProviderGemini
}

// APIKey returns the key for the resolved provider.
func (c *Config) APIKey() string {
	switch c.ResolvedProvider() {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	default:
		return c.GeminiAPIKey
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	p := c.ResolvedProvider()
	switch p {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider %q (want gemini, openai, anthropic or auto)", p)
	}
	if c.APIKey() == "" {
		return fmt.Errorf("%s is required for provider %s", apiKeyVar(p), p)
	}
	return nil
}

// SlackEnabled returns true if Slack Socket Mode is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// TelegramEnabled returns true if the Telegram bot is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// GitHubIssuesEnabled returns true if the issues webhook channel can run.
// A webhook secret is required so the endpoint is never left open.
func (c *Config) GitHubIssuesEnabled() bool {
	return c.GitHubToken != "" && c.GitHubWebhookSecret != ""
}

func apiKeyVar(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

// --- Config file ---

// FilePath returns ~/.latexgen/config.env.
func FilePath() string {
	return filepath.Join(defaultDataDir(), "config.env")
}

// ReadFile returns the key/value pairs in a config file. A missing file
// yields an empty map.
func ReadFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return values, nil
}

// WriteFile stores values at path with owner-only permissions.
func WriteFile(path string, values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := godotenv.Write(values, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}

// envOrTimeout accepts either whole seconds ("90") or a Go duration ("2m").
func envOrTimeout(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".latexgen"
	}
	return filepath.Join(home, ".latexgen")
}
