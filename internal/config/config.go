package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/callweave/callweave/internal/llm"
)

// EnvPrefix is the namespace prefix for all Callweave environment variables.
const EnvPrefix = "CALLWEAVE_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string        `yaml:"listen_addr"`
	DBPath                string        `yaml:"db_path"`
	CommitInterval        string        `yaml:"commit_interval"`
	EngineModel           string        `yaml:"engine_model"`
	Voice                 string        `yaml:"voice"`
	Instructions          string        `yaml:"instructions"`
	Summarization         Summarization `yaml:"summarization"`
	GDriveFolderID        string        `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string        `yaml:"google_credentials_file"`

	// Secrets — env vars only, never serialized to YAML.
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

// Summarization configures the post-call summary pipeline. Model is addressed
// as provider/model_name.
type Summarization struct {
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	MaxTokens    int    `yaml:"max_tokens"`
}

const defaultSummaryPrompt = "You summarize phone calls handled by a voice assistant. " +
	"Write a short factual summary of the conversation: who called, what they wanted, " +
	"and how the call was resolved. Do not invent details."

func defaults() Config {
	return Config{
		ListenAddr:     ":8080",
		DBPath:         "data/callweave.db",
		CommitInterval: "200ms",
		EngineModel:    "gpt-4o-realtime-preview-2024-12-17",
		Voice:          "alloy",
		Instructions: "You are a friendly phone assistant. Keep responses brief and " +
			"conversational. Ask for the caller's name early in the call.",
		Summarization: Summarization{
			Model:        "openai/gpt-4o-mini",
			SystemPrompt: defaultSummaryPrompt,
			MaxTokens:    1024,
		},
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedCommitInterval returns CommitInterval as a time.Duration, falling
// back to 200ms if the value is invalid.
func (c *Config) ParsedCommitInterval() time.Duration {
	d, err := time.ParseDuration(c.CommitInterval)
	if err != nil || d <= 0 {
		return 200 * time.Millisecond
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "COMMIT_INTERVAL"); v != "" {
		cfg.CommitInterval = v
	}
	if v := os.Getenv(EnvPrefix + "ENGINE_MODEL"); v != "" {
		cfg.EngineModel = v
	}
	if v := os.Getenv(EnvPrefix + "VOICE"); v != "" {
		cfg.Voice = v
	}
	if v := os.Getenv(EnvPrefix + "INSTRUCTIONS"); v != "" {
		cfg.Instructions = v
	}
	if v := os.Getenv(EnvPrefix + "SUMMARY_MODEL"); v != "" {
		cfg.Summarization.Model = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

// APIKeyFor returns the secret for a summarization provider.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return ""
	}
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured — calls cannot connect to the realtime engine. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}
	if _, err := time.ParseDuration(cfg.CommitInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid commit_interval %q — using default 200ms.", cfg.CommitInterval))
	}
	if provider, _, err := llm.ParseModel(cfg.Summarization.Model); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid summarization model %q — post-call summaries are disabled.", cfg.Summarization.Model))
	} else if cfg.APIKeyFor(provider) == "" {
		warnings = append(warnings, fmt.Sprintf("No API key configured for summarization provider %q — post-call summaries are disabled. Set %s%s_API_KEY.", provider, EnvPrefix, strings.ToUpper(provider)))
	}

	return warnings
}
