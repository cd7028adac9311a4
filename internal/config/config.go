// Package config loads service settings from defaults, an optional YAML
// file, a .env file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Completion CompletionConfig `yaml:"completion"`
	Render     RenderConfig     `yaml:"render"`
	Log        LogConfig        `yaml:"log"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Secrets are read from the environment only.
	GeminiAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
}

type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	MaxUploadMB   int           `yaml:"max_upload_mb"`
	JobTTL        time.Duration `yaml:"job_ttl"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	RatePerMinute int           `yaml:"rate_per_minute"`
	RateBurst     int           `yaml:"rate_burst"`
}

// AssistantConfig controls the hosted summarization run.
type AssistantConfig struct {
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CompletionConfig controls the chat completion used for refinement.
type CompletionConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens"`
	MaxAttempts int     `yaml:"max_attempts"`
	Temperature float64 `yaml:"temperature"`
}

// RenderConfig controls the PDF export. PaperSize is "a4" or "letter";
// MarginInches applies to all four edges.
type RenderConfig struct {
	ChromePath   string  `yaml:"chrome_path"`
	PaperSize    string  `yaml:"paper_size"`
	MarginInches float64 `yaml:"margin_inches"`
}

// PaperSizes lists the accepted render.paper_size values.
var PaperSizes = []string{"a4", "letter"}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8080",
			MaxUploadMB:   20,
			JobTTL:        time.Hour,
			JobTimeout:    10 * time.Minute,
			RatePerMinute: 10,
			RateBurst:     3,
		},
		Assistant: AssistantConfig{
			Provider:     ProviderGemini,
			Model:        "gemini-2.5-flash",
			PollInterval: 2 * time.Second,
			Timeout:      5 * time.Minute,
		},
		Completion: CompletionConfig{
			Provider:    ProviderAnthropic,
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   4096,
			MaxAttempts: 3,
		},
		Render:    RenderConfig{PaperSize: "a4", MarginInches: 0.4},
		Log:       LogConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{ServiceName: "visual-abstract"},
	}
}

// Load builds a Config. path may be empty, in which case only defaults and
// the environment apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

func (c *Config) applyEnv() error {
	c.GeminiAPIKey = getEnvOrDefault("GEMINI_API_KEY", getEnvOrDefault("GOOGLE_API_KEY", ""))
	c.AnthropicAPIKey = getEnvOrDefault("ANTHROPIC_API_KEY", "")
	c.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", "")

	c.Server.Addr = getEnvOrDefault("VISUAL_ABSTRACT_ADDR", c.Server.Addr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("VISUAL_ABSTRACT_ADDR") == "" {
		c.Server.Addr = ":" + port
	}
	c.Server.MaxUploadMB = getEnvOrDefaultInt("VISUAL_ABSTRACT_MAX_UPLOAD_MB", c.Server.MaxUploadMB)
	c.Server.RatePerMinute = getEnvOrDefaultInt("VISUAL_ABSTRACT_RATE_PER_MINUTE", c.Server.RatePerMinute)

	c.Assistant.Model = getEnvOrDefault("VISUAL_ABSTRACT_ASSISTANT_MODEL", c.Assistant.Model)
	c.Completion.Provider = getEnvOrDefault("VISUAL_ABSTRACT_COMPLETION_PROVIDER", c.Completion.Provider)
	c.Completion.Model = getEnvOrDefault("VISUAL_ABSTRACT_COMPLETION_MODEL", c.Completion.Model)
	c.Completion.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", c.Completion.BaseURL)

	c.Render.ChromePath = getEnvOrDefault("CHROME_PATH", c.Render.ChromePath)
	c.Render.PaperSize = strings.ToLower(getEnvOrDefault("VISUAL_ABSTRACT_PAPER_SIZE", c.Render.PaperSize))
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)
	c.Telemetry.ServiceName = getEnvOrDefault("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)

	var err error
	if c.Assistant.PollInterval, err = getEnvOrDefaultDuration("VISUAL_ABSTRACT_POLL_INTERVAL", c.Assistant.PollInterval); err != nil {
		return err
	}
	if c.Assistant.Timeout, err = getEnvOrDefaultDuration("VISUAL_ABSTRACT_ASSISTANT_TIMEOUT", c.Assistant.Timeout); err != nil {
		return err
	}
	if c.Server.JobTimeout, err = getEnvOrDefaultDuration("VISUAL_ABSTRACT_JOB_TIMEOUT", c.Server.JobTimeout); err != nil {
		return err
	}
	if c.Server.JobTTL, err = getEnvOrDefaultDuration("VISUAL_ABSTRACT_JOB_TTL", c.Server.JobTTL); err != nil {
		return err
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return &ConfigError{Field: "server.addr", Message: "listen address is required"}
	}
	if c.Server.MaxUploadMB <= 0 {
		return &ConfigError{Field: "server.max_upload_mb", Message: "must be positive"}
	}
	if c.Server.RatePerMinute < 0 || c.Server.RateBurst < 0 {
		return &ConfigError{Field: "server.rate_per_minute", Message: "must not be negative"}
	}
	if c.Server.JobTimeout <= 0 {
		return &ConfigError{Field: "server.job_timeout", Message: "must be positive"}
	}
	// Pruning a job before its timeout would drop it while it still runs.
	if c.Server.JobTTL < c.Server.JobTimeout {
		return &ConfigError{Field: "server.job_ttl", Message: fmt.Sprintf("must be at least server.job_timeout (%s)", c.Server.JobTimeout)}
	}
	if c.Assistant.Provider != ProviderGemini {
		return &ConfigError{Field: "assistant.provider", Message: fmt.Sprintf("unsupported provider %q", c.Assistant.Provider)}
	}
	if c.Assistant.PollInterval <= 0 {
		return &ConfigError{Field: "assistant.poll_interval", Message: "must be positive"}
	}
	if c.Assistant.Timeout < c.Assistant.PollInterval {
		return &ConfigError{Field: "assistant.timeout", Message: "must be at least one poll interval"}
	}
	switch c.Completion.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return &ConfigError{Field: "completion.provider", Message: fmt.Sprintf("unsupported provider %q", c.Completion.Provider)}
	}
	if c.Completion.MaxTokens <= 0 {
		return &ConfigError{Field: "completion.max_tokens", Message: "must be positive"}
	}
	if c.Completion.MaxAttempts < 1 {
		return &ConfigError{Field: "completion.max_attempts", Message: "must be at least 1"}
	}
	if !contains(PaperSizes, c.Render.PaperSize) {
		return &ConfigError{Field: "render.paper_size", Message: fmt.Sprintf("must be one of %s", strings.Join(PaperSizes, ", "))}
	}
	if c.Render.MarginInches < 0 || c.Render.MarginInches > 2 {
		return &ConfigError{Field: "render.margin_inches", Message: "must be between 0 and 2"}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return &ConfigError{Field: "log.format", Message: "must be text or json"}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// MaxUploadBytes is the multipart limit derived from MaxUploadMB.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: fmt.Sprintf("invalid duration %q", value)}
	}
	return d, nil
}

type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
