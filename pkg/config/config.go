package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-seed/pkg/llm"
	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-seed.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// API keys must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	LLM  LLMConfig  `yaml:"llm"`
	Seed SeedConfig `yaml:"seed"`
	Log  LogConfig  `yaml:"log"`

	// Provider credentials. Secret - not in YAML.
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`
}

// LLMConfig holds generation client settings shared by every run.
type LLMConfig struct {
	// Provider forces "openai" or "anthropic"; empty infers it from the model name.
	Provider          string        `yaml:"provider" env:"LLM_PROVIDER" env-default:""`
	Model             string        `yaml:"model" env:"SEED_MODEL" env-default:"gpt-4o-mini"`
	OpenAIEndpoint    string        `yaml:"openai_endpoint" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	AnthropicEndpoint string        `yaml:"anthropic_endpoint" env:"ANTHROPIC_BASE_URL" env-default:"https://api.anthropic.com/v1"`
	Timeout           time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"60s"`
	MaxTokens         int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"8192"`
	// Retries is how many times a transient failure is retried. 0 disables.
	Retries int `yaml:"retries" env:"LLM_RETRIES" env-default:"0"`
}

// SeedConfig holds generation defaults used when a request leaves them out.
type SeedConfig struct {
	Dialect           string `yaml:"dialect" env:"SEED_DIALECT" env-default:"mysql"`
	IDMode            string `yaml:"id_mode" env:"SEED_ID_MODE" env-default:"autoincrement"`
	AutoincrementBase int    `yaml:"autoincrement_base" env:"SEED_AUTOINCREMENT_BASE" env-default:"1"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"` // "json" or "console"
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error; defaults and the environment are used.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.LLM.OpenAIEndpoint = ResolveEndpointForDocker(cfg.LLM.OpenAIEndpoint)
	cfg.LLM.AnthropicEndpoint = ResolveEndpointForDocker(cfg.LLM.AnthropicEndpoint)

	// Auto-derive BaseURL from Port if not explicitly set
	// Use HTTPS scheme if TLS is configured
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate checks field values that cleanenv cannot.
func (c *Config) Validate() error {
	if _, err := models.ParseDialect(c.Seed.Dialect); err != nil {
		return fmt.Errorf("invalid seed.dialect: %w", err)
	}
	mode, err := models.ParseIDMode(c.Seed.IDMode)
	if err != nil {
		return fmt.Errorf("invalid seed.id_mode: %w", err)
	}
	if mode == models.IDModeAutoincrement && c.Seed.AutoincrementBase < 1 {
		return fmt.Errorf("invalid seed.autoincrement_base %d: must be at least 1", c.Seed.AutoincrementBase)
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "", llm.ProviderOpenAI, llm.ProviderAnthropic:
	default:
		return fmt.Errorf("invalid llm.provider %q: must be openai or anthropic", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("invalid llm.timeout %s: must be positive", c.LLM.Timeout)
	}
	if c.LLM.Retries < 0 {
		return fmt.Errorf("invalid llm.retries %d: must not be negative", c.LLM.Retries)
	}

	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// FactoryConfig returns the client settings for llm.NewClientFactory.
func (c *Config) FactoryConfig() llm.FactoryConfig {
	return llm.FactoryConfig{
		Provider:          strings.ToLower(c.LLM.Provider),
		OpenAIEndpoint:    c.LLM.OpenAIEndpoint,
		AnthropicEndpoint: c.LLM.AnthropicEndpoint,
		Timeout:           c.LLM.Timeout,
		MaxTokens:         c.LLM.MaxTokens,
	}
}

// ProviderFor returns the provider that serves model: the configured
// provider when set, otherwise the one inferred from the model name.
func (c *Config) ProviderFor(model string) string {
	if provider := strings.ToLower(c.LLM.Provider); provider != "" {
		return provider
	}
	return llm.ProviderForModel(model)
}

// APIKeyFor returns the environment credential for the provider that serves
// model, or "" when none is configured.
func (c *Config) APIKeyFor(model string) string {
	if c.ProviderFor(model) == llm.ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// ListenAddr returns the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}
