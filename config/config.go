// Package config loads and validates workflow configuration from a YAML
// file with environment variable overrides. Values are carried as an
// explicit struct rather than process globals, so tests and concurrent
// runs can hold independent configurations.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in the "provider" field.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderMock      = "mock"
)

// Store driver names accepted in the "store.driver" field.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
)

// Config is the full workflow configuration.
type Config struct {
	// Provider selects the LLM backend.
	Provider string `yaml:"provider"`

	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Google    ProviderConfig `yaml:"google"`

	GitHub GitHubConfig `yaml:"github"`

	// LogFile is the application log the investigator reads.
	LogFile string `yaml:"log_file"`

	// SourceFile is the local path of the file under repair; RepoFile
	// is its path within the target repository.
	SourceFile string `yaml:"source_file"`
	RepoFile   string `yaml:"repo_file"`

	// MaxIterations bounds the self-correction loop.
	MaxIterations int `yaml:"max_iterations"`

	// MaxSteps is the engine's hard step ceiling. Zero uses the
	// engine default.
	MaxSteps int `yaml:"max_steps"`

	Store StoreConfig `yaml:"store"`
}

// ProviderConfig holds per-provider credentials.
type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// GitHubConfig holds pull request credentials. Empty token or repo
// switches publishing to dry-run mode.
type GitHubConfig struct {
	Token  string `yaml:"token"`
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"`
}

// StoreConfig selects the step history backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`

	// DSN is the SQLite file path or MySQL connection string.
	// Unused for the memory driver.
	DSN string `yaml:"dsn"`
}

// Default returns a configuration with working defaults: mock provider,
// in-memory store, dry-run publishing.
func Default() Config {
	return Config{
		Provider:      ProviderMock,
		GitHub:        GitHubConfig{Branch: "main"},
		LogFile:       "app_logs.txt",
		RepoFile:      "app.go",
		MaxIterations: 3,
		Store:         StoreConfig{Driver: StoreMemory},
	}
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result. An empty path skips the file and uses defaults
// plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments inject secrets without
// writing them to the config file.
func applyEnvOverrides(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Provider, "OPSMEND_PROVIDER")
	setString(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Google.APIKey, "GOOGLE_API_KEY")
	setString(&cfg.GitHub.Token, "GITHUB_TOKEN")
	setString(&cfg.GitHub.Repo, "GITHUB_REPO")
	setString(&cfg.GitHub.Branch, "GITHUB_BRANCH")
	setString(&cfg.LogFile, "OPSMEND_LOG_FILE")
	setString(&cfg.Store.Driver, "OPSMEND_STORE_DRIVER")
	setString(&cfg.Store.DSN, "OPSMEND_STORE_DSN")

	if v := os.Getenv("OPSMEND_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIterations = n
		}
	}
}

// Validate rejects configurations that cannot run: unknown provider or
// store driver, and a selected provider without its API key.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("anthropic API key is required when provider is %q (set ANTHROPIC_API_KEY)", c.Provider)
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai API key is required when provider is %q (set OPENAI_API_KEY)", c.Provider)
		}
	case ProviderGoogle:
		if c.Google.APIKey == "" {
			return fmt.Errorf("google API key is required when provider is %q (set GOOGLE_API_KEY)", c.Provider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown provider %q (expected one of: %s)", c.Provider,
			strings.Join([]string{ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderMock}, ", "))
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StoreMySQL:
		if c.Store.DSN == "" {
			return fmt.Errorf("store DSN is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q (expected one of: %s)", c.Store.Driver,
			strings.Join([]string{StoreMemory, StoreSQLite, StoreMySQL}, ", "))
	}

	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations cannot be negative: %d", c.MaxIterations)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps cannot be negative: %d", c.MaxSteps)
	}
	return nil
}
