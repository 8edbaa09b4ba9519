package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ProviderMock, cfg.Provider)
	assert.Equal(t, "main", cfg.GitHub.Branch)
	assert.Equal(t, "app_logs.txt", cfg.LogFile)
	assert.Equal(t, "app.go", cfg.RepoFile)
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ProviderMock, cfg.Provider)
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
provider: anthropic
anthropic:
  api_key: sk-test
  model: claude-sonnet-4-20250514
github:
  token: ghp_x
  repo: acme/api
log_file: /var/log/api.log
max_iterations: 5
store:
  driver: sqlite
  dsn: /tmp/opsmend.db
`)
		t.Setenv("ANTHROPIC_API_KEY", "")
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, ProviderAnthropic, cfg.Provider)
		assert.Equal(t, "sk-test", cfg.Anthropic.APIKey)
		assert.Equal(t, "acme/api", cfg.GitHub.Repo)
		assert.Equal(t, "main", cfg.GitHub.Branch, "unset fields keep their defaults")
		assert.Equal(t, "/var/log/api.log", cfg.LogFile)
		assert.Equal(t, 5, cfg.MaxIterations)
		assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := writeConfig(t, `
provider: openai
openai:
  api_key: from-file
`)
		t.Setenv("OPENAI_API_KEY", "from-env")
		t.Setenv("OPSMEND_MAX_ITERATIONS", "7")
		t.Setenv("GITHUB_REPO", "acme/web")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "from-env", cfg.OpenAI.APIKey)
		assert.Equal(t, 7, cfg.MaxIterations)
		assert.Equal(t, "acme/web", cfg.GitHub.Repo)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := writeConfig(t, "provider: [unclosed")
		_, err := Load(path)
		assert.ErrorContains(t, err, "failed to parse config file")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "mock provider needs no key",
			mutate: func(c *Config) {},
		},
		{
			name: "anthropic without key",
			mutate: func(c *Config) {
				c.Provider = ProviderAnthropic
			},
			wantErr: "ANTHROPIC_API_KEY",
		},
		{
			name: "openai without key",
			mutate: func(c *Config) {
				c.Provider = ProviderOpenAI
			},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name: "google without key",
			mutate: func(c *Config) {
				c.Provider = ProviderGoogle
			},
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name: "unknown provider names the valid set",
			mutate: func(c *Config) {
				c.Provider = "cohere"
			},
			wantErr: "unknown provider",
		},
		{
			name: "sqlite without dsn",
			mutate: func(c *Config) {
				c.Store = StoreConfig{Driver: StoreSQLite}
			},
			wantErr: "DSN is required",
		},
		{
			name: "mysql with dsn passes",
			mutate: func(c *Config) {
				c.Store = StoreConfig{Driver: StoreMySQL, DSN: "user:pw@tcp(db:3306)/opsmend?parseTime=true"}
			},
		},
		{
			name: "unknown store driver",
			mutate: func(c *Config) {
				c.Store = StoreConfig{Driver: "redis"}
			},
			wantErr: "unknown store driver",
		},
		{
			name: "negative max iterations",
			mutate: func(c *Config) {
				c.MaxIterations = -1
			},
			wantErr: "max_iterations",
		},
		{
			name: "negative max steps",
			mutate: func(c *Config) {
				c.MaxSteps = -1
			},
			wantErr: "max_steps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
