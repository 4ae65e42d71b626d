package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Wait.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Wait.PollInterval)
	assert.Equal(t, "/admin/login/", cfg.Target.LoginPath)
	assert.Equal(t, "isard", cfg.Scenario.Admin.Username)
	assert.Equal(t, "pirineus", cfg.Scenario.Admin.Password)
	assert.Equal(t, "staff", cfg.Scenario.Staff.Username)
	assert.Equal(t, "password1_st", cfg.Scenario.Staff.Password)
	assert.Equal(t, "NuevaContraseña456!", cfg.Scenario.NewPassword)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 4, cfg.Browser.MaxSessions)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scryflow.yaml")
	content := `
target:
  baseURL: http://app.internal:8000
wait:
  timeout: 5s
  pollInterval: 100ms
scenario:
  staff:
    username: reviewer
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("SCRYFLOW_WAIT_LOGOUTTIMEOUT", "30s")
	t.Setenv("SCRYFLOW_BROWSER_HEADLESS", "false")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://app.internal:8000", cfg.Target.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Wait.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Wait.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Wait.LogoutTimeout)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "reviewer", cfg.Scenario.Staff.Username)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Browser: BrowserConfig{MaxSessions: 1},
			Wait:    WaitConfig{Timeout: time.Second, PollInterval: 100 * time.Millisecond},
			Target:  TargetConfig{BaseURL: "http://localhost:8000"},
			Scenario: ScenarioConfig{
				Admin: CredentialConfig{Username: "isard"},
				Staff: CredentialConfig{Username: "staff"},
			},
		}
	}

	testCases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "missing base URL", mutate: func(c *Config) { c.Target.BaseURL = "" }},
		{name: "poll longer than timeout", mutate: func(c *Config) { c.Wait.PollInterval = 2 * time.Second }},
		{name: "zero sessions", mutate: func(c *Config) { c.Browser.MaxSessions = 0 }},
		{name: "same accounts", mutate: func(c *Config) { c.Scenario.Staff.Username = "isard" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
