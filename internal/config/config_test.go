package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, DriverBolt, cfg.Store.Driver)
	assert.Equal(t, domain.DefaultPortRange(), cfg.Ports.Range())
	assert.Equal(t, 80, cfg.Ports.Container)
	assert.Equal(t, 30*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Engine.BuildTimeout)
	assert.Equal(t, "127.0.0.1", cfg.Proxy.Host)
	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lighthouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: sqlite
  path: /var/lib/lighthouse
ports:
  min: 12000
  max: 12010
engine:
  timeout: 5s
`), 0o644))
	t.Setenv("LIGHTHOUSE_SERVER_ADDR", ":8080")
	t.Setenv("LIGHTHOUSE_PORTS_MAX", "12020")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, domain.PortRange{Min: 12000, Max: 12020}, cfg.Ports.Range())
	assert.Equal(t, 5*time.Second, cfg.Engine.Timeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(viper.New(), "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted range", func(c *Config) { c.Ports.Min, c.Ports.Max = 20000, 10000 }},
		{"range above tcp", func(c *Config) { c.Ports.Max = 70000 }},
		{"container port", func(c *Config) { c.Ports.Container = 0 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"no media root", func(c *Config) { c.Media.Root = "" }},
		{"zero timeout", func(c *Config) { c.Engine.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBuildConfig_Template(t *testing.T) {
	text, err := BuildConfig{}.Template()
	require.NoError(t, err)
	assert.Empty(t, text)

	path := filepath.Join(t.TempDir(), "Dockerfile.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("FROM httpd:alpine\n"), 0o644))
	text, err = BuildConfig{TemplateFile: path}.Template()
	require.NoError(t, err)
	assert.Equal(t, "FROM httpd:alpine\n", text)
}
