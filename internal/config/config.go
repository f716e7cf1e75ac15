// Package config loads server and CLI settings with viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LIGHTHOUSE_SERVER_ADDR.
const EnvPrefix = "LIGHTHOUSE"

const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Media  MediaConfig  `mapstructure:"media"`
	Ports  PortsConfig  `mapstructure:"ports"`
	Engine EngineConfig `mapstructure:"engine"`
	Build  BuildConfig  `mapstructure:"build"`
	Proxy  ProxyConfig  `mapstructure:"proxy"`
	Watch  WatchConfig  `mapstructure:"watch"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	BodyLimit int    `mapstructure:"body_limit"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	// Path is the data directory holding the database file.
	Path string `mapstructure:"path"`
}

type MediaConfig struct {
	Root string `mapstructure:"root"`
}

type PortsConfig struct {
	Min       int `mapstructure:"min"`
	Max       int `mapstructure:"max"`
	Container int `mapstructure:"container"`
}

// Range returns the host port range.
func (p PortsConfig) Range() domain.PortRange {
	return domain.PortRange{Min: p.Min, Max: p.Max}
}

type EngineConfig struct {
	Host         string        `mapstructure:"host"`
	Timeout      time.Duration `mapstructure:"timeout"`
	BuildTimeout time.Duration `mapstructure:"build_timeout"`
}

type BuildConfig struct {
	// TemplateFile overrides the default build descriptor template.
	TemplateFile string `mapstructure:"template_file"`
}

// Template returns the descriptor template text, empty for the built-in one.
func (b BuildConfig) Template() (string, error) {
	if b.TemplateFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(b.TemplateFile)
	if err != nil {
		return "", fmt.Errorf("failed to read build template: %w", err)
	}
	return string(data), nil
}

type ProxyConfig struct {
	Host string `mapstructure:"host"`
}

type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.body_limit", 16*1024*1024)
	v.SetDefault("store.driver", DriverBolt)
	v.SetDefault("store.path", "./data")
	v.SetDefault("media.root", "./data/media")
	v.SetDefault("ports.min", domain.MinHostPort)
	v.SetDefault("ports.max", domain.MaxHostPort)
	v.SetDefault("ports.container", domain.ContainerPort)
	v.SetDefault("engine.host", "")
	v.SetDefault("engine.timeout", 30*time.Second)
	v.SetDefault("engine.build_timeout", 10*time.Minute)
	v.SetDefault("build.template_file", "")
	v.SetDefault("proxy.host", "127.0.0.1")
	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.debounce", 500*time.Millisecond)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load reads defaults, then configFile (if set), then LIGHTHOUSE_* env vars,
// into a validated Config. Flags bound to v before Load take precedence.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Ports.Range().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ports: %w", err))
	}
	if c.Ports.Container < 1 || c.Ports.Container > 65535 {
		errs = append(errs, fmt.Errorf("ports.container: %w: %d", domain.ErrPortOutOfRange, c.Ports.Container))
	}
	switch c.Store.Driver {
	case DriverBolt, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path: required"))
	}
	if c.Media.Root == "" {
		errs = append(errs, errors.New("media.root: required"))
	}
	if c.Engine.Timeout <= 0 || c.Engine.BuildTimeout <= 0 {
		errs = append(errs, errors.New("engine: timeouts must be positive"))
	}
	return errors.Join(errs...)
}
