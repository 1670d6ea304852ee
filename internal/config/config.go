// Package config loads routedb configuration.
// A YAML file provides the base values, environment variables prefixed
// with ROUTEDB_ override them, and command line flags override both.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/saltyorg/routedb/internal/dbrouter"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "ROUTEDB_"

// Config holds all configuration for routedb
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	Bind        string `yaml:"bind"`
	AllowSubnet string `yaml:"allowSubnet"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// DatabaseConfig describes the pools to open and which one serves
// operations that do not select a target.
type DatabaseConfig struct {
	DefaultTarget string                      `yaml:"defaultTarget"`
	DataSources   map[string]DataSourceConfig `yaml:"dataSources"`
	// MigrateAll migrates every target on startup instead of the primary
	// only. Set it when the targets are independent databases rather than
	// replicas fed by the primary.
	MigrateAll bool `yaml:"migrateAll"`
}

// DataSourceConfig holds the connection parameters of one pool
type DataSourceConfig struct {
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `yaml:"connMaxIdleTime"`
}

type MonitorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// Default returns a Config with sensible defaults: two SQLite files in
// the working directory with reads going to the replica.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Level:      "info",
			File:       "routedb.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Database: DatabaseConfig{
			DefaultTarget: string(dbrouter.Replica),
			// The two default SQLite files do not replicate.
			MigrateAll: true,
			DataSources: map[string]DataSourceConfig{
				string(dbrouter.Primary): DefaultDataSource("sqlite", "./primary.db"),
				string(dbrouter.Replica): DefaultDataSource("sqlite", "./replica.db"),
			},
		},
		Monitor: MonitorConfig{
			Enabled:  true,
			Schedule: "@every 30s",
		},
		Timeouts: DefaultTimeoutConfig(),
	}
}

// DefaultDataSource returns a datasource with the default pool limits
func DefaultDataSource(driver, url string) DataSourceConfig {
	return DataSourceConfig{
		Driver:       driver,
		URL:          url,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}
}

// Load reads the YAML file at path on top of the defaults and applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		defaults := cfg.Database.DataSources
		// yaml.v3 merges into existing maps; a file that lists datasources replaces the defaults.
		cfg.Database.DataSources = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if cfg.Database.DataSources == nil {
			cfg.Database.DataSources = defaults
		}
	}

	cfg.ApplyEnv(NewLoader(EnvSettings{Prefix: EnvPrefix}))
	return cfg, nil
}

// ApplyEnv overrides values with settings found through loader.
// Datasource keys are "<target>.<field>", e.g. "primary.url".
func (c *Config) ApplyEnv(loader *Loader) {
	c.Server.Port = loader.Int("port", c.Server.Port)
	c.Server.Bind = loader.String("bind", c.Server.Bind)
	c.Server.AllowSubnet = loader.String("allow_subnet", c.Server.AllowSubnet)
	c.Log.Level = loader.String("log.level", c.Log.Level)
	c.Log.File = loader.String("log.file", c.Log.File)
	c.Database.DefaultTarget = loader.String("default_target", c.Database.DefaultTarget)
	c.Database.MigrateAll = loader.Bool("migrate_all", c.Database.MigrateAll)
	c.Monitor.Enabled = loader.Bool("monitor.enabled", c.Monitor.Enabled)
	c.Monitor.Schedule = loader.String("monitor.schedule", c.Monitor.Schedule)

	if c.Database.DataSources == nil {
		c.Database.DataSources = make(map[string]DataSourceConfig)
	}

	names := []string{string(dbrouter.Primary), string(dbrouter.Replica)}
	for name := range c.Database.DataSources {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}

	for _, name := range names {
		ds, exists := c.Database.DataSources[name]
		if !exists {
			// Only create a datasource from the environment when it names a URL.
			if loader.String(name+".url", "") == "" {
				continue
			}
			ds = DefaultDataSource("sqlite", "")
		}
		ds.Driver = loader.String(name+".driver", ds.Driver)
		ds.URL = loader.String(name+".url", ds.URL)
		ds.Username = loader.String(name+".username", ds.Username)
		ds.Password = loader.String(name+".password", ds.Password)
		ds.MaxOpenConns = loader.Int(name+".max_open_conns", ds.MaxOpenConns)
		ds.MaxIdleConns = loader.Int(name+".max_idle_conns", ds.MaxIdleConns)
		ds.ConnMaxLifetime = loader.Duration(name+".conn_max_lifetime", ds.ConnMaxLifetime)
		ds.ConnMaxIdleTime = loader.Duration(name+".conn_max_idle_time", ds.ConnMaxIdleTime)
		c.Database.DataSources[name] = ds
	}
}

// Validate checks the server settings
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Server.Bind != "" {
		if ip := net.ParseIP(c.Server.Bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", c.Server.Bind)
		}
	}
	if _, err := c.AllowedNet(); err != nil {
		return err
	}
	return c.Database.Validate()
}

// AllowedNet parses the allow-subnet CIDR, nil when unrestricted
func (c *Config) AllowedNet() (*net.IPNet, error) {
	if c.Server.AllowSubnet == "" {
		return nil, nil
	}
	_, parsedNet, err := net.ParseCIDR(c.Server.AllowSubnet)
	if err != nil {
		return nil, fmt.Errorf("invalid allow-subnet CIDR: %s", c.Server.AllowSubnet)
	}
	return parsedNet, nil
}

// Validate checks that every datasource can be opened and that the
// default target is one of them.
func (d DatabaseConfig) Validate() error {
	if len(d.DataSources) == 0 {
		return errors.New("no datasources configured")
	}

	targets, err := d.Targets()
	if err != nil {
		return err
	}
	for target, ds := range targets {
		if ds.Driver == "" {
			return fmt.Errorf("datasource %s: driver is required", target)
		}
		if ds.URL == "" {
			return fmt.Errorf("datasource %s: url is required", target)
		}
	}

	def, err := d.Default()
	if err != nil {
		return err
	}
	if _, ok := targets[def]; !ok {
		return fmt.Errorf("default target %q is not a configured datasource", def)
	}
	return nil
}

// Targets returns the datasources keyed by parsed target
func (d DatabaseConfig) Targets() (map[dbrouter.Target]DataSourceConfig, error) {
	targets := make(map[dbrouter.Target]DataSourceConfig, len(d.DataSources))
	for name, ds := range d.DataSources {
		target, err := dbrouter.ParseTarget(name)
		if err != nil {
			return nil, fmt.Errorf("datasource %q: %w", name, err)
		}
		if _, dup := targets[target]; dup {
			return nil, fmt.Errorf("datasource %q is configured twice", target)
		}
		targets[target] = ds
	}
	return targets, nil
}

// Default returns the parsed default target
func (d DatabaseConfig) Default() (dbrouter.Target, error) {
	target, err := dbrouter.ParseTarget(d.DefaultTarget)
	if err != nil {
		return "", fmt.Errorf("default target: %w", err)
	}
	return target, nil
}
