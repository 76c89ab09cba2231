package config

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/fathomdata/sqlmux/pkg/apperrors"
)

// Config holds all configuration for a connector.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (the database password) must only come from environment variables.
type Config struct {
	Env string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`

	// Connector describes the database endpoint and its named databases.
	Connector ConnectorConfig `yaml:"connector"`

	// Pool applies to every engine the connector opens.
	Pool PoolConfig `yaml:"pool"`

	// Session sets the transaction options every session is created with.
	Session SessionConfig `yaml:"session"`
}

// ConnectorConfig describes one database endpoint. For sqlite, HostOrPath is
// the directory holding the database files; for server kinds it is the
// hostname.
type ConnectorConfig struct {
	Kind       string `yaml:"kind" env:"DB_KIND" env-default:"postgres"`
	HostOrPath string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port       int    `yaml:"port" env:"DB_PORT" env-default:"0"` // 0 = kind default
	User       string `yaml:"user" env:"DB_USER" env-default:""`
	Password   string `yaml:"-" env:"DB_PASSWORD"` // Secret - not in YAML

	// Names lists the databases to open engines for. From env, a
	// comma-separated list.
	Names []string `yaml:"names" env:"DB_NAMES"`

	// Schemas lists the schema targets sessions may bind to. Ignored for
	// kinds without schema support.
	Schemas []string `yaml:"schemas" env:"DB_SCHEMAS"`
}

// ResolvedHost returns the host to actually dial, accounting for Docker
// localhost redirection. sqlite paths are returned unchanged.
func (c ConnectorConfig) ResolvedHost() string {
	if c.Kind == "sqlite" {
		return c.HostOrPath
	}
	return ResolveHostForDocker(c.HostOrPath)
}

// PoolConfig holds database/sql pool limits, applied per engine.
type PoolConfig struct {
	MaxOpenConns       int `yaml:"max_open_conns" env:"DB_POOL_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns       int `yaml:"max_idle_conns" env:"DB_POOL_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetimeMin int `yaml:"conn_max_lifetime_minutes" env:"DB_POOL_CONN_MAX_LIFETIME_MINUTES" env-default:"30"`
	ConnMaxIdleTimeMin int `yaml:"conn_max_idle_time_minutes" env:"DB_POOL_CONN_MAX_IDLE_TIME_MINUTES" env-default:"5"`
}

// SessionConfig fixes the transaction options sessions are created with.
type SessionConfig struct {
	// Isolation is one of: default, read_uncommitted, read_committed,
	// repeatable_read, snapshot, serializable.
	Isolation string `yaml:"isolation" env:"DB_ISOLATION" env-default:"default"`
	ReadOnly  bool   `yaml:"read_only" env:"DB_READ_ONLY" env-default:"false"`
}

var isolationLevels = map[string]sql.IsolationLevel{
	"default":          sql.LevelDefault,
	"read_uncommitted": sql.LevelReadUncommitted,
	"read_committed":   sql.LevelReadCommitted,
	"repeatable_read":  sql.LevelRepeatableRead,
	"snapshot":         sql.LevelSnapshot,
	"serializable":     sql.LevelSerializable,
}

// TxOptions translates the session settings into sql.TxOptions.
func (s SessionConfig) TxOptions() (*sql.TxOptions, error) {
	level, ok := isolationLevels[strings.ToLower(s.Isolation)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown isolation level %q", apperrors.ErrInvalidConfig, s.Isolation)
	}
	return &sql.TxOptions{Isolation: level, ReadOnly: s.ReadOnly}, nil
}

// Load reads configuration from the given YAML file with environment
// variable overrides. An empty path means env-only configuration. A missing
// default config.yaml is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	switch {
	case path == "":
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			if err := cleanenv.ReadEnv(cfg); err != nil {
				return nil, fmt.Errorf("failed to read environment: %w", err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the connector cannot work without.
func (c *Config) Validate() error {
	if c.Connector.Kind == "" {
		return fmt.Errorf("%w: kind is required", apperrors.ErrInvalidConfig)
	}
	if c.Connector.HostOrPath == "" {
		return fmt.Errorf("%w: host is required", apperrors.ErrInvalidConfig)
	}
	if len(c.Connector.Names) == 0 {
		return fmt.Errorf("%w: at least one database name is required", apperrors.ErrInvalidConfig)
	}
	if _, err := c.Session.TxOptions(); err != nil {
		return err
	}
	return nil
}

// MultiConfig is the shape of a multi-connector YAML file: a map of
// connector name to connector settings, sharing one pool and session block.
type MultiConfig struct {
	Env        string                     `yaml:"env"`
	Connectors map[string]ConnectorConfig `yaml:"connectors"`
	Pool       PoolConfig                 `yaml:"pool"`
	Session    SessionConfig              `yaml:"session"`
}

// LoadMulti parses a multi-connector YAML file. Passwords still come from
// the environment: each connector reads DB_PASSWORD_<UPPERCASE_NAME>, falling
// back to DB_PASSWORD.
func LoadMulti(path string) (*MultiConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg := &MultiConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(cfg.Connectors) == 0 {
		return nil, fmt.Errorf("%w: no connectors defined in %s", apperrors.ErrInvalidConfig, path)
	}

	for name, cc := range cfg.Connectors {
		if pw := os.Getenv("DB_PASSWORD_" + envSuffix(name)); pw != "" {
			cc.Password = pw
		} else {
			cc.Password = os.Getenv("DB_PASSWORD")
		}
		cfg.Connectors[name] = cc

		single := Config{Connector: cc, Pool: cfg.Pool, Session: cfg.Session}
		if err := single.Validate(); err != nil {
			return nil, fmt.Errorf("connector %q: %w", name, err)
		}
	}
	return cfg, nil
}

// Split expands a MultiConfig into per-connector Configs keyed by name.
func (m *MultiConfig) Split() map[string]*Config {
	out := make(map[string]*Config, len(m.Connectors))
	for name, cc := range m.Connectors {
		out[name] = &Config{Env: m.Env, Connector: cc, Pool: m.Pool, Session: m.Session}
	}
	return out
}

func envSuffix(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 32
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return mapped
}
