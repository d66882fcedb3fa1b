// Package config hydrates the server-level configuration (the ambient
// concerns: listener, logging, cache backend, admin guard) via koanf, from
// two layered sources only: AUTHGATE_-prefixed environment variables (plus
// the bare, unprefixed PORT and DATABASE_URL conventions common to
// container platforms) taking precedence over the built-in defaults
// returned by Default. There is no file- or YAML-based layer.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds every server-level knob recognized by authgate (§6).
type Config struct {
	Listen         ListenConfig  `koanf:"listen"`
	Logging        LoggingConfig `koanf:"logging"`
	Store          StoreConfig   `koanf:"store"`
	Cache          CacheConfig   `koanf:"cache"`
	SessionCookie  string        `koanf:"sessionCookie"`
	SessionURL     string        `koanf:"sessionUrl"`
	CallbackDomain string        `koanf:"callbackDomain"`
	Admin          AdminConfig   `koanf:"admin"`
}

// ListenConfig controls the HTTP listener.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level, format, and correlation header wiring.
type LoggingConfig struct {
	Level             string `koanf:"level"`
	Format            string `koanf:"format"`
	CorrelationHeader string `koanf:"correlationHeader"`
}

// StoreConfig selects and configures the rule store backend (C1).
type StoreConfig struct {
	Backend     string `koanf:"backend"`     // "json" (default) or "postgres"
	ConfigFile  string `koanf:"configFile"`  // JSON file path when backend == "json"
	DatabaseURL string `koanf:"databaseUrl"` // Connection string when backend == "postgres"
}

// CacheConfig selects and configures the session cache backend (C2).
type CacheConfig struct {
	Enabled    bool             `koanf:"enabled"`
	Backend    string           `koanf:"backend"` // "memory" (default) or "redis"
	TTLSeconds int              `koanf:"ttlSeconds"`
	Redis      CacheRedisConfig `koanf:"redis"`
}

// CacheRedisConfig configures the remote cache connection.
type CacheRedisConfig struct {
	URL string `koanf:"url"`
}

// AdminConfig controls the admin guard (C7) and admin HTTP surface (A5).
type AdminConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Token           string   `koanf:"token"`
	AllowTestToken  bool     `koanf:"allowTestToken"`
	SessionCookie   string   `koanf:"sessionCookie"`
	SessionRoles    []string `koanf:"-"`
	SessionRolesCSV string   `koanf:"sessionRoles"`
}

// Default returns the built-in defaults, loaded first by Loader so the
// environment only needs to express overrides.
func Default() Config {
	return Config{
		Listen: ListenConfig{Address: "0.0.0.0", Port: 4181},
		Logging: LoggingConfig{
			Level:             "info",
			Format:            "json",
			CorrelationHeader: "X-Request-Id",
		},
		Store: StoreConfig{Backend: "json"},
		Cache: CacheConfig{
			Enabled:    true,
			Backend:    "memory",
			TTLSeconds: 300,
		},
		SessionCookie: "session",
		Admin: AdminConfig{
			SessionCookie: "admin_session",
		},
	}
}

// Validate checks the server-level configuration for internal consistency.
// It does not validate the rule bundle itself — that happens in the store
// at load time (§4.1).
func (c Config) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("config: invalid listen port %d", c.Listen.Port)
	}
	switch strings.ToLower(c.Store.Backend) {
	case "json":
		if strings.TrimSpace(c.Store.ConfigFile) == "" {
			return errors.New("config: store.configFile required when backend is json")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			return errors.New("config: store.databaseUrl required when backend is postgres")
		}
	default:
		return fmt.Errorf("config: unsupported store backend %q", c.Store.Backend)
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unsupported cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Enabled && strings.EqualFold(c.Cache.Backend, "redis") && strings.TrimSpace(c.Cache.Redis.URL) == "" {
		return errors.New("config: cache.redis.url required when cache backend is redis")
	}
	if strings.TrimSpace(c.SessionCookie) == "" {
		return errors.New("config: sessionCookie must not be empty")
	}
	if c.Admin.Enabled {
		if strings.TrimSpace(c.Admin.Token) == "" && len(c.Admin.SessionRoles) == 0 {
			return errors.New("config: admin.enabled requires either admin.token or admin.sessionRoles")
		}
	}
	return nil
}

// AdminMounted reports whether the admin HTTP surface should be mounted:
// admin mode enabled AND the store backend is the mutable (postgres) one
// (§4.7, §6).
func (c Config) AdminMounted() bool {
	return c.Admin.Enabled && strings.EqualFold(c.Store.Backend, "postgres")
}
