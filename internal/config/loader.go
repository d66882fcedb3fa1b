package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates Config from AUTHGATE_-prefixed environment variables over
// built-in defaults (§6). PORT is recognized bare, without the prefix, as a
// widely-used convention for container platforms.
type Loader struct {
	envPrefix string
}

// NewLoader prepares a config hydrator using envPrefix (typically
// "AUTHGATE") to scope recognized environment variables.
func NewLoader(envPrefix string) *Loader {
	return &Loader{envPrefix: envPrefix}
}

// canonicalEnvKeys maps the lowercased, prefix-stripped env var name to its
// dotted koanf path, since environment variables carry no case information.
var canonicalEnvKeys = map[string]string{
	"config_backend":      "store.backend",
	"config":              "store.configFile",
	"cache_enabled":       "cache.enabled",
	"cache_backend":       "cache.backend",
	"redis_url":           "cache.redis.url",
	"session_cookie":      "sessionCookie",
	"session_url":         "sessionUrl",
	"callback_domain":     "callbackDomain",
	"enable_admin_api":    "admin.enabled",
	"admin_token":         "admin.token",
	"admin_session_roles": "admin.sessionRoles",
}

// Load assembles the effective configuration snapshot.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	select {
	case <-ctx.Done():
		return Config{}, ctx.Err()
	default:
	}

	defaultCfg := Default()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if l.envPrefix != "" {
		prefix := l.envPrefix + "_"
		transform := func(s string) string {
			key := strings.ToLower(strings.TrimPrefix(s, prefix))
			if mapped, ok := canonicalEnvKeys[key]; ok {
				return mapped
			}
			return key
		}
		if err := k.Load(env.Provider(prefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	// DATABASE_URL and PORT are recognized bare, without the AUTHGATE_ prefix.
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		if err := k.Set("store.databaseUrl", v); err != nil {
			return Config{}, fmt.Errorf("config: set store.databaseUrl: %w", err)
		}
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		if err := k.Set("listen.port", port); err != nil {
			return Config{}, fmt.Errorf("config: set listen.port: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Admin.SessionRoles = splitCSV(cfg.Admin.SessionRolesCSV)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func defaultsMap(cfg Config) map[string]any {
	return map[string]any{
		"listen": map[string]any{
			"address": cfg.Listen.Address,
			"port":    cfg.Listen.Port,
		},
		"logging": map[string]any{
			"level":             cfg.Logging.Level,
			"format":            cfg.Logging.Format,
			"correlationHeader": cfg.Logging.CorrelationHeader,
		},
		"store": map[string]any{
			"backend": cfg.Store.Backend,
		},
		"cache": map[string]any{
			"enabled":    cfg.Cache.Enabled,
			"backend":    cfg.Cache.Backend,
			"ttlSeconds": cfg.Cache.TTLSeconds,
		},
		"sessionCookie": cfg.SessionCookie,
		"admin": map[string]any{
			"sessionCookie": cfg.Admin.SessionCookie,
		},
	}
}
