package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/authava/authgate/internal/admin"
	"github.com/authava/authgate/internal/config"
	"github.com/authava/authgate/internal/identity"
	"github.com/authava/authgate/internal/logging"
	"github.com/authava/authgate/internal/metrics"
	"github.com/authava/authgate/internal/pipeline"
	"github.com/authava/authgate/internal/server"
	"github.com/authava/authgate/internal/session"
	"github.com/authava/authgate/internal/store"
)

func main() {
	envPrefix := flag.String("env-prefix", "AUTHGATE", "environment variable prefix")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	ruleStore, mutable, err := buildStore(ctx, cfg.Store)
	if err != nil {
		logger.Error("unable to build rule store", slog.Any("error", err))
		os.Exit(1)
	}

	bundle, err := ruleStore.Load(ctx)
	if err != nil {
		logger.Error("initial rule load failed", slog.Any("error", err))
		os.Exit(1)
	}

	cache := buildSessionCache(logger, cfg.Cache)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := cache.Close(shutdownCtx); err != nil {
			logger.Error("session cache shutdown failed", slog.Any("error", err))
		}
	}()

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	identityClient := identity.New()

	pipe := pipeline.New(bundle, cache, identityClient, cfg.SessionCookie, cfg.CallbackDomain, cfg.Logging.CorrelationHeader, logger, metricsRecorder)

	reload := func() {
		fresh, err := ruleStore.Load(ctx)
		if err != nil {
			metricsRecorder.ObserveRuleReload(false)
			logger.Error("rule reload failed, keeping previous table", slog.Any("error", err))
			return
		}
		metricsRecorder.ObserveRuleReload(true)
		pipe.Reload(fresh)
		logger.Info("rule table reloaded", slog.Int("rules", len(fresh.Table.Rules)))
	}

	if jsonStore, ok := ruleStore.(*store.JSONStore); ok {
		watcher, err := jsonStore.Watch(ctx, func(b store.Bundle) {
			pipe.Reload(b)
			metricsRecorder.ObserveRuleReload(true)
			logger.Info("rule table reloaded from file change", slog.Int("rules", len(b.Table.Rules)))
		}, func(err error) {
			metricsRecorder.ObserveRuleReload(false)
			logger.Error("rule file watch error", slog.Any("error", err))
		})
		if err != nil {
			logger.Warn("rule file watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	opts := server.Options{
		Auth:      pipe,
		Metrics:   metricsRecorder.Handler(),
		RuleTable: pipe,
		Cache:     cache,
	}

	if cfg.AdminMounted() && mutable != nil {
		guard := &admin.Guard{
			Token:          cfg.Admin.Token,
			AllowTestToken: cfg.Admin.AllowTestToken,
			SessionCookie:  cfg.Admin.SessionCookie,
			Roles:          cfg.Admin.SessionRoles,
			Cache:          cache,
			Resolver:       identityClient,
			SessionURL:     func() string { return pipe.Current().SessionURL },
		}
		opts.Admin = admin.NewRouter(guard, mutable, reload)
	} else if cfg.Admin.Enabled {
		opts.Admin = admin.NotMountedHandler()
	}

	router := server.NewRouter(opts)

	srv, err := server.New(cfg, logger, router)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

func buildStore(ctx context.Context, cfg config.StoreConfig) (store.Store, store.Mutable, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "json":
		s := store.NewJSONStore(cfg.ConfigFile)
		return s, nil, nil
	case "postgres":
		s, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("cmd: unsupported store backend %q", cfg.Backend)
	}
}

func buildSessionCache(logger *slog.Logger, cfg config.CacheConfig) session.Cache {
	if !cfg.Enabled {
		logger.Info("session cache disabled")
		return session.NewDisabled()
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		logger.Info("using memory session cache")
		return session.NewMemory()
	case "redis":
		redisCfg, err := parseRedisURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid redis cache url, falling back to memory", slog.Any("error", err))
			return session.NewMemory()
		}
		c, err := session.NewRedis(redisCfg)
		if err != nil {
			logger.Error("redis cache initialization failed, falling back to memory", slog.Any("error", err))
			return session.NewMemory()
		}
		logger.Info("using redis session cache", slog.String("address", redisCfg.Address))
		return c
	default:
		logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return session.NewMemory()
	}
}

// parseRedisURL turns a redis://[user:pass@]host:port[/db] URL into the
// shape session.RedisConfig expects.
func parseRedisURL(raw string) (session.RedisConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return session.RedisConfig{}, fmt.Errorf("parse redis url: %w", err)
	}

	cfg := session.RedisConfig{Address: u.Host}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	if u.Scheme == "rediss" {
		cfg.TLS = session.RedisTLSConfig{Enabled: true}
	}
	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		db, err := strconv.Atoi(path)
		if err == nil {
			cfg.DB = db
		}
	}
	return cfg, nil
}
