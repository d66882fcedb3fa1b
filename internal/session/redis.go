package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	valkey "github.com/valkey-io/valkey-go"

	"github.com/authava/authgate/internal/rules"
)

// RedisTLSConfig controls TLS for the remote cache connection.
type RedisTLSConfig struct {
	Enabled bool
	CAFile  string
}

// RedisConfig describes how to reach the remote session cache.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      RedisTLSConfig
}

// redis is the remote Cache backend. Keys are namespaced
// "authgate:session:<token>"; values are JSON-encoded Entry records; Put
// uses a native TTL set (PX); Get returns a miss on any connection or
// deserialization error, never a stale value.
type redis struct {
	client valkey.Client
}

// NewRedis dials the configured backend and pings it once before returning.
func NewRedis(cfg RedisConfig) (Cache, error) {
	if cfg.Address == "" {
		return nil, errors.New("session: redis address required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil, fmt.Errorf("session: read redis ca file: %w", err)
				}
				return nil, fmt.Errorf("session: read redis ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("session: redis ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("session: redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: redis ping: %w", err)
	}

	return &redis{client: client}, nil
}

func (c *redis) Get(ctx context.Context, token string) (rules.Session, bool, error) {
	resp := c.client.Do(ctx, c.client.B().Get().Key(namespacedKey(token)).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return rules.Session{}, false, nil
		}
		// Connection errors are treated as a miss per the cache's failure
		// policy — never a stale value, never a request failure.
		return rules.Session{}, false, nil
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return rules.Session{}, false, nil
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return rules.Session{}, false, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		return rules.Session{}, false, nil
	}
	return entry.Session, true, nil
}

func (c *redis) Put(ctx context.Context, token string, s rules.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := time.Now()
	entry := Entry{Session: s, StoredAt: now, ExpiresAt: now.Add(ttl)}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("session: redis marshal: %w", err)
	}
	cmd := c.client.B().Set().Key(namespacedKey(token)).Value(string(payload)).Px(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (c *redis) Evict(ctx context.Context, token string) error {
	cmd := c.client.B().Del().Key(namespacedKey(token)).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		// A missing key is success; other errors are swallowed per the
		// documented "evict is idempotent" contract.
		return nil
	}
	return nil
}

func (c *redis) Close(context.Context) error {
	c.client.Close()
	return nil
}
