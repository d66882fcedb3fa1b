package session

import (
	"context"
	"time"

	"github.com/authava/authgate/internal/rules"
)

// Disabled is the no-op Cache backend used when session caching is turned
// off in configuration. Every Get misses and every Put is silently dropped,
// so AUTHGATE_CACHE_ENABLED=false changes only latency, never the pipeline's
// allow/redirect/forbid outcome (property 4, cache transparency).
type Disabled struct{}

// NewDisabled returns the no-op Cache.
func NewDisabled() Disabled {
	return Disabled{}
}

func (Disabled) Get(context.Context, string) (rules.Session, bool, error) {
	return rules.Session{}, false, nil
}

func (Disabled) Put(context.Context, string, rules.Session, time.Duration) error {
	return nil
}

func (Disabled) Evict(context.Context, string) error { return nil }

func (Disabled) Close(context.Context) error { return nil }
