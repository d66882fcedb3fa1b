// Package pipeline implements the decision pipeline (C6): the HTTP handler
// behind the forward-auth endpoint, wiring the rule matcher, session cache,
// identity client, and policy evaluator into the strictly-ordered
// Start -> Matched -> Tokened -> Resolved -> Decided state machine.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/authava/authgate/internal/logging"
	"github.com/authava/authgate/internal/match"
	"github.com/authava/authgate/internal/metrics"
	"github.com/authava/authgate/internal/policy"
	"github.com/authava/authgate/internal/rules"
	"github.com/authava/authgate/internal/session"
	"github.com/authava/authgate/internal/store"
)

// Resolver is the subset of identity.Client the pipeline depends on.
type Resolver interface {
	Resolve(ctx context.Context, sessionURL, token string) (rules.Session, time.Duration, error)
}

// Pipeline holds the process-wide state described in §5: an atomically
// swapped rule bundle snapshot (resolving the cyclic lifetime noted in §9 —
// the store never references the pipeline; reload is a plain func value
// invoked by whoever owns the admin surface or the file watcher) plus the
// cache and identity collaborators, which carry their own internal
// synchronization.
type Pipeline struct {
	bundle atomic.Pointer[store.Bundle]

	cache    session.Cache
	identity Resolver

	sessionCookie     string
	callbackDomain    string
	correlationHeader string

	logger  *slog.Logger
	metrics *metrics.Recorder
}

// New constructs a Pipeline with an initial bundle. sessionCookie is the
// gateway's own configured cookie name (distinct from the literal "session"
// cookie the identity client always sends upstream, per §4.3).
// correlationHeader is the inbound header (logging.correlationHeader, e.g.
// X-Request-Id) whose value is attached to the per-request decision log line
// so it can be traced back to the proxy that forwarded the request.
func New(initial store.Bundle, cache session.Cache, resolver Resolver, sessionCookie, callbackDomain, correlationHeader string, logger *slog.Logger, rec *metrics.Recorder) *Pipeline {
	p := &Pipeline{
		cache:             cache,
		identity:          resolver,
		sessionCookie:     sessionCookie,
		callbackDomain:    callbackDomain,
		correlationHeader: correlationHeader,
		logger:            logger,
		metrics:           rec,
	}
	p.bundle.Store(&initial)
	return p
}

// Reload atomically swaps in a freshly loaded bundle. It is a bare func
// value with no reference back into the store, so store implementations
// never need to know a Pipeline exists.
func (p *Pipeline) Reload(b store.Bundle) {
	p.bundle.Store(&b)
}

// Current returns the presently active bundle snapshot.
func (p *Pipeline) Current() store.Bundle {
	return *p.bundle.Load()
}

type outcome string

const (
	outcomeAllow    outcome = "allow"
	outcomeRedirect outcome = "redirect"
	outcomeForbid   outcome = "forbid"
	outcomeInternal outcome = "internal_error"
)

// ServeHTTP implements the forward-auth endpoint (§4.6, §6). Inputs are read
// from the query string first, falling back to the same-named
// X-Forwarded-* headers.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	host := firstNonEmpty(r.URL.Query().Get("X-Forwarded-Host"), r.Header.Get("X-Forwarded-Host"))
	path := firstNonEmpty(r.URL.Query().Get("X-Forwarded-Uri"), r.Header.Get("X-Forwarded-Uri"))
	proto := firstNonEmpty(r.URL.Query().Get("X-Forwarded-Proto"), r.Header.Get("X-Forwarded-Proto"))
	if proto == "" {
		proto = "https"
	}
	if path == "" {
		path = "/"
	}

	originalURL := fmt.Sprintf("%s://%s%s", proto, host, path)
	effectiveNext := originalURL
	if p.callbackDomain != "" {
		effectiveNext = fmt.Sprintf("%s/auth/callback?next=%s", strings.TrimSuffix(p.callbackDomain, "/"), encodeNext(originalURL))
	}

	bundle := p.Current()

	rule, matched := match.Match(bundle.Table, host, path)
	if !matched {
		p.finish(w, r, start, outcomeAllow, http.StatusOK, false, nil)
		return
	}

	cookieName := bundle.CookieName
	if cookieName == "" {
		cookieName = p.sessionCookie
	}
	token := cookieValue(r, cookieName)
	if token == "" {
		p.redirect(w, r, start, bundle.LoginRedirect, effectiveNext)
		return
	}

	sess, fromCache, err := p.resolveSession(ctx, bundle.SessionURL, token)
	if err != nil {
		p.logger.WarnContext(ctx, "identity resolution failed, treating as unauthenticated",
			slog.String("error", err.Error()))
		p.redirect(w, r, start, bundle.LoginRedirect, effectiveNext)
		return
	}

	decision := policy.Evaluate(sess, rule.Requirement)
	switch decision.Outcome {
	case policy.Authorized:
		p.allow(w, sess)
		p.finish(w, r, start, outcomeAllow, http.StatusOK, fromCache, nil)
	case policy.Unauthorized:
		p.forbid(w, decision.Reason)
		p.finish(w, r, start, outcomeForbid, http.StatusForbidden, fromCache, errors.New(decision.Reason))
	case policy.Error:
		p.internalError(w, decision.Reason)
		p.finish(w, r, start, outcomeInternal, http.StatusInternalServerError, fromCache, errors.New(decision.Reason))
	default:
		p.redirect(w, r, start, bundle.LoginRedirect, effectiveNext)
	}
}

// resolveSession implements step 5 of §4.6: cache.get, else
// identity.resolve, caching the result on success. Cache errors are treated
// as a miss; they never fail the request.
func (p *Pipeline) resolveSession(ctx context.Context, sessionURL, token string) (rules.Session, bool, error) {
	lookupStart := time.Now()
	if p.cache != nil {
		sess, ok, err := p.cache.Get(ctx, token)
		if err != nil {
			p.metrics.ObserveCacheLookup("auth", metrics.CacheLookupError, time.Since(lookupStart))
			p.logger.WarnContext(ctx, "session cache lookup failed", slog.String("error", err.Error()))
		} else if ok {
			p.metrics.ObserveCacheLookup("auth", metrics.CacheLookupHit, time.Since(lookupStart))
			return sess, true, nil
		} else {
			p.metrics.ObserveCacheLookup("auth", metrics.CacheLookupMiss, time.Since(lookupStart))
		}
	}

	identityStart := time.Now()
	sess, ttl, err := p.identity.Resolve(ctx, sessionURL, token)
	if err != nil {
		p.metrics.ObserveIdentity(metrics.IdentityError, time.Since(identityStart))
		return rules.Session{}, false, err
	}
	p.metrics.ObserveIdentity(metrics.IdentityResolved, time.Since(identityStart))

	if p.cache != nil {
		storeStart := time.Now()
		if err := p.cache.Put(ctx, token, sess, ttl); err != nil {
			p.metrics.ObserveCacheStore("auth", metrics.CacheStoreError, time.Since(storeStart))
			p.logger.WarnContext(ctx, "session cache store failed", slog.String("error", err.Error()))
		} else {
			p.metrics.ObserveCacheStore("auth", metrics.CacheStoreStored, time.Since(storeStart))
		}
	}

	return sess, false, nil
}

func (p *Pipeline) allow(w http.ResponseWriter, sess rules.Session) {
	w.Header().Set("X-Auth-User-Id", sess.User.ID)
	w.Header().Set("X-Auth-User-Email", sess.User.Email)
	if len(sess.User.Roles) > 0 {
		w.Header().Set("X-Auth-User-Roles", strings.Join(sess.User.Roles, ","))
	}
	if len(sess.User.Permissions) > 0 {
		w.Header().Set("X-Auth-User-Permissions", strings.Join(sess.User.Permissions, ","))
	}
	w.WriteHeader(http.StatusOK)
}

func (p *Pipeline) redirect(w http.ResponseWriter, r *http.Request, start time.Time, loginRedirect, effectiveNext string) {
	sep := "?next="
	if strings.Contains(loginRedirect, "?") {
		sep = "&next="
	}
	location := loginRedirect + sep + encodeNext(effectiveNext)
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
	p.finish(w, r, start, outcomeRedirect, http.StatusFound, false, nil)
}

func (p *Pipeline) forbid(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprintf(w, "Forbidden: %s", reason)
}

func (p *Pipeline) internalError(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "Internal server error: %s", reason)
}

func (p *Pipeline) finish(_ http.ResponseWriter, r *http.Request, start time.Time, o outcome, status int, fromCache bool, err error) {
	duration := time.Since(start)
	p.metrics.ObserveAuth("auth", string(o), status, fromCache, duration)
	attrs := []any{
		slog.String("outcome", string(o)),
		slog.Int("status", status),
		slog.Bool("from_cache", fromCache),
		slog.Duration("duration", duration),
	}
	if err != nil {
		attrs = append(attrs, slog.String("reason", err.Error()))
	}
	reqLogger := logging.WithRequestID(p.logger, r, p.correlationHeader)
	reqLogger.InfoContext(r.Context(), "auth decision", attrs...)
}

// encodeNext implements §4.6's base64url-without-padding encoding of a
// UTF-8 URL.
func encodeNext(url string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(url))
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
