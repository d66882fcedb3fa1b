package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/authava/authgate/internal/rules"
)

// jsonDocument mirrors the persisted JSON file format from §6:
//
//	{ "auth": { "session_url", "login_redirect" }, "routes": [...], "cookie_name"? }
type jsonDocument struct {
	Auth       jsonAuth    `json:"auth"`
	Routes     []jsonRoute `json:"routes"`
	CookieName string      `json:"cookie_name,omitempty"`
}

type jsonAuth struct {
	SessionURL    string `json:"session_url"`
	LoginRedirect string `json:"login_redirect"`
}

type jsonRoute struct {
	ID      *int64            `json:"id,omitempty"`
	Host    string            `json:"host"`
	Path    string            `json:"path"`
	Require rules.Requirement `json:"require"`
}

func (r jsonRoute) toRule() rules.Rule {
	var id int64
	if r.ID != nil {
		id = *r.ID
	}
	return rules.Rule{ID: id, HostPattern: r.Host, PathPattern: r.Path, Requirement: r.Require}
}

// JSONStore loads the rule table from a JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore builds a Store backed by the file at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads and validates the document, rejecting an empty session URL,
// empty login-redirect URL, zero rules, or any rule violating §3 invariants
// 1-3 (per §4.1).
func (s *JSONStore) Load(ctx context.Context) (Bundle, error) {
	select {
	case <-ctx.Done():
		return Bundle{}, ctx.Err()
	default:
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return Bundle{}, fmt.Errorf("store: read %s: %w", s.path, err)
	}

	var doc jsonDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Bundle{}, fmt.Errorf("store: parse %s: %w", s.path, err)
	}

	if strings.TrimSpace(doc.Auth.SessionURL) == "" {
		return Bundle{}, fmt.Errorf("store: %s: auth.session_url must not be empty", s.path)
	}
	if strings.TrimSpace(doc.Auth.LoginRedirect) == "" {
		return Bundle{}, fmt.Errorf("store: %s: auth.login_redirect must not be empty", s.path)
	}
	if len(doc.Routes) == 0 {
		return Bundle{}, fmt.Errorf("store: %s: at least one route is required", s.path)
	}

	ruleset := make([]rules.Rule, len(doc.Routes))
	for i, route := range doc.Routes {
		ruleset[i] = route.toRule()
	}
	table, err := rules.NewTable(ruleset)
	if err != nil {
		return Bundle{}, fmt.Errorf("store: %s: %w", s.path, err)
	}

	cookieName := strings.TrimSpace(doc.CookieName)
	if cookieName == "" {
		cookieName = "session"
	}

	return Bundle{
		SessionURL:    doc.Auth.SessionURL,
		LoginRedirect: doc.Auth.LoginRedirect,
		CookieName:    cookieName,
		Table:         table,
	}, nil
}

// Watcher wraps an fsnotify watch on the store's JSON file, invoking
// onChange with a freshly loaded Bundle whenever the file is written or
// atomically replaced. A load failure during a watch cycle is reported via
// onError and otherwise ignored — the caller keeps the last good bundle
// (§4.1: "a reload failure leaves the previously loaded table in place").
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// Watch starts watching s's file for changes.
func (s *JSONStore) Watch(ctx context.Context, onChange func(Bundle), onError func(error)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("store: watch %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("store: watch %s: %w", dir, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w := &Watcher{cancel: cancel, done: done}

	go func() {
		defer close(done)
		defer watcher.Close()
		target := filepath.Clean(s.path)
		for {
			select {
			case <-watchCtx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				bundle, err := s.Load(watchCtx)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				onChange(bundle)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	return w, nil
}
