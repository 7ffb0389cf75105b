// Package registry implements the HandlerRegistry: ordered pattern-keyed
// lookup for most request kinds, exact-match lookup for Event and
// OutgoingWebhook.
package registry

import (
	"log/slog"
	"regexp"
	"sync"

	"github.com/samber/lo"

	"github.com/brennalabs/slackcore/pkg/types"
)

// HandlerFunc is a user-registered handler invoked by the Dispatcher's
// terminal step.
type HandlerFunc func(req *types.Request) (*types.Response, error)

type patternEntry struct {
	pattern *regexp.Regexp
	handler HandlerFunc
}

// Registry stores handlers by RequestKind, using an insertion-ordered
// pattern list for pattern-keyed kinds and an exact-match map for Event and
// OutgoingWebhook.
type Registry struct {
	mu       sync.RWMutex
	patterns map[types.RequestKind][]patternEntry
	exact    map[types.RequestKind]map[string]HandlerFunc
	logger   *slog.Logger
}

// New builds an empty Registry. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		patterns: make(map[types.RequestKind][]patternEntry),
		exact:    make(map[types.RequestKind]map[string]HandlerFunc),
		logger:   logger,
	}
}

// RegisterPattern compiles literal as an anchored pattern equivalent to
// "^<literal>$" and appends it to kind's ordered list.
func (r *Registry) RegisterPattern(kind types.RequestKind, literal string, handler HandlerFunc) {
	r.RegisterCompiledPattern(kind, regexp.MustCompile("^"+regexp.QuoteMeta(literal)+"$"), handler)
}

// RegisterCompiledPattern appends a pre-compiled pattern verbatim.
func (r *Registry) RegisterCompiledPattern(kind types.RequestKind, pattern *regexp.Regexp, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns[kind] = append(r.patterns[kind], patternEntry{pattern: pattern, handler: handler})
}

// RegisterExact records an exact-match handler for Event/OutgoingWebhook
// kinds. Re-registering an already-bound key logs a warning, and the later
// handler wins.
func (r *Registry) RegisterExact(kind types.RequestKind, key string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byKind, ok := r.exact[kind]
	if !ok {
		byKind = make(map[string]HandlerFunc)
		r.exact[kind] = byKind
	}

	if _, exists := byKind[key]; exists {
		r.logger.Warn("overwriting existing handler registration", "kind", kind.String(), "key", key)
	}
	byKind[key] = handler
}

// LookupPattern snapshots kind's pattern list under a read lock, then scans
// it outside the lock for the first entry whose pattern fully matches key.
func (r *Registry) LookupPattern(kind types.RequestKind, key string) (HandlerFunc, bool) {
	r.mu.RLock()
	snapshot := r.patterns[kind]
	r.mu.RUnlock()

	entry, _, found := lo.FindIndexOf(snapshot, func(e patternEntry) bool {
		return fullyMatches(e.pattern, key)
	})
	if !found {
		return nil, false
	}
	return entry.handler, true
}

// LookupExact returns kind's handler bound to the exact key, if any.
func (r *Registry) LookupExact(kind types.RequestKind, key string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.exact[kind][key]
	return handler, ok
}

func fullyMatches(pattern *regexp.Regexp, key string) bool {
	loc := pattern.FindStringIndex(key)
	return loc != nil && loc[0] == 0 && loc[1] == len(key)
}
