// Package scrape defines the extractor family: one implementation per
// external source, all producing canonical price observations.
package scrape

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arzwatch/arzwatch/internal/domain"
)

// Observation is one extracted, normalized price reading. The orchestrator
// resolves Symbol to an instrument before persisting.
type Observation struct {
	Symbol   string
	Price    domain.Decimal
	Currency domain.Currency
	Meta     domain.Meta
}

// Binding tells an extractor which page to visit for an instrument. Name is
// the lowercase instrument name, used by sources that key CSS hooks on it.
type Binding struct {
	Symbol string
	Name   string
	Path   string
}

// Fetcher renders a page and returns its settled HTML. Implemented by the
// browser package; tests substitute stubs.
type Fetcher interface {
	Fetch(ctx context.Context, url, waitSelector string, settle time.Duration) (string, error)
}

// Extractor turns the configured bindings of one source into observations.
// Implementations isolate per-binding failures: a broken page is logged and
// skipped, never aborting the remaining bindings.
type Extractor interface {
	Source() string
	Extract(ctx context.Context) ([]Observation, error)
}

// Deps bundles what every extractor needs to fetch pages.
type Deps struct {
	Fetcher Fetcher
	Settle  time.Duration
	Retry   RetryPolicy
}

// FetchPage fetches one URL under the retry policy. Only retryable failures
// (timeouts, browser errors) are re-attempted.
func (d Deps) FetchPage(ctx context.Context, url, waitSelector string) (string, error) {
	var html string
	err := d.Retry.Do(ctx, func(ctx context.Context) error {
		var ferr error
		html, ferr = d.Fetcher.Fetch(ctx, url, waitSelector, d.Settle)
		return ferr
	})
	return html, err
}

// PageURL joins a source base URL with a config path.
func PageURL(baseURL, path string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// Factory builds an extractor for one source run.
type Factory func(source domain.Source, bindings []Binding, deps Deps) Extractor

// Registry maps lowercase source names to extractor factories. Adding a
// source means registering a new factory, not touching dispatch logic.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// New builds the extractor for a source, failing fast when no factory is
// registered under its name.
func (r *Registry) New(source domain.Source, bindings []Binding, deps Deps) (Extractor, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(source.Name)]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewConfigurationError("no extractor for source %q", source.Name)
	}
	return f(source, bindings, deps), nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[strings.ToLower(name)]
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequireObservation validates the invariants every extractor must meet
// before an observation leaves its package.
func RequireObservation(obs Observation, source string) error {
	if obs.Symbol == "" {
		return fmt.Errorf("observation from %s has no symbol", source)
	}
	if obs.Price.IsNegative() {
		return fmt.Errorf("observation %s/%s has negative price", source, obs.Symbol)
	}
	return nil
}
