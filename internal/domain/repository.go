package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Registry is the read-mostly view over instruments, sources and their
// bindings. Implemented by sqldb and by the in-memory store used in tests.
type Registry interface {
	InstrumentBySymbol(ctx context.Context, symbol string) (*Instrument, error)
	EnabledInstruments(ctx context.Context) ([]Instrument, error)
	SourceByName(ctx context.Context, name string) (*Source, error)
	EnabledSources(ctx context.Context) ([]Source, error)

	// ConfigsForSource returns the (instrument, path) bindings for a source,
	// optionally narrowed to a symbol subset, keyed by instrument symbol.
	ConfigsForSource(ctx context.Context, sourceID uuid.UUID, symbols []string) (map[string]SourceConfig, error)

	// ConfiguredSourcesFor returns the enabled sources configured for an
	// instrument, in configuration order. Callers apply ResolveSources /
	// DefaultOrFallback on top.
	ConfiguredSourcesFor(ctx context.Context, instrumentID uuid.UUID) ([]Source, error)

	// IsConfigured reports whether a (source, instrument) binding exists.
	IsConfigured(ctx context.Context, sourceID, instrumentID uuid.UUID) (bool, error)
}

// TickFilter narrows ListTicks. Zero values mean "no constraint".
type TickFilter struct {
	Symbol         string
	SymbolContains string
	Source         string
	SourceContains string
	Currency       Currency
	PriceGTE       *Decimal
	PriceLTE       *Decimal
	From           time.Time
	To             time.Time
	Limit          int
}

// TickStore persists and queries price ticks. Writes are append-only and
// duplicate-tolerant; reads apply the default-then-fallback rule.
type TickStore interface {
	// SaveTicks inserts a batch inside one transaction. Rows conflicting on
	// (instrument, source, timestamp) are silently skipped; the count of
	// actually inserted rows is returned.
	SaveTicks(ctx context.Context, ticks []PriceTick) (int, error)

	// LatestTick resolves an enabled instrument's freshest tick: default
	// source first (if enabled), any enabled source otherwise. The bool is
	// true when the fallback tier served the result. Returns ErrNoData when
	// no tick exists anywhere.
	LatestTick(ctx context.Context, symbol string) (*PriceTick, bool, error)

	// ListTicks returns ticks matching the filter, newest first.
	ListTicks(ctx context.Context, filter TickFilter) ([]PriceTick, error)

	// InstrumentsWithLatest lists enabled instruments (optionally one
	// category) each with its default-then-fallback latest tick, resolved in
	// a single query.
	InstrumentsWithLatest(ctx context.Context, category Category) ([]InstrumentWithTick, error)
}
