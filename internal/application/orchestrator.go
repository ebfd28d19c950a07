package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/arzwatch/arzwatch/internal/domain"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape"
)

// ScopeValue is a tri-state CLI selector: absent, present without a value
// ("all"), or present with a name.
type ScopeValue struct {
	Present bool
	All     bool
	Name    string
}

func ScopeNamed(name string) ScopeValue { return ScopeValue{Present: true, Name: name} }
func ScopeAll() ScopeValue              { return ScopeValue{Present: true, All: true} }

// Scope selects what one run covers. The absent/named/all combinations of
// the two selectors span the whole scrape matrix.
type Scope struct {
	Source     ScopeValue
	Instrument ScopeValue
}

// UnitFailure records one (source, instrument) unit that produced no tick.
type UnitFailure struct {
	Source string
	Symbol string
	Err    error
}

// RunSummary reports a finished run. Attempted counts every unit the scope
// expanded to; Successes lists "SYMBOL@source" pairs that stored a tick.
type RunSummary struct {
	Attempted int
	Successes []string
	Failures  []UnitFailure
}

// Orchestrator expands a scope into per-source work, runs the extractors in
// parallel and persists whatever succeeded. A unit failure never aborts its
// siblings; the run as a whole fails only when every attempted unit failed.
type Orchestrator struct {
	registry domain.Registry
	store    domain.TickStore
	sources  *scrape.Registry
	deps     scrape.Deps
}

func NewOrchestrator(registry domain.Registry, store domain.TickStore, sources *scrape.Registry, deps scrape.Deps) *Orchestrator {
	return &Orchestrator{registry: registry, store: store, sources: sources, deps: deps}
}

// plan is the per-source slice of a run.
type plan struct {
	source      domain.Source
	bindings    []scrape.Binding
	instruments map[string]domain.Instrument
}

func (o *Orchestrator) Run(ctx context.Context, scope Scope) (*RunSummary, error) {
	if !scope.Source.Present && !scope.Instrument.Present {
		return nil, domain.NewConfigurationError("no scope given: provide --source and/or --instrument (bare flag selects all)")
	}

	plans, err := o.expandScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range plans {
		if len(p.bindings) == 0 {
			continue
		}
		mu.Lock()
		summary.Attempted += len(p.bindings)
		mu.Unlock()

		wg.Add(1)
		go func(p *plan) {
			defer wg.Done()
			successes, failures := o.runSource(ctx, p)

			mu.Lock()
			summary.Successes = append(summary.Successes, successes...)
			summary.Failures = append(summary.Failures, failures...)
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	sort.Strings(summary.Successes)
	sort.Slice(summary.Failures, func(i, j int) bool {
		if summary.Failures[i].Source != summary.Failures[j].Source {
			return summary.Failures[i].Source < summary.Failures[j].Source
		}
		return summary.Failures[i].Symbol < summary.Failures[j].Symbol
	})

	slog.Info("Scrape run finished",
		"attempted", summary.Attempted,
		"succeeded", len(summary.Successes),
		"failed", len(summary.Failures))

	if summary.Attempted > 0 && len(summary.Successes) == 0 {
		return summary, fmt.Errorf("all %d units failed", summary.Attempted)
	}
	return summary, nil
}

// runSource extracts and persists one source's bindings. Every binding
// without a stored tick becomes a unit failure.
func (o *Orchestrator) runSource(ctx context.Context, p *plan) ([]string, []UnitFailure) {
	extractor, err := o.sources.New(p.source, p.bindings, o.deps)
	if err != nil {
		return nil, failAll(p, err)
	}

	observations, err := extractor.Extract(ctx)
	if err != nil && len(observations) == 0 {
		return nil, failAll(p, err)
	}

	var ticks []domain.PriceTick
	seen := make(map[string]bool, len(observations))
	for _, obs := range observations {
		if err := scrape.RequireObservation(obs, p.source.Name); err != nil {
			slog.Warn("Dropping invalid observation", "source", p.source.Name, "error", err)
			continue
		}
		inst, ok := p.instruments[obs.Symbol]
		if !ok {
			slog.Warn("Dropping observation for unplanned symbol", "source", p.source.Name, "symbol", obs.Symbol)
			continue
		}
		tick := domain.NewPriceTick(inst.ID, p.source.ID, obs.Price, obs.Currency, obs.Meta)
		if !tick.IsValid() {
			slog.Warn("Dropping invalid tick", "source", p.source.Name, "symbol", obs.Symbol)
			continue
		}
		ticks = append(ticks, tick)
		seen[obs.Symbol] = true
	}

	if len(ticks) > 0 {
		if _, err := o.store.SaveTicks(ctx, ticks); err != nil {
			slog.Error("Failed to persist ticks", "source", p.source.Name, "error", err)
			return nil, failAll(p, fmt.Errorf("persisting ticks: %w", err))
		}
	}

	var successes []string
	var failures []UnitFailure
	for _, b := range p.bindings {
		if seen[b.Symbol] {
			successes = append(successes, b.Symbol+"@"+p.source.Name)
			continue
		}
		failures = append(failures, UnitFailure{
			Source: p.source.Name,
			Symbol: b.Symbol,
			Err:    errors.New("no observation extracted"),
		})
	}
	return successes, failures
}

func failAll(p *plan, err error) []UnitFailure {
	failures := make([]UnitFailure, 0, len(p.bindings))
	for _, b := range p.bindings {
		failures = append(failures, UnitFailure{Source: p.source.Name, Symbol: b.Symbol, Err: err})
	}
	return failures
}

// expandScope turns the scope matrix into per-source plans. A named
// instrument must exist and be enabled. A named source is fatal when it is
// the only scope; combined with an instrument scope the run is
// instrument-primary and an unusable source is warned about and skipped.
func (o *Orchestrator) expandScope(ctx context.Context, scope Scope) (map[uuid.UUID]*plan, error) {
	var symbols []string
	if scope.Instrument.Present && !scope.Instrument.All {
		inst, err := o.namedInstrument(ctx, scope.Instrument.Name)
		if err != nil {
			return nil, err
		}
		symbols = []string{inst.Symbol}
	}

	switch {
	case scope.Source.Present && !scope.Source.All:
		src, err := o.namedSource(ctx, scope.Source.Name)
		if err != nil {
			var confErr *domain.ConfigurationError
			if scope.Instrument.Present && errors.As(err, &confErr) {
				slog.Warn("Skipping unusable source", "source", scope.Source.Name, "error", err)
				return map[uuid.UUID]*plan{}, nil
			}
			return nil, err
		}
		return o.planSources(ctx, []domain.Source{*src}, symbols, !scope.Instrument.Present)

	case scope.Source.Present:
		enabled, err := o.registry.EnabledSources(ctx)
		if err != nil {
			return nil, err
		}
		return o.planSources(ctx, enabled, symbols, false)

	default:
		return o.planDefaultFirst(ctx, symbols)
	}
}

func (o *Orchestrator) namedSource(ctx context.Context, name string) (*domain.Source, error) {
	src, err := o.registry.SourceByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewConfigurationError("unknown source %q", name)
	}
	if err != nil {
		return nil, err
	}
	if !src.Enabled {
		return nil, domain.NewConfigurationError("source %q is disabled", name)
	}
	if !o.sources.Has(src.Name) {
		return nil, domain.NewConfigurationError("no extractor for source %q", name)
	}
	return src, nil
}

func (o *Orchestrator) namedInstrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	inst, err := o.registry.InstrumentBySymbol(ctx, strings.ToUpper(symbol))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewConfigurationError("unknown instrument %q", symbol)
	}
	if err != nil {
		return nil, err
	}
	if !inst.Enabled {
		return nil, domain.NewConfigurationError("instrument %q is disabled", symbol)
	}
	return inst, nil
}

// planSources builds one plan per source from its configured bindings.
// strict is set when the source alone defines the scope: an empty result
// there is a configuration error rather than a skip.
func (o *Orchestrator) planSources(ctx context.Context, srcs []domain.Source, symbols []string, strict bool) (map[uuid.UUID]*plan, error) {
	plans := make(map[uuid.UUID]*plan, len(srcs))
	for i := range srcs {
		src := srcs[i]
		if !o.sources.Has(src.Name) {
			slog.Warn("Skipping source without extractor", "source", src.Name)
			continue
		}
		configs, err := o.registry.ConfigsForSource(ctx, src.ID, symbols)
		if err != nil {
			return nil, err
		}
		if len(configs) == 0 {
			if strict {
				return nil, domain.NewConfigurationError("source %q has no configured instruments", src.Name)
			}
			if len(symbols) > 0 {
				slog.Warn("Source has no binding for requested instruments", "source", src.Name, "symbols", symbols)
			}
			continue
		}
		p := &plan{source: src, instruments: make(map[string]domain.Instrument, len(configs))}
		for symbol, cfg := range configs {
			inst, err := o.registry.InstrumentBySymbol(ctx, symbol)
			if err != nil {
				slog.Warn("Skipping binding for missing instrument", "symbol", symbol)
				continue
			}
			p.bindings = append(p.bindings, scrape.Binding{
				Symbol: symbol,
				Name:   strings.ToLower(inst.Name),
				Path:   cfg.Path,
			})
			p.instruments[symbol] = *inst
		}
		sortBindings(p.bindings)
		plans[src.ID] = p
	}
	return plans, nil
}

// planDefaultFirst groups instruments under the single source each resolves
// to: the enabled default, else the first enabled configured fallback.
// Instruments with no usable source are warned about and dropped.
func (o *Orchestrator) planDefaultFirst(ctx context.Context, symbols []string) (map[uuid.UUID]*plan, error) {
	var instruments []domain.Instrument
	if len(symbols) > 0 {
		for _, symbol := range symbols {
			inst, err := o.namedInstrument(ctx, symbol)
			if err != nil {
				return nil, err
			}
			instruments = append(instruments, *inst)
		}
	} else {
		var err error
		instruments, err = o.registry.EnabledInstruments(ctx)
		if err != nil {
			return nil, err
		}
	}

	plans := make(map[uuid.UUID]*plan)
	for _, inst := range instruments {
		configured, err := o.registry.ConfiguredSourcesFor(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		src := domain.DefaultOrFallback(inst, configured)
		if src == nil || !o.sources.Has(src.Name) {
			slog.Warn("No usable source for instrument", "symbol", inst.Symbol)
			continue
		}

		configs, err := o.registry.ConfigsForSource(ctx, src.ID, []string{inst.Symbol})
		if err != nil {
			return nil, err
		}
		cfg, ok := configs[inst.Symbol]
		if !ok {
			slog.Warn("No binding for resolved source", "symbol", inst.Symbol, "source", src.Name)
			continue
		}

		p, ok := plans[src.ID]
		if !ok {
			p = &plan{source: *src, instruments: make(map[string]domain.Instrument)}
			plans[src.ID] = p
		}
		p.bindings = append(p.bindings, scrape.Binding{
			Symbol: inst.Symbol,
			Name:   strings.ToLower(inst.Name),
			Path:   cfg.Path,
		})
		p.instruments[inst.Symbol] = inst
	}
	for _, p := range plans {
		sortBindings(p.bindings)
	}
	return plans, nil
}

func sortBindings(bindings []scrape.Binding) {
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].Symbol < bindings[j].Symbol })
}
