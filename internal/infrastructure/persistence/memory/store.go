// Package memory provides an in-memory Registry and TickStore. It backs unit
// tests and small single-process setups; semantics mirror the sqldb package.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/arzwatch/arzwatch/internal/domain"
)

type Store struct {
	mu          sync.RWMutex
	sources     map[uuid.UUID]domain.Source
	instruments map[uuid.UUID]domain.Instrument
	configs     []domain.SourceConfig
	ticks       []domain.PriceTick
}

func NewStore() *Store {
	return &Store{
		sources:     make(map[uuid.UUID]domain.Source),
		instruments: make(map[uuid.UUID]domain.Instrument),
	}
}

func (s *Store) AddSource(src domain.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID] = src
}

func (s *Store) AddInstrument(inst domain.Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments[inst.ID] = inst
}

func (s *Store) AddConfig(cfg domain.SourceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = append(s.configs, cfg)
}

func (s *Store) InstrumentBySymbol(_ context.Context, symbol string) (*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inst := range s.instruments {
		if inst.Symbol == symbol {
			found := inst
			return &found, nil
		}
	}
	return nil, fmt.Errorf("instrument %q: %w", symbol, domain.ErrNotFound)
}

func (s *Store) EnabledInstruments(context.Context) ([]domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Instrument
	for _, inst := range s.instruments {
		if inst.Enabled {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Store) SourceByName(_ context.Context, name string) (*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, src := range s.sources {
		if strings.EqualFold(src.Name, name) {
			found := src
			return &found, nil
		}
	}
	return nil, fmt.Errorf("source %q: %w", name, domain.ErrNotFound)
}

func (s *Store) EnabledSources(context.Context) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Source
	for _, src := range s.sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ConfigsForSource(_ context.Context, sourceID uuid.UUID, symbols []string) (map[string]domain.SourceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		wanted[sym] = true
	}

	out := make(map[string]domain.SourceConfig)
	for _, cfg := range s.configs {
		if cfg.SourceID != sourceID {
			continue
		}
		inst, ok := s.instruments[cfg.InstrumentID]
		if !ok || !inst.Enabled {
			continue
		}
		if len(wanted) > 0 && !wanted[inst.Symbol] {
			continue
		}
		out[inst.Symbol] = cfg
	}
	return out, nil
}

func (s *Store) ConfiguredSourcesFor(_ context.Context, instrumentID uuid.UUID) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Source
	for _, cfg := range s.configs {
		if cfg.InstrumentID != instrumentID {
			continue
		}
		if src, ok := s.sources[cfg.SourceID]; ok && src.Enabled {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) IsConfigured(_ context.Context, sourceID, instrumentID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cfg := range s.configs {
		if cfg.SourceID == sourceID && cfg.InstrumentID == instrumentID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SaveTicks(_ context.Context, ticks []domain.PriceTick) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, tick := range ticks {
		if s.hasTickLocked(tick) {
			continue
		}
		s.ticks = append(s.ticks, tick)
		inserted++
	}
	return inserted, nil
}

func (s *Store) hasTickLocked(tick domain.PriceTick) bool {
	for _, existing := range s.ticks {
		if existing.InstrumentID == tick.InstrumentID &&
			existing.SourceID == tick.SourceID &&
			existing.Timestamp.Equal(tick.Timestamp) {
			return true
		}
	}
	return false
}

func (s *Store) LatestTick(ctx context.Context, symbol string) (*domain.PriceTick, bool, error) {
	inst, err := s.InstrumentBySymbol(ctx, symbol)
	if err != nil {
		return nil, false, err
	}
	if !inst.Enabled {
		return nil, false, fmt.Errorf("instrument %q disabled: %w", symbol, domain.ErrNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if inst.DefaultSourceID != nil {
		if tick := s.latestLocked(inst.ID, inst.DefaultSourceID); tick != nil {
			return tick, false, nil
		}
	}
	tick := s.latestLocked(inst.ID, nil)
	if tick == nil {
		return nil, false, domain.ErrNoData
	}
	fallback := inst.DefaultSourceID != nil && tick.SourceID != *inst.DefaultSourceID
	return tick, fallback, nil
}

// latestLocked finds the freshest tick for an instrument, optionally pinned
// to one source. Disabled sources never serve reads.
func (s *Store) latestLocked(instrumentID uuid.UUID, sourceID *uuid.UUID) *domain.PriceTick {
	var best *domain.PriceTick
	for i := range s.ticks {
		tick := &s.ticks[i]
		if tick.InstrumentID != instrumentID {
			continue
		}
		if sourceID != nil && tick.SourceID != *sourceID {
			continue
		}
		src, ok := s.sources[tick.SourceID]
		if !ok || !src.Enabled {
			continue
		}
		if best == nil || tick.Timestamp.After(best.Timestamp) {
			best = tick
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	out.Symbol = s.instruments[instrumentID].Symbol
	out.SourceName = s.sources[out.SourceID].Name
	return &out
}

func (s *Store) ListTicks(_ context.Context, filter domain.TickFilter) ([]domain.PriceTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// A bare symbol filter narrows to the default source when it is enabled
	// and has data; otherwise any enabled source serves.
	var pinned *uuid.UUID
	narrow := filter.Symbol != "" && filter.Source == "" && filter.SourceContains == ""
	if narrow {
		for _, inst := range s.instruments {
			if inst.Symbol != filter.Symbol || inst.DefaultSourceID == nil {
				continue
			}
			if s.latestLocked(inst.ID, inst.DefaultSourceID) != nil {
				pinned = inst.DefaultSourceID
			}
			break
		}
	}

	var out []domain.PriceTick
	for _, tick := range s.ticks {
		inst := s.instruments[tick.InstrumentID]
		src := s.sources[tick.SourceID]

		if filter.Symbol != "" && inst.Symbol != filter.Symbol {
			continue
		}
		if narrow {
			if pinned != nil && tick.SourceID != *pinned {
				continue
			}
			if pinned == nil && !src.Enabled {
				continue
			}
		}
		if filter.SymbolContains != "" && !strings.Contains(strings.ToUpper(inst.Symbol), strings.ToUpper(filter.SymbolContains)) {
			continue
		}
		if filter.Source != "" && src.Name != filter.Source {
			continue
		}
		if filter.SourceContains != "" && !strings.Contains(strings.ToUpper(src.Name), strings.ToUpper(filter.SourceContains)) {
			continue
		}
		if filter.Currency != "" && tick.Currency != filter.Currency {
			continue
		}
		if filter.PriceGTE != nil && tick.Price.Cmp(*filter.PriceGTE) < 0 {
			continue
		}
		if filter.PriceLTE != nil && tick.Price.Cmp(*filter.PriceLTE) > 0 {
			continue
		}
		if !filter.From.IsZero() && tick.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && tick.Timestamp.After(filter.To) {
			continue
		}

		tick.Symbol = inst.Symbol
		tick.SourceName = src.Name
		out = append(out, tick)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) InstrumentsWithLatest(ctx context.Context, category domain.Category) ([]domain.InstrumentWithTick, error) {
	instruments, err := s.EnabledInstruments(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.InstrumentWithTick
	for _, inst := range instruments {
		if category != "" && inst.Category != category {
			continue
		}
		item := domain.InstrumentWithTick{Instrument: inst}
		if inst.DefaultSourceID != nil {
			item.Latest = s.latestLocked(inst.ID, inst.DefaultSourceID)
		}
		if item.Latest == nil {
			item.Latest = s.latestLocked(inst.ID, nil)
			item.IsFallback = item.Latest != nil && inst.DefaultSourceID != nil
		}
		out = append(out, item)
	}
	return out, nil
}
