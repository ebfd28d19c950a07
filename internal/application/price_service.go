package application

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/arzwatch/arzwatch/internal/domain"
)

// PriceService is the read side: latest quotes, tick history and the
// instrument catalogue. Latest-quote lookups are cached briefly since bots
// and dashboards hammer the same symbols between scrape runs.
type PriceService struct {
	registry domain.Registry
	store    domain.TickStore
	ttl      time.Duration

	mu    sync.Mutex
	cache map[string]cachedQuote
}

type cachedQuote struct {
	quote   domain.LatestQuote
	expires time.Time
}

func NewPriceService(registry domain.Registry, store domain.TickStore, cacheTTL time.Duration) *PriceService {
	return &PriceService{
		registry: registry,
		store:    store,
		ttl:      cacheTTL,
		cache:    make(map[string]cachedQuote),
	}
}

// GetLatest returns the freshest quote for a symbol, default source first.
// Results are served from cache within the TTL window.
func (s *PriceService) GetLatest(ctx context.Context, symbol string) (*domain.LatestQuote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if s.ttl > 0 {
		s.mu.Lock()
		if entry, ok := s.cache[symbol]; ok && time.Now().Before(entry.expires) {
			s.mu.Unlock()
			quote := entry.quote
			return &quote, nil
		}
		s.mu.Unlock()
	}

	tick, fallback, err := s.store.LatestTick(ctx, symbol)
	if err != nil {
		return nil, err
	}

	quote := domain.LatestQuote{
		Symbol:     tick.Symbol,
		Price:      tick.Price,
		Currency:   tick.Currency,
		Timestamp:  tick.Timestamp,
		Meta:       tick.Meta,
		SourceName: tick.SourceName,
		IsFallback: fallback,
	}
	if fallback {
		slog.Info("Serving fallback quote", "symbol", symbol, "source", tick.SourceName)
	}

	if s.ttl > 0 {
		s.mu.Lock()
		s.cache[symbol] = cachedQuote{quote: quote, expires: time.Now().Add(s.ttl)}
		s.mu.Unlock()
	}
	return &quote, nil
}

// InvalidateCache drops all cached quotes. The scheduler calls this after a
// successful run so fresh ticks become visible immediately.
func (s *PriceService) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cachedQuote)
}

func (s *PriceService) ListTicks(ctx context.Context, filter domain.TickFilter) ([]domain.PriceTick, error) {
	return s.store.ListTicks(ctx, filter)
}

func (s *PriceService) ListInstruments(ctx context.Context, category domain.Category) ([]domain.InstrumentWithTick, error) {
	if category != "" && !category.IsValid() {
		return nil, domain.NewConfigurationError("unknown category %q", category)
	}
	return s.store.InstrumentsWithLatest(ctx, category)
}
