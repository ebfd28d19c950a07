package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzwatch/arzwatch/internal/domain"
	"github.com/arzwatch/arzwatch/internal/infrastructure/persistence/memory"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape"
)

// stubExtractor emits one observation per binding from a fixed price table.
// Symbols missing from the table simulate broken pages.
type stubExtractor struct {
	source   domain.Source
	bindings []scrape.Binding
	prices   map[string]int64
	currency domain.Currency
}

func (s *stubExtractor) Source() string { return s.source.Name }

func (s *stubExtractor) Extract(context.Context) ([]scrape.Observation, error) {
	var out []scrape.Observation
	for _, b := range s.bindings {
		price, ok := s.prices[b.Symbol]
		if !ok {
			continue
		}
		out = append(out, scrape.Observation{
			Symbol:   b.Symbol,
			Price:    domain.NewDecimalFromInt(price),
			Currency: s.currency,
			Meta:     domain.Meta{"source_url": s.source.BaseURL + b.Path},
		})
	}
	return out, nil
}

func stubFactory(prices map[string]int64, currency domain.Currency) scrape.Factory {
	return func(source domain.Source, bindings []scrape.Binding, _ scrape.Deps) scrape.Extractor {
		return &stubExtractor{source: source, bindings: bindings, prices: prices, currency: currency}
	}
}

type world struct {
	store  *memory.Store
	orch   *Orchestrator
	tgju   domain.Source
	wallex domain.Source
	usd    domain.Instrument
	gold   domain.Instrument
	btc    domain.Instrument
}

// newWorld wires three instruments across two sources: USD defaults to tgju
// with a wallex fallback binding, GOLD18 has a tgju binding but no default,
// BTC defaults to wallex.
func newWorld(t *testing.T, tgjuPrices, wallexPrices map[string]int64) *world {
	t.Helper()

	store := memory.NewStore()
	tgju := domain.NewSource("tgju", "https://www.tgju.org")
	wallex := domain.NewSource("wallex", "https://wallex.ir")
	store.AddSource(tgju)
	store.AddSource(wallex)

	usd := domain.NewInstrument("USD", "US Dollar", "دلار آمریکا", domain.CategoryCurrency)
	usd.DefaultSourceID = &tgju.ID
	gold := domain.NewInstrument("GOLD18", "18k Gold", "طلای ۱۸ عیار", domain.CategoryGold)
	btc := domain.NewInstrument("BTC", "Bitcoin", "بیت کوین", domain.CategoryCrypto)
	btc.DefaultSourceID = &wallex.ID
	store.AddInstrument(usd)
	store.AddInstrument(gold)
	store.AddInstrument(btc)

	store.AddConfig(domain.NewSourceConfig(tgju.ID, usd.ID, "/profile/price_dollar_rl"))
	store.AddConfig(domain.NewSourceConfig(tgju.ID, gold.ID, "/profile/geram18"))
	store.AddConfig(domain.NewSourceConfig(wallex.ID, usd.ID, "/markets/USDTTMN"))
	store.AddConfig(domain.NewSourceConfig(wallex.ID, btc.ID, "/markets/BTCUSDT"))

	registry := scrape.NewRegistry()
	registry.Register("tgju", stubFactory(tgjuPrices, domain.CurrencyIRR))
	registry.Register("wallex", stubFactory(wallexPrices, domain.CurrencyUSDT))

	return &world{
		store:  store,
		orch:   NewOrchestrator(store, store, registry, scrape.Deps{}),
		tgju:   tgju,
		wallex: wallex,
		usd:    usd,
		gold:   gold,
		btc:    btc,
	}
}

func TestRunFullScope(t *testing.T) {
	w := newWorld(t,
		map[string]int64{"USD": 500000, "GOLD18": 45000000},
		map[string]int64{"BTC": 67000})

	summary, err := w.orch.Run(context.Background(), Scope{Instrument: ScopeAll()})

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, []string{"BTC@wallex", "GOLD18@tgju", "USD@tgju"}, summary.Successes)
	assert.Empty(t, summary.Failures)

	tick, fallback, err := w.store.LatestTick(context.Background(), "USD")
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Equal(t, "500000", tick.Price.String())
}

func TestRunNamedSource(t *testing.T) {
	w := newWorld(t,
		map[string]int64{"USD": 500000, "GOLD18": 45000000},
		map[string]int64{"USD": 510000, "BTC": 67000})

	summary, err := w.orch.Run(context.Background(), Scope{Source: ScopeNamed("wallex")})

	require.NoError(t, err)
	assert.Equal(t, []string{"BTC@wallex", "USD@wallex"}, summary.Successes)
}

func TestRunAllSourcesForOneInstrument(t *testing.T) {
	w := newWorld(t,
		map[string]int64{"USD": 500000},
		map[string]int64{"USD": 510000, "BTC": 67000})

	summary, err := w.orch.Run(context.Background(), Scope{
		Source:     ScopeAll(),
		Instrument: ScopeNamed("USD"),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, []string{"USD@tgju", "USD@wallex"}, summary.Successes)
}

func TestRunNamedInstrumentUsesDefaultSource(t *testing.T) {
	w := newWorld(t,
		map[string]int64{"USD": 500000},
		map[string]int64{"USD": 510000})

	summary, err := w.orch.Run(context.Background(), Scope{Instrument: ScopeNamed("usd")})

	require.NoError(t, err)
	assert.Equal(t, []string{"USD@tgju"}, summary.Successes, "lowercase symbol resolves, default source wins")
}

func TestRunInstrumentWithoutDefaultFallsBack(t *testing.T) {
	// GOLD18 has no default source; its only binding is on tgju.
	w := newWorld(t, map[string]int64{"GOLD18": 45000000}, nil)

	summary, err := w.orch.Run(context.Background(), Scope{Instrument: ScopeNamed("GOLD18")})

	require.NoError(t, err)
	assert.Equal(t, []string{"GOLD18@tgju"}, summary.Successes)
}

func TestRunPartialFailureIsolation(t *testing.T) {
	// GOLD18's page yields nothing; USD and BTC still land.
	w := newWorld(t,
		map[string]int64{"USD": 500000},
		map[string]int64{"BTC": 67000})

	summary, err := w.orch.Run(context.Background(), Scope{Instrument: ScopeAll()})

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, []string{"BTC@wallex", "USD@tgju"}, summary.Successes)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "GOLD18", summary.Failures[0].Symbol)
	assert.Equal(t, "tgju", summary.Failures[0].Source)
}

func TestRunFailsWhenNothingSucceeds(t *testing.T) {
	w := newWorld(t, nil, nil)

	summary, err := w.orch.Run(context.Background(), Scope{Instrument: ScopeAll()})

	require.Error(t, err)
	assert.Equal(t, 3, summary.Attempted)
	assert.Empty(t, summary.Successes)
	assert.Len(t, summary.Failures, 3)
}

func TestRunScopeErrors(t *testing.T) {
	w := newWorld(t, map[string]int64{"USD": 500000}, nil)

	tests := []struct {
		name  string
		scope Scope
	}{
		{name: "empty scope", scope: Scope{}},
		{name: "unknown source", scope: Scope{Source: ScopeNamed("nobitex")}},
		{name: "unknown instrument", scope: Scope{Instrument: ScopeNamed("XAU")}},
		{name: "unknown instrument with named source", scope: Scope{Source: ScopeNamed("tgju"), Instrument: ScopeNamed("XAU")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.orch.Run(context.Background(), tt.scope)
			require.Error(t, err)

			var confErr *domain.ConfigurationError
			assert.ErrorAs(t, err, &confErr)
		})
	}
}

func TestRunSkipsSourceNotConfiguredForInstrument(t *testing.T) {
	// BTC has no tgju binding; the instrument-primary scope skips the pair
	// instead of failing the run.
	w := newWorld(t,
		map[string]int64{"USD": 500000},
		map[string]int64{"BTC": 67000})

	summary, err := w.orch.Run(context.Background(), Scope{
		Source:     ScopeNamed("tgju"),
		Instrument: ScopeNamed("BTC"),
	})

	require.NoError(t, err)
	assert.Zero(t, summary.Attempted)
	assert.Empty(t, summary.Successes)
	assert.Empty(t, summary.Failures)
}

func TestRunSkipsUnknownSourceForInstrument(t *testing.T) {
	w := newWorld(t, map[string]int64{"USD": 500000}, nil)

	summary, err := w.orch.Run(context.Background(), Scope{
		Source:     ScopeNamed("nobitex"),
		Instrument: ScopeNamed("USD"),
	})

	require.NoError(t, err)
	assert.Zero(t, summary.Attempted)
}

func TestRunSkipsDisabledInstrument(t *testing.T) {
	w := newWorld(t,
		map[string]int64{"USD": 500000, "GOLD18": 45000000},
		map[string]int64{"BTC": 67000})

	disabled := w.gold
	disabled.Enabled = false
	w.store.AddInstrument(disabled)

	summary, err := w.orch.Run(context.Background(), Scope{Instrument: ScopeAll()})

	require.NoError(t, err)
	assert.Equal(t, []string{"BTC@wallex", "USD@tgju"}, summary.Successes)
}
