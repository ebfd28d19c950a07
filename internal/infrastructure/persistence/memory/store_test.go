package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzwatch/arzwatch/internal/domain"
)

func seedStore(t *testing.T) (*Store, domain.Source, domain.Source, domain.Instrument) {
	t.Helper()
	store := NewStore()

	tgju := domain.NewSource("tgju", "https://www.tgju.org")
	wallex := domain.NewSource("wallex", "https://wallex.ir")
	store.AddSource(tgju)
	store.AddSource(wallex)

	usd := domain.NewInstrument("USD", "US Dollar", "دلار آمریکا", domain.CategoryCurrency)
	usd.DefaultSourceID = &tgju.ID
	store.AddInstrument(usd)

	return store, tgju, wallex, usd
}

func TestListTicksNarrowsBareSymbolToDefaultSource(t *testing.T) {
	ctx := context.Background()
	store, tgju, wallex, usd := seedStore(t)

	defTick := domain.NewPriceTick(usd.ID, tgju.ID, domain.NewDecimalFromInt(500000), domain.CurrencyIRR, nil)
	defTick.Timestamp = time.Now().UTC().Add(-time.Minute)
	otherTick := domain.NewPriceTick(usd.ID, wallex.ID, domain.NewDecimalFromInt(510000), domain.CurrencyIRR, nil)

	_, err := store.SaveTicks(ctx, []domain.PriceTick{defTick, otherTick})
	require.NoError(t, err)

	// A bare symbol query serves only the default source's ticks.
	ticks, err := store.ListTicks(ctx, domain.TickFilter{Symbol: "USD"})
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "tgju", ticks[0].SourceName)

	// An explicit source filter overrides the narrowing.
	ticks, err = store.ListTicks(ctx, domain.TickFilter{Symbol: "USD", Source: "wallex"})
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "wallex", ticks[0].SourceName)
}

func TestListTicksBareSymbolFallsBackWithoutDefaultData(t *testing.T) {
	ctx := context.Background()
	store, _, wallex, usd := seedStore(t)

	// The default source has no data; any enabled source serves.
	tick := domain.NewPriceTick(usd.ID, wallex.ID, domain.NewDecimalFromInt(510000), domain.CurrencyIRR, nil)
	_, err := store.SaveTicks(ctx, []domain.PriceTick{tick})
	require.NoError(t, err)

	ticks, err := store.ListTicks(ctx, domain.TickFilter{Symbol: "USD"})
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "wallex", ticks[0].SourceName)
}
