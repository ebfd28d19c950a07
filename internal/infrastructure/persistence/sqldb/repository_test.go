package sqldb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arzwatch/arzwatch/internal/domain"
)

func setupTestDB(t *testing.T) *DB {
	if os.Getenv("TEST_DB") == "postgres" {
		return setupPostgres(t)
	}
	return setupSQLite(t)
}

func setupSQLite(t *testing.T) *DB {
	rawDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %s", err)
	}
	t.Cleanup(func() { _ = rawDB.Close() })

	db := New(rawDB, &SQLiteDialect{})
	if err := db.Dialect.Migrate(context.Background(), rawDB); err != nil {
		t.Fatalf("failed to migrate: %s", err)
	}
	return db
}

func setupPostgres(t *testing.T) *DB {
	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %s", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	rawDB, err := sql.Open("pgx", connStr)
	if err != nil {
		t.Fatalf("failed to open db: %s", err)
	}

	db := New(rawDB, &PostgresDialect{})
	if err := db.Dialect.Migrate(ctx, rawDB); err != nil {
		t.Fatalf("failed to migrate: %s", err)
	}
	return db
}

type fixture struct {
	repo   *Repository
	tgju   domain.Source
	wallex domain.Source
	usd    domain.Instrument
	btc    domain.Instrument
}

func seedFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	tgju := domain.NewSource("tgju", "https://www.tgju.org")
	wallex := domain.NewSource("wallex", "https://wallex.ir")

	usd := domain.NewInstrument("USD", "US Dollar", "دلار آمریکا", domain.CategoryCurrency)
	usd.DefaultSourceID = &tgju.ID
	btc := domain.NewInstrument("BTC", "Bitcoin", "بیت کوین", domain.CategoryCrypto)
	btc.DefaultSourceID = &wallex.ID

	configs := []domain.SourceConfig{
		domain.NewSourceConfig(tgju.ID, usd.ID, "/profile/price_dollar_rl"),
		domain.NewSourceConfig(wallex.ID, usd.ID, "/markets/USDTTMN"),
		domain.NewSourceConfig(wallex.ID, btc.ID, "/markets/BTCUSDT"),
	}

	err := repo.Seed(ctx, []domain.Source{tgju, wallex}, []domain.Instrument{usd, btc}, configs)
	require.NoError(t, err)

	return fixture{repo: repo, tgju: tgju, wallex: wallex, usd: usd, btc: btc}
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := seedFixture(t)

	// Re-seeding with a changed base URL keeps the row and updates it.
	updated := f.tgju
	updated.ID = uuid.New()
	updated.BaseURL = "https://tgju.org"

	err := f.repo.Seed(ctx, []domain.Source{updated}, nil, nil)
	require.NoError(t, err)

	src, err := f.repo.SourceByName(ctx, "tgju")
	require.NoError(t, err)
	assert.Equal(t, f.tgju.ID, src.ID, "existing row keeps its id")
	assert.Equal(t, "https://tgju.org", src.BaseURL)
}

func TestInstrumentLookup(t *testing.T) {
	ctx := context.Background()
	f := seedFixture(t)

	inst, err := f.repo.InstrumentBySymbol(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, f.usd.ID, inst.ID)
	require.NotNil(t, inst.DefaultSourceID)
	assert.Equal(t, f.tgju.ID, *inst.DefaultSourceID)

	_, err = f.repo.InstrumentBySymbol(ctx, "XAU")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConfigsForSource(t *testing.T) {
	ctx := context.Background()
	f := seedFixture(t)

	all, err := f.repo.ConfigsForSource(ctx, f.wallex.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "/markets/BTCUSDT", all["BTC"].Path)

	subset, err := f.repo.ConfigsForSource(ctx, f.wallex.ID, []string{"BTC"})
	require.NoError(t, err)
	assert.Len(t, subset, 1)

	ok, err := f.repo.IsConfigured(ctx, f.tgju.ID, f.btc.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveTicksSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	f := seedFixture(t)

	tick := domain.NewPriceTick(f.usd.ID, f.tgju.ID, domain.NewDecimalFromInt(500000), domain.CurrencyIRR, domain.Meta{"source_url": "https://www.tgju.org/profile/price_dollar_rl"})

	n, err := f.repo.SaveTicks(ctx, []domain.PriceTick{tick})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same (instrument, source, timestamp) with a fresh ID must be skipped.
	dup := tick
	dup.ID = uuid.New()
	n, err = f.repo.SaveTicks(ctx, []domain.PriceTick{dup})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSaveTicksRejectsUnknownCurrency(t *testing.T) {
	ctx := context.Background()
	f := seedFixture(t)

	tick := domain.NewPriceTick(f.usd.ID, f.tgju.ID, domain.NewDecimalFromInt(500000), domain.Currency("XYZ"), nil)
	_, err := f.repo.SaveTicks(ctx, []domain.PriceTick{tick})
	assert.Error(t, err)
}

func TestLatestTickPrefersDefaultSource(t *testing.T) {
	ctx := context.Background()
	f := seedFixture(t)

	older := domain.NewPriceTick(f.usd.ID, f.tgju.ID, domain.NewDecimalFromInt(500000), domain.CurrencyIRR, nil)
	older.Timestamp = time.Now().UTC().Add(-time.Hour)
	newer := domain.NewPriceTick(f.usd.ID, f.wallex.ID, domain.NewDecimalFromInt(510000), domain.CurrencyIRR, nil)

	_, err := f.repo.SaveTicks(ctx, []domain.PriceTick{older, newer})
	require.NoError(t, err)

	// The default source wins even though another source has a newer tick.
	tick, fallback, err := f.repo.LatestTick(ctx, "USD")
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Equal(t, f.tgju.ID, tick.SourceID)
	assert.Equal(t, "500000", tick.Price.String())
	assert.Equal(t, "tgju", tick.SourceName)
	assert.Equal(t, "USD", tick.Symbol)
}

func TestLatestTickFallsBack(t *testing.T) {
	ctx := context.Background()
	f := seedFixture(t)

	// Only the non-default source has data.
	tick := domain.NewPriceTick(f.usd.ID, f.wallex.ID, domain.NewDecimalFromInt(510000), domain.CurrencyIRR, nil)
	_, err := f.repo.SaveTicks(ctx, []domain.PriceTick{tick})
	require.NoError(t, err)

	got, fallback, err := f.repo.LatestTick(ctx, "USD")
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Equal(t, f.wallex.ID, got.SourceID)
}

func TestLatestTickNoData(t *testing.T) {
	ctx := context.Background()
	f := seedFixture(t)

	_, _, err := f.repo.LatestTick(ctx, "USD")
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestListTicksFilters(t *testing.T) {
	ctx := context.Background()
	f := seedFixture(t)

	usdTick := domain.NewPriceTick(f.usd.ID, f.tgju.ID, domain.NewDecimalFromInt(500000), domain.CurrencyIRR, nil)
	usdTick.Timestamp = time.Now().UTC().Add(-time.Minute)
	btcTick := domain.NewPriceTick(f.btc.ID, f.wallex.ID, domain.NewDecimalFromInt(67000), domain.CurrencyUSDT, nil)

	_, err := f.repo.SaveTicks(ctx, []domain.PriceTick{usdTick, btcTick})
	require.NoError(t, err)

	tests := []struct {
		name        string
		filter      domain.TickFilter
		wantSymbols []string
	}{
		{name: "no filter newest first", filter: domain.TickFilter{}, wantSymbols: []string{"BTC", "USD"}},
		{name: "by symbol", filter: domain.TickFilter{Symbol: "USD"}, wantSymbols: []string{"USD"}},
		{name: "by symbol substring", filter: domain.TickFilter{SymbolContains: "bt"}, wantSymbols: []string{"BTC"}},
		{name: "by source", filter: domain.TickFilter{Source: "wallex"}, wantSymbols: []string{"BTC"}},
		{name: "by currency", filter: domain.TickFilter{Currency: domain.CurrencyIRR}, wantSymbols: []string{"USD"}},
		{name: "by min price", filter: domain.TickFilter{PriceGTE: decimalPtr(100000)}, wantSymbols: []string{"USD"}},
		{name: "by time window", filter: domain.TickFilter{From: time.Now().UTC().Add(-10 * time.Second)}, wantSymbols: []string{"BTC"}},
		{name: "limit", filter: domain.TickFilter{Limit: 1}, wantSymbols: []string{"BTC"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticks, err := f.repo.ListTicks(ctx, tt.filter)
			require.NoError(t, err)

			symbols := make([]string, len(ticks))
			for i, tick := range ticks {
				symbols[i] = tick.Symbol
			}
			assert.Equal(t, tt.wantSymbols, symbols)
		})
	}
}

func TestListTicksNarrowsBareSymbolToDefaultSource(t *testing.T) {
	ctx := context.Background()
	f := seedFixture(t)

	defTick := domain.NewPriceTick(f.usd.ID, f.tgju.ID, domain.NewDecimalFromInt(500000), domain.CurrencyIRR, nil)
	defTick.Timestamp = time.Now().UTC().Add(-time.Minute)
	otherTick := domain.NewPriceTick(f.usd.ID, f.wallex.ID, domain.NewDecimalFromInt(510000), domain.CurrencyIRR, nil)

	_, err := f.repo.SaveTicks(ctx, []domain.PriceTick{defTick, otherTick})
	require.NoError(t, err)

	// A bare symbol query serves only the default source's ticks.
	ticks, err := f.repo.ListTicks(ctx, domain.TickFilter{Symbol: "USD"})
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "tgju", ticks[0].SourceName)

	// An explicit source filter overrides the narrowing.
	ticks, err = f.repo.ListTicks(ctx, domain.TickFilter{Symbol: "USD", Source: "wallex"})
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "wallex", ticks[0].SourceName)
}

func TestListTicksBareSymbolFallsBackWithoutDefaultData(t *testing.T) {
	ctx := context.Background()
	f := seedFixture(t)

	// The default source has no data; any enabled source serves.
	tick := domain.NewPriceTick(f.usd.ID, f.wallex.ID, domain.NewDecimalFromInt(510000), domain.CurrencyIRR, nil)
	_, err := f.repo.SaveTicks(ctx, []domain.PriceTick{tick})
	require.NoError(t, err)

	ticks, err := f.repo.ListTicks(ctx, domain.TickFilter{Symbol: "USD"})
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "wallex", ticks[0].SourceName)
}

func TestInstrumentsWithLatest(t *testing.T) {
	ctx := context.Background()
	f := seedFixture(t)

	usdTick := domain.NewPriceTick(f.usd.ID, f.wallex.ID, domain.NewDecimalFromInt(510000), domain.CurrencyIRR, nil)
	_, err := f.repo.SaveTicks(ctx, []domain.PriceTick{usdTick})
	require.NoError(t, err)

	items, err := f.repo.InstrumentsWithLatest(ctx, "")
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Ordered by symbol: BTC has no data, USD resolves via fallback.
	assert.Equal(t, "BTC", items[0].Instrument.Symbol)
	assert.Nil(t, items[0].Latest)

	assert.Equal(t, "USD", items[1].Instrument.Symbol)
	require.NotNil(t, items[1].Latest)
	assert.True(t, items[1].IsFallback)
	assert.Equal(t, "wallex", items[1].Latest.SourceName)

	crypto, err := f.repo.InstrumentsWithLatest(ctx, domain.CategoryCrypto)
	require.NoError(t, err)
	require.Len(t, crypto, 1)
	assert.Equal(t, "BTC", crypto[0].Instrument.Symbol)
}

func decimalPtr(v int64) *domain.Decimal {
	d := domain.NewDecimalFromInt(v)
	return &d
}
