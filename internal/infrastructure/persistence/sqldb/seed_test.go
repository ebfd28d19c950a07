package sqldb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzwatch/arzwatch/internal/domain"
)

const seedYAML = `
sources:
  - name: tgju
    base_url: https://www.tgju.org
  - name: wallex
    base_url: https://wallex.ir
instruments:
  - symbol: USD
    name: US Dollar
    fa_name: دلار آمریکا
    category: currency
    default_source: tgju
    bindings:
      - source: tgju
        path: /profile/price_dollar_rl
      - source: wallex
        path: /markets/USDTTMN
  - symbol: BTC
    name: Bitcoin
    category: crypto
    default_source: wallex
    bindings:
      - source: wallex
        path: /markets/BTCUSDT
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSeedFromFile(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	require.NoError(t, repo.SeedFromFile(ctx, writeSeed(t, seedYAML)))

	usd, err := repo.InstrumentBySymbol(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryCurrency, usd.Category)

	tgju, err := repo.SourceByName(ctx, "tgju")
	require.NoError(t, err)
	require.NotNil(t, usd.DefaultSourceID)
	assert.Equal(t, tgju.ID, *usd.DefaultSourceID)

	configs, err := repo.ConfigsForSource(ctx, tgju.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "/profile/price_dollar_rl", configs["USD"].Path)
}

func TestSeedFromFilePreservesIDsOnReseed(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))
	path := writeSeed(t, seedYAML)

	require.NoError(t, repo.SeedFromFile(ctx, path))
	before, err := repo.InstrumentBySymbol(ctx, "USD")
	require.NoError(t, err)

	require.NoError(t, repo.SeedFromFile(ctx, path))
	after, err := repo.InstrumentBySymbol(ctx, "USD")
	require.NoError(t, err)

	assert.Equal(t, before.ID, after.ID)
}

func TestSeedFromFileRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))

	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown default source", yaml: `
sources:
  - name: tgju
    base_url: https://www.tgju.org
instruments:
  - symbol: USD
    name: US Dollar
    category: currency
    default_source: nobitex
`},
		{name: "invalid category", yaml: `
instruments:
  - symbol: USD
    name: US Dollar
    category: stock
`},
		{name: "invalid source url", yaml: `
sources:
  - name: tgju
    base_url: not-a-url
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.SeedFromFile(ctx, writeSeed(t, tt.yaml))
			require.Error(t, err)

			var confErr *domain.ConfigurationError
			assert.ErrorAs(t, err, &confErr)
		})
	}
}
