package milli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzwatch/arzwatch/internal/domain"
)

const coinPage = `<html><body>
<div class="bx_coin">
  <div class="last_price_coin"><span>۵۲۰,۰۰۰,۰۰۰</span></div>
  <div class="discount_coin"><span>۲.۳٪</span></div>
  <div class="change_coin"><span>۱۲,۰۰۰,۰۰۰</span></div>
  <div class="blubbe_coin"><span>۴۵,۰۰۰,۰۰۰ (۹.۵٪)</span></div>
</div>
</body></html>`

func TestParseCoinPage(t *testing.T) {
	obs, err := parse(coinPage, "SEKKEH", "https://milli.gold/coin")

	require.NoError(t, err)
	assert.Equal(t, "SEKKEH", obs.Symbol)
	assert.Equal(t, "520000000", obs.Price.String())
	assert.Equal(t, domain.CurrencyIRR, obs.Currency)
	assert.Equal(t, "2.3%", obs.Meta["change_percentage"])
	assert.Equal(t, "12000000", obs.Meta["change_amount"])
	assert.Equal(t, "45000000", obs.Meta["bubble_amount"])
	assert.Equal(t, "9.5%", obs.Meta["bubble_percentage"])
}

func TestParseBubbleWithoutPercent(t *testing.T) {
	// A bubble span with no percent sign yields empty metadata values.
	html := `<div class="bx_coin">
	  <div class="last_price_coin"><span>520,000,000</span></div>
	  <div class="blubbe_coin"><span>در حال محاسبه</span></div>
	</div>`

	obs, err := parse(html, "SEKKEH", "https://milli.gold/coin")

	require.NoError(t, err)
	assert.Equal(t, "", obs.Meta["bubble_amount"])
	assert.Equal(t, "", obs.Meta["bubble_percentage"])
}

func TestParseMissingBox(t *testing.T) {
	_, err := parse(`<html><body></body></html>`, "SEKKEH", "https://milli.gold/coin")

	require.Error(t, err)
	var parseErr *domain.ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Error(), "coin box not found")
}
