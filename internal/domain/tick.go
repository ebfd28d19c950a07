package domain

import (
	"time"

	"github.com/google/uuid"
)

type Currency string

const (
	CurrencyEUR  Currency = "EUR"
	CurrencyUSD  Currency = "USD"
	CurrencyUSDT Currency = "USDT"
	CurrencyIRR  Currency = "IRR"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyEUR, CurrencyUSD, CurrencyUSDT, CurrencyIRR:
		return true
	}
	return false
}

// Meta carries free-form per-tick details such as the scraped URL, change
// percentage or bubble amount. Stored as JSON.
type Meta map[string]string

// PriceTick is one immutable price observation for an instrument from a
// specific source. Ticks are append-only; the (instrument, source, timestamp)
// triple is unique so a batch re-run cannot double-insert.
type PriceTick struct {
	ID           uuid.UUID `json:"id"`
	InstrumentID uuid.UUID `json:"instrument_id"`
	SourceID     uuid.UUID `json:"source_id"`
	Price        Decimal   `json:"price"`
	Currency     Currency  `json:"currency"`
	Timestamp    time.Time `json:"timestamp"`
	Meta         Meta      `json:"meta,omitempty"`

	// Denormalized for read paths; populated by store queries, not persisted.
	Symbol     string `json:"symbol,omitempty"`
	SourceName string `json:"source_name,omitempty"`
}

func NewPriceTick(instrumentID, sourceID uuid.UUID, price Decimal, currency Currency, meta Meta) PriceTick {
	return PriceTick{
		ID:           uuid.New(),
		InstrumentID: instrumentID,
		SourceID:     sourceID,
		Price:        price,
		Currency:     currency,
		Timestamp:    time.Now().UTC(),
		Meta:         meta,
	}
}

func (t PriceTick) IsValid() bool {
	return !t.Price.IsNegative() && t.Currency.IsValid()
}

// LatestQuote is the read-side shape consumed by the API and bot layers.
// IsFallback is true when the tick did not come from the instrument's
// configured default source.
type LatestQuote struct {
	Symbol     string    `json:"symbol"`
	Price      Decimal   `json:"price"`
	Currency   Currency  `json:"currency"`
	Timestamp  time.Time `json:"timestamp"`
	Meta       Meta      `json:"meta,omitempty"`
	SourceName string    `json:"source_name"`
	IsFallback bool      `json:"is_fallback"`
}

// InstrumentWithTick pairs an instrument with its latest tick resolved by the
// default-then-fallback rule. Latest is nil when no tick exists anywhere.
type InstrumentWithTick struct {
	Instrument Instrument `json:"instrument"`
	Latest     *PriceTick `json:"latest,omitempty"`
	IsFallback bool       `json:"is_fallback"`
}
