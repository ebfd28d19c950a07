package domain

import (
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryGold     Category = "gold"
	CategoryCoin     Category = "coin"
	CategoryCurrency Category = "currency"
	CategoryCrypto   Category = "crypto"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

// Instrument is a tradable or quotable entity (a currency, a coin, a crypto
// asset, a gold unit). The symbol is globally unique and immutable after
// creation; only the enabled flag and the default source are meant to change.
type Instrument struct {
	ID              uuid.UUID  `json:"id"`
	Symbol          string     `json:"symbol"`
	Name            string     `json:"name"`
	FaName          string     `json:"fa_name"`
	Category        Category   `json:"category"`
	DefaultSourceID *uuid.UUID `json:"default_source_id,omitempty"`
	Enabled         bool       `json:"enabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func NewInstrument(symbol, name, faName string, category Category) Instrument {
	now := time.Now().UTC()
	return Instrument{
		ID:        uuid.New(),
		Symbol:    symbol,
		Name:      name,
		FaName:    faName,
		Category:  category,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (i Instrument) IsValid() bool {
	return symbolPattern.MatchString(i.Symbol) && i.Category.IsValid()
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryGold, CategoryCoin, CategoryCurrency, CategoryCrypto:
		return true
	}
	return false
}

// Source is an external data provider. Its name maps to exactly one extractor
// implementation; disabling a source removes it from default-first selection
// and from fallback queries.
type Source struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	BaseURL   string    `json:"base_url"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSource(name, baseURL string) Source {
	now := time.Now().UTC()
	return Source{
		ID:        uuid.New(),
		Name:      name,
		BaseURL:   baseURL,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s Source) IsValid() bool {
	if s.Name == "" {
		return false
	}
	u, err := url.Parse(s.BaseURL)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// SourceConfig binds an instrument to a source via the source-relative path
// that the extractor must visit. One binding per (source, instrument).
type SourceConfig struct {
	ID           uuid.UUID `json:"id"`
	SourceID     uuid.UUID `json:"source_id"`
	InstrumentID uuid.UUID `json:"instrument_id"`
	Path         string    `json:"path"`
}

func NewSourceConfig(sourceID, instrumentID uuid.UUID, path string) SourceConfig {
	return SourceConfig{
		ID:           uuid.New(),
		SourceID:     sourceID,
		InstrumentID: instrumentID,
		Path:         path,
	}
}
