// Package arzdigital extracts crypto quotes from arzdigital.com coin pages.
package arzdigital

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arzwatch/arzwatch/internal/domain"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape"
	"github.com/arzwatch/arzwatch/internal/persian"
)

const readySelector = "div.arz-coin-page-data__coin-price"

// Market-info row labels mapped to metadata keys.
var marketInfoKeys = map[string]string{
	"حجم معاملات روزانه":  "daily_volume",
	"ارزش بازار":          "market_cap",
	"سکه در گردش":         "circulating_supply",
	"ارزش بازار رقیق شده": "fully_diluted_market_cap",
}

type Extractor struct {
	source   domain.Source
	bindings []scrape.Binding
	deps     scrape.Deps
}

func New(source domain.Source, bindings []scrape.Binding, deps scrape.Deps) scrape.Extractor {
	return &Extractor{source: source, bindings: bindings, deps: deps}
}

func (e *Extractor) Source() string { return e.source.Name }

func (e *Extractor) Extract(ctx context.Context) ([]scrape.Observation, error) {
	var results []scrape.Observation
	for _, b := range e.bindings {
		url := scrape.PageURL(e.source.BaseURL, b.Path)
		html, err := e.deps.FetchPage(ctx, url, readySelector)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			slog.Error("Giving up on page", "source", e.source.Name, "symbol", b.Symbol, "url", url, "error", err)
			continue
		}
		obs, err := parse(html, b, url)
		if err != nil {
			slog.Error("Extraction failed", "source", e.source.Name, "symbol", b.Symbol, "url", url, "error", err)
			continue
		}
		results = append(results, *obs)
	}
	return results, nil
}

func parse(html string, binding scrape.Binding, url string) (*scrape.Observation, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &domain.ParseError{Source: "arzdigital", Symbol: binding.Symbol, Reason: "invalid html: " + err.Error()}
	}

	priceText := strings.TrimSpace(doc.Find(readySelector).First().Text())
	priceText = strings.TrimPrefix(priceText, "$")
	price, err := persian.ToDecimal(priceText)
	if err != nil {
		return nil, &domain.ParseError{Source: "arzdigital", Symbol: binding.Symbol, Reason: "price not numeric: " + priceText}
	}

	meta := domain.Meta{"source_url": url}

	// The Toman counter is keyed on the coin's slug. Stored value is Toman,
	// canonical metadata is Rial.
	if binding.Name != "" {
		sel := "span.pulser-toman-" + strings.ToLower(binding.Name)
		tomanText := persian.StripCommas(persian.NormalizeDigits(strings.TrimSpace(doc.Find(sel).First().Text())))
		if toman, err := strconv.ParseInt(tomanText, 10, 64); err == nil {
			meta["price_irr"] = strconv.FormatInt(toman*10, 10)
		}
	}

	if swing := strings.TrimSpace(doc.Find("div.arz-coin-page-data__coin-price-swing span").First().Text()); swing != "" {
		meta["change_1h"] = persian.NormalizePercent(swing)
	}

	doc.Find("div.arz-coin-page-data__coin-market-info").Each(func(_ int, row *goquery.Selection) {
		spans := row.Find("span")
		if spans.Length() < 2 {
			return
		}
		label := strings.TrimSpace(spans.Eq(0).Text())
		key, ok := marketInfoKeys[label]
		if !ok {
			return
		}
		value := strings.TrimSpace(spans.Eq(1).Text())
		meta[key] = persian.StripCommas(persian.NormalizeDigits(strings.TrimPrefix(value, "$")))
	})

	return &scrape.Observation{
		Symbol:   binding.Symbol,
		Price:    price,
		Currency: domain.CurrencyUSDT,
		Meta:     meta,
	}, nil
}
