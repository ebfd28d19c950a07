// Package milli extracts coin prices from milli.gold.
package milli

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arzwatch/arzwatch/internal/domain"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape"
	"github.com/arzwatch/arzwatch/internal/persian"
)

const readySelector = "div.bx_coin"

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
		obs, err := parse(html, b.Symbol, url)
		if err != nil {
			slog.Error("Extraction failed", "source", e.source.Name, "symbol", b.Symbol, "url", url, "error", err)
			continue
		}
		results = append(results, *obs)
	}
	return results, nil
}

func parse(html, symbol, url string) (*scrape.Observation, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &domain.ParseError{Source: "milli", Symbol: symbol, Reason: "invalid html: " + err.Error()}
	}

	box := doc.Find(readySelector).First()
	if box.Length() == 0 {
		return nil, &domain.ParseError{Source: "milli", Symbol: symbol, Reason: "coin box not found"}
	}

	priceText := strings.TrimSpace(box.Find("div.last_price_coin span").First().Text())
	price, err := persian.ToDecimal(priceText)
	if err != nil {
		return nil, &domain.ParseError{Source: "milli", Symbol: symbol, Reason: "price not numeric: " + priceText}
	}

	meta := domain.Meta{"source_url": url}

	if change := strings.TrimSpace(box.Find("div.discount_coin span").First().Text()); change != "" {
		meta["change_percentage"] = persian.NormalizePercent(change)
	}
	if amount := strings.TrimSpace(box.Find("div.change_coin span").First().Text()); amount != "" {
		meta["change_amount"] = persian.StripCommas(persian.NormalizeDigits(amount))
	}
	// The bubble span packs amount and percentage into one string.
	if bubble := strings.TrimSpace(box.Find("div.blubbe_coin span").First().Text()); bubble != "" {
		amount, pct := persian.SplitBubble(persian.NormalizeDigits(bubble))
		meta["bubble_amount"] = persian.StripCommas(amount)
		meta["bubble_percentage"] = pct
	}

	return &scrape.Observation{
		Symbol:   symbol,
		Price:    price,
		Currency: domain.CurrencyIRR,
		Meta:     meta,
	}, nil
}
