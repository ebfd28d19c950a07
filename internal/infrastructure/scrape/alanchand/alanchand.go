// Package alanchand extracts gold prices from alanchand.com.
package alanchand

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arzwatch/arzwatch/internal/domain"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape"
	"github.com/arzwatch/arzwatch/internal/persian"
)

const readySelector = "div.goldPriceBox"

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
		return nil, &domain.ParseError{Source: "alanchand", Symbol: symbol, Reason: "invalid html: " + err.Error()}
	}

	box := doc.Find(readySelector).First()
	if box.Length() == 0 {
		return nil, &domain.ParseError{Source: "alanchand", Symbol: symbol, Reason: "price box not found"}
	}

	priceText := strings.TrimSpace(box.Find("span.fw-bold.text-success.fs-5").First().Text())
	price, err := persian.ToDecimal(priceText)
	if err != nil {
		return nil, &domain.ParseError{Source: "alanchand", Symbol: symbol, Reason: "price not numeric: " + priceText}
	}

	meta := domain.Meta{"source_url": url}

	if change := strings.TrimSpace(box.Find("span.priceSymbol span.fs-7").First().Text()); change != "" {
		meta["change_percentage"] = persian.NormalizePercent(change)
	}
	// Row one carries the de-bubbled price, row two the bubble amount with
	// its parenthesized percentage.
	rows := box.Find("div.d-flex.justify-content-between")
	if real := strings.TrimSpace(rows.Eq(0).Find("span").Eq(1).Text()); real != "" {
		meta["real_price"] = persian.StripCommas(persian.NormalizeDigits(real))
	}
	bubbleRow := rows.Eq(1).Find("div").First()
	if bubble := strings.TrimSpace(bubbleRow.Find("span").Eq(1).Text()); bubble != "" {
		meta["bubble_amount"] = persian.StripCommas(persian.NormalizeDigits(bubble))
	}
	if pct := strings.TrimSpace(bubbleRow.Find("span.ms-1").First().Text()); pct != "" {
		pct = strings.Trim(pct, "()")
		meta["bubble_percentage"] = persian.NormalizePercent(pct)
	}

	return &scrape.Observation{
		Symbol:   symbol,
		Price:    price,
		Currency: domain.CurrencyIRR,
		Meta:     meta,
	}, nil
}
