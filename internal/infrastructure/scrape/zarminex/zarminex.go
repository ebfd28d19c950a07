// Package zarminex extracts gold prices from zarminex.ir. The site renders
// no stable CSS hooks, so matching is done on text content.
package zarminex

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arzwatch/arzwatch/internal/domain"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape"
	"github.com/arzwatch/arzwatch/internal/persian"
)

// Rendering is done client side, so readiness is the first span that
// mentions Rial anywhere on the page.
const readySelector = `//span[contains(text(), 'ریال')]`

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
		return nil, &domain.ParseError{Source: "zarminex", Symbol: symbol, Reason: "invalid html: " + err.Error()}
	}

	spans := doc.Find("span")

	priceSpan := spans.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), "ریال")
	}).First()
	if priceSpan.Length() == 0 {
		return nil, &domain.ParseError{Source: "zarminex", Symbol: symbol, Reason: "rial price span not found"}
	}

	priceText := strings.TrimSpace(strings.ReplaceAll(priceSpan.Text(), "ریال", ""))
	price, err := persian.ToDecimal(priceText)
	if err != nil {
		return nil, &domain.ParseError{Source: "zarminex", Symbol: symbol, Reason: "price not numeric: " + priceText}
	}

	meta := domain.Meta{"source_url": url}

	updated := spans.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), "/")
	}).First()
	if updated.Length() > 0 {
		meta["last_update"] = persian.NormalizeDigits(strings.TrimSpace(updated.Text()))
	}

	changeSpan := spans.FilterFunction(func(_ int, s *goquery.Selection) bool {
		t := s.Text()
		return strings.Contains(t, "%") || strings.Contains(t, "٪")
	}).First()
	if changeSpan.Length() > 0 {
		meta["change_percentage"] = persian.NormalizePercent(strings.TrimSpace(changeSpan.Text()))
		// The absolute change sits in the div right after the one holding
		// the percentage.
		if amount := strings.TrimSpace(changeSpan.Parent().Next().Text()); amount != "" {
			meta["change_amount"] = persian.StripCommas(persian.NormalizeDigits(amount))
		}
	}

	return &scrape.Observation{
		Symbol:   symbol,
		Price:    price,
		Currency: domain.CurrencyIRR,
		Meta:     meta,
	}, nil
}
