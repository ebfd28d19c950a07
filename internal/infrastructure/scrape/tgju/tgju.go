// Package tgju extracts currency and gold rates from tgju.org profile pages.
package tgju

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arzwatch/arzwatch/internal/domain"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape"
	"github.com/arzwatch/arzwatch/internal/persian"
)

const readySelector = "tbody.table-padding-lg"

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

// parse reads the label/value table every tgju profile page renders. The
// current-rate row is mandatory, the rest enrich metadata when present.
func parse(html, symbol, url string) (*scrape.Observation, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &domain.ParseError{Source: "tgju", Symbol: symbol, Reason: "invalid html: " + err.Error()}
	}

	table := doc.Find(readySelector).First()
	if table.Length() == 0 {
		return nil, &domain.ParseError{Source: "tgju", Symbol: symbol, Reason: "price table not found"}
	}

	meta := domain.Meta{"source_url": url}
	var price domain.Decimal
	found := false

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSpace(cells.Eq(0).Text())
		value := strings.TrimSpace(cells.Eq(1).Text())

		switch label {
		case "نرخ فعلی":
			if d, ok := persian.TryDecimal(value); ok {
				price = d
				found = true
			}
		case "بالاترین قیمت روز":
			meta["highest_price"] = persian.StripCommas(persian.NormalizeDigits(value))
		case "پایین ترین قیمت روز":
			meta["lowest_price"] = persian.StripCommas(persian.NormalizeDigits(value))
		case "درصد تغییر نسبت به روز گذشته":
			meta["change_percentage"] = persian.NormalizePercent(value)
		case "زمان ثبت آخرین نرخ":
			meta["timestamp"] = persian.NormalizeDigits(value)
		case "قیمت ریالی":
			meta["rial_price"] = persian.StripCommas(persian.NormalizeDigits(value))
		}
	})

	if !found {
		return nil, &domain.ParseError{Source: "tgju", Symbol: symbol, Reason: "current rate row not found"}
	}

	return &scrape.Observation{
		Symbol:   symbol,
		Price:    price,
		Currency: domain.CurrencyIRR,
		Meta:     meta,
	}, nil
}
