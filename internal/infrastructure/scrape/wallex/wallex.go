// Package wallex extracts crypto quotes from wallex.ir market pages.
// Prices there are quoted in Tether.
package wallex

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arzwatch/arzwatch/internal/domain"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape"
	"github.com/arzwatch/arzwatch/internal/persian"
)

const readySelector = "div.MuiTypography-BodyLargeMedium span"

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
		return nil, &domain.ParseError{Source: "wallex", Symbol: symbol, Reason: "invalid html: " + err.Error()}
	}

	priceText := strings.TrimSpace(doc.Find(readySelector).First().Text())
	priceText = strings.TrimPrefix(priceText, "$")
	price, err := persian.ToDecimal(priceText)
	if err != nil {
		return nil, &domain.ParseError{Source: "wallex", Symbol: symbol, Reason: "price not numeric: " + priceText}
	}

	meta := domain.Meta{"source_url": url}

	// The daily change badge has no stable class, so take the first leaf
	// span whose text is a percentage.
	doc.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := strings.TrimSpace(s.Text())
		if s.Children().Length() > 0 {
			return true
		}
		if !strings.Contains(t, "%") && !strings.Contains(t, "٪") {
			return true
		}
		meta["change_percentage"] = persian.NormalizePercent(t)
		return false
	})

	if high := labeledDollarValue(doc, "بیشترین قیمت"); high != "" {
		meta["highest_price"] = high
	}
	if low := labeledDollarValue(doc, "کمترین قیمت"); low != "" {
		meta["lowest_price"] = low
	}

	return &scrape.Observation{
		Symbol:   symbol,
		Price:    price,
		Currency: domain.CurrencyUSDT,
		Meta:     meta,
	}, nil
}

// labeledDollarValue locates the span holding the given Persian label and
// returns the dollar amount rendered next to it, sign and commas stripped.
func labeledDollarValue(doc *goquery.Document, label string) string {
	labelNode := doc.Find("span, p").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == label
	}).First()
	if labelNode.Length() == 0 {
		return ""
	}

	var value string
	labelNode.Parent().Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := strings.TrimSpace(s.Text())
		if !strings.HasPrefix(t, "$") {
			return true
		}
		value = persian.StripCommas(persian.NormalizeDigits(strings.TrimPrefix(t, "$")))
		return false
	})
	return value
}
