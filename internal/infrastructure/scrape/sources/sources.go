// Package sources wires every built-in extractor into a registry.
package sources

import (
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape/alanchand"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape/arzdigital"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape/milli"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape/tgju"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape/wallex"
	"github.com/arzwatch/arzwatch/internal/infrastructure/scrape/zarminex"
)

// DefaultRegistry returns a registry with all supported sources. Seeded
// source names must match these registrations.
func DefaultRegistry() *scrape.Registry {
	reg := scrape.NewRegistry()
	reg.Register("tgju", tgju.New)
	reg.Register("alanchand", alanchand.New)
	reg.Register("milli", milli.New)
	reg.Register("zarminex", zarminex.New)
	reg.Register("wallex", wallex.New)
	reg.Register("arzdigital", arzdigital.New)
	return reg
}
