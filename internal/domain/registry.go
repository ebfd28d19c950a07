package domain

// Pure source-resolution rules. The storage layer supplies the configured
// source list (enabled only, configuration order); the functions here apply
// the default-first ordering that every scrape scope and read query shares.

// ResolveSources orders an instrument's scrape candidates: the default source
// first (when enabled), then the remaining enabled configured sources in
// configuration order, without repeating the default.
func ResolveSources(inst Instrument, configured []Source) []Source {
	resolved := make([]Source, 0, len(configured))

	var defaultSrc *Source
	if inst.DefaultSourceID != nil {
		for i := range configured {
			if configured[i].ID == *inst.DefaultSourceID && configured[i].Enabled {
				defaultSrc = &configured[i]
				break
			}
		}
	}

	if defaultSrc != nil {
		resolved = append(resolved, *defaultSrc)
	}
	for _, src := range configured {
		if !src.Enabled {
			continue
		}
		if defaultSrc != nil && src.ID == defaultSrc.ID {
			continue
		}
		resolved = append(resolved, src)
	}
	return resolved
}

// DefaultOrFallback picks the single source for an instrument when the caller
// does not want multi-source scraping: the enabled default, else the first
// enabled configured fallback, else nil (caller warns and skips).
func DefaultOrFallback(inst Instrument, configured []Source) *Source {
	resolved := ResolveSources(inst, configured)
	if len(resolved) == 0 {
		return nil
	}
	return &resolved[0]
}
