package domain

import (
	"testing"

	"github.com/google/uuid"
)

func testSource(name string, enabled bool) Source {
	s := NewSource(name, "https://"+name+".example")
	s.Enabled = enabled
	return s
}

func TestResolveSources(t *testing.T) {
	def := testSource("tgju", true)
	other := testSource("alanchand", true)
	disabled := testSource("milli", false)

	inst := NewInstrument("USD", "US Dollar", "دلار", CategoryCurrency)
	inst.DefaultSourceID = &def.ID

	t.Run("default first then fallbacks", func(t *testing.T) {
		got := ResolveSources(inst, []Source{other, def, disabled})
		if len(got) != 2 {
			t.Fatalf("expected 2 sources, got %d", len(got))
		}
		if got[0].Name != "tgju" || got[1].Name != "alanchand" {
			t.Errorf("expected [tgju alanchand], got [%s %s]", got[0].Name, got[1].Name)
		}
	})

	t.Run("disabled default drops to fallback order", func(t *testing.T) {
		disabledDef := testSource("tgju", false)
		i := inst
		i.DefaultSourceID = &disabledDef.ID

		got := ResolveSources(i, []Source{disabledDef, other})
		if len(got) != 1 || got[0].Name != "alanchand" {
			t.Fatalf("expected [alanchand], got %v", got)
		}
	})

	t.Run("no default keeps configuration order", func(t *testing.T) {
		i := inst
		i.DefaultSourceID = nil

		got := ResolveSources(i, []Source{other, def})
		if len(got) != 2 || got[0].Name != "alanchand" || got[1].Name != "tgju" {
			t.Fatalf("expected [alanchand tgju], got %v", got)
		}
	})

	t.Run("default not repeated", func(t *testing.T) {
		got := ResolveSources(inst, []Source{def, other})
		seen := map[uuid.UUID]int{}
		for _, s := range got {
			seen[s.ID]++
		}
		if seen[def.ID] != 1 {
			t.Errorf("default source appeared %d times", seen[def.ID])
		}
	})
}

func TestDefaultOrFallback(t *testing.T) {
	def := testSource("tgju", true)
	fallback := testSource("alanchand", true)

	inst := NewInstrument("SEKKE", "Bahar Azadi Coin", "سکه بهار آزادی", CategoryCoin)
	inst.DefaultSourceID = &def.ID

	t.Run("picks enabled default", func(t *testing.T) {
		got := DefaultOrFallback(inst, []Source{fallback, def})
		if got == nil || got.Name != "tgju" {
			t.Fatalf("expected tgju, got %v", got)
		}
	})

	t.Run("picks first fallback when default disabled", func(t *testing.T) {
		disabledDef := testSource("tgju", false)
		i := inst
		i.DefaultSourceID = &disabledDef.ID

		got := DefaultOrFallback(i, []Source{disabledDef, fallback})
		if got == nil || got.Name != "alanchand" {
			t.Fatalf("expected alanchand, got %v", got)
		}
	})

	t.Run("nil when nothing enabled", func(t *testing.T) {
		i := inst
		i.DefaultSourceID = nil

		if got := DefaultOrFallback(i, []Source{testSource("milli", false)}); got != nil {
			t.Fatalf("expected nil, got %v", got)
		}
	})
}
