package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/arzwatch/arzwatch/internal/domain"
)

type seedFile struct {
	Sources []struct {
		Name    string `yaml:"name"`
		BaseURL string `yaml:"base_url"`
		Enabled *bool  `yaml:"enabled"`
	} `yaml:"sources"`
	Instruments []struct {
		Symbol        string `yaml:"symbol"`
		Name          string `yaml:"name"`
		FaName        string `yaml:"fa_name"`
		Category      string `yaml:"category"`
		DefaultSource string `yaml:"default_source"`
		Enabled       *bool  `yaml:"enabled"`
		Bindings      []struct {
			Source string `yaml:"source"`
			Path   string `yaml:"path"`
		} `yaml:"bindings"`
	} `yaml:"instruments"`
}

// SeedFromFile loads the declarative source/instrument catalogue and upserts
// it. Rows are matched by name or symbol, so existing IDs and their ticks
// survive re-seeding.
func (r *Repository) SeedFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing seed file: %w", err)
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		sourceIDs := make(map[string]domain.Source)

		for _, s := range file.Sources {
			src := domain.NewSource(s.Name, s.BaseURL)
			if s.Enabled != nil {
				src.Enabled = *s.Enabled
			}
			if !src.IsValid() {
				return domain.NewConfigurationError("invalid source %q in seed file", s.Name)
			}
			if err := r.upsertSource(ctx, tx, &src); err != nil {
				return fmt.Errorf("upsert source %s: %w", s.Name, err)
			}
			stored, err := r.sourceByNameTx(ctx, tx, s.Name)
			if err != nil {
				return err
			}
			sourceIDs[s.Name] = *stored
		}

		for _, i := range file.Instruments {
			inst := domain.NewInstrument(i.Symbol, i.Name, i.FaName, domain.Category(i.Category))
			if i.Enabled != nil {
				inst.Enabled = *i.Enabled
			}
			if !inst.IsValid() {
				return domain.NewConfigurationError("invalid instrument %q in seed file", i.Symbol)
			}
			if i.DefaultSource != "" {
				src, ok := sourceIDs[i.DefaultSource]
				if !ok {
					return domain.NewConfigurationError("instrument %q references unknown default source %q", i.Symbol, i.DefaultSource)
				}
				inst.DefaultSourceID = &src.ID
			}
			if err := r.upsertInstrument(ctx, tx, &inst); err != nil {
				return fmt.Errorf("upsert instrument %s: %w", i.Symbol, err)
			}
			instrumentID, err := r.instrumentIDTx(ctx, tx, i.Symbol)
			if err != nil {
				return err
			}

			for _, b := range i.Bindings {
				src, ok := sourceIDs[b.Source]
				if !ok {
					return domain.NewConfigurationError("binding of %q references unknown source %q", i.Symbol, b.Source)
				}
				cfg := domain.NewSourceConfig(src.ID, instrumentID, b.Path)
				if err := r.upsertConfig(ctx, tx, &cfg); err != nil {
					return fmt.Errorf("upsert binding %s/%s: %w", b.Source, i.Symbol, err)
				}
			}
		}

		slog.Info("Seeded catalogue", "sources", len(file.Sources), "instruments", len(file.Instruments))
		return nil
	})
}

// sourceByNameTx reads the stored row inside the seeding transaction;
// upserts keep pre-existing IDs, so the in-memory ID may be stale.
func (r *Repository) sourceByNameTx(ctx context.Context, tx *sql.Tx, name string) (*domain.Source, error) {
	query := r.rebind(`SELECT id, name, base_url, enabled, created_at, updated_at FROM sources WHERE name = $1`)

	var src domain.Source
	err := tx.QueryRowContext(ctx, query, name).
		Scan(&src.ID, &src.Name, &src.BaseURL, &src.Enabled, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("querying seeded source %q: %w", name, err)
	}
	return &src, nil
}

func (r *Repository) instrumentIDTx(ctx context.Context, tx *sql.Tx, symbol string) (id uuid.UUID, err error) {
	query := r.rebind(`SELECT id FROM instruments WHERE symbol = $1`)
	if err := tx.QueryRowContext(ctx, query, symbol).Scan(&id); err != nil {
		return id, fmt.Errorf("querying seeded instrument %q: %w", symbol, err)
	}
	return id, nil
}
