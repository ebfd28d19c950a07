package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/arzwatch/arzwatch/internal/domain"
)

// Repository implements domain.Registry and domain.TickStore on top of a
// relational database. Queries are written in postgres placeholder form and
// rebound per dialect.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.Dialect.Migrate(ctx, r.db.DB)
}

func (r *Repository) rebind(query string) string {
	return r.db.Dialect.Rebind(query)
}

const instrumentColumns = `id, symbol, name, fa_name, category, default_source_id, enabled, created_at, updated_at`

func scanInstrument(row interface{ Scan(...any) error }) (*domain.Instrument, error) {
	var inst domain.Instrument
	var defaultSource uuid.NullUUID

	err := row.Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.FaName, &inst.Category,
		&defaultSource, &inst.Enabled, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if defaultSource.Valid {
		inst.DefaultSourceID = &defaultSource.UUID
	}
	return &inst, nil
}

func (r *Repository) InstrumentBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error) {
	query := r.rebind(`SELECT ` + instrumentColumns + ` FROM instruments WHERE symbol = $1`)

	inst, err := scanInstrument(r.db.QueryRowContext(ctx, query, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("instrument %q: %w", symbol, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying instrument: %w", err)
	}
	return inst, nil
}

func (r *Repository) EnabledInstruments(ctx context.Context) ([]domain.Instrument, error) {
	query := r.rebind(`SELECT ` + instrumentColumns + ` FROM instruments WHERE enabled = TRUE ORDER BY symbol`)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying instruments: %w", err)
	}
	defer closeRows(rows)

	var instruments []domain.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning instrument: %w", err)
		}
		instruments = append(instruments, *inst)
	}
	return instruments, rows.Err()
}

func (r *Repository) SourceByName(ctx context.Context, name string) (*domain.Source, error) {
	query := r.rebind(`SELECT id, name, base_url, enabled, created_at, updated_at FROM sources WHERE name = $1`)

	var src domain.Source
	err := r.db.QueryRowContext(ctx, query, name).
		Scan(&src.ID, &src.Name, &src.BaseURL, &src.Enabled, &src.CreatedAt, &src.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying source: %w", err)
	}
	return &src, nil
}

func (r *Repository) EnabledSources(ctx context.Context) ([]domain.Source, error) {
	query := r.rebind(`SELECT id, name, base_url, enabled, created_at, updated_at FROM sources WHERE enabled = TRUE ORDER BY name`)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer closeRows(rows)

	var sources []domain.Source
	for rows.Next() {
		var src domain.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.BaseURL, &src.Enabled, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (r *Repository) ConfigsForSource(ctx context.Context, sourceID uuid.UUID, symbols []string) (map[string]domain.SourceConfig, error) {
	query := r.rebind(`
		SELECT sc.id, sc.source_id, sc.instrument_id, sc.path, i.symbol
		FROM source_configs sc
		JOIN instruments i ON i.id = sc.instrument_id
		WHERE sc.source_id = $1 AND i.enabled = TRUE
	`)

	rows, err := r.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying source configs: %w", err)
	}
	defer closeRows(rows)

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	configs := make(map[string]domain.SourceConfig)
	for rows.Next() {
		var cfg domain.SourceConfig
		var symbol string
		if err := rows.Scan(&cfg.ID, &cfg.SourceID, &cfg.InstrumentID, &cfg.Path, &symbol); err != nil {
			return nil, fmt.Errorf("scanning source config: %w", err)
		}
		if len(wanted) > 0 && !wanted[symbol] {
			continue
		}
		configs[symbol] = cfg
	}
	return configs, rows.Err()
}

func (r *Repository) ConfiguredSourcesFor(ctx context.Context, instrumentID uuid.UUID) ([]domain.Source, error) {
	query := r.rebind(`
		SELECT s.id, s.name, s.base_url, s.enabled, s.created_at, s.updated_at
		FROM source_configs sc
		JOIN sources s ON s.id = sc.source_id
		WHERE sc.instrument_id = $1 AND s.enabled = TRUE
		ORDER BY s.name
	`)

	rows, err := r.db.QueryContext(ctx, query, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("querying configured sources: %w", err)
	}
	defer closeRows(rows)

	var sources []domain.Source
	for rows.Next() {
		var src domain.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.BaseURL, &src.Enabled, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (r *Repository) IsConfigured(ctx context.Context, sourceID, instrumentID uuid.UUID) (bool, error) {
	query := r.rebind(`SELECT COUNT(1) FROM source_configs WHERE source_id = $1 AND instrument_id = $2`)

	var count int
	if err := r.db.QueryRowContext(ctx, query, sourceID, instrumentID).Scan(&count); err != nil {
		return false, fmt.Errorf("querying binding: %w", err)
	}
	return count > 0, nil
}

// SaveTicks inserts a batch in one transaction. Duplicate (instrument,
// source, timestamp) rows are skipped, so re-running a scrape window is safe.
func (r *Repository) SaveTicks(ctx context.Context, ticks []domain.PriceTick) (int, error) {
	if len(ticks) == 0 {
		return 0, nil
	}

	query := r.rebind(`
		INSERT INTO price_ticks (id, instrument_id, source_id, price, currency, timestamp, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (instrument_id, source_id, timestamp) DO NOTHING
	`)

	inserted := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for i := range ticks {
			meta, err := json.Marshal(ticks[i].Meta)
			if err != nil {
				return fmt.Errorf("marshaling meta: %w", err)
			}
			res, err := tx.ExecContext(ctx, query,
				ticks[i].ID, ticks[i].InstrumentID, ticks[i].SourceID,
				ticks[i].Price, ticks[i].Currency, ticks[i].Timestamp, meta)
			if err != nil {
				slog.Error("Failed to insert tick", "tick_id", ticks[i].ID, "error", err)
				return fmt.Errorf("insert tick: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Seed upserts sources, instruments and bindings from a declarative config.
// Existing rows keep their IDs; base URLs, paths and default sources follow
// the seed file.
func (r *Repository) Seed(ctx context.Context, sources []domain.Source, instruments []domain.Instrument, configs []domain.SourceConfig) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for i := range sources {
			if err := r.upsertSource(ctx, tx, &sources[i]); err != nil {
				return fmt.Errorf("upsert source %s: %w", sources[i].Name, err)
			}
		}
		for i := range instruments {
			if err := r.upsertInstrument(ctx, tx, &instruments[i]); err != nil {
				return fmt.Errorf("upsert instrument %s: %w", instruments[i].Symbol, err)
			}
		}
		for i := range configs {
			if err := r.upsertConfig(ctx, tx, &configs[i]); err != nil {
				return fmt.Errorf("upsert binding: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) upsertSource(ctx context.Context, tx *sql.Tx, s *domain.Source) error {
	query := r.rebind(`
		INSERT INTO sources (id, name, base_url, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			base_url = EXCLUDED.base_url,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`)
	_, err := tx.ExecContext(ctx, query, s.ID, s.Name, s.BaseURL, s.Enabled, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *Repository) upsertInstrument(ctx context.Context, tx *sql.Tx, i *domain.Instrument) error {
	query := r.rebind(`
		INSERT INTO instruments (id, symbol, name, fa_name, category, default_source_id, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			fa_name = EXCLUDED.fa_name,
			category = EXCLUDED.category,
			default_source_id = EXCLUDED.default_source_id,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`)
	var defaultSource uuid.NullUUID
	if i.DefaultSourceID != nil {
		defaultSource = uuid.NullUUID{UUID: *i.DefaultSourceID, Valid: true}
	}
	_, err := tx.ExecContext(ctx, query, i.ID, i.Symbol, i.Name, i.FaName, i.Category,
		defaultSource, i.Enabled, i.CreatedAt, i.UpdatedAt)
	return err
}

func (r *Repository) upsertConfig(ctx context.Context, tx *sql.Tx, c *domain.SourceConfig) error {
	query := r.rebind(`
		INSERT INTO source_configs (id, source_id, instrument_id, path)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id, instrument_id) DO UPDATE SET
			path = EXCLUDED.path
	`)
	_, err := tx.ExecContext(ctx, query, c.ID, c.SourceID, c.InstrumentID, c.Path)
	return err
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Error("Failed to close rows", "error", err)
	}
}
