package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/arzwatch/arzwatch/internal/domain"
)

const tickColumns = `t.id, t.instrument_id, t.source_id, t.price, t.currency, t.timestamp, t.meta, i.symbol, s.name`

const tickJoins = `
	FROM price_ticks t
	JOIN instruments i ON i.id = t.instrument_id
	JOIN sources s ON s.id = t.source_id
`

func scanTick(row interface{ Scan(...any) error }) (*domain.PriceTick, error) {
	var tick domain.PriceTick
	var meta []byte

	err := row.Scan(&tick.ID, &tick.InstrumentID, &tick.SourceID, &tick.Price,
		&tick.Currency, &tick.Timestamp, &meta, &tick.Symbol, &tick.SourceName)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &tick.Meta); err != nil {
			return nil, fmt.Errorf("unmarshaling meta: %w", err)
		}
	}
	return &tick, nil
}

// LatestTick resolves the freshest tick for a symbol: the default source
// first when one is configured and enabled, any enabled source otherwise.
func (r *Repository) LatestTick(ctx context.Context, symbol string) (*domain.PriceTick, bool, error) {
	inst, err := r.InstrumentBySymbol(ctx, symbol)
	if err != nil {
		return nil, false, err
	}
	if !inst.Enabled {
		return nil, false, fmt.Errorf("instrument %q disabled: %w", symbol, domain.ErrNotFound)
	}

	if inst.DefaultSourceID != nil {
		tick, err := r.latestFromSource(ctx, inst.ID, *inst.DefaultSourceID)
		if err == nil {
			return tick, false, nil
		}
		if !errors.Is(err, domain.ErrNoData) {
			return nil, false, err
		}
	}

	tick, err := r.latestFromAny(ctx, inst.ID)
	if err != nil {
		return nil, false, err
	}
	fallback := inst.DefaultSourceID != nil && tick.SourceID != *inst.DefaultSourceID
	return tick, fallback, nil
}

func (r *Repository) latestFromSource(ctx context.Context, instrumentID, sourceID uuid.UUID) (*domain.PriceTick, error) {
	query := r.rebind(`SELECT ` + tickColumns + tickJoins + `
		WHERE t.instrument_id = $1 AND t.source_id = $2 AND s.enabled = TRUE
		ORDER BY t.timestamp DESC
		LIMIT 1`)

	tick, err := scanTick(r.db.QueryRowContext(ctx, query, instrumentID, sourceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest tick: %w", err)
	}
	return tick, nil
}

func (r *Repository) latestFromAny(ctx context.Context, instrumentID uuid.UUID) (*domain.PriceTick, error) {
	query := r.rebind(`SELECT ` + tickColumns + tickJoins + `
		WHERE t.instrument_id = $1 AND s.enabled = TRUE
		ORDER BY t.timestamp DESC
		LIMIT 1`)

	tick, err := scanTick(r.db.QueryRowContext(ctx, query, instrumentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest tick: %w", err)
	}
	return tick, nil
}

const defaultListLimit = 100

// preferredSourceID resolves the source a bare symbol query narrows to: the
// instrument's default source when it is enabled and has data. A nil result
// means the query falls back to every enabled source.
func (r *Repository) preferredSourceID(ctx context.Context, symbol string) (*uuid.UUID, error) {
	inst, err := r.InstrumentBySymbol(ctx, symbol)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if inst.DefaultSourceID == nil {
		return nil, nil
	}
	if _, err := r.latestFromSource(ctx, inst.ID, *inst.DefaultSourceID); err != nil {
		if errors.Is(err, domain.ErrNoData) {
			return nil, nil
		}
		return nil, err
	}
	return inst.DefaultSourceID, nil
}

// ListTicks returns ticks matching the filter, newest first. An exact symbol
// filter without a source filter narrows to the default-source-preferred
// set, falling back to any enabled source.
func (r *Repository) ListTicks(ctx context.Context, filter domain.TickFilter) ([]domain.PriceTick, error) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Symbol != "" {
		add("i.symbol = $%d", filter.Symbol)
		if filter.Source == "" && filter.SourceContains == "" {
			pinned, err := r.preferredSourceID(ctx, filter.Symbol)
			if err != nil {
				return nil, err
			}
			if pinned != nil {
				add("t.source_id = $%d", *pinned)
			} else {
				conds = append(conds, "s.enabled = TRUE")
			}
		}
	}
	if filter.SymbolContains != "" {
		add("UPPER(i.symbol) LIKE UPPER($%d)", "%"+filter.SymbolContains+"%")
	}
	if filter.Source != "" {
		add("s.name = $%d", filter.Source)
	}
	if filter.SourceContains != "" {
		add("UPPER(s.name) LIKE UPPER($%d)", "%"+filter.SourceContains+"%")
	}
	if filter.Currency != "" {
		add("t.currency = $%d", filter.Currency)
	}
	// CAST keeps the comparison numeric on sqlite, where the bound decimal
	// arrives as text.
	if filter.PriceGTE != nil {
		add("t.price >= CAST($%d AS NUMERIC)", *filter.PriceGTE)
	}
	if filter.PriceLTE != nil {
		add("t.price <= CAST($%d AS NUMERIC)", *filter.PriceLTE)
	}
	if !filter.From.IsZero() {
		add("t.timestamp >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("t.timestamp <= $%d", filter.To)
	}

	query := `SELECT ` + tickColumns + tickJoins
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY t.timestamp DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying ticks: %w", err)
	}
	defer closeRows(rows)

	var ticks []domain.PriceTick
	for rows.Next() {
		tick, err := scanTick(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tick: %w", err)
		}
		ticks = append(ticks, *tick)
	}
	return ticks, rows.Err()
}

// InstrumentsWithLatest lists enabled instruments with their resolved latest
// tick. Two correlated subqueries pick the candidate tick IDs; the ticks
// themselves are loaded in a second round trip to keep the SQL portable.
func (r *Repository) InstrumentsWithLatest(ctx context.Context, category domain.Category) ([]domain.InstrumentWithTick, error) {
	query := `
		SELECT ` + instrumentColumns + `,
			(SELECT t.id FROM price_ticks t
				JOIN sources s ON s.id = t.source_id
				WHERE t.instrument_id = instruments.id
				  AND t.source_id = instruments.default_source_id
				  AND s.enabled = TRUE
				ORDER BY t.timestamp DESC LIMIT 1) AS default_tick_id,
			(SELECT t.id FROM price_ticks t
				JOIN sources s ON s.id = t.source_id
				WHERE t.instrument_id = instruments.id
				  AND s.enabled = TRUE
				ORDER BY t.timestamp DESC LIMIT 1) AS any_tick_id
		FROM instruments
		WHERE enabled = TRUE`

	var args []any
	if category != "" {
		args = append(args, category)
		query += " AND category = $1"
	}
	query += " ORDER BY symbol"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying instruments: %w", err)
	}
	defer closeRows(rows)

	type entry struct {
		inst     domain.Instrument
		tickID   uuid.NullUUID
		fallback bool
	}

	var entries []entry
	tickIDs := make([]uuid.UUID, 0)
	for rows.Next() {
		var e entry
		var defaultSource, defaultTick, anyTick uuid.NullUUID

		err := rows.Scan(&e.inst.ID, &e.inst.Symbol, &e.inst.Name, &e.inst.FaName, &e.inst.Category,
			&defaultSource, &e.inst.Enabled, &e.inst.CreatedAt, &e.inst.UpdatedAt,
			&defaultTick, &anyTick)
		if err != nil {
			return nil, fmt.Errorf("scanning instrument: %w", err)
		}
		if defaultSource.Valid {
			e.inst.DefaultSourceID = &defaultSource.UUID
		}

		switch {
		case defaultTick.Valid:
			e.tickID = defaultTick
		case anyTick.Valid:
			e.tickID = anyTick
			e.fallback = defaultSource.Valid
		}
		if e.tickID.Valid {
			tickIDs = append(tickIDs, e.tickID.UUID)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ticks, err := r.ticksByID(ctx, tickIDs)
	if err != nil {
		return nil, err
	}

	result := make([]domain.InstrumentWithTick, 0, len(entries))
	for _, e := range entries {
		item := domain.InstrumentWithTick{Instrument: e.inst, IsFallback: e.fallback}
		if e.tickID.Valid {
			if tick, ok := ticks[e.tickID.UUID]; ok {
				item.Latest = tick
			}
		}
		result = append(result, item)
	}
	return result, nil
}

func (r *Repository) ticksByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.PriceTick, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := r.rebind(`SELECT ` + tickColumns + tickJoins +
		` WHERE t.id IN (` + strings.Join(placeholders, ", ") + `)`)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ticks by id: %w", err)
	}
	defer closeRows(rows)

	ticks := make(map[uuid.UUID]*domain.PriceTick, len(ids))
	for rows.Next() {
		tick, err := scanTick(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tick: %w", err)
		}
		ticks[tick.ID] = tick
	}
	return ticks, rows.Err()
}
