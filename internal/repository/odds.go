package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/infra"
)

type oddsRepo struct{}

// NewOddsRepository returns a pgx-backed OddsRepository.
func NewOddsRepository() OddsRepository {
	return &oddsRepo{}
}

func (r *oddsRepo) FindByEvent(ctx context.Context, db DBTX, eventID int64) (*domain.OddsRecord, error) {
	row := db.QueryRow(ctx, `
		SELECT event_id, market, one_open, x_open, two_open, one_final, x_final, two_final,
			var_one, var_x, var_two, open_captured_at, final_captured_at, last_sync_at
		FROM event_odds WHERE event_id = $1`, eventID)
	return scanOddsRecord(row)
}

// UpsertOpening keeps openings sticky: a later discovery pass may fill a
// hole but never blanks a captured value, and open_captured_at records the
// first capture.
func (r *oddsRepo) UpsertOpening(ctx context.Context, db DBTX, eventID int64, line *domain.OddsLine, at time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO event_odds (event_id, one_open, x_open, two_open, open_captured_at, last_sync_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (event_id) DO UPDATE SET
			one_open = COALESCE(EXCLUDED.one_open, event_odds.one_open),
			x_open = COALESCE(EXCLUDED.x_open, event_odds.x_open),
			two_open = COALESCE(EXCLUDED.two_open, event_odds.two_open),
			open_captured_at = COALESCE(event_odds.open_captured_at, EXCLUDED.open_captured_at),
			last_sync_at = EXCLUDED.last_sync_at`,
		eventID,
		quoteToNumeric(&line.One),
		quoteToNumeric(line.X),
		quoteToNumeric(&line.Two),
		at,
	)
	if err != nil {
		return fmt.Errorf("upsert opening odds: %w", err)
	}
	return nil
}

func (r *oddsRepo) UpsertFinal(ctx context.Context, db DBTX, eventID int64, line *domain.OddsLine, at time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO event_odds (event_id, one_final, x_final, two_final, final_captured_at, last_sync_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (event_id) DO UPDATE SET
			one_final = EXCLUDED.one_final,
			x_final = EXCLUDED.x_final,
			two_final = EXCLUDED.two_final,
			final_captured_at = EXCLUDED.final_captured_at,
			last_sync_at = EXCLUDED.last_sync_at`,
		eventID,
		quoteToNumeric(&line.One),
		quoteToNumeric(line.X),
		quoteToNumeric(&line.Two),
		at,
	)
	if err != nil {
		return fmt.Errorf("upsert final odds: %w", err)
	}
	return nil
}

func (r *oddsRepo) AppendSnapshot(ctx context.Context, db DBTX, eventID int64, moment domain.SnapshotMoment, line *domain.OddsLine, at time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO odds_snapshots (event_id, moment, one, x, two, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		eventID,
		moment,
		quoteToNumeric(&line.One),
		quoteToNumeric(line.X),
		quoteToNumeric(&line.Two),
		at,
	)
	if err != nil {
		return fmt.Errorf("append odds snapshot: %w", err)
	}
	return nil
}

func (r *oddsRepo) CountWithVariations(ctx context.Context, db DBTX) (int64, error) {
	var n int64
	err := db.QueryRow(ctx, `
		SELECT count(*) FROM event_odds
		WHERE var_one IS NOT NULL AND var_two IS NOT NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count odds with variations: %w", err)
	}
	return n, nil
}

func scanOddsRecord(row pgx.Row) (*domain.OddsRecord, error) {
	var o domain.OddsRecord
	var oneOpen, xOpen, twoOpen, oneFinal, xFinal, twoFinal pgtype.Numeric
	var varOne, varX, varTwo pgtype.Numeric
	err := row.Scan(
		&o.EventID, &o.Market, &oneOpen, &xOpen, &twoOpen, &oneFinal, &xFinal, &twoFinal,
		&varOne, &varX, &varTwo, &o.OpenCapturedAt, &o.FinalCapturedAt, &o.LastSyncAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan odds record: %w", err)
	}

	for _, f := range []struct {
		dst **domain.Quote
		src pgtype.Numeric
		col string
	}{
		{&o.OneOpen, oneOpen, "one_open"},
		{&o.XOpen, xOpen, "x_open"},
		{&o.TwoOpen, twoOpen, "two_open"},
		{&o.OneFinal, oneFinal, "one_final"},
		{&o.XFinal, xFinal, "x_final"},
		{&o.TwoFinal, twoFinal, "two_final"},
	} {
		q, err := numericToQuote(f.src)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", f.col, err)
		}
		*f.dst = q
	}

	for _, f := range []struct {
		dst **domain.Variation
		src pgtype.Numeric
		col string
	}{
		{&o.VarOne, varOne, "var_one"},
		{&o.VarX, varX, "var_x"},
		{&o.VarTwo, varTwo, "var_two"},
	} {
		v, err := numericToVariation(f.src)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", f.col, err)
		}
		*f.dst = v
	}

	return &o, nil
}

// quoteToNumeric maps a nil quote to SQL NULL; quotes carry three decimals.
func quoteToNumeric(q *domain.Quote) pgtype.Numeric {
	if q == nil {
		return pgtype.Numeric{}
	}
	return infra.ScaledToNumeric(int64(*q), 3)
}

func numericToQuote(n pgtype.Numeric) (*domain.Quote, error) {
	if !n.Valid {
		return nil, nil
	}
	v, err := infra.NumericToScaled(n, 3)
	if err != nil {
		return nil, err
	}
	q := domain.Quote(v)
	return &q, nil
}

func numericToVariation(n pgtype.Numeric) (*domain.Variation, error) {
	if !n.Valid {
		return nil, nil
	}
	v, err := infra.NumericToScaled(n, 2)
	if err != nil {
		return nil, err
	}
	d := domain.Variation(v)
	return &d, nil
}
