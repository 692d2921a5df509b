package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oddswatch/engine/internal/domain"
)

const eventColumns = `id, custom_id, slug, sport, competition, country, home_team, away_team,
	start_time_utc, ground_type, status, last_checked_at, created_at, updated_at`

type eventRepo struct{}

// NewEventRepository returns a pgx-backed EventRepository.
func NewEventRepository() EventRepository {
	return &eventRepo{}
}

func (r *eventRepo) Upsert(ctx context.Context, db DBTX, e *domain.Event) error {
	_, err := db.Exec(ctx, `
		INSERT INTO events (id, custom_id, slug, sport, competition, country, home_team, away_team,
			start_time_utc, ground_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			custom_id = EXCLUDED.custom_id,
			slug = EXCLUDED.slug,
			competition = EXCLUDED.competition,
			country = EXCLUDED.country,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			ground_type = COALESCE(EXCLUDED.ground_type, events.ground_type),
			updated_at = now()`,
		e.ID,
		e.CustomID,
		e.Slug,
		e.Sport,
		e.Competition,
		e.Country,
		e.HomeTeam,
		e.AwayTeam,
		e.StartTime,
		e.GroundType,
		e.Status,
	)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

func (r *eventRepo) FindByID(ctx context.Context, db DBTX, id int64) (*domain.Event, error) {
	row := db.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func (r *eventRepo) ListUpcoming(ctx context.Context, db DBTX, from, until time.Time) ([]domain.Event, error) {
	rows, err := db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE status = 'scheduled' AND start_time_utc > $1 AND start_time_utc <= $2
		ORDER BY start_time_utc`, from, until)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return collectEvents(rows)
}

// ListMissingResults applies the per-sport cutoff in SQL so a sweep only
// sees events whose final whistle is plausibly behind them. The intervals
// mirror domain.ResultCutoff.
func (r *eventRepo) ListMissingResults(ctx context.Context, db DBTX, since, until, asOf time.Time) ([]domain.Event, error) {
	rows, err := db.Query(ctx, `
		SELECT e.id, e.custom_id, e.slug, e.sport, e.competition, e.country, e.home_team, e.away_team,
			e.start_time_utc, e.ground_type, e.status, e.last_checked_at, e.created_at, e.updated_at
		FROM events e
		LEFT JOIN results res ON res.event_id = e.id
		WHERE e.status = 'scheduled'
		  AND res.event_id IS NULL
		  AND e.start_time_utc >= $1 AND e.start_time_utc < $2
		  AND e.start_time_utc + (CASE
				WHEN e.sport IN ('Football', 'Futsal') THEN INTERVAL '150 minutes'
				WHEN e.sport IN ('Tennis', 'Tennis Doubles', 'Baseball') THEN INTERVAL '4 hours'
				ELSE INTERVAL '3 hours'
			END) <= $3
		ORDER BY e.start_time_utc`, since, until, asOf)
	if err != nil {
		return nil, fmt.Errorf("list events missing results: %w", err)
	}
	return collectEvents(rows)
}

func (r *eventRepo) ListRecent(ctx context.Context, db DBTX, limit int) ([]domain.Event, error) {
	rows, err := db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		ORDER BY start_time_utc DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	return collectEvents(rows)
}

// ListFinishedMissingOdds only tests Δ1/Δ2: the write paths never produce a
// row where those are set but a needed ΔX is not, so the pair is a complete
// proxy for "vector missing".
func (r *eventRepo) ListFinishedMissingOdds(ctx context.Context, db DBTX, limit int) ([]domain.Event, error) {
	query := `
		SELECT e.id, e.custom_id, e.slug, e.sport, e.competition, e.country, e.home_team, e.away_team,
			e.start_time_utc, e.ground_type, e.status, e.last_checked_at, e.created_at, e.updated_at
		FROM events e
		LEFT JOIN event_odds o ON o.event_id = e.id
		WHERE e.status = 'finished'
		  AND (o.event_id IS NULL OR o.var_one IS NULL OR o.var_two IS NULL)
		ORDER BY e.start_time_utc`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list finished events missing odds: %w", err)
	}
	return collectEvents(rows)
}

func (r *eventRepo) UpdateStartTime(ctx context.Context, db DBTX, id int64, start time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE events SET start_time_utc = $2, updated_at = now()
		WHERE id = $1`, id, start)
	if err != nil {
		return fmt.Errorf("update event start time: %w", err)
	}
	return nil
}

func (r *eventRepo) UpdateStatus(ctx context.Context, db DBTX, id int64, status domain.EventStatus) error {
	_, err := db.Exec(ctx, `
		UPDATE events SET status = $2, updated_at = now()
		WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	return nil
}

func (r *eventRepo) TouchLastChecked(ctx context.Context, db DBTX, id int64, at time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE events SET last_checked_at = $2, updated_at = now()
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch event last checked: %w", err)
	}
	return nil
}

func (r *eventRepo) SetGroundType(ctx context.Context, db DBTX, id int64, ground string) error {
	_, err := db.Exec(ctx, `
		UPDATE events SET ground_type = $2, updated_at = now()
		WHERE id = $1`, id, ground)
	if err != nil {
		return fmt.Errorf("set event ground type: %w", err)
	}
	return nil
}

func (r *eventRepo) CountByStatus(ctx context.Context, db DBTX) (map[domain.EventStatus]int64, error) {
	rows, err := db.Query(ctx, `SELECT status, count(*) FROM events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count events by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventStatus]int64)
	for rows.Next() {
		var status domain.EventStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event counts: %w", err)
	}
	return counts, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	err := row.Scan(
		&e.ID, &e.CustomID, &e.Slug, &e.Sport, &e.Competition, &e.Country,
		&e.HomeTeam, &e.AwayTeam, &e.StartTime, &e.GroundType, &e.Status,
		&e.LastCheckedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]domain.Event, error) {
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
