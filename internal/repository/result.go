package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/oddswatch/engine/internal/domain"
)

type resultRepo struct{}

// NewResultRepository returns a pgx-backed ResultRepository.
func NewResultRepository() ResultRepository {
	return &resultRepo{}
}

// Insert relies on the primary key for first-write-wins: a second write for
// the same event is a silent no-op.
func (r *resultRepo) Insert(ctx context.Context, db DBTX, res *domain.Result) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO results (event_id, home_score, away_score, winner, collected_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`,
		res.EventID,
		res.HomeScore,
		res.AwayScore,
		res.Winner,
		res.CollectedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert result: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *resultRepo) FindByEvent(ctx context.Context, db DBTX, eventID int64) (*domain.Result, error) {
	row := db.QueryRow(ctx, `
		SELECT event_id, home_score, away_score, winner, point_diff, collected_at
		FROM results WHERE event_id = $1`, eventID)

	var res domain.Result
	err := row.Scan(&res.EventID, &res.HomeScore, &res.AwayScore, &res.Winner, &res.PointDiff, &res.CollectedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan result: %w", err)
	}
	return &res, nil
}

func (r *resultRepo) Count(ctx context.Context, db DBTX) (int64, error) {
	var n int64
	if err := db.QueryRow(ctx, `SELECT count(*) FROM results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}
