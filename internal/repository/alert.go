package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/infra"
)

const candidateColumns = `event_id, home_team, away_team, competition, sport, ground_type,
	home_score, away_score, winner, point_diff, var_one, var_x, var_two`

type alertRepo struct{}

// NewAlertRepository returns a pgx-backed AlertRepository.
func NewAlertRepository() AlertRepository {
	return &alertRepo{}
}

func (r *alertRepo) ExactCandidates(ctx context.Context, db DBTX, ref domain.VariationVector, sport string, ground *string, selfID int64) ([]domain.Candidate, error) {
	query := `
		SELECT ` + candidateColumns + `
		FROM mv_alert_events
		WHERE sport = $1 AND event_id <> $2
		  AND var_one = $3 AND var_two = $4`
	args := []interface{}{sport, selfID, variationToNumeric(ref.One), variationToNumeric(ref.Two)}

	// Shape must match shape: a two-way reference only matches rows that
	// never had a draw column, and a three-way one needs the exact ΔX.
	if ref.X != nil {
		query += fmt.Sprintf(" AND var_x = $%d", len(args)+1)
		args = append(args, variationToNumeric(*ref.X))
	} else {
		query += " AND var_x IS NULL"
	}
	if ground != nil {
		query += fmt.Sprintf(" AND ground_type = $%d", len(args)+1)
		args = append(args, *ground)
	}
	query += " ORDER BY event_id"

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exact candidates: %w", err)
	}
	return collectCandidates(rows)
}

// SimilarCandidates compares against 0.0401 rather than 0.04 so that a
// difference of exactly four hundredths stays inside the band.
func (r *alertRepo) SimilarCandidates(ctx context.Context, db DBTX, ref domain.VariationVector, sport string, ground *string, selfID int64, excludeIDs []int64) ([]domain.Candidate, error) {
	query := `
		SELECT ` + candidateColumns + `
		FROM mv_alert_events
		WHERE sport = $1 AND event_id <> $2
		  AND abs(var_one - $3) <= 0.0401 AND abs(var_two - $4) <= 0.0401`
	args := []interface{}{sport, selfID, variationToNumeric(ref.One), variationToNumeric(ref.Two)}

	if ref.X != nil {
		query += fmt.Sprintf(" AND var_x IS NOT NULL AND abs(var_x - $%d) <= 0.0401", len(args)+1)
		args = append(args, variationToNumeric(*ref.X))
	} else {
		query += " AND var_x IS NULL"
	}
	if ground != nil {
		query += fmt.Sprintf(" AND ground_type = $%d", len(args)+1)
		args = append(args, *ground)
	}
	if len(excludeIDs) > 0 {
		query += fmt.Sprintf(" AND NOT (event_id = ANY($%d))", len(args)+1)
		args = append(args, excludeIDs)
	}
	query += " ORDER BY event_id"

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query similar candidates: %w", err)
	}
	return collectCandidates(rows)
}

func (r *alertRepo) IsViewStale(ctx context.Context, db DBTX) (bool, error) {
	var stale bool
	err := db.QueryRow(ctx, `SELECT stale FROM alert_view_state`).Scan(&stale)
	if err != nil {
		if err == pgx.ErrNoRows {
			return true, nil
		}
		return false, fmt.Errorf("read alert view state: %w", err)
	}
	return stale, nil
}

// RefreshView runs CONCURRENTLY so matcher reads keep working during the
// rebuild; the unique index on event_id makes that legal.
func (r *alertRepo) RefreshView(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY mv_alert_events`); err != nil {
		return fmt.Errorf("refresh alert view: %w", err)
	}
	if _, err := db.Exec(ctx, `UPDATE alert_view_state SET stale = false, refreshed_at = now()`); err != nil {
		return fmt.Errorf("clear alert view staleness: %w", err)
	}
	return nil
}

func (r *alertRepo) InsertLog(ctx context.Context, db DBTX, entry *domain.AlertLogEntry) error {
	_, err := db.Exec(ctx, `
		INSERT INTO alerts_log (id, event_id, status, variation_tier, result_tier, confidence,
			predicted_winner, predicted_diff, candidate_count, message_sent, created_at)
		VALUES ($1, $2, $3, NULLIF($4, 0), NULLIF($5, ''), $6, $7, $8, $9, $10, $11)`,
		entry.ID,
		entry.EventID,
		entry.Status,
		int(entry.VariationTier),
		string(entry.ResultTier),
		entry.Confidence,
		entry.PredictedWinner,
		entry.PredictedDiff,
		entry.CandidateCount,
		entry.MessageSent,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert log: %w", err)
	}
	return nil
}

func collectCandidates(rows pgx.Rows) ([]domain.Candidate, error) {
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		var varOne, varX, varTwo pgtype.Numeric
		err := rows.Scan(
			&c.EventID, &c.HomeTeam, &c.AwayTeam, &c.Competition, &c.Sport, &c.GroundType,
			&c.HomeScore, &c.AwayScore, &c.Winner, &c.PointDiff, &varOne, &varX, &varTwo,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}

		one, err := infra.NumericToScaled(varOne, 2)
		if err != nil {
			return nil, fmt.Errorf("convert var_one: %w", err)
		}
		two, err := infra.NumericToScaled(varTwo, 2)
		if err != nil {
			return nil, fmt.Errorf("convert var_two: %w", err)
		}
		c.Vector.One = domain.Variation(one)
		c.Vector.Two = domain.Variation(two)
		if varX.Valid {
			x, err := infra.NumericToScaled(varX, 2)
			if err != nil {
				return nil, fmt.Errorf("convert var_x: %w", err)
			}
			vx := domain.Variation(x)
			c.Vector.X = &vx
		}

		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

func variationToNumeric(v domain.Variation) pgtype.Numeric {
	return infra.ScaledToNumeric(int64(v), 2)
}
