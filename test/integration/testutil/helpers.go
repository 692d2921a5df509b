//go:build integration

package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oddswatch/engine/internal/domain"
)

// Event ids come from the upstream feed, not a sequence; hand them out
// from a counter so seeds never collide within a run.
var nextEventID atomic.Int64

func init() { nextEventID.Store(700000) }

// SeedEvent inserts a scheduled event and returns its id.
func (env *TestEnv) SeedEvent(sport string, start time.Time) int64 {
	return env.SeedEventWithStatus(sport, start, "scheduled")
}

// SeedEventWithStatus inserts an event in the given lifecycle status.
func (env *TestEnv) SeedEventWithStatus(sport string, start time.Time, status string) int64 {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := nextEventID.Add(1)
	_, err := env.Pool.Exec(ctx, `
		INSERT INTO events (id, sport, competition, home_team, away_team, start_time_utc, status)
		VALUES ($1, $2, 'Test League', $3, $4, $5, $6)`,
		id, sport, fmt.Sprintf("Home %d", id), fmt.Sprintf("Away %d", id), start, status)
	if err != nil {
		env.t.Fatalf("SeedEvent: insert event: %v", err)
	}
	return id
}

// HistorySpec describes one finished event seeded into the candidate pool:
// the lifecycle row, an odds row landing on the given variations, and a
// result.
type HistorySpec struct {
	Sport     string
	Ground    *string
	VarOne    domain.Variation
	VarX      *domain.Variation // nil for two-way markets
	VarTwo    domain.Variation
	HomeScore int
	AwayScore int
	Winner    domain.WinnerSide
}

// SeedHistory inserts a finished event with openings at 2.000 and finals
// placed so the generated columns land exactly on the requested variations.
// The caller still refreshes mv_alert_events before querying candidates.
func (env *TestEnv) SeedHistory(spec HistorySpec) int64 {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := env.SeedEventWithStatus(spec.Sport, time.Now().UTC().Add(-48*time.Hour), "finished")

	if spec.Ground != nil {
		_, err := env.Pool.Exec(ctx,
			`UPDATE events SET ground_type = $1 WHERE id = $2`, *spec.Ground, id)
		if err != nil {
			env.t.Fatalf("SeedHistory: set ground type: %v", err)
		}
	}

	open := "2.000"
	oneFinal := finalQuote(spec.VarOne)
	twoFinal := finalQuote(spec.VarTwo)
	var xOpen, xFinal *string
	if spec.VarX != nil {
		f := finalQuote(*spec.VarX)
		xOpen, xFinal = &open, &f
	}

	_, err := env.Pool.Exec(ctx, `
		INSERT INTO event_odds (event_id, one_open, x_open, two_open, one_final, x_final, two_final,
			open_captured_at, final_captured_at, last_sync_at)
		VALUES ($1, $2, $3, $2, $4, $5, $6, now(), now(), now())`,
		id, open, xOpen, oneFinal, xFinal, twoFinal)
	if err != nil {
		env.t.Fatalf("SeedHistory: insert odds: %v", err)
	}

	_, err = env.Pool.Exec(ctx, `
		INSERT INTO results (event_id, home_score, away_score, winner, collected_at)
		VALUES ($1, $2, $3, $4, now())`,
		id, spec.HomeScore, spec.AwayScore, string(spec.Winner))
	if err != nil {
		env.t.Fatalf("SeedHistory: insert result: %v", err)
	}

	return id
}

// finalQuote renders the closing price that moves a 2.000 opening by
// exactly v hundredths.
func finalQuote(v domain.Variation) string {
	return domain.Quote(2000 + int64(v)*10).String()
}
