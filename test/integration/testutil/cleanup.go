//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates all tables in dependency-safe order and empties the
// candidate view so every test starts from a blank history.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"alerts_log",
		"odds_snapshots",
		"results",
		"event_odds",
		"events",
	}

	for _, table := range tables {
		_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE")
	}

	// The materialized view does not follow its base tables; rebuild it
	// empty and restore the freshly-migrated staleness state.
	_, _ = env.Pool.Exec(ctx, "REFRESH MATERIALIZED VIEW mv_alert_events")
	_, _ = env.Pool.Exec(ctx, "UPDATE alert_view_state SET stale = true, refreshed_at = NULL")
}
