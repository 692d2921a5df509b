//go:build integration

package testutil

import (
	"context"
	"testing"
	"time"
)

// AssertEventStatus checks the lifecycle status stored for an event.
func AssertEventStatus(t *testing.T, env *TestEnv, eventID int64, expected string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var status string
	err := env.Pool.QueryRow(ctx,
		"SELECT status FROM events WHERE id = $1", eventID).Scan(&status)
	if err != nil {
		t.Fatalf("AssertEventStatus: query: %v", err)
	}
	if status != expected {
		t.Errorf("status: expected %q, got %q", expected, status)
	}
}

// AssertViewStale checks the alert view staleness flag.
func AssertViewStale(t *testing.T, env *TestEnv, expected bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var stale bool
	err := env.Pool.QueryRow(ctx, "SELECT stale FROM alert_view_state").Scan(&stale)
	if err != nil {
		t.Fatalf("AssertViewStale: query: %v", err)
	}
	if stale != expected {
		t.Errorf("stale: expected %v, got %v", expected, stale)
	}
}

// CountSnapshots returns the number of odds snapshots for an event.
func CountSnapshots(t *testing.T, env *TestEnv, eventID int64) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM odds_snapshots WHERE event_id = $1", eventID).Scan(&count)
	if err != nil {
		t.Fatalf("CountSnapshots: %v", err)
	}
	return count
}

// CountViewRows returns the number of rows in mv_alert_events.
func CountViewRows(t *testing.T, env *TestEnv) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM mv_alert_events").Scan(&count)
	if err != nil {
		t.Fatalf("CountViewRows: %v", err)
	}
	return count
}

// CountAlertLogs returns the number of alerts_log rows for an event.
func CountAlertLogs(t *testing.T, env *TestEnv, eventID int64) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM alerts_log WHERE event_id = $1", eventID).Scan(&count)
	if err != nil {
		t.Fatalf("CountAlertLogs: %v", err)
	}
	return count
}
