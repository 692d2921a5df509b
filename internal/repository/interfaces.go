package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oddswatch/engine/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// EventRepository provides access to events.
type EventRepository interface {
	// Upsert inserts a discovered event or refreshes its mutable fields.
	// Sport and start time are never changed by re-discovery; kickoff moves
	// only through UpdateStartTime.
	Upsert(ctx context.Context, db DBTX, e *domain.Event) error

	// FindByID returns an event by upstream id, nil when unknown.
	FindByID(ctx context.Context, db DBTX, id int64) (*domain.Event, error)

	// ListUpcoming returns scheduled events with kickoff in (from, until],
	// ordered by start time.
	ListUpcoming(ctx context.Context, db DBTX, from, until time.Time) ([]domain.Event, error)

	// ListMissingResults returns scheduled events that started in
	// [since, until), have no result row, and whose per-sport cutoff has
	// elapsed at asOf.
	ListMissingResults(ctx context.Context, db DBTX, since, until, asOf time.Time) ([]domain.Event, error)

	// ListRecent returns the newest events by start time for CLI listings.
	ListRecent(ctx context.Context, db DBTX, limit int) ([]domain.Event, error)

	// ListFinishedMissingOdds returns finished events whose odds row still
	// lacks a complete variation vector, oldest kickoff first. limit <= 0
	// means no bound.
	ListFinishedMissingOdds(ctx context.Context, db DBTX, limit int) ([]domain.Event, error)

	// UpdateStartTime moves kickoff after a timestamp correction.
	UpdateStartTime(ctx context.Context, db DBTX, id int64, start time.Time) error

	// UpdateStatus transitions the lifecycle status.
	UpdateStatus(ctx context.Context, db DBTX, id int64, status domain.EventStatus) error

	// TouchLastChecked stamps the last sweep that examined the event.
	TouchLastChecked(ctx context.Context, db DBTX, id int64, at time.Time) error

	// SetGroundType records the playing surface once the detail endpoint
	// reveals it.
	SetGroundType(ctx context.Context, db DBTX, id int64, ground string) error

	// CountByStatus returns row counts per lifecycle status.
	CountByStatus(ctx context.Context, db DBTX) (map[domain.EventStatus]int64, error)
}

// OddsRepository provides access to event_odds and odds_snapshots.
type OddsRepository interface {
	// FindByEvent returns the odds row for an event, nil when absent.
	FindByEvent(ctx context.Context, db DBTX, eventID int64) (*domain.OddsRecord, error)

	// UpsertOpening writes the opening triple captured at discovery. An
	// existing opening is overwritten only by a non-null incoming value,
	// and the first capture timestamp is kept.
	UpsertOpening(ctx context.Context, db DBTX, eventID int64, line *domain.OddsLine, at time.Time) error

	// UpsertFinal writes the checkpoint triple. Finals always move.
	UpsertFinal(ctx context.Context, db DBTX, eventID int64, line *domain.OddsLine, at time.Time) error

	// AppendSnapshot records one capture in the append-only history.
	AppendSnapshot(ctx context.Context, db DBTX, eventID int64, moment domain.SnapshotMoment, line *domain.OddsLine, at time.Time) error

	// CountWithVariations returns how many odds rows carry a full
	// variation vector.
	CountWithVariations(ctx context.Context, db DBTX) (int64, error)
}

// ResultRepository provides access to results.
type ResultRepository interface {
	// Insert writes the result unless one exists. The first write wins;
	// ok is false when a row was already present.
	Insert(ctx context.Context, db DBTX, res *domain.Result) (bool, error)

	// FindByEvent returns the result for an event, nil when absent.
	FindByEvent(ctx context.Context, db DBTX, eventID int64) (*domain.Result, error)

	// Count returns the number of collected results.
	Count(ctx context.Context, db DBTX) (int64, error)
}

// AlertRepository provides the matcher's candidate lookups over
// mv_alert_events plus the alerts log.
type AlertRepository interface {
	// ExactCandidates returns history rows whose variation vector equals
	// ref component-wise at two decimals, within the same sport (and
	// ground class when given). The current event is excluded. Market
	// shape must match: a two-way ref only matches rows without a ΔX.
	ExactCandidates(ctx context.Context, db DBTX, ref domain.VariationVector, sport string, ground *string, selfID int64) ([]domain.Candidate, error)

	// SimilarCandidates returns history rows of the same market shape with
	// every component within the tier-2 tolerance of ref, excluding the
	// current event and any ids already matched exactly.
	SimilarCandidates(ctx context.Context, db DBTX, ref domain.VariationVector, sport string, ground *string, selfID int64, excludeIDs []int64) ([]domain.Candidate, error)

	// IsViewStale reports whether mv_alert_events lags the base tables.
	IsViewStale(ctx context.Context, db DBTX) (bool, error)

	// RefreshView rebuilds mv_alert_events and clears the staleness flag.
	RefreshView(ctx context.Context, db DBTX) error

	// InsertLog records one verdict evaluation.
	InsertLog(ctx context.Context, db DBTX, entry *domain.AlertLogEntry) error
}
