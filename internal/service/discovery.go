// Package service implements the scheduled jobs: catalog discovery,
// pre-start sweeps, result collection and the odds backfill. Each job is
// one tick-shaped method; per-event failures are logged and skipped so a
// single bad event never aborts a tick.
package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/market"
	"github.com/oddswatch/engine/internal/provider"
	"github.com/oddswatch/engine/internal/repository"
)

// sqlTimeout bounds each group of database statements a job issues.
// Upstream calls carry their own timeout and retry budget.
const sqlTimeout = 10 * time.Second

func dbCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, sqlTimeout)
}

// listRetry runs the query that opens a tick, rerunning it once when the
// driver reports a connection-level failure that never reached the server.
// A second failure aborts the tick.
func listRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	dctx, cancel := dbCtx(ctx)
	err := fn(dctx)
	cancel()
	if err == nil || !pgconn.SafeToRetry(err) || ctx.Err() != nil {
		return err
	}
	dctx, cancel = dbCtx(ctx)
	defer cancel()
	return fn(dctx)
}

// DiscoveryService ingests the dropping-odds catalog: it upserts every
// listed event and captures opening odds for the ones the catalog priced.
type DiscoveryService struct {
	pool    *pgxpool.Pool
	api     *provider.SofaScoreClient
	events  repository.EventRepository
	odds    repository.OddsRepository
	logger  *slog.Logger
	workers int
}

// NewDiscoveryService creates a discovery job.
func NewDiscoveryService(pool *pgxpool.Pool, api *provider.SofaScoreClient, events repository.EventRepository, odds repository.OddsRepository, workers int, logger *slog.Logger) *DiscoveryService {
	return &DiscoveryService{pool: pool, api: api, events: events, odds: odds, workers: workers, logger: logger}
}

// Run performs one discovery pass over the catalog.
func (s *DiscoveryService) Run(ctx context.Context) error {
	started := time.Now()
	discovered, err := s.api.DroppingOdds(ctx)
	if err != nil {
		return err
	}
	if len(discovered) == 0 {
		s.logger.Warn("discovery catalog empty")
		return nil
	}
	s.logger.Info("discovery catalog fetched", "events", len(discovered))

	var captured, noOdds, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range discovered {
		de := &discovered[i]
		g.Go(func() error {
			ok, err := s.ingest(gctx, de)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Error("discovery ingest failed",
					"event_id", de.Event.ID, "participants", de.Event.Participants(), "error", err)
			case ok:
				captured.Add(1)
			default:
				noOdds.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("discovery completed",
		"openings_captured", captured.Load(),
		"no_odds", noOdds.Load(),
		"failed", failed.Load(),
		"took", time.Since(started))
	return ctx.Err()
}

// ingest stores one catalog entry: the event row always, the opening triple
// when the dropping-odds document yields one. ok reports whether an opening
// was captured.
func (s *DiscoveryService) ingest(ctx context.Context, de *provider.DiscoveredEvent) (bool, error) {
	dctx, cancel := dbCtx(ctx)
	defer cancel()

	if err := s.events.Upsert(dctx, s.pool, &de.Event); err != nil {
		return false, err
	}
	if de.Market == nil {
		s.logger.Debug("catalog entry without odds", "event_id", de.Event.ID)
		return false, nil
	}

	line := market.ExtractOpening([]market.Market{*de.Market}, de.Event.Sport)
	if line == nil {
		s.logger.Warn("no opening line in catalog market",
			"event_id", de.Event.ID, "sport", de.Event.Sport)
		return false, nil
	}

	now := time.Now().UTC()
	if err := s.odds.UpsertOpening(dctx, s.pool, de.Event.ID, line, now); err != nil {
		return false, err
	}
	if err := s.odds.AppendSnapshot(dctx, s.pool, de.Event.ID, domain.SnapshotOpen, line, now); err != nil {
		return false, err
	}
	return true, nil
}
