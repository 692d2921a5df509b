package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/market"
	"github.com/oddswatch/engine/internal/provider"
	"github.com/oddswatch/engine/internal/repository"
)

// BackfillService repairs odds rows for finished events that never
// completed their variation vector: missed checkpoints, catalog entries
// discovered without odds. Every repaired row is another searchable
// precedent.
type BackfillService struct {
	pool    *pgxpool.Pool
	api     *provider.SofaScoreClient
	events  repository.EventRepository
	odds    repository.OddsRepository
	logger  *slog.Logger
	workers int
}

func NewBackfillService(
	pool *pgxpool.Pool,
	api *provider.SofaScoreClient,
	events repository.EventRepository,
	odds repository.OddsRepository,
	workers int,
	logger *slog.Logger,
) *BackfillService {
	return &BackfillService{
		pool:    pool,
		api:     api,
		events:  events,
		odds:    odds,
		logger:  logger,
		workers: workers,
	}
}

// Run refetches odds for up to limit finished events whose variation
// columns are still incomplete, oldest first. limit <= 0 walks the whole
// backlog.
func (s *BackfillService) Run(ctx context.Context, limit int) error {
	started := time.Now()

	var stale []domain.Event
	err := listRetry(ctx, func(dctx context.Context) error {
		var err error
		stale, err = s.events.ListFinishedMissingOdds(dctx, s.pool, limit)
		return err
	})
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		s.logger.Info("no finished events missing odds")
		return ctx.Err()
	}

	var repaired, empty, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range stale {
		ev := &stale[i]
		g.Go(func() error {
			ok, err := s.backfillOne(gctx, ev)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Error("odds backfill failed",
					"event_id", ev.ID, "participants", ev.Participants(), "error", err)
			case ok:
				repaired.Add(1)
			default:
				empty.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("odds backfill completed",
		"candidates", len(stale),
		"repaired", repaired.Load(),
		"no_odds", empty.Load(),
		"failed", failed.Load(),
		"took", time.Since(started))
	return ctx.Err()
}

// backfillOne pulls whatever the odds endpoint still serves for a
// finished event and stores both ends of the line. ok reports whether
// anything was written.
func (s *BackfillService) backfillOne(ctx context.Context, ev *domain.Event) (bool, error) {
	markets, err := s.api.EventOdds(ctx, ev.ID)
	if err != nil {
		return false, err
	}
	opening := market.ExtractOpening(markets, ev.Sport)
	current := market.ExtractCurrent(markets, ev.Sport)
	if opening == nil && current == nil {
		s.logger.Debug("no odds served for finished event", "event_id", ev.ID)
		return false, nil
	}

	now := time.Now().UTC()
	dctx, cancel := dbCtx(ctx)
	defer cancel()

	if opening != nil {
		if err := s.odds.UpsertOpening(dctx, s.pool, ev.ID, opening, now); err != nil {
			return false, err
		}
	}
	if current != nil {
		if err := s.odds.UpsertFinal(dctx, s.pool, ev.ID, current, now); err != nil {
			return false, err
		}
		if err := s.odds.AppendSnapshot(dctx, s.pool, ev.ID, domain.SnapshotBackfill, current, now); err != nil {
			return false, err
		}
	}
	return true, nil
}
