package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/provider"
	"github.com/oddswatch/engine/internal/repository"
)

// sweepOutcome classifies what happened to one event during a result
// sweep.
type sweepOutcome int

const (
	outcomeCollected sweepOutcome = iota
	outcomeCancelled
	outcomeSkipped
)

// ResultService collects final scorelines for events whose per-sport
// cutoff has passed. Result rows are immutable; a second collection of
// the same event is a no-op.
type ResultService struct {
	pool    *pgxpool.Pool
	api     *provider.SofaScoreClient
	events  repository.EventRepository
	results repository.ResultRepository
	logger  *slog.Logger
	workers int
}

func NewResultService(
	pool *pgxpool.Pool,
	api *provider.SofaScoreClient,
	events repository.EventRepository,
	results repository.ResultRepository,
	workers int,
	logger *slog.Logger,
) *ResultService {
	return &ResultService{
		pool:    pool,
		api:     api,
		events:  events,
		results: results,
		logger:  logger,
		workers: workers,
	}
}

// SweepDaily covers the previous 24 hours. The scheduler runs it once a
// night, after the last late finishers crossed their cutoff.
func (s *ResultService) SweepDaily(ctx context.Context, now time.Time) error {
	return s.Sweep(ctx, now.Add(-24*time.Hour), now, now)
}

// SweepAll walks the entire backlog of resultless events. Meant for
// operator use after downtime, not for the schedule.
func (s *ResultService) SweepAll(ctx context.Context, now time.Time) error {
	return s.Sweep(ctx, time.Time{}, now, now)
}

// Sweep collects results for events that started inside [since, until)
// and still have none. asOf anchors the per-sport cutoff, so a sweep
// never asks upstream about an event that may still be playing.
func (s *ResultService) Sweep(ctx context.Context, since, until, asOf time.Time) error {
	started := time.Now()

	var pending []domain.Event
	err := listRetry(ctx, func(dctx context.Context) error {
		var err error
		pending, err = s.events.ListMissingResults(dctx, s.pool, since, until, asOf)
		return err
	})
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		s.logger.Debug("no events awaiting results")
		return ctx.Err()
	}

	var collected, cancelled, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range pending {
		ev := &pending[i]
		g.Go(func() error {
			out, err := s.collectOne(gctx, ev)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Error("result collection failed",
					"event_id", ev.ID, "participants", ev.Participants(), "error", err)
			case out == outcomeCollected:
				collected.Add(1)
			case out == outcomeCancelled:
				cancelled.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("result sweep completed",
		"pending", len(pending),
		"collected", collected.Load(),
		"cancelled", cancelled.Load(),
		"skipped", skipped.Load(),
		"failed", failed.Load(),
		"took", time.Since(started))
	return ctx.Err()
}

func (s *ResultService) collectOne(ctx context.Context, ev *domain.Event) (sweepOutcome, error) {
	detail, err := s.api.EventDetail(ctx, ev.ID)
	if err != nil {
		return outcomeSkipped, err
	}

	dctx, cancel := dbCtx(ctx)
	defer cancel()

	if domain.IsCancelledStatus(detail.StatusCode) {
		s.logger.Debug("event cancelled upstream",
			"event_id", ev.ID, "status_code", detail.StatusCode)
		return outcomeCancelled, s.events.UpdateStatus(dctx, s.pool, ev.ID, domain.EventCancelled)
	}
	if !domain.IsTerminalStatus(detail.StatusCode) {
		s.logger.Debug("event not finished yet",
			"event_id", ev.ID, "status_code", detail.StatusCode, "status_type", detail.StatusType)
		return outcomeSkipped, nil
	}
	if detail.HomeScore == nil || detail.AwayScore == nil {
		s.logger.Warn("terminal event without scores",
			"event_id", ev.ID, "participants", ev.Participants(), "status_code", detail.StatusCode)
		return outcomeSkipped, nil
	}

	winner, ok := domain.WinnerFromCode(detail.WinnerCode)
	if !ok {
		winner = domain.WinnerFromScores(*detail.HomeScore, *detail.AwayScore)
	}
	if winner == domain.WinnerDraw && !domain.HasDraw(ev.Sport) {
		// Two-way sports decide ties in overtime; equal totals here mean
		// the feed is serving partial data.
		s.logger.Warn("draw reported for two-way sport",
			"event_id", ev.ID, "sport", ev.Sport,
			"home_score", *detail.HomeScore, "away_score", *detail.AwayScore)
		return outcomeSkipped, nil
	}

	res := &domain.Result{
		EventID:     ev.ID,
		HomeScore:   *detail.HomeScore,
		AwayScore:   *detail.AwayScore,
		Winner:      winner,
		CollectedAt: time.Now().UTC(),
	}
	inserted, err := s.results.Insert(dctx, s.pool, res)
	if err != nil {
		return outcomeSkipped, err
	}
	if !inserted {
		s.logger.Debug("result already recorded", "event_id", ev.ID)
	}
	if err := s.events.UpdateStatus(dctx, s.pool, ev.ID, domain.EventFinished); err != nil {
		return outcomeSkipped, err
	}

	// Racket events discovered without a venue pick one up here, widening
	// future ground-filtered searches.
	if domain.IsRacket(ev.Sport) && ev.GroundType == nil && detail.GroundType != nil {
		if err := s.events.SetGroundType(dctx, s.pool, ev.ID, *detail.GroundType); err != nil {
			s.logger.Error("ground type backfill failed", "event_id", ev.ID, "error", err)
		}
	}

	s.logger.Info("result collected",
		"event_id", ev.ID,
		"participants", ev.Participants(),
		"home_score", *detail.HomeScore,
		"away_score", *detail.AwayScore,
		"winner", winner)
	return outcomeCollected, nil
}
