package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/guard"
	"github.com/oddswatch/engine/internal/infra"
	"github.com/oddswatch/engine/internal/market"
	"github.com/oddswatch/engine/internal/matcher"
	"github.com/oddswatch/engine/internal/provider"
	"github.com/oddswatch/engine/internal/report"
	"github.com/oddswatch/engine/internal/repository"
)

// PreStartService runs the per-minute sweep over events inside the
// pre-start window. At the T-30 and T-5 checkpoints it refreshes final
// odds from upstream, re-derives the variation vector, asks the matcher
// for a verdict and delivers the rendered report.
type PreStartService struct {
	pool     *pgxpool.Pool
	api      *provider.SofaScoreClient
	notifier *provider.TelegramNotifier
	events   repository.EventRepository
	odds     repository.OddsRepository
	alerts   repository.AlertRepository
	engine   *matcher.Engine
	renderer *report.Renderer
	// corrections remembers events whose start time was just rewritten,
	// so one upstream reschedule does not trigger a correction every
	// minute for the rest of the window.
	corrections *guard.CorrectionCache
	cfg         *infra.Config
	logger      *slog.Logger
}

func NewPreStartService(
	pool *pgxpool.Pool,
	api *provider.SofaScoreClient,
	notifier *provider.TelegramNotifier,
	events repository.EventRepository,
	odds repository.OddsRepository,
	alerts repository.AlertRepository,
	cfg *infra.Config,
	logger *slog.Logger,
) *PreStartService {
	return &PreStartService{
		pool:        pool,
		api:         api,
		notifier:    notifier,
		events:      events,
		odds:        odds,
		alerts:      alerts,
		engine:      matcher.NewEngine(alerts, logger),
		renderer:    report.NewRenderer(cfg.Location()),
		corrections: guard.NewCorrectionCache(guard.CorrectionTTL),
		cfg:         cfg,
		logger:      logger,
	}
}

// Run sweeps every event starting within the pre-start window. Only
// events sitting exactly on a checkpoint minute do any work; the rest are
// skipped until the next tick brings them there.
func (s *PreStartService) Run(ctx context.Context, now time.Time) error {
	started := time.Now()

	var upcoming []domain.Event
	err := listRetry(ctx, func(dctx context.Context) error {
		var err error
		upcoming, err = s.events.ListUpcoming(dctx, s.pool, now, now.Add(s.cfg.PreStartWindow()))
		return err
	})
	if err != nil {
		return err
	}
	if len(upcoming) == 0 {
		return ctx.Err()
	}

	var checked, alerted, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WorkerPoolSize)
	for i := range upcoming {
		ev := &upcoming[i]
		g.Go(func() error {
			sent, did, err := s.sweepEvent(gctx, ev, now)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Error("pre-start sweep failed",
					"event_id", ev.ID, "participants", ev.Participants(), "error", err)
			case did:
				checked.Add(1)
				if sent {
					alerted.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := checked.Load(); n > 0 || failed.Load() > 0 {
		s.logger.Info("pre-start sweep completed",
			"window_events", len(upcoming),
			"checked", n,
			"alerted", alerted.Load(),
			"failed", failed.Load(),
			"took", time.Since(started))
	}
	return ctx.Err()
}

// sweepEvent handles one event for one tick. did reports whether the event
// sat on a checkpoint and was actually processed; sent whether a report
// went out.
func (s *PreStartService) sweepEvent(ctx context.Context, ev *domain.Event, now time.Time) (sent, did bool, err error) {
	minutes := domain.MinutesToStart(now, ev.StartTime)
	if !domain.IsCheckpointMinute(minutes) {
		return false, false, nil
	}

	if s.cfg.EnableTimestampCorrection && !s.corrections.Suppressed(ev.ID) {
		if corrected := s.correctStartTime(ctx, ev); corrected {
			// The event left this checkpoint; the sweep finds it again
			// at the right minute.
			return false, false, nil
		}
	}

	verdict, rec, err := s.checkpoint(ctx, ev, minutes, now)
	if err != nil {
		return false, true, err
	}
	if verdict == nil {
		return false, true, nil
	}
	sent = s.deliver(ctx, verdict, rec)

	dctx, cancel := dbCtx(ctx)
	defer cancel()
	if err := s.alerts.InsertLog(dctx, s.pool, domain.NewAlertLogEntry(verdict, sent)); err != nil {
		s.logger.Error("alert log write failed", "event_id", ev.ID, "error", err)
	}
	return sent, true, s.events.TouchLastChecked(dctx, s.pool, ev.ID, now)
}

// correctStartTime compares the stored kickoff against the event-detail
// endpoint and rewrites it when they diverge by more than a minute.
// Returns true when the event was rescheduled and this tick should leave
// it alone.
func (s *PreStartService) correctStartTime(ctx context.Context, ev *domain.Event) bool {
	detail, err := s.api.EventDetail(ctx, ev.ID)
	if err != nil {
		// Correction is advisory; the checkpoint still runs on the
		// stored time.
		s.logger.Warn("timestamp check failed", "event_id", ev.ID, "error", err)
		return false
	}

	drift := detail.StartTime.Sub(ev.StartTime)
	if drift < 0 {
		drift = -drift
	}
	if drift <= time.Minute {
		return false
	}

	dctx, cancel := dbCtx(ctx)
	defer cancel()
	if err := s.events.UpdateStartTime(dctx, s.pool, ev.ID, detail.StartTime); err != nil {
		s.logger.Error("start time update failed", "event_id", ev.ID, "error", err)
		return false
	}
	s.corrections.Suppress(ev.ID)
	s.logger.Info("start time corrected",
		"event_id", ev.ID,
		"participants", ev.Participants(),
		"was", ev.StartTime,
		"now", detail.StartTime,
		"drift", drift)
	return true
}

// checkpoint refreshes final odds and evaluates the event. A nil verdict
// with nil error means the event has no usable odds yet.
func (s *PreStartService) checkpoint(ctx context.Context, ev *domain.Event, minutes int, now time.Time) (*domain.Verdict, *domain.OddsRecord, error) {
	markets, err := s.api.EventOdds(ctx, ev.ID)
	if err != nil {
		return nil, nil, err
	}
	line := market.ExtractCurrent(markets, ev.Sport)

	dctx, cancel := dbCtx(ctx)
	defer cancel()

	if line == nil {
		s.logger.Debug("no final odds at checkpoint",
			"event_id", ev.ID, "minutes_to_start", minutes)
		return nil, nil, s.events.TouchLastChecked(dctx, s.pool, ev.ID, now)
	}

	if err := s.odds.UpsertFinal(dctx, s.pool, ev.ID, line, now); err != nil {
		return nil, nil, err
	}
	moment := domain.SnapshotT30
	if minutes == 5 {
		moment = domain.SnapshotT5
	}
	if err := s.odds.AppendSnapshot(dctx, s.pool, ev.ID, moment, line, now); err != nil {
		return nil, nil, err
	}

	rec, err := s.odds.FindByEvent(dctx, s.pool, ev.ID)
	if err != nil {
		return nil, nil, err
	}
	vec, ok := rec.Vector()
	if !ok {
		// Final is in but the opening never was, so no variation exists
		// to match on.
		s.logger.Debug("variation vector incomplete",
			"event_id", ev.ID, "minutes_to_start", minutes)
		return nil, nil, s.events.TouchLastChecked(dctx, s.pool, ev.ID, now)
	}

	verdict, err := s.engine.Evaluate(ctx, s.pool, ev, vec, now)
	if err != nil {
		return nil, nil, err
	}
	return verdict, rec, nil
}

// deliver renders the verdict and pushes each chunk to Telegram. Delivery
// failures degrade to logs; the verdict is still recorded.
func (s *PreStartService) deliver(ctx context.Context, v *domain.Verdict, rec *domain.OddsRecord) bool {
	messages := s.renderer.Render(v, rec)
	if len(messages) == 0 {
		return false
	}
	if !s.notifier.Enabled() {
		s.logger.Info("notifications disabled, report not sent",
			"event_id", v.Event.ID, "status", v.Status)
		return false
	}

	for _, msg := range messages {
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Error("telegram delivery failed", "event_id", v.Event.ID, "error", err)
			return false
		}
	}
	return true
}

// EvaluateUpcoming re-runs the matcher over every event in the pre-start
// window using stored odds only: no upstream fetches, no messages, no
// alert log rows. It backs the alerts subcommand.
func (s *PreStartService) EvaluateUpcoming(ctx context.Context, now time.Time) ([]*domain.Verdict, error) {
	var upcoming []domain.Event
	err := listRetry(ctx, func(dctx context.Context) error {
		var err error
		upcoming, err = s.events.ListUpcoming(dctx, s.pool, now, now.Add(s.cfg.PreStartWindow()))
		return err
	})
	if err != nil {
		return nil, err
	}

	verdicts := make([]*domain.Verdict, 0, len(upcoming))
	for i := range upcoming {
		ev := &upcoming[i]

		dctx, cancel := dbCtx(ctx)
		rec, err := s.odds.FindByEvent(dctx, s.pool, ev.ID)
		cancel()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		vec, ok := rec.Vector()
		if !ok {
			continue
		}

		v, err := s.engine.Evaluate(ctx, s.pool, ev, vec, now)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}
