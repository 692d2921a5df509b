package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/infra"
	"github.com/oddswatch/engine/internal/provider"
	"github.com/oddswatch/engine/internal/repository"
	"github.com/oddswatch/engine/internal/scheduler"
	"github.com/oddswatch/engine/internal/service"
)

const usageText = `usage: oddswatch <command> [flags]

commands:
  start           run the scheduler until interrupted
  discovery       one catalog discovery pass
  pre-start       one pre-start sweep
  midnight        the nightly result sweep, run once now
  results         collect results for the past day
  results-all     collect results for the whole backlog
  final-odds-all  backfill odds for finished events missing variations
  alerts          evaluate the window and log verdicts without sending
  refresh-alerts  rebuild the candidate view
  status          store counts and next job runs
  events          recent events with their odds (--limit N)`

func main() {
	// .env is a developer convenience; deployments set the environment
	// directly.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "oddswatch:", err)
		os.Exit(domain.ExitConfig)
	}
	logger, err := infra.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "oddswatch:", err)
		os.Exit(domain.ExitConfig)
	}
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usageText)
		os.Exit(domain.ExitConfig)
	}
	cmd, args := os.Args[1], os.Args[2:]

	if err := run(cfg, logger, cmd, args); err != nil {
		logger.Error("oddswatch failed", "command", cmd, "error", err)
		os.Exit(domain.ExitCode(err))
	}
}

func run(cfg *infra.Config, logger *slog.Logger, cmd string, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return domain.ErrConfig("invalid configuration", err)
	}

	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return domain.ErrDatabase("apply migrations", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return domain.ErrDatabase("connect postgres", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	// Repositories
	events := repository.NewEventRepository()
	odds := repository.NewOddsRepository()
	results := repository.NewResultRepository()
	alerts := repository.NewAlertRepository()

	// Upstream client and notifier
	api, err := provider.NewSofaScoreClient(cfg, logger)
	if err != nil {
		return err
	}
	notifier, err := provider.NewTelegramNotifier(cfg, logger)
	if err != nil {
		return err
	}

	// Services
	discoverySvc := service.NewDiscoveryService(pool, api, events, odds, cfg.WorkerPoolSize, logger)
	preStartSvc := service.NewPreStartService(pool, api, notifier, events, odds, alerts, cfg, logger)
	resultSvc := service.NewResultService(pool, api, events, results, cfg.WorkerPoolSize, logger)
	backfillSvc := service.NewBackfillService(pool, api, events, odds, cfg.WorkerPoolSize, logger)

	now := time.Now().UTC()

	switch cmd {
	case "start":
		sched := scheduler.New(cfg,
			func(ctx context.Context, _ time.Time) error { return discoverySvc.Run(ctx) },
			func(ctx context.Context, tick time.Time) error { return preStartSvc.Run(ctx, tick.UTC()) },
			func(ctx context.Context, tick time.Time) error { return resultSvc.SweepDaily(ctx, tick.UTC()) },
			logger)
		return sched.Run(ctx)

	case "discovery":
		return discoverySvc.Run(ctx)

	case "pre-start":
		return preStartSvc.Run(ctx, now)

	case "midnight", "results":
		return resultSvc.SweepDaily(ctx, now)

	case "results-all":
		return resultSvc.SweepAll(ctx, now)

	case "final-odds-all":
		return backfillSvc.Run(ctx, 0)

	case "alerts":
		return dryRunAlerts(ctx, preStartSvc, logger, now)

	case "refresh-alerts":
		started := time.Now()
		if err := alerts.RefreshView(ctx, pool); err != nil {
			return err
		}
		logger.Info("candidate view refreshed", "took", time.Since(started))
		return nil

	case "status":
		return showStatus(ctx, pool, cfg, events, odds, results, now)

	case "events":
		fs := flag.NewFlagSet("events", flag.ContinueOnError)
		limit := fs.Int("limit", 10, "number of events to show")
		if err := fs.Parse(args); err != nil {
			return domain.ErrConfig("parse events flags", err)
		}
		return showEvents(ctx, pool, events, odds, *limit)

	default:
		fmt.Fprintln(os.Stderr, usageText)
		return domain.ErrConfig(fmt.Sprintf("unknown command %q", cmd), nil)
	}
}

// dryRunAlerts evaluates the pre-start window from stored odds only and
// logs each verdict instead of delivering it.
func dryRunAlerts(ctx context.Context, svc *service.PreStartService, logger *slog.Logger, now time.Time) error {
	verdicts, err := svc.EvaluateUpcoming(ctx, now)
	if err != nil {
		return err
	}
	if len(verdicts) == 0 {
		logger.Info("no evaluable events in the window")
		return nil
	}
	for _, v := range verdicts {
		attrs := []any{
			"event_id", v.Event.ID,
			"participants", v.Event.Participants(),
			"status", v.Status,
			"variations", v.Vector.String(),
			"candidates", len(v.Candidates),
		}
		if v.Prediction != nil {
			attrs = append(attrs,
				"tier", v.ResultTier,
				"confidence", v.Confidence,
				"winner", v.Prediction.Winner,
				"point_diff", v.Prediction.PointDiff)
		}
		logger.Info("verdict", attrs...)
	}
	return nil
}

// showStatus prints store counts and the next boundary of every job.
func showStatus(ctx context.Context, pool *pgxpool.Pool, cfg *infra.Config,
	events repository.EventRepository, odds repository.OddsRepository,
	results repository.ResultRepository, now time.Time) error {

	dbState := "connected"
	if err := infra.HealthCheck(ctx, pool); err != nil {
		dbState = "unreachable: " + err.Error()
	}

	byStatus, err := events.CountByStatus(ctx, pool)
	if err != nil {
		return err
	}
	withVars, err := odds.CountWithVariations(ctx, pool)
	if err != nil {
		return err
	}
	resultCount, err := results.Count(ctx, pool)
	if err != nil {
		return err
	}

	var total int64
	for _, n := range byStatus {
		total += n
	}

	fmt.Println("oddswatch status")
	fmt.Printf("  database:          %s\n", dbState)
	fmt.Printf("  events:            %d (scheduled %d, finished %d, cancelled %d)\n",
		total, byStatus[domain.EventScheduled], byStatus[domain.EventFinished], byStatus[domain.EventCancelled])
	fmt.Printf("  variation vectors: %d\n", withVars)
	fmt.Printf("  results:           %d\n", resultCount)
	fmt.Println("  next runs:")
	next := scheduler.NextRuns(cfg, now)
	for _, job := range []string{scheduler.JobDiscovery, scheduler.JobPreStart, scheduler.JobMidnight} {
		fmt.Printf("    %-16s %s\n", job, next[job].In(cfg.Location()).Format("2006-01-02 15:04 MST"))
	}
	return nil
}

// showEvents prints the most recent events with both ends of their line.
func showEvents(ctx context.Context, pool *pgxpool.Pool,
	events repository.EventRepository, odds repository.OddsRepository, limit int) error {

	recent, err := events.ListRecent(ctx, pool, limit)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		fmt.Println("no events recorded")
		return nil
	}
	for i := range recent {
		ev := &recent[i]
		fmt.Printf("%d  %s  [%s] %s\n", ev.ID, ev.Participants(), ev.Sport, ev.Competition)
		fmt.Printf("    starts %s  status %s\n", ev.StartTime.Format(time.RFC3339), ev.Status)

		rec, err := odds.FindByEvent(ctx, pool, ev.ID)
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Println("    no odds captured")
			continue
		}
		fmt.Printf("    open   %s\n", tripleLine(rec.OneOpen, rec.XOpen, rec.TwoOpen))
		fmt.Printf("    final  %s\n", tripleLine(rec.OneFinal, rec.XFinal, rec.TwoFinal))
	}
	return nil
}

// tripleLine renders "1=1.615  X=3.400  2=2.350", dropping absent columns.
func tripleLine(one, x, two *domain.Quote) string {
	parts := make([]string, 0, 3)
	if one != nil {
		parts = append(parts, "1="+one.String())
	}
	if x != nil {
		parts = append(parts, "X="+x.String())
	}
	if two != nil {
		parts = append(parts, "2="+two.String())
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "  ")
}
