// Package matcher searches historical odds movements for events whose
// variation vector repeats the current one, and turns unanimous outcomes
// among those precedents into a prediction.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/repository"
)

// Engine runs the two-tier candidate search and the unanimity rules.
type Engine struct {
	alerts repository.AlertRepository
	logger *slog.Logger
}

// NewEngine creates a matcher engine over the given candidate source.
func NewEngine(alerts repository.AlertRepository, logger *slog.Logger) *Engine {
	return &Engine{alerts: alerts, logger: logger}
}

// Evaluate searches finished events of the same sport for variation vectors
// matching vec, exact first (tier 1) and within tolerance second (tier 2),
// and derives a verdict from the strongest outcome rule that holds across
// every symmetric candidate of the selected tier.
//
// Tier 1 candidates, when any exist, decide the verdict alone; tier 2 rows
// are still fetched and reported for context. The current event is never
// its own candidate.
func (e *Engine) Evaluate(ctx context.Context, db repository.DBTX, event *domain.Event, vec domain.VariationVector, now time.Time) (*domain.Verdict, error) {
	if err := e.ensureFresh(ctx, db); err != nil {
		return nil, err
	}

	ground := groundFilter(event)

	exact, err := e.alerts.ExactCandidates(ctx, db, vec, event.Sport, ground, event.ID)
	if err != nil {
		return nil, fmt.Errorf("exact candidates for event %d: %w", event.ID, err)
	}

	exclude := make([]int64, 0, len(exact))
	for i := range exact {
		exclude = append(exclude, exact[i].EventID)
	}

	similar, err := e.alerts.SimilarCandidates(ctx, db, vec, event.Sport, ground, event.ID, exclude)
	if err != nil {
		return nil, fmt.Errorf("similar candidates for event %d: %w", event.ID, err)
	}

	verdict := &domain.Verdict{
		Event:       event,
		Vector:      vec,
		EvaluatedAt: now,
	}

	for i := range exact {
		c := &exact[i]
		c.Tier = domain.TierExact
		c.Diff = vec.Diff(c.Vector)
		c.Symmetric = true // componentwise equality implies sign agreement
	}
	for i := range similar {
		c := &similar[i]
		c.Tier = domain.TierSimilar
		c.Diff = vec.Diff(c.Vector)
		c.Symmetric = vec.SameSigns(c.Vector)
	}
	verdict.Candidates = append(append(verdict.Candidates, exact...), similar...)

	if len(verdict.Candidates) == 0 {
		verdict.Status = domain.VerdictNoCandidates
		e.logger.Debug("no candidates",
			"event_id", event.ID, "sport", event.Sport, "vector", vec.String())
		return verdict, nil
	}

	if len(exact) > 0 {
		verdict.VariationTier = domain.TierExact
	} else {
		verdict.VariationTier = domain.TierSimilar
	}

	tier, pred, ok := unanimity(verdict.SymmetricCandidates())
	if !ok {
		verdict.Status = domain.VerdictNoMatch
		e.logger.Info("candidates found but no unanimous outcome",
			"event_id", event.ID,
			"tier1", len(exact),
			"tier2", len(similar),
			"vector", vec.String())
		return verdict, nil
	}

	verdict.Status = domain.VerdictSuccess
	verdict.ResultTier = tier
	verdict.Confidence = tier.Confidence()
	verdict.Prediction = pred
	e.logger.Info("prediction",
		"event_id", event.ID,
		"participants", event.Participants(),
		"variation_tier", int(verdict.VariationTier),
		"result_tier", string(tier),
		"confidence", verdict.Confidence,
		"winner", string(pred.Winner),
		"point_diff", pred.PointDiff)
	return verdict, nil
}

// ensureFresh rebuilds the candidate view before the first search after new
// results landed. Refreshing lazily here, instead of after every result
// write, batches a whole sweep's inserts into one rebuild.
func (e *Engine) ensureFresh(ctx context.Context, db repository.DBTX) error {
	stale, err := e.alerts.IsViewStale(ctx, db)
	if err != nil {
		return fmt.Errorf("check candidate view: %w", err)
	}
	if !stale {
		return nil
	}
	started := time.Now()
	if err := e.alerts.RefreshView(ctx, db); err != nil {
		return fmt.Errorf("refresh candidate view: %w", err)
	}
	e.logger.Info("candidate view refreshed", "took", time.Since(started))
	return nil
}

// groundFilter returns the surface to restrict candidates to. Only racket
// sports key results to the surface, and only when the current event's own
// surface is known.
func groundFilter(event *domain.Event) *string {
	if domain.IsRacket(event.Sport) && event.GroundType != nil {
		return event.GroundType
	}
	return nil
}

// unanimity applies the outcome rules to the symmetric candidates of the
// selected tier, strongest first. A rule holds only when every candidate
// in the pool satisfies it; one dissenter voids the rule. ok is false when
// the pool is empty or no rule holds.
func unanimity(pool []domain.Candidate) (domain.ResultTier, *domain.Prediction, bool) {
	if len(pool) == 0 {
		return "", nil, false
	}

	first := pool[0]

	// Tier A: the identical final scoreline every time.
	if all(pool, func(c domain.Candidate) bool {
		return c.HomeScore == first.HomeScore && c.AwayScore == first.AwayScore
	}) {
		return domain.ResultTierA, &domain.Prediction{Winner: first.Winner, PointDiff: first.PointDiff}, true
	}

	// Tier B: the same side won by the same margin.
	if all(pool, func(c domain.Candidate) bool {
		return c.Winner == first.Winner && c.PointDiff == first.PointDiff
	}) {
		return domain.ResultTierB, &domain.Prediction{Winner: first.Winner, PointDiff: first.PointDiff}, true
	}

	// Tier C: the same side won; the margin is the rounded mean.
	if all(pool, func(c domain.Candidate) bool {
		return c.Winner == first.Winner
	}) {
		return domain.ResultTierC, &domain.Prediction{Winner: first.Winner, PointDiff: meanPointDiff(pool)}, true
	}

	return "", nil, false
}

func all(pool []domain.Candidate, pred func(domain.Candidate) bool) bool {
	for _, c := range pool {
		if !pred(c) {
			return false
		}
	}
	return true
}

func meanPointDiff(pool []domain.Candidate) int {
	sum := 0
	for _, c := range pool {
		sum += c.PointDiff
	}
	return int(math.Round(float64(sum) / float64(len(pool))))
}
