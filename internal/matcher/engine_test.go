package matcher

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/repository"
)

// fakeAlerts serves canned candidate sets and records the query arguments
// the engine passed down.
type fakeAlerts struct {
	exact   []domain.Candidate
	similar []domain.Candidate
	stale   bool

	refreshes   int
	exactGround *string
	lastExclude []int64
}

func (f *fakeAlerts) ExactCandidates(_ context.Context, _ repository.DBTX, _ domain.VariationVector, _ string, ground *string, _ int64) ([]domain.Candidate, error) {
	f.exactGround = ground
	return append([]domain.Candidate(nil), f.exact...), nil
}

func (f *fakeAlerts) SimilarCandidates(_ context.Context, _ repository.DBTX, _ domain.VariationVector, _ string, _ *string, _ int64, excludeIDs []int64) ([]domain.Candidate, error) {
	f.lastExclude = excludeIDs
	return append([]domain.Candidate(nil), f.similar...), nil
}

func (f *fakeAlerts) IsViewStale(context.Context, repository.DBTX) (bool, error) { return f.stale, nil }

func (f *fakeAlerts) RefreshView(context.Context, repository.DBTX) error {
	f.refreshes++
	f.stale = false
	return nil
}

func (f *fakeAlerts) InsertLog(context.Context, repository.DBTX, *domain.AlertLogEntry) error {
	return nil
}

func testEngine(alerts *fakeAlerts) *Engine {
	return NewEngine(alerts, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func vec(one, two int64) domain.VariationVector {
	return domain.VariationVector{One: domain.Variation(one), Two: domain.Variation(two)}
}

func vec3(one, x, two int64) domain.VariationVector {
	vx := domain.Variation(x)
	return domain.VariationVector{One: domain.Variation(one), X: &vx, Two: domain.Variation(two)}
}

func tennisEvent() *domain.Event {
	hard := "Hardcourt outdoor"
	return &domain.Event{
		ID:         9001,
		Sport:      "Tennis",
		HomeTeam:   "Alcaraz C.",
		AwayTeam:   "Sinner J.",
		GroundType: &hard,
		StartTime:  time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC),
	}
}

func candidate(id int64, v domain.VariationVector, home, away int, winner domain.WinnerSide, diff int) domain.Candidate {
	return domain.Candidate{
		EventID:   id,
		HomeTeam:  "H",
		AwayTeam:  "A",
		Sport:     "Tennis",
		Vector:    v,
		HomeScore: home,
		AwayScore: away,
		Winner:    winner,
		PointDiff: diff,
	}
}

func TestEvaluate_ExactUnanimousScoreline(t *testing.T) {
	cur := vec(15, -12)
	alerts := &fakeAlerts{
		exact: []domain.Candidate{
			candidate(101, cur, 2, 1, domain.WinnerHome, 1),
			candidate(102, cur, 2, 1, domain.WinnerHome, 1),
		},
	}

	v, err := testEngine(alerts).Evaluate(context.Background(), nil, tennisEvent(), cur, time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictSuccess, v.Status)
	assert.Equal(t, domain.TierExact, v.VariationTier)
	assert.Equal(t, domain.ResultTierA, v.ResultTier)
	assert.Equal(t, 100, v.Confidence)
	require.NotNil(t, v.Prediction)
	assert.Equal(t, domain.WinnerHome, v.Prediction.Winner)
	assert.Equal(t, 1, v.Prediction.PointDiff)
	assert.Len(t, v.Candidates, 2)
}

func TestEvaluate_SimilarSameWinnerUsesMeanDiff(t *testing.T) {
	cur := vec3(10, -2, -15)
	alerts := &fakeAlerts{
		similar: []domain.Candidate{
			candidate(201, vec3(12, -1, -14), 3, 1, domain.WinnerHome, 2),
			candidate(202, vec3(8, -2, -17), 1, 0, domain.WinnerHome, 1),
			candidate(203, vec3(10, -4, -15), 4, 1, domain.WinnerHome, 3),
		},
	}

	ev := &domain.Event{ID: 9002, Sport: "Football", HomeTeam: "Milan", AwayTeam: "Inter"}
	v, err := testEngine(alerts).Evaluate(context.Background(), nil, ev, cur, time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictSuccess, v.Status)
	assert.Equal(t, domain.TierSimilar, v.VariationTier)
	assert.Equal(t, domain.ResultTierC, v.ResultTier)
	assert.Equal(t, 50, v.Confidence)
	require.NotNil(t, v.Prediction)
	assert.Equal(t, domain.WinnerHome, v.Prediction.Winner)
	assert.Equal(t, 2, v.Prediction.PointDiff, "mean of 2, 1, 3")
}

func TestEvaluate_SameWinnerAndMarginIsTierB(t *testing.T) {
	cur := vec(20, -20)
	alerts := &fakeAlerts{
		exact: []domain.Candidate{
			candidate(301, cur, 2, 0, domain.WinnerHome, 2),
			candidate(302, cur, 3, 1, domain.WinnerHome, 2),
		},
	}

	v, err := testEngine(alerts).Evaluate(context.Background(), nil, tennisEvent(), cur, time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.ResultTierB, v.ResultTier)
	assert.Equal(t, 75, v.Confidence)
	require.NotNil(t, v.Prediction)
	assert.Equal(t, 2, v.Prediction.PointDiff)
}

func TestEvaluate_SplitWinnersIsNoMatch(t *testing.T) {
	cur := vec(15, -12)
	alerts := &fakeAlerts{
		exact: []domain.Candidate{
			candidate(401, cur, 2, 1, domain.WinnerHome, 1),
			candidate(402, cur, 0, 2, domain.WinnerAway, 2),
		},
	}

	v, err := testEngine(alerts).Evaluate(context.Background(), nil, tennisEvent(), cur, time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictNoMatch, v.Status)
	assert.Nil(t, v.Prediction)
	assert.Zero(t, v.Confidence)
	assert.Len(t, v.Candidates, 2, "a failed evaluation still reports every candidate")
}

func TestEvaluate_NoCandidates(t *testing.T) {
	v, err := testEngine(&fakeAlerts{}).Evaluate(context.Background(), nil, tennisEvent(), vec(15, -12), time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictNoCandidates, v.Status)
	assert.Empty(t, v.Candidates)
	assert.Nil(t, v.Prediction)
}

func TestEvaluate_AsymmetricCandidateReportedButIgnored(t *testing.T) {
	cur := vec(10, -15)
	alerts := &fakeAlerts{
		similar: []domain.Candidate{
			candidate(501, vec(8, -12), 2, 1, domain.WinnerHome, 1),
			candidate(502, vec(-8, -12), 0, 2, domain.WinnerAway, 2), // Δ1 moved the other way
		},
	}

	v, err := testEngine(alerts).Evaluate(context.Background(), nil, tennisEvent(), cur, time.Now())
	require.NoError(t, err)

	// The sign-mismatched candidate would have broken unanimity; without it
	// the lone symmetric one carries the verdict.
	assert.Equal(t, domain.VerdictSuccess, v.Status)
	assert.Equal(t, domain.ResultTierA, v.ResultTier)
	require.NotNil(t, v.Prediction)
	assert.Equal(t, domain.WinnerHome, v.Prediction.Winner)

	require.Len(t, v.Candidates, 2)
	assert.True(t, v.Candidates[0].Symmetric)
	assert.False(t, v.Candidates[1].Symmetric)
	assert.Len(t, v.SymmetricCandidates(), 1)
}

func TestEvaluate_ExactTierOutranksSimilar(t *testing.T) {
	cur := vec(15, -12)
	alerts := &fakeAlerts{
		exact: []domain.Candidate{
			candidate(601, cur, 2, 0, domain.WinnerHome, 2),
		},
		similar: []domain.Candidate{
			// Opposite winner: would void unanimity if tier 2 were counted.
			candidate(602, vec(13, -11), 0, 2, domain.WinnerAway, 2),
		},
	}

	v, err := testEngine(alerts).Evaluate(context.Background(), nil, tennisEvent(), cur, time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.TierExact, v.VariationTier)
	assert.Equal(t, domain.VerdictSuccess, v.Status)
	require.NotNil(t, v.Prediction)
	assert.Equal(t, domain.WinnerHome, v.Prediction.Winner)

	assert.Equal(t, []int64{601}, alerts.lastExclude, "exact ids must not reappear in the similar query")
	assert.Len(t, v.TierCandidates(domain.TierExact), 1)
	assert.Len(t, v.TierCandidates(domain.TierSimilar), 1)
}

func TestEvaluate_RefreshesViewOnlyWhenStale(t *testing.T) {
	alerts := &fakeAlerts{stale: true}
	eng := testEngine(alerts)

	_, err := eng.Evaluate(context.Background(), nil, tennisEvent(), vec(15, -12), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, alerts.refreshes)

	_, err = eng.Evaluate(context.Background(), nil, tennisEvent(), vec(15, -12), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, alerts.refreshes, "fresh view must not be rebuilt again")
}

func TestEvaluate_GroundFilterRacketOnly(t *testing.T) {
	alerts := &fakeAlerts{}
	eng := testEngine(alerts)

	_, err := eng.Evaluate(context.Background(), nil, tennisEvent(), vec(15, -12), time.Now())
	require.NoError(t, err)
	require.NotNil(t, alerts.exactGround)
	assert.Equal(t, "Hardcourt outdoor", *alerts.exactGround)

	grass := "Grass"
	football := &domain.Event{ID: 9003, Sport: "Football", HomeTeam: "A", AwayTeam: "B", GroundType: &grass}
	_, err = eng.Evaluate(context.Background(), nil, football, vec3(10, 0, -10), time.Now())
	require.NoError(t, err)
	assert.Nil(t, alerts.exactGround, "surface only narrows racket sports")
}

func TestUnanimity_EmptyPool(t *testing.T) {
	_, _, ok := unanimity(nil)
	assert.False(t, ok)
}

func TestUnanimity_SingleCandidateIsScorelineUnanimous(t *testing.T) {
	tier, pred, ok := unanimity([]domain.Candidate{
		candidate(701, vec(5, -5), 3, 1, domain.WinnerHome, 2),
	})
	require.True(t, ok)
	assert.Equal(t, domain.ResultTierA, tier)
	assert.Equal(t, 2, pred.PointDiff)
}

func TestMeanPointDiff_RoundsHalfUp(t *testing.T) {
	pool := []domain.Candidate{
		candidate(801, vec(1, -1), 2, 1, domain.WinnerHome, 1),
		candidate(802, vec(1, -1), 3, 1, domain.WinnerHome, 2),
	}
	// mean(1, 2) = 1.5 rounds to 2
	assert.Equal(t, 2, meanPointDiff(pool))
}
