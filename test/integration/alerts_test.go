//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/matcher"
	"github.com/oddswatch/engine/internal/repository"
	"github.com/oddswatch/engine/test/integration/testutil"
)

// ─── Candidate View Tests ──────────────────────────────────────────────────

func vec(one, two int64) domain.VariationVector {
	return domain.VariationVector{One: domain.Variation(one), Two: domain.Variation(two)}
}

func vec3(one, x, two int64) domain.VariationVector {
	vx := domain.Variation(x)
	return domain.VariationVector{One: domain.Variation(one), X: &vx, Two: domain.Variation(two)}
}

func varPtr(v int64) *domain.Variation {
	d := domain.Variation(v)
	return &d
}

func candidateIDs(cands []domain.Candidate) []int64 {
	ids := make([]int64, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.EventID)
	}
	return ids
}

func TestAlertView_StalenessLifecycle(t *testing.T) {
	env := testutil.NewTestEnv(t)
	alerts := repository.NewAlertRepository()
	events := repository.NewEventRepository()
	ctx := context.Background()

	stale, err := alerts.IsViewStale(ctx, env.Pool)
	require.NoError(t, err)
	assert.True(t, stale)

	require.NoError(t, alerts.RefreshView(ctx, env.Pool))
	testutil.AssertViewStale(t, env, false)
	assert.Equal(t, 0, testutil.CountViewRows(t, env))

	id := env.SeedHistory(testutil.HistorySpec{
		Sport: "Football", VarOne: 10, VarTwo: -5,
		HomeScore: 2, AwayScore: 0, Winner: domain.WinnerHome,
	})
	testutil.AssertViewStale(t, env, true)

	require.NoError(t, alerts.RefreshView(ctx, env.Pool))
	testutil.AssertViewStale(t, env, false)
	assert.Equal(t, 1, testutil.CountViewRows(t, env))

	// Checkpoint bookkeeping touches events constantly; it must not force
	// view rebuilds.
	require.NoError(t, events.TouchLastChecked(ctx, env.Pool, id, time.Now().UTC()))
	testutil.AssertViewStale(t, env, false)

	require.NoError(t, events.UpdateStatus(ctx, env.Pool, id, domain.EventCancelled))
	testutil.AssertViewStale(t, env, true)
}

func TestAlertView_OnlyFinishedWithFullVector(t *testing.T) {
	env := testutil.NewTestEnv(t)
	alerts := repository.NewAlertRepository()
	odds := repository.NewOddsRepository()
	results := repository.NewResultRepository()
	ctx := context.Background()

	full := env.SeedHistory(testutil.HistorySpec{
		Sport: "Football", VarOne: 10, VarTwo: -5,
		HomeScore: 1, AwayScore: 0, Winner: domain.WinnerHome,
	})

	// Result but no variation vector: the opening was never closed out.
	start := time.Date(2026, 4, 20, 19, 0, 0, 0, time.UTC)
	openOnly := env.SeedEventWithStatus("Football", start, "finished")
	require.NoError(t, odds.UpsertOpening(ctx, env.Pool, openOnly,
		&domain.OddsLine{One: 2050, Two: 1800}, start.Add(-24*time.Hour)))
	_, err := results.Insert(ctx, env.Pool, &domain.Result{
		EventID: openOnly, HomeScore: 2, AwayScore: 1,
		Winner: domain.WinnerHome, CollectedAt: start.Add(3 * time.Hour),
	})
	require.NoError(t, err)

	// Full vector but no result collected yet.
	noResult := env.SeedEventWithStatus("Football", start.Add(time.Hour), "finished")
	require.NoError(t, odds.UpsertOpening(ctx, env.Pool, noResult,
		&domain.OddsLine{One: 2000, Two: 2000}, start.Add(-24*time.Hour)))
	require.NoError(t, odds.UpsertFinal(ctx, env.Pool, noResult,
		&domain.OddsLine{One: 2100, Two: 1950}, start.Add(55*time.Minute)))

	require.NoError(t, alerts.RefreshView(ctx, env.Pool))
	assert.Equal(t, 1, testutil.CountViewRows(t, env))

	got, err := alerts.ExactCandidates(ctx, env.Pool, vec(10, -5), "Football", nil, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, full, got[0].EventID)
}

// ─── Candidate Query Tests ─────────────────────────────────────────────────

func TestExactCandidates_TwoDecimalEquality(t *testing.T) {
	env := testutil.NewTestEnv(t)
	alerts := repository.NewAlertRepository()
	ctx := context.Background()

	match := env.SeedHistory(testutil.HistorySpec{
		Sport: "Football", VarOne: 25, VarTwo: -10,
		HomeScore: 2, AwayScore: 0, Winner: domain.WinnerHome,
	})
	env.SeedHistory(testutil.HistorySpec{ // off by one hundredth
		Sport: "Football", VarOne: 26, VarTwo: -10,
		HomeScore: 2, AwayScore: 0, Winner: domain.WinnerHome,
	})
	threeWay := env.SeedHistory(testutil.HistorySpec{ // carries a draw column
		Sport: "Football", VarOne: 25, VarX: varPtr(5), VarTwo: -10,
		HomeScore: 2, AwayScore: 0, Winner: domain.WinnerHome,
	})
	env.SeedHistory(testutil.HistorySpec{ // wrong sport
		Sport: "Tennis", VarOne: 25, VarTwo: -10,
		HomeScore: 2, AwayScore: 0, Winner: domain.WinnerHome,
	})
	require.NoError(t, alerts.RefreshView(ctx, env.Pool))

	got, err := alerts.ExactCandidates(ctx, env.Pool, vec(25, -10), "Football", nil, 555900)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, match, got[0].EventID)
	assert.Equal(t, domain.Variation(25), got[0].Vector.One)
	assert.Equal(t, domain.Variation(-10), got[0].Vector.Two)
	assert.Nil(t, got[0].Vector.X)
	assert.Equal(t, domain.WinnerHome, got[0].Winner)
	assert.Equal(t, 2, got[0].PointDiff)

	// A three-way reference only reaches three-way history.
	got, err = alerts.ExactCandidates(ctx, env.Pool, vec3(25, 5, -10), "Football", nil, 555900)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, threeWay, got[0].EventID)

	// The event under evaluation never matches itself.
	got, err = alerts.ExactCandidates(ctx, env.Pool, vec(25, -10), "Football", nil, match)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExactCandidates_GroundFilter(t *testing.T) {
	env := testutil.NewTestEnv(t)
	alerts := repository.NewAlertRepository()
	ctx := context.Background()

	clay := "Clay"
	hard := "Hardcourt outdoor"
	onClay := env.SeedHistory(testutil.HistorySpec{
		Sport: "Tennis", Ground: &clay, VarOne: 10, VarTwo: -5,
		HomeScore: 2, AwayScore: 1, Winner: domain.WinnerHome,
	})
	onHard := env.SeedHistory(testutil.HistorySpec{
		Sport: "Tennis", Ground: &hard, VarOne: 10, VarTwo: -5,
		HomeScore: 2, AwayScore: 0, Winner: domain.WinnerHome,
	})
	unknown := env.SeedHistory(testutil.HistorySpec{
		Sport: "Tennis", VarOne: 10, VarTwo: -5,
		HomeScore: 0, AwayScore: 2, Winner: domain.WinnerAway,
	})
	require.NoError(t, alerts.RefreshView(ctx, env.Pool))

	got, err := alerts.ExactCandidates(ctx, env.Pool, vec(10, -5), "Tennis", &clay, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, onClay, got[0].EventID)

	// Without a surface to pin to, every surface is fair game.
	got, err = alerts.ExactCandidates(ctx, env.Pool, vec(10, -5), "Tennis", nil, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{onClay, onHard, unknown}, candidateIDs(got))
}

func TestSimilarCandidates_ToleranceInclusive(t *testing.T) {
	env := testutil.NewTestEnv(t)
	alerts := repository.NewAlertRepository()
	ctx := context.Background()

	atBound := env.SeedHistory(testutil.HistorySpec{ // +0.04 on both
		Sport: "Football", VarOne: 29, VarTwo: 34,
		HomeScore: 1, AwayScore: 0, Winner: domain.WinnerHome,
	})
	belowBound := env.SeedHistory(testutil.HistorySpec{ // -0.04 on both
		Sport: "Football", VarOne: 21, VarTwo: 26,
		HomeScore: 2, AwayScore: 0, Winner: domain.WinnerHome,
	})
	env.SeedHistory(testutil.HistorySpec{ // 0.05 away on the home column
		Sport: "Football", VarOne: 30, VarTwo: 30,
		HomeScore: 1, AwayScore: 0, Winner: domain.WinnerHome,
	})
	exact := env.SeedHistory(testutil.HistorySpec{
		Sport: "Football", VarOne: 25, VarTwo: 30,
		HomeScore: 3, AwayScore: 0, Winner: domain.WinnerHome,
	})
	env.SeedHistory(testutil.HistorySpec{ // three-way shape
		Sport: "Football", VarOne: 25, VarX: varPtr(0), VarTwo: 30,
		HomeScore: 1, AwayScore: 1, Winner: domain.WinnerDraw,
	})
	require.NoError(t, alerts.RefreshView(ctx, env.Pool))

	got, err := alerts.SimilarCandidates(ctx, env.Pool, vec(25, 30), "Football", nil, 0, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{atBound, belowBound, exact}, candidateIDs(got))

	// Rows already claimed by the exact tier stay out of the similar one.
	got, err = alerts.SimilarCandidates(ctx, env.Pool, vec(25, 30), "Football", nil, 0, []int64{exact})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{atBound, belowBound}, candidateIDs(got))
}

// ─── Alert Log Tests ───────────────────────────────────────────────────────

func TestInsertLog_NullableColumns(t *testing.T) {
	env := testutil.NewTestEnv(t)
	alerts := repository.NewAlertRepository()
	ctx := context.Background()

	start := time.Date(2026, 4, 22, 18, 0, 0, 0, time.UTC)
	barren := env.SeedEvent("Football", start)
	require.NoError(t, alerts.InsertLog(ctx, env.Pool, &domain.AlertLogEntry{
		ID:        uuid.New(),
		EventID:   barren,
		Status:    domain.VerdictNoCandidates,
		CreatedAt: start.Add(-30 * time.Minute),
	}))

	var tierNull, resultTierNull, winnerNull, diffNull bool
	err := env.Pool.QueryRow(ctx, `
		SELECT variation_tier IS NULL, result_tier IS NULL,
			predicted_winner IS NULL, predicted_diff IS NULL
		FROM alerts_log WHERE event_id = $1`, barren).
		Scan(&tierNull, &resultTierNull, &winnerNull, &diffNull)
	require.NoError(t, err)
	assert.True(t, tierNull)
	assert.True(t, resultTierNull)
	assert.True(t, winnerNull)
	assert.True(t, diffNull)

	predicted := env.SeedEvent("Tennis", start.Add(time.Hour))
	winner := domain.WinnerHome
	diff := 2
	require.NoError(t, alerts.InsertLog(ctx, env.Pool, &domain.AlertLogEntry{
		ID:              uuid.New(),
		EventID:         predicted,
		Status:          domain.VerdictSuccess,
		VariationTier:   domain.TierExact,
		ResultTier:      domain.ResultTierA,
		Confidence:      100,
		PredictedWinner: &winner,
		PredictedDiff:   &diff,
		CandidateCount:  3,
		MessageSent:     true,
		CreatedAt:       start.Add(25 * time.Minute),
	}))

	var tier, confidence, candCount int
	var resultTier, predictedWinner string
	var sent bool
	err = env.Pool.QueryRow(ctx, `
		SELECT variation_tier, result_tier, confidence, predicted_winner,
			candidate_count, message_sent
		FROM alerts_log WHERE event_id = $1`, predicted).
		Scan(&tier, &resultTier, &confidence, &predictedWinner, &candCount, &sent)
	require.NoError(t, err)
	assert.Equal(t, 1, tier)
	assert.Equal(t, "A", resultTier)
	assert.Equal(t, 100, confidence)
	assert.Equal(t, "1", predictedWinner)
	assert.Equal(t, 3, candCount)
	assert.True(t, sent)

	assert.Equal(t, 1, testutil.CountAlertLogs(t, env, barren))
}

// ─── Matcher End-to-End Tests ──────────────────────────────────────────────

func TestEngineEvaluate_EndToEnd(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ctx := context.Background()

	clay := "Clay"
	hard := "Hardcourt outdoor"
	env.SeedHistory(testutil.HistorySpec{
		Sport: "Tennis", Ground: &clay, VarOne: 15, VarTwo: -20,
		HomeScore: 2, AwayScore: 0, Winner: domain.WinnerHome,
	})
	env.SeedHistory(testutil.HistorySpec{
		Sport: "Tennis", Ground: &clay, VarOne: 15, VarTwo: -20,
		HomeScore: 2, AwayScore: 0, Winner: domain.WinnerHome,
	})
	env.SeedHistory(testutil.HistorySpec{ // within tolerance, not exact
		Sport: "Tennis", Ground: &clay, VarOne: 18, VarTwo: -23,
		HomeScore: 2, AwayScore: 1, Winner: domain.WinnerHome,
	})
	env.SeedHistory(testutil.HistorySpec{ // wrong surface
		Sport: "Tennis", Ground: &hard, VarOne: 15, VarTwo: -20,
		HomeScore: 0, AwayScore: 2, Winner: domain.WinnerAway,
	})

	eng := matcher.NewEngine(repository.NewAlertRepository(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	event := &domain.Event{
		ID:         555950,
		Sport:      "Tennis",
		HomeTeam:   "Alcaraz C.",
		AwayTeam:   "Sinner J.",
		GroundType: &clay,
		StartTime:  time.Date(2026, 4, 23, 18, 0, 0, 0, time.UTC),
		Status:     domain.EventScheduled,
	}

	// Seeding left the view stale; the engine refreshes before searching.
	verdict, err := eng.Evaluate(ctx, env.Pool, event, vec(15, -20), time.Now().UTC())
	require.NoError(t, err)
	testutil.AssertViewStale(t, env, false)

	assert.Equal(t, domain.VerdictSuccess, verdict.Status)
	assert.Equal(t, domain.TierExact, verdict.VariationTier)
	assert.Equal(t, domain.ResultTierA, verdict.ResultTier)
	assert.Equal(t, 100, verdict.Confidence)
	require.NotNil(t, verdict.Prediction)
	assert.Equal(t, domain.WinnerHome, verdict.Prediction.Winner)
	assert.Equal(t, 2, verdict.Prediction.PointDiff)

	assert.Len(t, verdict.TierCandidates(domain.TierExact), 2)
	assert.Len(t, verdict.Candidates, 3)
}
