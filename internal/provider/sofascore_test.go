package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/infra"
)

func testClient(t *testing.T, baseURL string, maxRetries int) *SofaScoreClient {
	t.Helper()
	c, err := NewSofaScoreClient(&infra.Config{MaxRetries: maxRetries}, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	c.baseURL = baseURL
	c.retryDelay = time.Millisecond
	return c
}

const droppingFixture = `{
	"events": [
		{
			"id": 111, "customId": "abc", "slug": "alcaraz-sinner",
			"tournament": {"name": "ATP Finals", "category": {"name": "ATP", "country": {"name": "Italy"}, "sport": {"name": "Tennis"}}},
			"homeTeam": {"name": "Alcaraz"}, "awayTeam": {"name": "Sinner"},
			"startTimestamp": 1767225600
		},
		{
			"id": 222, "customId": "def", "slug": "krawietz-puetz-bolelli-vavassori",
			"tournament": {"name": "ATP Finals Doubles", "category": {"name": "ATP", "country": {"name": "Italy"}, "sport": {"name": "Tennis"}}},
			"homeTeam": {"name": "Krawietz / Puetz"}, "awayTeam": {"name": "Bolelli / Vavassori"},
			"startTimestamp": 1767229200
		},
		{
			"id": 333, "slug": "", "startTimestamp": 0,
			"tournament": {"category": {"sport": {"name": "Football"}}},
			"homeTeam": {"name": ""}, "awayTeam": {"name": ""}
		}
	],
	"oddsMap": {
		"111": {"odds": {"marketName": "Winner", "choices": [
			{"name": "1", "initialFractionalValue": "4/5", "fractionalValue": "8/11"},
			{"name": "2", "initialFractionalValue": "21/20", "fractionalValue": "11/10"}
		]}}
	}
}`

func TestDroppingOdds_ParsesCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/odds/1/dropping/all", r.URL.Path)
		assert.Contains(t, r.Header.Get("User-Agent"), "Chrome/120")
		assert.Equal(t, "https://www.sofascore.com/", r.Header.Get("Referer"))
		w.Write([]byte(droppingFixture))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)
	events, err := c.DroppingOdds(context.Background())
	require.NoError(t, err)

	// The entry with missing required fields is dropped.
	require.Len(t, events, 2)

	singles := events[0]
	assert.Equal(t, int64(111), singles.Event.ID)
	assert.Equal(t, "Tennis", singles.Event.Sport)
	assert.Equal(t, "ATP, ATP Finals", singles.Event.Competition)
	assert.Equal(t, "Italy", singles.Event.Country)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), singles.Event.StartTime)
	assert.Equal(t, domain.EventScheduled, singles.Event.Status)
	require.NotNil(t, singles.Market)
	assert.Len(t, singles.Market.Choices, 2)

	doubles := events[1]
	assert.Equal(t, "Tennis Doubles", doubles.Event.Sport)
	assert.Nil(t, doubles.Market)
}

func TestEventDetail_ScoreFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/event/555", r.URL.Path)
		w.Write([]byte(`{"event": {
			"id": 555, "startTimestamp": 1767225600,
			"status": {"code": 100, "type": "finished"},
			"winnerCode": 1,
			"homeScore": {"display": 3, "normaltime": 2},
			"awayScore": {"normaltime": 1},
			"groundType": "Red clay"
		}}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)
	detail, err := c.EventDetail(context.Background(), 555)
	require.NoError(t, err)

	assert.Equal(t, 100, detail.StatusCode)
	assert.Equal(t, "finished", detail.StatusType)
	assert.Equal(t, 1, detail.WinnerCode)
	require.NotNil(t, detail.HomeScore)
	assert.Equal(t, 3, *detail.HomeScore) // display outranks normaltime
	require.NotNil(t, detail.AwayScore)
	assert.Equal(t, 1, *detail.AwayScore)
	require.NotNil(t, detail.GroundType)
	assert.Equal(t, "Red clay", *detail.GroundType)
}

func TestGet_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"markets": []}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	_, err := c.EventOdds(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_PermanentStatusDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	_, err := c.EventOdds(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var app *domain.AppError
	require.True(t, errors.As(err, &app))
	assert.Equal(t, "UPSTREAM_PERMANENT", app.Code)
}

func TestGet_ExhaustedRetriesSurfaceTransientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 1)
	_, err := c.EventOdds(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())

	var app *domain.AppError
	require.True(t, errors.As(err, &app))
	assert.Equal(t, "UPSTREAM", app.Code)
}

func TestRateEscalation_HalvesAndRecovers(t *testing.T) {
	c := testClient(t, "http://unused", 0)
	c.baseLimit = rate.Limit(10)
	c.limiter.SetLimit(c.baseLimit)

	c.slowDown()
	assert.InDelta(t, 5.0, float64(c.limiter.Limit()), 0.001)

	// Recovery window still open: rate stays halved.
	c.restoreRate()
	assert.InDelta(t, 5.0, float64(c.limiter.Limit()), 0.001)

	c.slowUntil = time.Now().Add(-time.Second)
	c.restoreRate()
	assert.InDelta(t, 10.0, float64(c.limiter.Limit()), 0.001)
}

func TestPermanentStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusForbidden, true},
		{http.StatusNotFound, true},
		{http.StatusProxyAuthRequired, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
		{0, false}, // transport error, no status
	}
	for _, tt := range tests {
		assert.Equal(t, tt.permanent, permanentStatus(tt.status), "status %d", tt.status)
	}
}
