// Package provider holds the outbound integrations: the SofaScore API
// client and the Telegram notifier.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/infra"
	"github.com/oddswatch/engine/internal/market"
)

const (
	defaultBaseURL = "https://api.sofascore.com/api/v1"

	requestTimeout = 20 * time.Second
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second

	// After a 429 the limiter runs at half rate for this long.
	rateRecovery = 5 * time.Minute
)

// ── SofaScore Payload Types ──

type apiSport struct {
	Name string `json:"name"`
}

type apiCountry struct {
	Name string `json:"name"`
}

type apiCategory struct {
	Name    string     `json:"name"`
	Country apiCountry `json:"country"`
	Sport   apiSport   `json:"sport"`
}

type apiTournament struct {
	Name     string      `json:"name"`
	Category apiCategory `json:"category"`
}

type apiTeam struct {
	Name string `json:"name"`
}

type apiStatus struct {
	Code int    `json:"code"`
	Type string `json:"type"`
}

// apiScore carries the per-period score block; the usable total falls back
// current → display → normaltime.
type apiScore struct {
	Current    *int `json:"current"`
	Display    *int `json:"display"`
	Normaltime *int `json:"normaltime"`
}

func (s apiScore) total() *int {
	if s.Current != nil {
		return s.Current
	}
	if s.Display != nil {
		return s.Display
	}
	return s.Normaltime
}

type apiEvent struct {
	ID             int64         `json:"id"`
	CustomID       string        `json:"customId"`
	Slug           string        `json:"slug"`
	Tournament     apiTournament `json:"tournament"`
	HomeTeam       apiTeam       `json:"homeTeam"`
	AwayTeam       apiTeam       `json:"awayTeam"`
	StartTimestamp int64         `json:"startTimestamp"`
	Status         apiStatus     `json:"status"`
	WinnerCode     int           `json:"winnerCode"`
	HomeScore      apiScore      `json:"homeScore"`
	AwayScore      apiScore      `json:"awayScore"`
	GroundType     string        `json:"groundType"`
}

type droppingOddsResponse struct {
	Events  []apiEvent                  `json:"events"`
	OddsMap map[string]droppingOddsItem `json:"oddsMap"`
}

type droppingOddsItem struct {
	Odds market.Market `json:"odds"`
}

type allOddsResponse struct {
	Markets []market.Market `json:"markets"`
}

type eventDetailResponse struct {
	Event apiEvent `json:"event"`
}

// ── Public Result Types ──

// DiscoveredEvent pairs one catalog event with its dropping-odds market.
// Market is nil when the catalog carried no odds entry for the event.
type DiscoveredEvent struct {
	Event  domain.Event
	Market *market.Market
}

// EventDetail is the status/result view of a single event.
type EventDetail struct {
	EventID    int64
	StartTime  time.Time
	StatusCode int
	StatusType string
	WinnerCode int
	HomeScore  *int
	AwayScore  *int
	GroundType *string
}

// ── SofaScore Client ──

// SofaScoreClient polls the SofaScore public API with browser-fingerprint
// headers, optional proxy routing, shared request spacing and tiered
// retries.
type SofaScoreClient struct {
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration

	limiter   *rate.Limiter
	baseLimit rate.Limit
	mu        sync.Mutex
	slowUntil time.Time
}

// NewSofaScoreClient builds the client from config. The rate limiter is
// shared across all workers so per-tick fan-out never exceeds the global
// request spacing.
func NewSofaScoreClient(cfg *infra.Config, logger *slog.Logger) (*SofaScoreClient, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyEnabled {
		proxyURL, err := url.Parse(proxyAddress(cfg))
		if err != nil {
			return nil, domain.ErrConfig("invalid proxy endpoint", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		logger.Info("upstream proxy enabled", "endpoint", cfg.ProxyEndpoint)
	}

	limit := rate.Inf
	if delay := cfg.RequestDelay(); delay > 0 {
		limit = rate.Every(delay)
	}

	return &SofaScoreClient{
		baseURL:    defaultBaseURL,
		client:     &http.Client{Timeout: requestTimeout, Transport: transport},
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		retryDelay: initialBackoff,
		limiter:    rate.NewLimiter(limit, 1),
		baseLimit:  limit,
	}, nil
}

func proxyAddress(cfg *infra.Config) string {
	if cfg.ProxyUsername != "" {
		return fmt.Sprintf("http://%s:%s@%s", cfg.ProxyUsername, cfg.ProxyPassword, cfg.ProxyEndpoint)
	}
	return "http://" + cfg.ProxyEndpoint
}

// DroppingOdds fetches the discovery catalog: every event the upstream
// currently flags for notable odds movement, with opening and current
// prices attached where the catalog has them.
func (c *SofaScoreClient) DroppingOdds(ctx context.Context) ([]DiscoveredEvent, error) {
	body, err := c.get(ctx, "/odds/1/dropping/all")
	if err != nil {
		return nil, err
	}

	var payload droppingOddsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.ErrUpstreamPermanent("decode dropping odds", err)
	}

	out := make([]DiscoveredEvent, 0, len(payload.Events))
	for _, ev := range payload.Events {
		mapped, ok := mapEvent(ev)
		if !ok {
			c.logger.Warn("discovery event missing required fields", "event_id", ev.ID, "slug", ev.Slug)
			continue
		}
		d := DiscoveredEvent{Event: mapped}
		if item, ok := payload.OddsMap[strconv.FormatInt(ev.ID, 10)]; ok {
			m := item.Odds
			d.Market = &m
		}
		out = append(out, d)
	}
	c.logger.Debug("dropping odds fetched", "events", len(out), "odds_entries", len(payload.OddsMap))
	return out, nil
}

// EventOdds fetches every market offered for one event.
func (c *SofaScoreClient) EventOdds(ctx context.Context, eventID int64) ([]market.Market, error) {
	body, err := c.get(ctx, fmt.Sprintf("/event/%d/odds/1/all", eventID))
	if err != nil {
		return nil, err
	}

	var payload allOddsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.ErrUpstreamPermanent("decode event odds", err)
	}
	return payload.Markets, nil
}

// EventDetail fetches the status, scores and kickoff time of one event.
func (c *SofaScoreClient) EventDetail(ctx context.Context, eventID int64) (*EventDetail, error) {
	body, err := c.get(ctx, fmt.Sprintf("/event/%d", eventID))
	if err != nil {
		return nil, err
	}

	var payload eventDetailResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.ErrUpstreamPermanent("decode event detail", err)
	}

	ev := payload.Event
	detail := &EventDetail{
		EventID:    ev.ID,
		StartTime:  time.Unix(ev.StartTimestamp, 0).UTC(),
		StatusCode: ev.Status.Code,
		StatusType: ev.Status.Type,
		WinnerCode: ev.WinnerCode,
		HomeScore:  ev.HomeScore.total(),
		AwayScore:  ev.AwayScore.total(),
	}
	if ev.GroundType != "" {
		g := ev.GroundType
		detail.GroundType = &g
	}
	return detail, nil
}

// mapEvent converts a catalog entry to the domain event. Entries missing
// any identifying field are dropped, mirroring the required-field check on
// ingestion.
func mapEvent(ev apiEvent) (domain.Event, bool) {
	sport := ev.Tournament.Category.Sport.Name
	if ev.ID == 0 || ev.Slug == "" || ev.StartTimestamp == 0 || sport == "" ||
		ev.HomeTeam.Name == "" || ev.AwayTeam.Name == "" {
		return domain.Event{}, false
	}

	e := domain.Event{
		ID:          ev.ID,
		CustomID:    ev.CustomID,
		Slug:        ev.Slug,
		Sport:       domain.ClassifySport(sport, ev.HomeTeam.Name, ev.AwayTeam.Name),
		Competition: fmt.Sprintf("%s, %s", ev.Tournament.Category.Name, ev.Tournament.Name),
		Country:     ev.Tournament.Category.Country.Name,
		HomeTeam:    ev.HomeTeam.Name,
		AwayTeam:    ev.AwayTeam.Name,
		StartTime:   time.Unix(ev.StartTimestamp, 0).UTC(),
		Status:      domain.EventScheduled,
	}
	if ev.GroundType != "" {
		g := ev.GroundType
		e.GroundType = &g
	}
	return e, true
}

// ── HTTP Helper ──

func (c *SofaScoreClient) get(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	backoff := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying upstream request", "path", path, "attempt", attempt, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		c.restoreRate()
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := c.do(ctx, path)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if permanentStatus(status) {
			return nil, domain.ErrUpstreamPermanent(fmt.Sprintf("GET %s", path), err)
		}
		if status == http.StatusTooManyRequests {
			c.slowDown()
			backoff *= 2
		}
	}

	return nil, domain.ErrUpstream(fmt.Sprintf("GET %s failed after %d attempts", path, c.maxRetries+1), lastErr)
}

func (c *SofaScoreClient) do(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	setImpersonationHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	c.logger.Debug("upstream request", "path", path, "status", resp.StatusCode, "bytes", len(body))

	if resp.StatusCode != http.StatusOK {
		n := len(body)
		if n > 200 {
			n = 200
		}
		return nil, resp.StatusCode, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(body[:n]))
	}
	return body, resp.StatusCode, nil
}

// permanentStatus classifies responses that retrying cannot fix. Proxy
// auth (407) and throttling (429) recover; other 4xx never do.
func permanentStatus(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	return status != http.StatusProxyAuthRequired && status != http.StatusTooManyRequests
}

// slowDown halves the limiter rate after a 429.
func (c *SofaScoreClient) slowDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baseLimit == rate.Inf {
		return
	}
	c.slowUntil = time.Now().Add(rateRecovery)
	c.limiter.SetLimit(c.baseLimit / 2)
	c.logger.Warn("upstream throttling detected, halving request rate", "recovery", rateRecovery.String())
}

// restoreRate lifts the 429 penalty once the recovery window has passed.
func (c *SofaScoreClient) restoreRate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slowUntil.IsZero() || time.Now().Before(c.slowUntil) {
		return
	}
	c.slowUntil = time.Time{}
	c.limiter.SetLimit(c.baseLimit)
}

func setImpersonationHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Sec-Ch-Ua", `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`)
	req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
	req.Header.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Referer", "https://www.sofascore.com/")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
}
