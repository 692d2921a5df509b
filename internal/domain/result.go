package domain

import "time"

// WinnerSide identifies the winning column of a market: home, draw, away.
type WinnerSide string

const (
	WinnerHome WinnerSide = "1"
	WinnerDraw WinnerSide = "X"
	WinnerAway WinnerSide = "2"
)

// WinnerFromCode maps the upstream winnerCode field (1 home, 2 away, 3 draw).
func WinnerFromCode(code int) (WinnerSide, bool) {
	switch code {
	case 1:
		return WinnerHome, true
	case 2:
		return WinnerAway, true
	case 3:
		return WinnerDraw, true
	}
	return "", false
}

// WinnerFromScores derives the side from a final scoreline. Equal scores
// report a draw; callers persist that only for draw-capable sports.
func WinnerFromScores(home, away int) WinnerSide {
	switch {
	case home > away:
		return WinnerHome
	case away > home:
		return WinnerAway
	}
	return WinnerDraw
}

// Result is the immutable final outcome of an event. PointDiff is a
// generated column, abs(home_score - away_score).
type Result struct {
	EventID     int64
	HomeScore   int
	AwayScore   int
	Winner      WinnerSide
	PointDiff   int
	CollectedAt time.Time
}
