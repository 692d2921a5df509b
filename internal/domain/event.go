package domain

import (
	"math"
	"time"
)

// EventStatus is the lifecycle state of a tracked event.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventFinished  EventStatus = "finished"
	EventCancelled EventStatus = "cancelled"
)

// Upstream status codes seen on the event-detail endpoint. Codes outside
// both sets mean the event is still pending.
var (
	terminalStatusCodes  = map[int]bool{100: true, 110: true, 92: true, 120: true, 130: true, 140: true}
	cancelledStatusCodes = map[int]bool{70: true, 80: true, 90: true}
)

// IsTerminalStatus reports whether the upstream code denotes a finished
// event whose result can be collected.
func IsTerminalStatus(code int) bool { return terminalStatusCodes[code] }

// IsCancelledStatus reports whether the upstream code denotes a cancelled
// event: terminal, but no result will ever exist.
func IsCancelledStatus(code int) bool { return cancelledStatusCodes[code] }

// Event is a scheduled sporting contest. ID is the upstream's opaque
// identifier and serves as the natural key everywhere.
type Event struct {
	ID            int64
	CustomID      string
	Slug          string
	Sport         string
	Competition   string
	Country       string
	HomeTeam      string
	AwayTeam      string
	StartTime     time.Time // UTC internally; display zone applied at render time
	GroundType    *string   // racket sports only
	Status        EventStatus
	LastCheckedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Participants renders "Home - Away" for logs and reports.
func (e *Event) Participants() string {
	return e.HomeTeam + " - " + e.AwayTeam
}

// MinutesToStart returns whole minutes until kickoff, rounded to the
// nearest minute. Checkpoint decisions key off this value.
func MinutesToStart(now, start time.Time) int {
	return int(math.Round(start.Sub(now).Minutes()))
}

// IsCheckpointMinute reports whether a pre-start tick must refresh finals
// for an event this many minutes from kickoff. Only T-30 and T-5 qualify,
// bounding the upstream footprint to two finals fetches per event.
func IsCheckpointMinute(minutes int) bool {
	return minutes == 30 || minutes == 5
}
