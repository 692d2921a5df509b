package domain

import (
	"strings"
	"time"
)

// MarketShape describes the odds arity a sport trades at.
type MarketShape int

const (
	// ThreeWayTeam trades home/draw/away (football and friends).
	ThreeWayTeam MarketShape = iota
	// TwoWayTeam trades home/away only; overtime breaks ties.
	TwoWayTeam
	// TwoWayRacket trades home/away and carries ground-type observations.
	TwoWayRacket
)

// SportProfile captures per-sport market shape and result-collection rules.
// Dispatch is by table lookup; Known is false for the long tail of sports
// the feed occasionally serves, letting the normalizer fall back to
// structural market detection.
type SportProfile struct {
	Shape  MarketShape
	Cutoff time.Duration // wait after start_time before requesting a result
	Known  bool
}

const defaultCutoff = 3 * time.Hour

var sportProfiles = map[string]SportProfile{
	"Football":          {Shape: ThreeWayTeam, Cutoff: 150 * time.Minute, Known: true},
	"Futsal":            {Shape: ThreeWayTeam, Cutoff: 150 * time.Minute, Known: true},
	"Handball":          {Shape: ThreeWayTeam, Cutoff: defaultCutoff, Known: true},
	"Ice Hockey":        {Shape: ThreeWayTeam, Cutoff: defaultCutoff, Known: true},
	"Tennis":            {Shape: TwoWayRacket, Cutoff: 4 * time.Hour, Known: true},
	"Tennis Doubles":    {Shape: TwoWayRacket, Cutoff: 4 * time.Hour, Known: true},
	"Table Tennis":      {Shape: TwoWayRacket, Cutoff: defaultCutoff, Known: true},
	"Badminton":         {Shape: TwoWayRacket, Cutoff: defaultCutoff, Known: true},
	"Basketball":        {Shape: TwoWayTeam, Cutoff: 3 * time.Hour, Known: true},
	"Baseball":          {Shape: TwoWayTeam, Cutoff: 4 * time.Hour, Known: true},
	"Volleyball":        {Shape: TwoWayTeam, Cutoff: defaultCutoff, Known: true},
	"American Football": {Shape: TwoWayTeam, Cutoff: defaultCutoff, Known: true},
}

// ProfileFor returns the sport's profile. Unknown sports get a three-way
// default with the standard cutoff and Known=false.
func ProfileFor(sport string) SportProfile {
	if p, ok := sportProfiles[sport]; ok {
		return p
	}
	return SportProfile{Shape: ThreeWayTeam, Cutoff: defaultCutoff}
}

// HasDraw reports whether the sport trades a draw column.
func HasDraw(sport string) bool { return ProfileFor(sport).Shape == ThreeWayTeam }

// IsRacket reports whether the sport carries ground-type observations.
func IsRacket(sport string) bool { return ProfileFor(sport).Shape == TwoWayRacket }

// ResultCutoff returns how long after start_time a result may first be
// requested for the sport.
func ResultCutoff(sport string) time.Duration { return ProfileFor(sport).Cutoff }

// ClassifySport refines the upstream sport name. A tennis pairing where
// both participants are named "A / B" is a doubles match.
func ClassifySport(sport, homeTeam, awayTeam string) string {
	if sport == "Tennis" && strings.Contains(homeTeam, "/") && strings.Contains(awayTeam, "/") {
		return "Tennis Doubles"
	}
	return sport
}
