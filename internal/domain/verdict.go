package domain

import "time"

// VerdictStatus classifies a matcher run.
type VerdictStatus string

const (
	VerdictSuccess      VerdictStatus = "SUCCESS"
	VerdictNoMatch      VerdictStatus = "NO_MATCH"
	VerdictNoCandidates VerdictStatus = "NO_CANDIDATES"
)

// VariationTier classifies how close a candidate set sits to the current
// variation vector: exact component-wise equality, or within tolerance.
type VariationTier int

const (
	TierExact   VariationTier = 1
	TierSimilar VariationTier = 2
)

// ResultTier is the unanimity level among symmetric candidates.
type ResultTier string

const (
	ResultTierA ResultTier = "A" // identical exact scoreline
	ResultTierB ResultTier = "B" // same winner and point diff
	ResultTierC ResultTier = "C" // same winner only
)

// Confidence returns the percent confidence assigned to the tier.
func (t ResultTier) Confidence() int {
	switch t {
	case ResultTierA:
		return 100
	case ResultTierB:
		return 75
	case ResultTierC:
		return 50
	}
	return 0
}

// Candidate is one historical event surfaced by the matcher's search.
type Candidate struct {
	EventID     int64
	HomeTeam    string
	AwayTeam    string
	Competition string
	Sport       string
	GroundType  *string
	Tier        VariationTier
	Vector      VariationVector
	Diff        VariationVector // candidate minus current, componentwise
	HomeScore   int
	AwayScore   int
	Winner      WinnerSide
	PointDiff   int
	Symmetric   bool
}

// Participants renders "Home - Away".
func (c *Candidate) Participants() string {
	return c.HomeTeam + " - " + c.AwayTeam
}

// Prediction is the emitted outcome of a SUCCESS verdict.
type Prediction struct {
	Winner    WinnerSide
	PointDiff int
}

// Verdict is the matcher's structured output for one event evaluation.
type Verdict struct {
	Event         *Event
	Vector        VariationVector
	Status        VerdictStatus
	VariationTier VariationTier
	ResultTier    ResultTier // empty unless SUCCESS
	Confidence    int
	Prediction    *Prediction // nil unless SUCCESS
	Candidates    []Candidate
	EvaluatedAt   time.Time
}

// TierCandidates returns the candidates found at the given variation tier.
func (v *Verdict) TierCandidates(tier VariationTier) []Candidate {
	out := make([]Candidate, 0, len(v.Candidates))
	for _, c := range v.Candidates {
		if c.Tier == tier {
			out = append(out, c)
		}
	}
	return out
}

// SymmetricCandidates returns the subset the unanimity rules ran over:
// the symmetric candidates of the selected variation tier.
func (v *Verdict) SymmetricCandidates() []Candidate {
	out := make([]Candidate, 0, len(v.Candidates))
	for _, c := range v.Candidates {
		if c.Tier == v.VariationTier && c.Symmetric {
			out = append(out, c)
		}
	}
	return out
}
