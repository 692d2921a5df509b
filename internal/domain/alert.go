package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertLogEntry is one persisted verdict evaluation, written whether or not
// a message went out. VariationTier is 0 and ResultTier empty when the
// verdict produced none.
type AlertLogEntry struct {
	ID              uuid.UUID
	EventID         int64
	Status          VerdictStatus
	VariationTier   VariationTier
	ResultTier      ResultTier
	Confidence      int
	PredictedWinner *WinnerSide
	PredictedDiff   *int
	CandidateCount  int
	MessageSent     bool
	CreatedAt       time.Time
}

// NewAlertLogEntry flattens a verdict into its log row.
func NewAlertLogEntry(v *Verdict, sent bool) *AlertLogEntry {
	e := &AlertLogEntry{
		ID:             uuid.New(),
		EventID:        v.Event.ID,
		Status:         v.Status,
		VariationTier:  v.VariationTier,
		ResultTier:     v.ResultTier,
		Confidence:     v.Confidence,
		CandidateCount: len(v.Candidates),
		MessageSent:    sent,
		CreatedAt:      v.EvaluatedAt,
	}
	if v.Prediction != nil {
		w := v.Prediction.Winner
		d := v.Prediction.PointDiff
		e.PredictedWinner = &w
		e.PredictedDiff = &d
	}
	return e
}
