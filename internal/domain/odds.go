package domain

import (
	"fmt"
	"time"
)

// Quote is a decimal betting odd held in thousandths: 2.105 is Quote(2105).
// Fixed-point storage keeps the matcher's equality compares exact.
type Quote int64

// Accepted quote range. Nothing legitimate trades below 1.001 or above 1000.
const (
	MinQuote Quote = 1001
	MaxQuote Quote = 1000000
)

// Valid reports whether the quote lies in the accepted range.
func (q Quote) Valid() bool { return q >= MinQuote && q <= MaxQuote }

// String renders the quote at three decimal places.
func (q Quote) String() string {
	return fmt.Sprintf("%d.%03d", q/1000, q%1000)
}

// Variation is an odds movement (final minus opening) in hundredths:
// -0.12 is Variation(-12).
type Variation int64

// TierTwoTolerance is the similar-match bound: 0.04 inclusive. SQL queries
// compare against 0.0401 to keep the bound inclusive under numeric scans.
const TierTwoTolerance Variation = 4

// VariationOf truncates the movement between two quotes to two decimal
// places, matching the generated columns in event_odds. Integer division
// truncates toward zero, same as SQL trunc.
func VariationOf(open, final Quote) Variation {
	return Variation((final - open) / 10)
}

// Sign returns -1, 0, or +1 for the movement direction.
func (v Variation) Sign() int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Abs returns the magnitude of the movement.
func (v Variation) Abs() Variation {
	if v < 0 {
		return -v
	}
	return v
}

// String renders the variation with an explicit sign at two decimals.
func (v Variation) String() string {
	a := v
	sign := "+"
	if v < 0 {
		a = -v
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%02d", sign, a/100, a%100)
}

// VariationVector is the per-event odds movement (Δ1, ΔX?, Δ2). X is nil
// for two-way markets.
type VariationVector struct {
	One Variation
	X   *Variation
	Two Variation
}

// ThreeWay reports whether the vector carries a draw component.
func (v VariationVector) ThreeWay() bool { return v.X != nil }

// Equal reports component-wise equality at two decimal places. Vectors of
// different arity are never equal.
func (v VariationVector) Equal(o VariationVector) bool {
	if v.One != o.One || v.Two != o.Two {
		return false
	}
	if (v.X == nil) != (o.X == nil) {
		return false
	}
	return v.X == nil || *v.X == *o.X
}

// Within reports whether every component of o lies within tol of the
// corresponding component of v. Arity must match.
func (v VariationVector) Within(o VariationVector, tol Variation) bool {
	if (v.X == nil) != (o.X == nil) {
		return false
	}
	if (v.One - o.One).Abs() > tol || (v.Two - o.Two).Abs() > tol {
		return false
	}
	return v.X == nil || (*v.X - *o.X).Abs() <= tol
}

// SameSigns reports whether o's sign pattern matches v componentwise.
// A zero component matches either sign.
func (v VariationVector) SameSigns(o VariationVector) bool {
	match := func(a, b Variation) bool {
		return a.Sign() == 0 || b.Sign() == 0 || a.Sign() == b.Sign()
	}
	if !match(v.One, o.One) || !match(v.Two, o.Two) {
		return false
	}
	if v.X == nil || o.X == nil {
		return true
	}
	return match(*v.X, *o.X)
}

// Diff returns o minus v componentwise. The X component is present only
// when both vectors carry one.
func (v VariationVector) Diff(o VariationVector) VariationVector {
	d := VariationVector{One: o.One - v.One, Two: o.Two - v.Two}
	if v.X != nil && o.X != nil {
		x := *o.X - *v.X
		d.X = &x
	}
	return d
}

// String renders the vector as "(+0.15, -0.05, -0.12)" or the two-way form.
func (v VariationVector) String() string {
	if v.X != nil {
		return fmt.Sprintf("(%s, %s, %s)", v.One, *v.X, v.Two)
	}
	return fmt.Sprintf("(%s, %s)", v.One, v.Two)
}

// OddsLine is a normalized decimal triple extracted from one market
// document. X is nil for two-way markets.
type OddsLine struct {
	One Quote
	X   *Quote
	Two Quote
}

// SnapshotMoment tags an odds_snapshots row with the capture occasion.
type SnapshotMoment string

const (
	SnapshotOpen     SnapshotMoment = "open"
	SnapshotT30      SnapshotMoment = "t30"
	SnapshotT5       SnapshotMoment = "t5"
	SnapshotBackfill SnapshotMoment = "backfill"
)

// OddsRecord is the single odds row kept per event: the opening triple from
// discovery and the final triple from the last successful pre-start
// checkpoint. Variation columns are generated in the database, never
// written by the application.
type OddsRecord struct {
	EventID         int64
	Market          string
	OneOpen         *Quote
	XOpen           *Quote
	TwoOpen         *Quote
	OneFinal        *Quote
	XFinal          *Quote
	TwoFinal        *Quote
	VarOne          *Variation
	VarX            *Variation
	VarTwo          *Variation
	OpenCapturedAt  *time.Time
	FinalCapturedAt *time.Time
	LastSyncAt      *time.Time
}

// Vector assembles the variation vector. ok is false until both captures
// produced the components the market needs.
func (o *OddsRecord) Vector() (VariationVector, bool) {
	if o.VarOne == nil || o.VarTwo == nil {
		return VariationVector{}, false
	}
	v := VariationVector{One: *o.VarOne, Two: *o.VarTwo}
	if o.VarX != nil {
		x := *o.VarX
		v.X = &x
	}
	return v, true
}
