// Package market reduces raw upstream market payloads to canonical decimal
// odds triples. Unknown market variants degrade to a nil line (no-odds)
// instead of erroring, so one odd payload never aborts a sweep.
package market

import (
	"strconv"
	"strings"

	"github.com/oddswatch/engine/internal/domain"
)

// Choice is a single outcome quote as served by the upstream. Names follow
// the 1/X/2 convention; prices are fractional strings like "8/13".
type Choice struct {
	Name                   string `json:"name"`
	FractionalValue        string `json:"fractionalValue"`
	InitialFractionalValue string `json:"initialFractionalValue"`
	Winning                bool   `json:"winning"`
}

// Market is one market block from an odds payload.
type Market struct {
	MarketID   int64    `json:"marketId"`
	MarketName string   `json:"marketName"`
	IsLive     bool     `json:"isLive"`
	Choices    []Choice `json:"choices"`
}

// ParseFractional converts a fractional quote "n/d" into a decimal Quote:
// n/d + 1, truncated to three fractional digits. Integer arithmetic keeps
// the truncation exact.
func ParseFractional(s string) (domain.Quote, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return 0, domain.ErrNormalize("fractional quote " + strconv.Quote(s) + " has no slash")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
	if err != nil {
		return 0, domain.ErrNormalize("fractional numerator " + strconv.Quote(num) + " is not an integer")
	}
	d, err := strconv.ParseInt(strings.TrimSpace(den), 10, 64)
	if err != nil {
		return 0, domain.ErrNormalize("fractional denominator " + strconv.Quote(den) + " is not an integer")
	}
	if d == 0 {
		return 0, domain.ErrNormalize("fractional quote " + strconv.Quote(s) + " divides by zero")
	}
	if n < 0 || d < 0 {
		return 0, domain.ErrNormalize("fractional quote " + strconv.Quote(s) + " is negative")
	}
	return domain.Quote(n*1000/d + 1000), nil
}

// ExtractOpening returns the canonical opening triple for the sport, read
// from each choice's initial price. nil means no market matched (no-odds).
func ExtractOpening(markets []Market, sport string) *domain.OddsLine {
	return selectLine(markets, sport, func(c Choice) string { return c.InitialFractionalValue })
}

// ExtractCurrent returns the canonical current triple for the sport, read
// from each choice's live price. nil means no market matched (no-odds).
func ExtractCurrent(markets []Market, sport string) *domain.OddsLine {
	return selectLine(markets, sport, func(c Choice) string { return c.FractionalValue })
}

// selectLine walks the markets in payload order and returns the first one
// whose structure matches the sport's arity: a draw column present iff the
// sport trades draws. Sports without a profile accept whichever of the two
// shapes the market carries. Quotes that fail to parse or fall outside the
// accepted range are discarded, which can disqualify the market.
func selectLine(markets []Market, sport string, price func(Choice) string) *domain.OddsLine {
	profile := domain.ProfileFor(sport)

	for _, m := range markets {
		if len(m.Choices) == 0 {
			continue
		}

		var one, x, two *domain.Quote
		for _, c := range m.Choices {
			q, err := ParseFractional(price(c))
			if err != nil || !q.Valid() {
				continue
			}
			v := q
			switch c.Name {
			case "1":
				one = &v
			case "X":
				x = &v
			case "2":
				two = &v
			}
		}

		if one == nil || two == nil {
			continue
		}

		switch {
		case profile.Known && profile.Shape == domain.ThreeWayTeam:
			if x == nil {
				continue
			}
			return &domain.OddsLine{One: *one, X: x, Two: *two}
		case profile.Known:
			// Two-way sport: a market carrying a draw column is the
			// wrong structure, not a triple missing one value.
			if x != nil {
				continue
			}
			return &domain.OddsLine{One: *one, Two: *two}
		default:
			return &domain.OddsLine{One: *one, X: x, Two: *two}
		}
	}

	return nil
}
