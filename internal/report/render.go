// Package report renders matcher verdicts into Telegram HTML messages.
package report

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/oddswatch/engine/internal/domain"
)

// maxMessageLen bounds one Telegram message. Byte length is a conservative
// proxy for Telegram's 4096-character cap.
const maxMessageLen = 4000

// Renderer formats verdicts for delivery. The location is only used to
// present kickoff times; everything is stored and computed in UTC.
type Renderer struct {
	loc *time.Location
}

// NewRenderer creates a renderer presenting times in loc.
func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{loc: loc}
}

// Render produces the message sequence for a verdict. A verdict with no
// candidates renders nothing: there is no report to send. Reports too long
// for one message are split on candidate boundaries, never mid-candidate.
func (r *Renderer) Render(v *domain.Verdict, odds *domain.OddsRecord) []string {
	if v.Status == domain.VerdictNoCandidates {
		return nil
	}

	head := r.header(v, odds)
	blocks := candidateBlocks(v)
	tail := verdictLine(v)

	single := head + strings.Join(blocks, "") + tail
	if len(single) <= maxMessageLen {
		return []string{single}
	}
	return splitMessages(head, statusHeader(v.Status)+" (continued)\n\n", blocks, tail)
}

// splitMessages packs candidate blocks greedily into messages, opening each
// follow-up with cont and closing the last with tail.
func splitMessages(head, cont string, blocks []string, tail string) []string {
	var msgs []string
	var b strings.Builder
	b.WriteString(head)

	flush := func(next string) {
		msgs = append(msgs, b.String())
		b.Reset()
		b.WriteString(next)
	}

	for _, block := range blocks {
		if b.Len()+len(block) > maxMessageLen {
			flush(cont)
		}
		b.WriteString(block)
	}
	if b.Len()+len(tail) > maxMessageLen {
		flush(cont)
	}
	b.WriteString(tail)
	msgs = append(msgs, b.String())
	return msgs
}

func statusHeader(s domain.VerdictStatus) string {
	switch s {
	case domain.VerdictSuccess:
		return "✅ <b>CANDIDATE REPORT - SUCCESS</b>"
	case domain.VerdictNoMatch:
		return "❌ <b>CANDIDATE REPORT - NO MATCH</b>"
	}
	return "❓ <b>CANDIDATE REPORT</b>"
}

func (r *Renderer) header(v *domain.Verdict, odds *domain.OddsRecord) string {
	e := v.Event
	var b strings.Builder

	b.WriteString(statusHeader(v.Status))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "🏆 %s\n", html.EscapeString(e.Participants()))
	fmt.Fprintf(&b, "🏟️ %s (%s)\n", html.EscapeString(e.Competition), html.EscapeString(e.Sport))
	fmt.Fprintf(&b, "⏰ Starts at %s", e.StartTime.In(r.loc).Format("15:04"))
	if mins := domain.MinutesToStart(v.EvaluatedAt, e.StartTime); mins > 0 {
		fmt.Fprintf(&b, " (in %d minutes)", mins)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "📈 Current Variations:\n   %s\n\n", varsLine(v.Vector))
	fmt.Fprintf(&b, "💰 Current Odds:\n   %s\n\n", oddsLine(odds))

	tier1 := v.TierCandidates(domain.TierExact)
	tier2 := v.TierCandidates(domain.TierSimilar)
	b.WriteString("🔍 Candidate Summary:\n")
	fmt.Fprintf(&b, "   • Tier 1 (exact): %d\n", len(tier1))
	fmt.Fprintf(&b, "   • Tier 2 (similar): %d", len(tier2))
	if n := asymmetricCount(tier2); n > 0 {
		fmt.Fprintf(&b, " (%d non-symmetric)", n)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "   • Selected tier: %d\n", int(v.VariationTier))
	if v.Status == domain.VerdictSuccess {
		fmt.Fprintf(&b, "   • Confidence: %d%%\n", v.Confidence)
	}
	b.WriteString("\n")

	return b.String()
}

// candidateBlocks renders every candidate, grouped under its tier heading.
// Each block is self-contained so the splitter can break between any two.
func candidateBlocks(v *domain.Verdict) []string {
	var blocks []string
	for _, tier := range []struct {
		tier  domain.VariationTier
		title string
	}{
		{domain.TierExact, "🎯 <b>Tier 1 - Exact Variations"},
		{domain.TierSimilar, "📊 <b>Tier 2 - Similar Variations"},
	} {
		cands := v.TierCandidates(tier.tier)
		for i, c := range cands {
			var b strings.Builder
			if i == 0 {
				fmt.Fprintf(&b, "%s (%d):</b>\n", tier.title, len(cands))
			}
			fmt.Fprintf(&b, "   %d. %s → %s%s\n", i+1, html.EscapeString(c.Participants()), resultText(&c), symmetryMark(&c))
			if c.Competition != "" {
				fmt.Fprintf(&b, "      Competition: %s\n", html.EscapeString(c.Competition))
			}
			fmt.Fprintf(&b, "      Variations: %s\n", varsLine(c.Vector))
			if c.Tier == domain.TierSimilar {
				fmt.Fprintf(&b, "      Differences: %s\n", varsLine(c.Diff))
			}
			b.WriteString("\n")
			blocks = append(blocks, b.String())
		}
	}
	return blocks
}

func verdictLine(v *domain.Verdict) string {
	if v.Status == domain.VerdictSuccess {
		return fmt.Sprintf("🎯 <b>Prediction: %s</b> (tier %s, %d%%)", predictionText(v), v.ResultTier, v.Confidence)
	}
	return "❌ <b>No prediction:</b> candidate outcomes disagree"
}

// predictionText renders the outcome in the report's words: the winning
// side by name, the margin, and for scoreline-unanimous verdicts the exact
// score itself.
func predictionText(v *domain.Verdict) string {
	p := v.Prediction
	if p.Winner == domain.WinnerDraw {
		return "Draw"
	}
	name := sideName(p.Winner)
	if v.ResultTier == domain.ResultTierA {
		if sym := v.SymmetricCandidates(); len(sym) > 0 {
			c := sym[0]
			return fmt.Sprintf("%s wins by %d (exact score %d:%d)", name, p.PointDiff, c.HomeScore, c.AwayScore)
		}
	}
	return fmt.Sprintf("%s wins by %d", name, p.PointDiff)
}

func sideName(w domain.WinnerSide) string {
	switch w {
	case domain.WinnerHome:
		return "Home"
	case domain.WinnerAway:
		return "Away"
	}
	return "Draw"
}

func resultText(c *domain.Candidate) string {
	if c.Winner == domain.WinnerDraw {
		return fmt.Sprintf("%d:%d (draw)", c.HomeScore, c.AwayScore)
	}
	return fmt.Sprintf("%d:%d (%s won by %d)", c.HomeScore, c.AwayScore, sideName(c.Winner), c.PointDiff)
}

func symmetryMark(c *domain.Candidate) string {
	if c.Tier == domain.TierExact {
		return ""
	}
	if c.Symmetric {
		return " ✅"
	}
	return " ❌ (non-symmetric)"
}

// varsLine renders a vector as labelled deltas: "Δ1: +0.15, ΔX: -0.02, Δ2: -0.12".
func varsLine(vec domain.VariationVector) string {
	var parts []string
	parts = append(parts, "Δ1: "+vec.One.String())
	if vec.X != nil {
		parts = append(parts, "ΔX: "+vec.X.String())
	}
	parts = append(parts, "Δ2: "+vec.Two.String())
	return strings.Join(parts, ", ")
}

// oddsLine renders each opening→final pair that is complete. The draw column
// appears only when both captures carried it.
func oddsLine(o *domain.OddsRecord) string {
	if o == nil {
		return "not available"
	}
	var parts []string
	if o.OneOpen != nil && o.OneFinal != nil {
		parts = append(parts, fmt.Sprintf("1: %s→%s", o.OneOpen, o.OneFinal))
	}
	if o.XOpen != nil && o.XFinal != nil {
		parts = append(parts, fmt.Sprintf("X: %s→%s", o.XOpen, o.XFinal))
	}
	if o.TwoOpen != nil && o.TwoFinal != nil {
		parts = append(parts, fmt.Sprintf("2: %s→%s", o.TwoOpen, o.TwoFinal))
	}
	if len(parts) == 0 {
		return "not available"
	}
	return strings.Join(parts, ", ")
}

func asymmetricCount(cands []domain.Candidate) int {
	n := 0
	for _, c := range cands {
		if !c.Symmetric {
			n++
		}
	}
	return n
}
