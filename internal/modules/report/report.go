// Package report assembles the per-cycle risk report.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/riskpilot/internal/domain"
	"github.com/aristath/riskpilot/internal/modules/portfolio"
	"github.com/aristath/riskpilot/internal/modules/rebalancing"
	"github.com/aristath/riskpilot/internal/modules/scoring"
)

// Payload is the structured output of one cycle
type Payload struct {
	GeneratedAt    time.Time                          `json:"generated_at"`
	CategoryScores map[string]float64                 `json:"category_scores"`
	Targets        domain.AllocationTarget            `json:"targets"`
	Drift          *domain.DriftReport                `json:"drift,omitempty"`
	CycleID        string                             `json:"cycle_id"`
	Regime         domain.Regime                      `json:"regime"`
	PreviousRegime domain.Regime                      `json:"previous_regime,omitempty"`
	Transition     domain.Transition                  `json:"transition"`
	Guidance       string                             `json:"guidance,omitempty"`
	Indicators     []domain.Indicator                 `json:"indicators"`
	Alerts         []domain.Alert                     `json:"alerts,omitempty"`
	Moves          []rebalancing.CapitalMove          `json:"moves,omitempty"`
	Concentration  []rebalancing.ConcentrationWarning `json:"concentration,omitempty"`
	Uncategorized  []portfolio.Suggestion             `json:"uncategorized,omitempty"`
	Degraded       []string                           `json:"degraded,omitempty"`
	Verification   scoring.Verification               `json:"verification"`
	Score          float64                            `json:"score"`
	PendingCount   int                                `json:"pending_count,omitempty"`
}

// Render formats the payload as the plain-text report
func Render(p Payload) string {
	var b strings.Builder
	line := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "RISK REPORT %s\n%s\n", p.GeneratedAt.Format("2006-01-02 15:04 MST"), line)
	fmt.Fprintf(&b, "Risk score: %.1f/100\n", p.Score)
	fmt.Fprintf(&b, "Regime:     %s", p.Regime)
	switch p.Transition {
	case domain.TransitionUp, domain.TransitionDown:
		fmt.Fprintf(&b, " (%s from %s)", p.Transition, p.PreviousRegime)
	case domain.TransitionInitial:
		b.WriteString(" (initial)")
	}
	if p.PendingCount > 0 {
		fmt.Fprintf(&b, " [change pending, %d confirmation(s)]", p.PendingCount)
	}
	b.WriteString("\n")
	if p.Guidance != "" {
		fmt.Fprintf(&b, "Guidance:   %s\n", p.Guidance)
	}
	fmt.Fprintf(&b, "Data:       %d/%d indicators verified\n\n", p.Verification.Passed, p.Verification.Total)

	b.WriteString("CATEGORIES\n")
	for _, name := range sortedKeys(p.CategoryScores) {
		fmt.Fprintf(&b, "  %-20s %5.1f\n", name, p.CategoryScores[name])
	}
	b.WriteString("\n")

	b.WriteString("INDICATORS\n")
	for _, ind := range p.Indicators {
		raw := "n/a"
		switch {
		case ind.Raw != nil:
			raw = fmt.Sprintf("%.2f", *ind.Raw)
		case ind.Status != "":
			raw = ind.Status
		}
		fmt.Fprintf(&b, "  %-20s %10s  score %5.1f%s\n", ind.Name, raw, ind.SubScore, indicatorFlag(ind))
	}
	b.WriteString("\n")

	if len(p.Alerts) > 0 {
		b.WriteString("ALERTS\n")
		for _, a := range p.Alerts {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", strings.ToUpper(string(a.Severity)), a.Type, a.Message)
			if a.Action != "" {
				fmt.Fprintf(&b, "         action: %s\n", a.Action)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("TARGET ALLOCATION\n")
	for _, bucket := range domain.AllBuckets() {
		target, ok := p.Targets[bucket]
		if !ok {
			continue
		}
		actual := ""
		if p.Drift != nil {
			if item, ok := p.Drift.Item(bucket); ok {
				actual = fmt.Sprintf("  actual %6.2f%%  drift %+6.2f", item.Actual, item.Signed)
			}
		}
		fmt.Fprintf(&b, "  %-20s %6.2f%%%s\n", bucket, target, actual)
	}
	if p.Drift != nil {
		fmt.Fprintf(&b, "  aggregate drift %.2f", p.Drift.Aggregate)
		if p.Drift.HasPrior {
			fmt.Fprintf(&b, " (%+.2f vs last cycle)", p.Drift.Trend)
		}
		b.WriteString("\n")
		for _, bucket := range p.Drift.ShortBuckets {
			fmt.Fprintf(&b, "  %s is net short, counted as empty\n", bucket)
		}
	}
	b.WriteString("\n")

	if len(p.Moves) > 0 {
		b.WriteString("REBALANCING\n")
		for _, m := range p.Moves {
			fmt.Fprintf(&b, "  %-7s %-20s %12s\n", m.Direction, m.Bucket, m.Amount.StringFixed(2))
		}
		b.WriteString("\n")
	}

	if len(p.Concentration) > 0 {
		b.WriteString("CONCENTRATION\n")
		for _, w := range p.Concentration {
			fmt.Fprintf(&b, "  %-10s %.2f%% of portfolio (limit %.0f%%)\n", w.Symbol, w.Weight, w.Limit)
		}
		b.WriteString("\n")
	}

	if len(p.Uncategorized) > 0 {
		b.WriteString("UNCATEGORIZED\n")
		for _, s := range p.Uncategorized {
			fmt.Fprintf(&b, "  %-10s -> %s (%s)\n", s.Symbol, s.Bucket, s.Reason)
		}
		b.WriteString("\n")
	}

	if len(p.Degraded) > 0 {
		fmt.Fprintf(&b, "DEGRADED: %s\n", strings.Join(p.Degraded, ", "))
	}
	return b.String()
}

// FileName returns the report file name for a cycle time
func FileName(at time.Time) string {
	return fmt.Sprintf("risk_report_%s.txt", at.Format("20060102"))
}

// WriteFile renders the payload into <dataDir>/reports and returns the path
func WriteFile(dataDir string, p Payload) (string, error) {
	dir := filepath.Join(dataDir, "reports")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	path := filepath.Join(dir, FileName(p.GeneratedAt))
	if err := os.WriteFile(path, []byte(Render(p)), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func indicatorFlag(ind domain.Indicator) string {
	switch {
	case ind.Stale:
		return "  (stale)"
	case ind.Neutral:
		return "  (no data)"
	}
	return ""
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
