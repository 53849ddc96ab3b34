package validation

import (
	"fmt"
	"strings"
)

const ruleWidth = 70

// Render formats the report as plain text
func Render(r *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "RISK SCORE VALIDATION REPORT\n%s\n", strings.Repeat("=", ruleWidth))
	fmt.Fprintf(&b, "Period: %s to %s (%d records, %d benchmark closes)\n\n",
		r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), r.Records, r.PricePoints)
	if r.Unscored > 0 {
		fmt.Fprintf(&b, "%d records had no indicator readings and are excluded from score statistics\n\n", r.Unscored)
	}

	section(&b, "SCORE VS FORWARD RETURNS")
	for _, h := range r.Horizons {
		fmt.Fprintf(&b, "%d-day forward returns:\n", h.Horizon)
		if h.Insufficient {
			fmt.Fprintf(&b, "  insufficient data (%d pairs)\n\n", h.Samples)
			continue
		}
		fmt.Fprintf(&b, "  correlation:          %s\n", optional(h.Correlation, "%.3f"))
		fmt.Fprintf(&b, "  mean return:          %s\n", optional(h.MeanReturn, "%.2f%%"))
		fmt.Fprintf(&b, "  high score (>= %.0f):   %s\n", r.HighScoreMin, optional(h.HighScoreReturn, "%.2f%%"))
		fmt.Fprintf(&b, "  low score (< %.0f):     %s\n", r.LowScoreMax, optional(h.LowScoreReturn, "%.2f%%"))
		fmt.Fprintf(&b, "  samples:              %d\n\n", h.Samples)
	}
	if len(r.Horizons) > 0 && r.Horizons[0].Correlation != nil {
		// Higher risk should precede lower returns
		switch c := *r.Horizons[0].Correlation; {
		case c < -0.3:
			b.WriteString("STRONG: risk score anticipates weaker returns\n\n")
		case c < 0:
			b.WriteString("WEAK: low predictive value, consider refining thresholds\n\n")
		default:
			b.WriteString("INVERSE: higher risk scores preceded higher returns, check the rules\n\n")
		}
	}

	section(&b, "REGIME CHANGE ACCURACY")
	if len(r.RegimeChanges) == 0 {
		b.WriteString("No upward regime changes recorded\n")
	}
	for _, c := range r.RegimeChanges {
		fmt.Fprintf(&b, "%s: %s -> %s (score %.1f)\n", c.Timestamp.Format("2006-01-02"), c.From, c.To, c.Score)
		if c.MaxDrawdown != nil {
			fmt.Fprintf(&b, "  max drawdown: %.2f%% [%s]\n", *c.MaxDrawdown, c.Outcome)
		} else {
			fmt.Fprintf(&b, "  [%s] benchmark window not complete\n", c.Outcome)
		}
	}
	b.WriteString("\n")

	section(&b, "CRITICAL ALERT TIMING")
	if len(r.Alerts) == 0 {
		b.WriteString("No critical alerts recorded\n")
	}
	for _, a := range r.Alerts {
		fmt.Fprintf(&b, "%s: %s", a.Timestamp.Format("2006-01-02"), a.Type)
		if a.Return != nil {
			fmt.Fprintf(&b, "  return %.2f%% [%s]\n", *a.Return, a.Outcome)
		} else {
			fmt.Fprintf(&b, "  [%s]\n", a.Outcome)
		}
	}
	b.WriteString("\n")

	q := r.Quality
	section(&b, "SIGNAL QUALITY")
	fmt.Fprintf(&b, "  mean:     %.1f\n", q.Mean)
	fmt.Fprintf(&b, "  std dev:  %.1f%s\n", q.StdDev, flag(q.Volatile, " (volatile)"))
	fmt.Fprintf(&b, "  range:    %.1f - %.1f\n", q.Min, q.Max)
	fmt.Fprintf(&b, "  flips:    %d%s\n", q.Flips, flag(q.Whipsaw, " (whipsaw)"))
	if q.Volatile {
		b.WriteString("Scores are volatile, consider smoothing or wider thresholds\n")
	}
	if q.Whipsaw {
		b.WriteString("Frequent regime changes, consider a wider hysteresis margin\n")
	}

	return b.String()
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "%s\n%s\n", title, strings.Repeat("-", ruleWidth))
}

func optional(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}

func flag(on bool, s string) string {
	if on {
		return s
	}
	return ""
}
