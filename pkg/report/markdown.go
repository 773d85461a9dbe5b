package report

import (
	"fmt"
	"strings"
)

// Markdown renders the report as the downloadable "Best Next Steps" document.
func Markdown(r Report) string {
	var b strings.Builder

	b.WriteString("# Your Best Next Steps Report\n\n")
	b.WriteString("_Based on your unique situation_\n\n")

	b.WriteString("## Key Findings\n\n")
	fmt.Fprintf(&b, "> %s\n\n", r.MotivationText)
	fmt.Fprintf(&b, "> %s\n\n", r.RevenueText)
	fmt.Fprintf(&b, "**Indicative valuation:** %s\n\n", r.ValuationRange)

	b.WriteString("## Recommended Action Plan\n\n")
	fmt.Fprintf(&b, "1. %s\n", r.PreparationAdvice)
	fmt.Fprintf(&b, "2. %s\n", r.TimelineAdvice)
	fmt.Fprintf(&b, "3. %s\n\n", r.BuyerAdvice)

	b.WriteString("## Industry Benchmarking\n\n")
	b.WriteString("| Measure | Position | Percentile |\n")
	b.WriteString("|---|---|---|\n")
	fmt.Fprintf(&b, "| Size | %s | %s |\n", r.SizeLabel, r.SizePercent)
	fmt.Fprintf(&b, "| Revenue | %s | %s |\n\n", r.RevenueLabel, r.RevenuePercent)

	b.WriteString("---\n\n")
	b.WriteString("This report is based on the information you provided and industry trends. ")
	b.WriteString("For a detailed valuation and personalized strategy, consult with an M&A advisor.\n")
	return b.String()
}
