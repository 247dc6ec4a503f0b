package valuation

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/itch-bundle-valuer/currency"
)

// Report renders the valuation as markdown: the summary, a per-currency
// table and the games that could not be priced.
func Report(title string, r Result, reg *currency.Registry) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	fmt.Fprintf(&b, "%s\n\n", r.Summary(reg))

	if r.Totals.Len() > 0 {
		b.WriteString("| Currency | Code | Total | USD rate | Approx. USD |\n")
		b.WriteString("|---|---|---:|---:|---:|\n")
		for _, bucket := range r.Totals.Buckets() {
			code, ok := reg.ISOCode(bucket.Symbol)
			if !ok {
				code = "?"
			}
			rate := reg.USDRate(bucket.Symbol)
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				bucket.Symbol,
				code,
				FormatAmount(bucket.Symbol, bucket.Amount, reg),
				rate.String(),
				formatMoney(bucket.Amount.Mul(rate), "USD"),
			)
		}
		b.WriteString("\n")
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "## Unpriced games (%d)\n\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "- %s (%d): %v\n", f.Game.Title, f.Game.ID, f.Err)
		}
	}
	return b.String()
}
