package valuation

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/aluiziolira/itch-bundle-valuer/currency"
)

var countPrinter = message.NewPrinter(language.AmericanEnglish)

// ApproxUSD converts every bucket with the registry's rate and sums them.
func ApproxUSD(t *Totals, reg *currency.Registry) decimal.Decimal {
	return lo.Reduce(t.Buckets(), func(acc decimal.Decimal, b Bucket, _ int) decimal.Decimal {
		return acc.Add(b.Amount.Mul(reg.USDRate(b.Symbol)))
	}, decimal.Zero)
}

// FormatAmount renders amount in the currency behind symbol. Symbols
// without an ISO code are printed raw, e.g. "¥3.5".
func FormatAmount(symbol string, amount decimal.Decimal, reg *currency.Registry) string {
	code, ok := reg.ISOCode(symbol)
	if !ok {
		return symbol + amount.String()
	}
	return formatMoney(amount, code)
}

// formatMoney uses US separators for every currency so a summary never
// mixes number styles.
func formatMoney(amount decimal.Decimal, code string) string {
	cur := money.New(0, code).Currency()
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return money.NewFormatter(cur.Fraction, ".", ",", cur.Grapheme, cur.Template).Format(minor.IntPart())
}

// Breakdown joins the per-currency totals in first-seen order.
func Breakdown(t *Totals, reg *currency.Registry) string {
	parts := lo.Map(t.Buckets(), func(b Bucket, _ int) string {
		return FormatAmount(b.Symbol, b.Amount, reg)
	})
	return strings.Join(parts, ", ")
}

// Format renders the summary sentence, for example
// "2 new games. Approximate total value in USD: $5.53, by way of $3.00, £1.99."
// The breakdown is left out when there is nothing priced.
func Format(t *Totals, unowned int, reg *currency.Registry) string {
	usd := formatMoney(ApproxUSD(t, reg), money.USD)

	var suffix string
	if breakdown := Breakdown(t, reg); breakdown != "" {
		suffix = ", by way of " + breakdown
	}
	return fmt.Sprintf("%s new games. Approximate total value in USD: %s%s.",
		countPrinter.Sprintf("%d", unowned), usd, suffix)
}

// Summary renders r with Format.
func (r Result) Summary(reg *currency.Registry) string {
	return Format(r.Totals, r.Unowned, reg)
}
