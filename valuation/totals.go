// Package valuation prices the unowned games of a bundle and renders the
// result as a one line summary.
package valuation

import "github.com/shopspring/decimal"

// Totals accumulates amounts per currency symbol, remembering the order in
// which symbols were first seen.
type Totals struct {
	order   []string
	amounts map[string]decimal.Decimal
}

// NewTotals returns an empty accumulator.
func NewTotals() *Totals {
	return &Totals{amounts: make(map[string]decimal.Decimal)}
}

// Add accumulates amount under symbol and reports whether the symbol is new.
func (t *Totals) Add(symbol string, amount decimal.Decimal) bool {
	current, seen := t.amounts[symbol]
	if !seen {
		t.order = append(t.order, symbol)
	}
	t.amounts[symbol] = current.Add(amount)
	return !seen
}

// Amount returns the total for symbol.
func (t *Totals) Amount(symbol string) (decimal.Decimal, bool) {
	if t == nil {
		return decimal.Zero, false
	}
	v, ok := t.amounts[symbol]
	return v, ok
}

// Symbols returns the symbols in first-seen order.
func (t *Totals) Symbols() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Len is the number of currency buckets.
func (t *Totals) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Bucket is one currency's total.
type Bucket struct {
	Symbol string
	Amount decimal.Decimal
}

// Buckets returns the totals in first-seen order.
func (t *Totals) Buckets() []Bucket {
	if t == nil {
		return nil
	}
	out := make([]Bucket, 0, len(t.order))
	for _, s := range t.order {
		out = append(out, Bucket{Symbol: s, Amount: t.amounts[s]})
	}
	return out
}
