// Package currency maps storefront currency signs to ISO codes and to a
// rough US dollar conversion rate.
package currency

import (
	"log/slog"

	"github.com/shopspring/decimal"
)

// Entry describes one known currency sign.
type Entry struct {
	Symbol  string
	ISOCode string
	USDRate decimal.Decimal
}

// defaultEntries lists the signs seen on itch.io so far. Rates are a static
// approximation; extend the table when the registry warns about a sign.
var defaultEntries = []Entry{
	{Symbol: "$", ISOCode: "USD", USDRate: decimal.NewFromInt(1)},
	{Symbol: "£", ISOCode: "GBP", USDRate: decimal.RequireFromString("1.27")},
	{Symbol: "€", ISOCode: "EUR", USDRate: decimal.RequireFromString("1.08")},
	{Symbol: "R$", ISOCode: "BRL", USDRate: decimal.RequireFromString("0.19")},
}

// FallbackRate applies to signs missing from the registry.
var FallbackRate = decimal.NewFromInt(1)

// Registry is a read-only lookup table.
type Registry struct {
	entries map[string]Entry
}

var defaultRegistry = NewRegistry(defaultEntries...)

// Default returns the compiled-in registry.
func Default() *Registry {
	return defaultRegistry
}

// NewRegistry builds a registry from entries. Later entries win on
// duplicate symbols.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		r.entries[e.Symbol] = e
	}
	return r
}

// Lookup returns the entry registered for symbol.
func (r *Registry) Lookup(symbol string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.entries[symbol]
	return e, ok
}

// ISOCode returns the ISO 4217 code for symbol, if known.
func (r *Registry) ISOCode(symbol string) (string, bool) {
	e, ok := r.Lookup(symbol)
	if !ok || e.ISOCode == "" {
		return "", false
	}
	return e.ISOCode, true
}

// USDRate returns how many US dollars one unit of symbol is worth. It never
// fails: unknown signs get FallbackRate and a warning.
func (r *Registry) USDRate(symbol string) decimal.Decimal {
	e, ok := r.Lookup(symbol)
	if !ok {
		slog.Warn("no usd conversion rate for currency symbol, using fallback",
			slog.String("symbol", symbol),
			slog.String("rate", FallbackRate.String()),
		)
		return FallbackRate
	}
	return e.USDRate
}
