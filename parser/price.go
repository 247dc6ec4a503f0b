package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnparseablePrice is wrapped by every ParsePrice failure.
var ErrUnparseablePrice = errors.New("unparseable price")

// ParsedPrice is a price split into its currency sign and amount.
type ParsedPrice struct {
	Symbol string
	Amount decimal.Decimal
}

// ParsePrice splits a storefront price such as "$3", "£1.99", "5.00€" or
// "R$15" into symbol and amount. The two are extracted by character class,
// so the symbol may sit on either side of the number. The symbol is every
// rune that is not an ASCII digit, '.' or ','; the amount is the digits and
// dots left once everything else is dropped.
func ParsePrice(text string) (ParsedPrice, error) {
	if strings.TrimSpace(text) == "" {
		return ParsedPrice{}, fmt.Errorf("%w: empty price text", ErrUnparseablePrice)
	}

	var symbol, number strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9', r == '.':
			number.WriteRune(r)
		case r == ',':
		default:
			symbol.WriteRune(r)
		}
	}

	if number.Len() == 0 {
		return ParsedPrice{}, fmt.Errorf("%w: no amount in %q", ErrUnparseablePrice, text)
	}
	amount, err := decimal.NewFromString(number.String())
	if err != nil {
		return ParsedPrice{}, fmt.Errorf("%w: %q: %v", ErrUnparseablePrice, text, err)
	}

	return ParsedPrice{
		Symbol: strings.TrimSpace(symbol.String()),
		Amount: amount,
	}, nil
}
