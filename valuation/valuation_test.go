package valuation

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/itch-bundle-valuer/currency"
	"github.com/aluiziolira/itch-bundle-valuer/models"
	"github.com/aluiziolira/itch-bundle-valuer/parser"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return &buf
}

func assertAmount(t *testing.T, totals *Totals, symbol, want string) {
	t.Helper()
	got, ok := totals.Amount(symbol)
	require.True(t, ok, "missing bucket %q", symbol)
	assert.True(t, got.Equal(dec(want)), "bucket %q = %s, want %s", symbol, got, want)
}

func scenarioGames() []*models.Game {
	return []*models.Game{
		{ID: 1, Title: "One", Price: "$3"},
		{ID: 2, Title: "Two", Price: "£1.99"},
	}
}

func TestAggregateMixedCurrencies(t *testing.T) {
	r := Aggregate(scenarioGames(), models.NewOwnedSet())

	assert.Equal(t, 2, r.Unowned)
	assert.Equal(t, []string{"$", "£"}, r.Totals.Symbols())
	assertAmount(t, r.Totals, "$", "3")
	assertAmount(t, r.Totals, "£", "1.99")
	assert.Empty(t, r.Failures)

	usd := ApproxUSD(r.Totals, currency.Default())
	assert.True(t, usd.Equal(dec("5.5273")), "approx usd = %s", usd)
}

func TestAggregateSkipsOwned(t *testing.T) {
	r := Aggregate(scenarioGames(), models.NewOwnedSet(1))

	assert.Equal(t, 1, r.Unowned)
	assert.Equal(t, []string{"£"}, r.Totals.Symbols())
	assertAmount(t, r.Totals, "£", "1.99")
	_, ok := r.Totals.Amount("$")
	assert.False(t, ok)
}

func TestAggregateAmountAfterSymbol(t *testing.T) {
	r := Aggregate([]*models.Game{{ID: 3, Price: "5.00€"}}, nil)

	assert.Equal(t, 1, r.Unowned)
	assert.Equal(t, []string{"€"}, r.Totals.Symbols())
	assertAmount(t, r.Totals, "€", "5.00")
}

func TestAggregateFreeAndWebCountButAddNothing(t *testing.T) {
	games := []*models.Game{
		{ID: 4, Price: "$2", Flag: models.FlagFree},
		{ID: 5, Price: "$7", Flag: models.FlagWeb},
		{ID: 6, Flag: models.FlagFree},
	}
	r := Aggregate(games, models.NewOwnedSet())

	assert.Equal(t, 3, r.Unowned)
	assert.Equal(t, 0, r.Totals.Len())
	assert.Empty(t, r.Failures)
}

func TestAggregateUnparseablePriceIsRecorded(t *testing.T) {
	logs := captureLogs(t)
	games := []*models.Game{
		{ID: 5, Title: "Mystery", Price: "???"},
		{ID: 6, Title: "No price"},
		{ID: 7, Title: "Priced", Price: "$1"},
	}

	r := Aggregate(games, models.NewOwnedSet())

	assert.Equal(t, 3, r.Unowned)
	assert.Equal(t, []string{"$"}, r.Totals.Symbols())
	require.Len(t, r.Failures, 2)
	assert.Equal(t, int64(5), r.Failures[0].Game.ID)
	assert.ErrorIs(t, r.Failures[0].Err, parser.ErrUnparseablePrice)
	assert.Equal(t, int64(6), r.Failures[1].Game.ID)
	assert.Contains(t, logs.String(), "failed to price a game")
	assert.Contains(t, logs.String(), "game_id=5")
}

func TestAggregateOnlyFailure(t *testing.T) {
	captureLogs(t)
	r := Aggregate([]*models.Game{{ID: 5, Price: "???"}}, nil)

	assert.Equal(t, 1, r.Unowned)
	assert.Equal(t, 0, r.Totals.Len())
	assert.Len(t, r.Failures, 1)
}

func TestAggregateEmpty(t *testing.T) {
	r := Aggregate(nil, nil)
	assert.Equal(t, 0, r.Unowned)
	assert.Equal(t, 0, r.Totals.Len())
	assert.Equal(t, "0 new games. Approximate total value in USD: $0.00.", r.Summary(currency.Default()))
}

func TestAggregateKeepsDuplicates(t *testing.T) {
	games := []*models.Game{
		{ID: 9, Price: "$4"},
		{ID: 9, Price: "$4"},
		nil,
	}
	r := Aggregate(games, nil)
	assert.Equal(t, 2, r.Unowned)
	assertAmount(t, r.Totals, "$", "8")
}

func TestAggregateIsIdempotent(t *testing.T) {
	games := append(scenarioGames(), &models.Game{ID: 3, Price: "5.00€"}, &models.Game{ID: 4, Price: "R$15"})
	owned := models.NewOwnedSet(3)

	first := Aggregate(games, owned)
	second := Aggregate(games, owned)

	assert.Equal(t, first.Unowned, second.Unowned)
	assert.Equal(t, first.Totals.Symbols(), second.Totals.Symbols())
	for _, b := range first.Totals.Buckets() {
		assertAmount(t, second.Totals, b.Symbol, b.Amount.String())
	}
	assert.Len(t, owned, 1)
	assert.Equal(t, "$3", games[0].Price)
}

func TestFirstSeenOrder(t *testing.T) {
	games := []*models.Game{
		{ID: 1, Price: "R$10"},
		{ID: 2, Price: "$1"},
		{ID: 3, Price: "R$5"},
		{ID: 4, Price: "2€"},
	}
	r := Aggregate(games, nil)
	assert.Equal(t, []string{"R$", "$", "€"}, r.Totals.Symbols())
	assertAmount(t, r.Totals, "R$", "15")
}

func TestApproxUSDUsesFallbackRate(t *testing.T) {
	logs := captureLogs(t)
	totals := NewTotals()
	totals.Add("£", dec("10"))
	totals.Add("¥", dec("300"))

	usd := ApproxUSD(totals, currency.Default())
	assert.True(t, usd.Equal(dec("312.7")), "approx usd = %s", usd)
	assert.Contains(t, logs.String(), "no usd conversion rate")
}
