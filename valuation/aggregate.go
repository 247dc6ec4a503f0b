package valuation

import (
	"log/slog"

	"github.com/samber/lo"

	"github.com/aluiziolira/itch-bundle-valuer/models"
	"github.com/aluiziolira/itch-bundle-valuer/parser"
)

// Failure is a game whose price could not be read.
type Failure struct {
	Game *models.Game
	Err  error
}

// Result is the outcome of one valuation pass.
type Result struct {
	Totals *Totals
	// Unowned counts every unowned game, including free and web ones.
	Unowned  int
	Failures []Failure
}

// Aggregate sums the prices of the games not in owned, grouped by currency
// symbol. Free and web games count as unowned but add no value. A game whose
// price cannot be parsed is logged, recorded in Failures and left out; it
// never aborts the pass. Games are priced independently, so a game listed
// twice is counted twice.
func Aggregate(games []*models.Game, owned models.OwnedSet) Result {
	unowned := lo.Filter(games, func(g *models.Game, _ int) bool {
		return g != nil && !owned.Has(g.ID)
	})

	result := Result{Totals: NewTotals(), Unowned: len(unowned)}
	for _, game := range unowned {
		if game.Flag.Unpriced() {
			continue
		}

		price, err := parser.ParsePrice(game.Price)
		if err != nil {
			slog.Error("failed to price a game",
				slog.Int64("game_id", game.ID),
				slog.String("title", game.Title),
				slog.String("price", game.Price),
				slog.Any("error", err),
			)
			result.Failures = append(result.Failures, Failure{Game: game, Err: err})
			continue
		}

		if result.Totals.Add(price.Symbol, price.Amount) {
			slog.Info("new currency symbol",
				slog.String("symbol", price.Symbol),
				slog.String("price", game.Price),
			)
		}
	}

	slog.Debug("valuation aggregated",
		slog.Int("games", len(games)),
		slog.Int("unowned", result.Unowned),
		slog.Int("currencies", result.Totals.Len()),
		slog.Int("failures", len(result.Failures)),
	)
	return result
}
