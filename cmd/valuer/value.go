package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"

	"github.com/aluiziolira/itch-bundle-valuer/config"
	"github.com/aluiziolira/itch-bundle-valuer/currency"
	"github.com/aluiziolira/itch-bundle-valuer/loader"
	"github.com/aluiziolira/itch-bundle-valuer/models"
	"github.com/aluiziolira/itch-bundle-valuer/scraper"
	"github.com/aluiziolira/itch-bundle-valuer/valuation"
)

type valueCmd struct {
	cfg    *config.Config
	owned  string
	games  string
	url    string
	report bool
	title  string
}

func (*valueCmd) Name() string     { return "value" }
func (*valueCmd) Synopsis() string { return "estimate what a bundle adds to your library" }
func (*valueCmd) Usage() string {
	return `valuer value (-games <games.json> | -url <bundle url>) [-owned <file or dir>] [-report]

  Prices the games of a bundle you do not own yet and prints the
  approximate total in USD. -url accepts charity (/b/) and sale (/s/) pages.
`
}

func (c *valueCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.games, "games", "", "Games document (games.json, export or bundle list)")
	f.StringVar(&c.url, "url", "", "Bundle page URL to fetch")
	f.StringVar(&c.owned, "owned", c.owned, "Ownership ids, export file or export directory")
	f.BoolVar(&c.report, "report", false, "Render a per-currency markdown report")
	f.StringVar(&c.title, "title", "", "Report title")
	f.StringVar(&c.cfg.SessionCookie, "session", c.cfg.SessionCookie, "itchio session cookie for -url")
}

func (c *valueCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if (c.games == "") == (c.url == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -games or -url is required")
		f.Usage()
		return subcommands.ExitUsageError
	}

	games, err := c.loadGames(ctx)
	if err != nil {
		slog.Error("loading games", slog.Any("error", err))
		return subcommands.ExitFailure
	}

	owned, err := c.loadOwned()
	if err != nil {
		slog.Error("loading owned games", slog.Any("error", err))
		return subcommands.ExitFailure
	}

	reg := currency.Default()
	result := valuation.Aggregate(games, owned)
	summary := result.Summary(reg)
	slog.Info("bundle valued",
		slog.Int("games", len(games)),
		slog.Int("owned", len(owned)),
		slog.Int("unowned", result.Unowned),
		slog.Int("unpriced", len(result.Failures)),
	)

	if !c.report {
		fmt.Println(summary)
		return subcommands.ExitSuccess
	}

	title := c.title
	if title == "" {
		title = "Bundle value"
		if c.url != "" {
			title = c.url
		}
	}
	printMarkdown(valuation.Report(title, result, reg))
	return subcommands.ExitSuccess
}

func (c *valueCmd) loadGames(ctx context.Context) ([]*models.Game, error) {
	if c.games != "" {
		return loader.LoadGames(c.games)
	}

	s, err := scraper.NewScraper(c.cfg)
	if err != nil {
		return nil, err
	}
	return s.GamesForURL(ctx, c.url)
}

// loadOwned treats a missing default source as owning nothing.
func (c *valueCmd) loadOwned() (models.OwnedSet, error) {
	if c.owned == "" {
		return models.NewOwnedSet(), nil
	}
	if _, err := os.Stat(c.owned); os.IsNotExist(err) {
		slog.Warn("ownership source not found, valuing every game", slog.String("path", c.owned))
		return models.NewOwnedSet(), nil
	}
	return loader.LoadOwned(c.owned)
}

// printMarkdown renders md for the terminal and falls back to the raw text.
func printMarkdown(md string) {
	out, err := glamour.Render(md, "auto")
	if err != nil {
		slog.Debug("markdown rendering failed", slog.Any("error", err))
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}
