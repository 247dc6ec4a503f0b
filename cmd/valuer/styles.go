package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/subcommands"

	"github.com/aluiziolira/itch-bundle-valuer/loader"
	"github.com/aluiziolira/itch-bundle-valuer/userstyle"
)

type stylesCmd struct {
	owned string
	dir   string
}

func (*stylesCmd) Name() string     { return "styles" }
func (*stylesCmd) Synopsis() string { return "write owned game ids and storefront user styles" }
func (*stylesCmd) Usage() string {
	return `valuer styles [-owned <file or dir>] [-dir <output dir>]

  Writes game_ids.json and the Dimmer, Hider and Declarer user styles for
  the games you own.
`
}

func (c *stylesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owned, "owned", c.owned, "Ownership ids, export file or export directory")
	f.StringVar(&c.dir, "dir", "userstyles", "Output directory")
}

func (c *stylesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	owned, err := loader.LoadOwned(c.owned)
	if err != nil {
		slog.Error("loading owned games", slog.Any("error", err))
		return subcommands.ExitFailure
	}

	written, err := userstyle.Write(c.dir, owned, time.Now())
	if err != nil {
		slog.Error("writing user styles", slog.Any("error", err))
		return subcommands.ExitFailure
	}

	slog.Info("user styles written", slog.Int("ids", len(owned)), slog.String("dir", c.dir))
	for _, path := range written {
		fmt.Println(path)
	}
	return subcommands.ExitSuccess
}
