// Package userstyle writes the owned game id list and the user styles that
// dim, hide or flag owned games while browsing itch.io.
package userstyle

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/samber/lo"

	"github.com/aluiziolira/itch-bundle-valuer/models"
)

// Output file names.
const (
	IDsFile      = "game_ids.json"
	DimmerFile   = "Itch.io Owned Game Dimmer.user.css"
	HiderFile    = "Itch.io Owned Game Hider.user.css"
	DeclarerFile = "Itch.io Owned Game Declarer.user.css"
)

var header = template.Must(template.New("header").Parse(`/* ==UserStyle==
@name        Itch.io Owned Game {{.Name}}
@description {{.Description}} Generated from a list of owned game IDs.
@match       https://itch.io/*
@exclude     https://itch.io/my-purchases*
==/UserStyle== */
/*! Last updated: {{.Updated}} */`))

type style struct {
	File        string
	Name        string
	Description string
	Selector    func(id int64) string
	Body        string
}

var styles = []style{
	{
		File:        DimmerFile,
		Name:        "Dimmer",
		Description: "Dims owned games.",
		Selector:    gameCellSelector,
		Body:        " { opacity: 30% !important; }",
	},
	{
		File:        HiderFile,
		Name:        "Hider",
		Description: "Hides owned games.",
		Selector:    gameCellSelector,
		Body:        " { display: none; }",
	},
	{
		File:        DeclarerFile,
		Name:        "Declarer",
		Description: "Makes obvious that you own games.",
		Selector: func(id int64) string {
			return fmt.Sprintf(`html:has(head meta[name="itch:path"][content="games/%d"]) .header_buy_row::before`, id)
		},
		Body: " { content: 'HEY! YOU OWN THIS ALREADY!' }",
	},
}

func gameCellSelector(id int64) string {
	return fmt.Sprintf(`[data-game_id="%d"]`, id)
}

// Render returns the stylesheet for one of the output files.
func Render(file string, owned models.OwnedSet, now time.Time) (string, error) {
	s, ok := lo.Find(styles, func(s style) bool { return s.File == file })
	if !ok {
		return "", fmt.Errorf("unknown user style %q", file)
	}
	return render(s, owned.Sorted(), now)
}

func render(s style, ids []int64, now time.Time) (string, error) {
	var b strings.Builder
	err := header.Execute(&b, map[string]string{
		"Name":        s.Name,
		"Description": s.Description,
		"Updated":     now.UTC().Format("2006-01-02T15:04:05.000Z"),
	})
	if err != nil {
		return "", fmt.Errorf("render %s header: %w", s.Name, err)
	}
	b.WriteString(strings.Join(lo.Map(ids, func(id int64, _ int) string { return s.Selector(id) }), ","))
	b.WriteString(s.Body)
	return b.String(), nil
}

// Write stores game_ids.json and every user style in dir, creating it when
// needed. It returns the written paths.
func Write(dir string, owned models.OwnedSet, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %q: %w", dir, err)
	}

	ids := owned.Sorted()
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode game ids: %w", err)
	}
	idsPath := filepath.Join(dir, IDsFile)
	if err := os.WriteFile(idsPath, encoded, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", idsPath, err)
	}
	slog.Info("wrote game ids", slog.String("path", idsPath), slog.Int("ids", len(ids)))

	written := []string{idsPath}
	for _, s := range styles {
		css, err := render(s, ids, now)
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, s.File)
		if err := os.WriteFile(path, []byte(css), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		slog.Info("wrote user style", slog.String("path", path))
		written = append(written, path)
	}
	return written, nil
}
