// Package loader reads game lists and ownership sets from the JSON
// documents produced by itch.io and by the scrape command.
package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/samber/lo"

	"github.com/aluiziolira/itch-bundle-valuer/models"
)

// ErrUnsupportedDocument is returned for JSON that holds neither games nor ids.
var ErrUnsupportedDocument = errors.New("unsupported document shape")

// ExportPrefixes are the file name prefixes of ownership exports. A
// directory load takes the newest file of each.
var ExportPrefixes = []string{
	"my_purchases_games_",
	"purchased_bundles_games_",
	"owned_games_",
}

// LoadGames reads games from path. Accepted shapes are a games.json
// wrapper ({"games": [...]}), a bare array of games, an array of bundles
// with their games, an array of export records and JSONL export records.
func LoadGames(path string) ([]*models.Game, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	games, err := ParseGames(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return games, nil
}

// ParseGames is LoadGames on an in-memory document.
func ParseGames(data []byte) ([]*models.Game, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		records, rerr := parseRecords(data)
		if rerr != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return gamesOf(records), nil
	}
	return gamesFromDocument(doc)
}

// LoadOwned reads an ownership set from a file or an export directory. A
// file may be a JSON array of ids or any document LoadGames accepts.
func LoadOwned(path string) (models.OwnedSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadOwnedDir(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	owned, err := ParseOwned(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return owned, nil
}

// ParseOwned is LoadOwned on an in-memory document.
func ParseOwned(data []byte) (models.OwnedSet, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err == nil {
		if ids, ok := idList(doc); ok {
			return models.NewOwnedSet(ids...), nil
		}
	}

	games, err := ParseGames(data)
	if err != nil {
		return nil, err
	}
	return models.NewOwnedSet(lo.Map(games, func(g *models.Game, _ int) int64 { return g.ID })...), nil
}

// LoadOwnedDir unions the newest export of each prefix found in dir.
func LoadOwnedDir(dir string) (models.OwnedSet, error) {
	files, err := LatestExports(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no ownership exports in %s", dir)
	}

	owned := models.NewOwnedSet()
	for _, file := range files {
		set, err := LoadOwned(file)
		if err != nil {
			return nil, err
		}
		owned.Add(set.Sorted()...)
		slog.Info("loaded ownership export",
			slog.String("file", file),
			slog.Int("ids", len(set)),
		)
	}
	return owned, nil
}

// LatestExports returns, for each export prefix, the lexically last
// .json or .jsonl file in dir. Export names carry a millisecond timestamp,
// so the last name is the newest export.
func LatestExports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	names := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		name := e.Name()
		ok := !e.IsDir() && (strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".jsonl"))
		return name, ok
	})
	sort.Strings(names)

	var out []string
	for _, prefix := range ExportPrefixes {
		matching := lo.Filter(names, func(name string, _ int) bool {
			return strings.HasPrefix(name, prefix)
		})
		if len(matching) > 0 {
			out = append(out, filepath.Join(dir, matching[len(matching)-1]))
		}
	}
	return out, nil
}

func gamesFromDocument(doc any) ([]*models.Game, error) {
	path, err := gamesPath(doc)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return []*models.Game{}, nil
	}

	selected, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", path, err)
	}

	raw, err := json.Marshal(flatten(selected))
	if err != nil {
		return nil, fmt.Errorf("re-encode games: %w", err)
	}
	var games []*models.Game
	if err := json.Unmarshal(raw, &games); err != nil {
		return nil, fmt.Errorf("decode games: %w", err)
	}
	return lo.Compact(games), nil
}

// gamesPath picks the JSONPath that selects game objects from doc. An empty
// path means the document is an empty list.
func gamesPath(doc any) (string, error) {
	switch v := doc.(type) {
	case map[string]any:
		if _, ok := v["games"]; ok {
			return "$.games[*]", nil
		}
		if _, ok := v["game"]; ok {
			return "$.game", nil
		}
	case []any:
		if len(v) == 0 {
			return "", nil
		}
		first, ok := v[0].(map[string]any)
		if !ok {
			break
		}
		if _, ok := first["games"]; ok {
			return "$[*].games[*]", nil
		}
		if _, ok := first["game"]; ok {
			return "$[*].game", nil
		}
		if _, ok := first["id"]; ok {
			return "$[*]", nil
		}
	}
	return "", ErrUnsupportedDocument
}

// flatten collapses the nested lists produced by chained wildcards.
func flatten(v any) []any {
	list, ok := v.([]any)
	if !ok {
		return []any{v}
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		if _, nested := item.([]any); nested {
			out = append(out, flatten(item)...)
			continue
		}
		out = append(out, item)
	}
	return out
}

// idList accepts a JSON array made only of integral numbers.
func idList(doc any) ([]int64, bool) {
	list, ok := doc.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	ids := make([]int64, 0, len(list))
	for _, item := range list {
		n, ok := item.(float64)
		if !ok || n != math.Trunc(n) {
			return nil, false
		}
		ids = append(ids, int64(n))
	}
	return ids, true
}

func parseRecords(data []byte) ([]*models.GameRecord, error) {
	var records []*models.GameRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var record models.GameRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, &record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrUnsupportedDocument
	}
	return records, nil
}

func gamesOf(records []*models.GameRecord) []*models.Game {
	return lo.FilterMap(records, func(r *models.GameRecord, _ int) (*models.Game, bool) {
		return r.Game, r.Game != nil
	})
}
