// Package models defines data structures shared by the scraper, the export
// pipeline and the valuation engine.
package models

import (
	"sort"
	"time"
)

// Flag marks games that carry no purchase price.
type Flag string

const (
	FlagNone Flag = ""
	FlagFree Flag = "free"
	FlagWeb  Flag = "web"
)

// Unpriced reports whether the flag excludes a game from valuation.
func (f Flag) Unpriced() bool {
	return f == FlagFree || f == FlagWeb
}

// User is the author of a game.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Game is a single catalog entry as served by a bundle's games.json or
// scraped from a game cell.
type Game struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	ShortText      string `json:"short_text,omitempty"`
	URL            string `json:"url"`
	Price          string `json:"price,omitempty"`
	Flag           Flag   `json:"flag,omitempty"`
	User           User   `json:"user"`
	Classification string `json:"classification,omitempty"`
}

// Bundle is a purchased bundle and, once populated, the games it contains.
type Bundle struct {
	Type         string  `json:"type"`
	Name         string  `json:"name"`
	PurchaseDate string  `json:"purchaseDate,omitempty"`
	DownloadURL  string  `json:"downloadUrl"`
	URL          string  `json:"url"`
	ID           int64   `json:"id"`
	Games        []*Game `json:"games"`
}

// Record sources.
const (
	SourcePurchases = "purchases"
	SourceBundle    = "bundle"
)

// GameRecord is one exported row: a game and where it was found.
type GameRecord struct {
	Source     string    `json:"source"`
	BundleID   int64     `json:"bundle_id,omitempty"`
	BundleName string    `json:"bundle_name,omitempty"`
	Game       *Game     `json:"game"`
	ScrapedAt  time.Time `json:"scraped_at"`
}

// OwnedSet holds the identifiers of games the user already has.
type OwnedSet map[int64]struct{}

// NewOwnedSet builds a set from ids.
func NewOwnedSet(ids ...int64) OwnedSet {
	s := make(OwnedSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is owned. A nil set owns nothing.
func (s OwnedSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Add inserts ids into the set.
func (s OwnedSet) Add(ids ...int64) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Sorted returns the ids in ascending order.
func (s OwnedSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ScrapeResult holds the overall result of a scraping operation
type ScrapeResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Purchases    int
	Bundles      int
	BundleGames  int
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
	PageCount    int
}
