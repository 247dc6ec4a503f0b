// Package parser turns storefront markup and price strings into models.
package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aluiziolira/itch-bundle-valuer/models"
)

// ValidateGame ensures the scraper captured the required fields.
func ValidateGame(g *models.Game) error {
	if g == nil {
		return fmt.Errorf("game is nil")
	}
	if g.ID <= 0 {
		return fmt.Errorf("game missing id for %q", g.Title)
	}
	if strings.TrimSpace(g.Title) == "" {
		return fmt.Errorf("game %d missing title", g.ID)
	}
	return nil
}

// ValidateRecord checks the record envelope and its game.
func ValidateRecord(r *models.GameRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	switch r.Source {
	case models.SourcePurchases:
	case models.SourceBundle:
		if r.BundleID <= 0 {
			return fmt.Errorf("bundle record missing bundle id")
		}
	default:
		return fmt.Errorf("unknown record source %q", r.Source)
	}
	return ValidateGame(r.Game)
}

// NormalizeGame trims whitespace left over from markup.
func NormalizeGame(g *models.Game) {
	g.Title = strings.TrimSpace(g.Title)
	g.ShortText = strings.TrimSpace(g.ShortText)
	g.Price = strings.TrimSpace(g.Price)
	g.User.Name = strings.TrimSpace(g.User.Name)
}

// bundleInfoRegex matches the first bundle link on a download page. Group 1
// is the bundle path, group 2 its id. Observed prefixes are /b/ for charity
// bundles and /s/ for sales.
var bundleInfoRegex = regexp.MustCompile(`<a href="(/[a-z]/(\d+)[^"]+)`)

// BundleInfo extracts the bundle path and id from a download page.
func BundleInfo(html string) (path string, id int64, ok bool) {
	m := bundleInfoRegex.FindStringSubmatch(html)
	if m == nil {
		return "", 0, false
	}
	if _, err := fmt.Sscan(m[2], &id); err != nil {
		return "", 0, false
	}
	return m[1], id, true
}

var charityBundlePath = regexp.MustCompile(`^/b/(\d+)(?:/.*)?$`)

// GamesJSONPath maps a charity bundle URL (/b/<id>/...) to its games.json
// path. Sale bundles have no games.json and yield "".
func GamesJSONPath(bundleURL string) string {
	u, err := url.Parse(bundleURL)
	if err != nil {
		return ""
	}
	m := charityBundlePath.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return "/bundle/" + m[1] + "/games.json"
}

// IsSaleBundle reports whether the URL points at a sale (/s/) page.
func IsSaleBundle(bundleURL string) bool {
	u, err := url.Parse(bundleURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/s/")
}
