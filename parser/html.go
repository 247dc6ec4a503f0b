package parser

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/itch-bundle-valuer/models"
)

// Game cell selectors. Sale pages carry promotional grids below the bundle,
// so their selector is narrowed to the sale's own grid.
const (
	PurchaseCellSelector = "div[data-game_id]"
	SaleCellSelector     = ".sale_page .game_grid_widget div[data-game_id]"
	BundleListSelector   = "section.bundle_keys li"
)

// GamesFromHTML extracts every game cell matched by selector.
func GamesFromHTML(html, selector string) ([]*models.Game, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	games := make([]*models.Game, 0)
	doc.Find(selector).Each(func(_ int, cell *goquery.Selection) {
		game, err := gameFromCell(cell)
		if err != nil {
			slog.Warn("skipping game cell", slog.Any("error", err))
			return
		}
		games = append(games, game)
	})
	return games, nil
}

func gameFromCell(cell *goquery.Selection) (*models.Game, error) {
	rawID, _ := cell.Attr("data-game_id")
	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("game id %q: %w", rawID, err)
	}

	link := cell.Find(".game_cell_data a.game_link")
	href, _ := link.Attr("href")

	author := cell.Find(".game_author")
	authorLink := author.Find("a")
	authorURL, _ := authorLink.Attr("href")

	game := &models.Game{
		ID:        id,
		Title:     link.Text(),
		ShortText: cell.Find(".game_text").Text(),
		URL:       href,
		Price:     cell.Find("a.price_tag .price_value").Text(),
		User: models.User{
			ID:   authorID(authorLink),
			Name: author.Text(),
			URL:  authorURL,
		},
	}
	NormalizeGame(game)
	game.Flag = cellFlag(cell, game.Price)
	return game, nil
}

// cellFlag marks cells without a price tag. Browser games carry a web_flag
// badge; anything else without a price is free to claim.
func cellFlag(cell *goquery.Selection, price string) models.Flag {
	if price != "" && !strings.EqualFold(price, "free") {
		return models.FlagNone
	}
	if cell.Find(".web_flag").Length() > 0 {
		return models.FlagWeb
	}
	return models.FlagFree
}

// authorID reads the user id out of a data-label such as "user:1234".
func authorID(link *goquery.Selection) int64 {
	label, ok := link.Attr("data-label")
	if !ok {
		return 0
	}
	_, raw, found := strings.Cut(label, ":")
	if !found {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// BundlesFromHTML lists the bundles on the purchased bundles page. Only the
// name, purchase date and download link are known at this point.
func BundlesFromHTML(html string) ([]*models.Bundle, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	bundles := make([]*models.Bundle, 0)
	doc.Find(BundleListSelector).Each(func(_ int, li *goquery.Selection) {
		link := li.Find("a").First()
		href, _ := link.Attr("href")
		purchased, _ := li.Find("abbr").First().Attr("title")
		bundles = append(bundles, &models.Bundle{
			Type:         "bundle",
			Name:         strings.TrimSpace(link.Text()),
			PurchaseDate: purchased,
			DownloadURL:  href,
			Games:        []*models.Game{},
		})
	})
	return bundles, nil
}
