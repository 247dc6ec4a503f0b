package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/aluiziolira/itch-bundle-valuer/models"
)

func gameCell(id int, title, price string) string {
	return fmt.Sprintf(`<div class="game_cell" data-game_id="%d">
  <div class="game_cell_data">
    <div class="game_title"><a class="game_link" href="https://dev%d.itch.io/game-%d"> %s </a>
      <a class="price_tag"><div class="price_value">%s</div></a>
    </div>
    <div class="game_text"> Short text %d </div>
    <div class="game_author"><a data-label="user:%d" href="https://dev%d.itch.io"> Dev %d </a></div>
  </div>
</div>`, id, id, id, title, price, id, id*10, id, id)
}

func TestGamesFromHTMLPurchases(t *testing.T) {
	html := gameCell(11, "Alpha", "$3") + gameCell(12, "Beta", "5.00€") + `<div data-game_id="nope"></div>`

	games, err := GamesFromHTML(html, PurchaseCellSelector)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("games=%d, want 2", len(games))
	}

	first := games[0]
	if first.ID != 11 || first.Title != "Alpha" || first.Price != "$3" {
		t.Fatalf("unexpected first game: %+v", first)
	}
	if first.URL != "https://dev11.itch.io/game-11" {
		t.Fatalf("url=%q", first.URL)
	}
	if first.ShortText != "Short text 11" {
		t.Fatalf("short text=%q", first.ShortText)
	}
	if first.User.ID != 110 || first.User.Name != "Dev 11" || first.User.URL != "https://dev11.itch.io" {
		t.Fatalf("unexpected user: %+v", first.User)
	}
	if games[1].Price != "5.00€" {
		t.Fatalf("second price=%q", games[1].Price)
	}
}

func TestGamesFromHTMLSalePageIgnoresPromotions(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><body><div class="sale_page"><div class="game_grid_widget">`)
	b.WriteString(gameCell(1, "On Sale", "$2"))
	b.WriteString(gameCell(2, "Also On Sale", "£1.50"))
	b.WriteString(`</div></div><div class="promo_grid">`)
	b.WriteString(gameCell(3, "Promoted", "$9"))
	b.WriteString(`</div></body></html>`)

	games, err := GamesFromHTML(b.String(), SaleCellSelector)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("games=%d, want 2", len(games))
	}
	for _, g := range games {
		if g.ID == 3 {
			t.Fatalf("promoted game leaked into sale games")
		}
	}
}

func TestGamesFromHTMLSalePageFlagsUnpricedCells(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<div class="sale_page"><div class="game_grid_widget">`)
	b.WriteString(gameCell(1, "Paid", "$2"))
	b.WriteString(`<div class="game_cell" data-game_id="2"><div class="game_cell_data">
    <div class="game_title"><a class="game_link" href="https://dev2.itch.io/free">Free One</a></div>
  </div></div>`)
	b.WriteString(`<div class="game_cell" data-game_id="3"><div class="game_cell_data">
    <div class="game_title"><a class="game_link" href="https://dev3.itch.io/web">Web One</a>
      <span class="web_flag">Play in browser</span></div>
  </div></div>`)
	b.WriteString(`</div></div>`)

	games, err := GamesFromHTML(b.String(), SaleCellSelector)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(games) != 3 {
		t.Fatalf("games=%d, want 3", len(games))
	}
	want := []models.Flag{models.FlagNone, models.FlagFree, models.FlagWeb}
	for i, g := range games {
		if g.Flag != want[i] {
			t.Errorf("game %d flag=%q, want %q", g.ID, g.Flag, want[i])
		}
	}
}

func TestBundlesFromHTML(t *testing.T) {
	html := `<section class="bundle_keys"><ul>
<li><a href="https://itch.io/bundle/download/abc">Bundle for Racial Justice</a> <abbr title="2020-06-10 15:00:00">Jun 10</abbr></li>
<li><a href="https://itch.io/bundle/download/def">Ukraine Bundle</a></li>
</ul></section>`

	bundles, err := BundlesFromHTML(html)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("bundles=%d, want 2", len(bundles))
	}
	if bundles[0].Name != "Bundle for Racial Justice" || bundles[0].PurchaseDate != "2020-06-10 15:00:00" {
		t.Fatalf("unexpected bundle: %+v", bundles[0])
	}
	if bundles[1].DownloadURL != "https://itch.io/bundle/download/def" || bundles[1].PurchaseDate != "" {
		t.Fatalf("unexpected bundle: %+v", bundles[1])
	}
	if bundles[0].Type != "bundle" || bundles[0].Games == nil {
		t.Fatalf("bundle not initialised: %+v", bundles[0])
	}
}
