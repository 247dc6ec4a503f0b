// Package scraper exports the games a user owns on itch.io: the my-purchases
// listing and the contents of every purchased bundle.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/itch-bundle-valuer/config"
	"github.com/aluiziolira/itch-bundle-valuer/models"
	"github.com/aluiziolira/itch-bundle-valuer/parser"
	"github.com/aluiziolira/itch-bundle-valuer/pipeline"
)

// sessionCookieName is the itch.io login cookie.
const sessionCookieName = "itchio"

// Scraper issues storefront requests one at a time through a rate limited
// colly collector.
type Scraper struct {
	cfg       *config.Config
	base      *url.URL
	collector *colly.Collector
	retry     *retryManager
	Metrics   *Metrics

	requestCount int64
	pageCount    int64
	errorCount   int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	s := &Scraper{
		cfg:          cfg,
		base:         parsed,
		collector:    collector,
		errorsByType: make(map[string]int),
		Metrics:      NewMetrics(),
	}
	s.retry = newRetryManager(cfg, s.Metrics)
	s.registerHandlers()
	return s, nil
}

// Run exports purchases and then every purchased bundle into p. The result
// is returned even when a phase fails part way.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.ScrapeResult{StartTime: time.Now()}

	err := s.eachPurchasePage(ctx, func(games []*models.Game) error {
		result.Purchases += len(games)
		s.Metrics.AddGames(models.SourcePurchases, len(games))
		return process(p, records(models.SourcePurchases, nil, games))
	})
	if err != nil {
		return s.finish(result), fmt.Errorf("purchases: %w", err)
	}

	bundles, err := s.eachBundle(ctx, func(b *models.Bundle) error {
		result.BundleGames += len(b.Games)
		s.Metrics.AddGames(models.SourceBundle, len(b.Games))
		return process(p, records(models.SourceBundle, b, b.Games))
	})
	result.Bundles = bundles
	if err != nil {
		return s.finish(result), fmt.Errorf("bundles: %w", err)
	}

	return s.finish(result), nil
}

// Purchases returns every game on the my-purchases listing.
func (s *Scraper) Purchases(ctx context.Context) ([]*models.Game, error) {
	games := make([]*models.Game, 0)
	err := s.eachPurchasePage(ctx, func(page []*models.Game) error {
		games = append(games, page...)
		return nil
	})
	return games, err
}

// Bundles returns every purchased bundle with its games populated.
func (s *Scraper) Bundles(ctx context.Context) ([]*models.Bundle, error) {
	bundles := make([]*models.Bundle, 0)
	_, err := s.eachBundle(ctx, func(b *models.Bundle) error {
		bundles = append(bundles, b)
		return nil
	})
	return bundles, err
}

// BundleGames lists the games of a bundle whose URL is already known.
// A bundle without a URL yields no games.
func (s *Scraper) BundleGames(ctx context.Context, b *models.Bundle) ([]*models.Game, error) {
	if b.URL == "" {
		slog.Warn("bundle has no url, skipping", slog.String("bundle", b.Name))
		return []*models.Game{}, nil
	}
	return s.GamesForURL(ctx, b.URL)
}

// GamesForURL lists the games on a bundle page. Charity bundles (/b/) publish
// a games.json; anything else is scraped as a sale page.
func (s *Scraper) GamesForURL(ctx context.Context, bundleURL string) ([]*models.Game, error) {
	target := s.resolve(bundleURL)

	if path := parser.GamesJSONPath(target); path != "" {
		body, err := s.fetch(ctx, PhaseGamesJSON, s.resolve(path))
		if err != nil {
			return nil, err
		}
		var doc struct {
			Games []*models.Game `json:"games"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode games.json for %s: %w", target, err)
		}
		if doc.Games == nil {
			doc.Games = []*models.Game{}
		}
		return doc.Games, nil
	}

	if !parser.IsSaleBundle(target) {
		slog.Warn("unrecognised bundle url, treating it as a sale page", slog.String("url", target))
	}
	body, err := s.fetch(ctx, PhaseSalePage, target)
	if err != nil {
		return nil, err
	}
	return parser.GamesFromHTML(string(body), parser.SaleCellSelector)
}

type purchasePage struct {
	Content  string `json:"content"`
	NumItems int    `json:"num_items"`
	Page     int    `json:"page"`
}

// eachPurchasePage walks the paginated listing until a page reports no
// items. A page that cannot be fetched ends the walk.
func (s *Scraper) eachPurchasePage(ctx context.Context, fn func([]*models.Game) error) error {
	items := 0
	pages := 0
	for page := 1; page <= s.cfg.MaxPages; page++ {
		body, err := s.fetch(ctx, PhasePurchases, s.purchasesURL(page))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("failed fetching purchases page, stopping",
				slog.Int("page", page),
				slog.Any("error", err),
			)
			break
		}
		atomic.AddInt64(&s.pageCount, 1)

		var listing purchasePage
		if err := json.Unmarshal(body, &listing); err != nil {
			slog.Error("purchases page is not json, stopping",
				slog.Int("page", page),
				slog.Any("error", err),
			)
			break
		}
		if listing.NumItems <= 0 {
			break
		}
		pages++
		items += listing.NumItems

		games, err := parser.GamesFromHTML(listing.Content, parser.PurchaseCellSelector)
		if err != nil {
			return fmt.Errorf("purchases page %d: %w", page, err)
		}
		if delta := listing.NumItems - len(games); delta != 0 {
			slog.Warn("purchases page item count mismatch",
				slog.Int("page", page),
				slog.Int("expected", listing.NumItems),
				slog.Int("parsed", len(games)),
			)
		}
		if err := fn(games); err != nil {
			return err
		}
	}

	slog.Info("finished fetching purchases",
		slog.Int("pages", pages),
		slog.Int("items", items),
	)
	return nil
}

// eachBundle reads the purchased bundles list, resolves every bundle's page
// from its download page and hands it over with its games. Bundles that
// fail are logged and skipped.
func (s *Scraper) eachBundle(ctx context.Context, fn func(*models.Bundle) error) (int, error) {
	body, err := s.fetch(ctx, PhaseBundleList, s.resolve("/my-purchases/bundles"))
	if err != nil {
		return 0, fmt.Errorf("fetch bundle list: %w", err)
	}
	atomic.AddInt64(&s.pageCount, 1)

	bundles, err := parser.BundlesFromHTML(string(body))
	if err != nil {
		return 0, err
	}

	done := 0
	for i, b := range bundles {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		slog.Debug("fetching bundle",
			slog.Int("ordinal", i+1),
			slog.Int("total", len(bundles)),
			slog.String("bundle", b.Name),
		)

		if err := s.locateBundle(ctx, b); err != nil {
			if ctx.Err() != nil {
				return done, ctx.Err()
			}
			slog.Error("failed locating bundle", slog.String("bundle", b.Name), slog.Any("error", err))
			continue
		}

		games, err := s.BundleGames(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return done, ctx.Err()
			}
			slog.Error("failed fetching bundle games", slog.String("bundle", b.Name), slog.Any("error", err))
			continue
		}
		b.Games = games
		done++

		if err := fn(b); err != nil {
			return done, err
		}
	}
	return done, nil
}

// locateBundle fills in the bundle URL and id from its download page.
func (s *Scraper) locateBundle(ctx context.Context, b *models.Bundle) error {
	if b.DownloadURL == "" {
		return errors.New("bundle has no download url")
	}
	body, err := s.fetch(ctx, PhaseDownloadPage, s.resolve(b.DownloadURL))
	if err != nil {
		return err
	}
	path, id, ok := parser.BundleInfo(string(body))
	if !ok {
		return fmt.Errorf("no bundle link on download page %s", b.DownloadURL)
	}
	b.URL = path
	b.ID = id
	return nil
}

// fetch returns the body of target, retrying transient failures.
func (s *Scraper) fetch(ctx context.Context, phase, target string) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, status, err := s.get(phase, target)
		if err == nil {
			s.retry.Done(target)
			return body, nil
		}

		classified := classifyError(target, err, status)
		s.recordError(phase, target, classified)

		delay, ok := time.Duration(0), false
		if retryable(classified) {
			delay, ok = s.retry.Next(target)
		}
		if !ok {
			s.mu.Lock()
			s.failedURLs = append(s.failedURLs, target)
			s.mu.Unlock()
			return nil, classified
		}

		slog.Debug("retrying request", slog.String("url", target), slog.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// get performs one request. The collector is synchronous, so the response
// is in the request context once Request returns.
func (s *Scraper) get(phase, target string) ([]byte, int, error) {
	reqCtx := colly.NewContext()
	reqCtx.Put("phase", phase)

	err := s.collector.Request(http.MethodGet, target, nil, reqCtx, nil)
	status, _ := reqCtx.GetAny("status").(int)
	if err != nil {
		return nil, status, err
	}
	body, _ := reqCtx.GetAny("body").([]byte)
	return body, status, nil
}

func (s *Scraper) registerHandlers() {
	s.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		current := atomic.AddInt64(&s.requestCount, 1)
		s.Metrics.IncRequest(r.Ctx.Get("phase"))
		if cookie := s.sessionCookie(); cookie != "" {
			r.Headers.Set("Cookie", cookie)
		}
		if current%50 == 0 {
			slog.Debug("scraper request progress",
				slog.Int64("requests", current),
				slog.Int64("pages", atomic.LoadInt64(&s.pageCount)),
				slog.String("url", r.URL.String()),
			)
		}
	})

	s.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
		s.observe(r)
	})

	s.collector.OnError(func(r *colly.Response, _ error) {
		if r == nil {
			return
		}
		if r.Ctx != nil {
			r.Ctx.Put("status", r.StatusCode)
		}
		s.observe(r)
	})
}

func (s *Scraper) observe(r *colly.Response) {
	if r.Ctx == nil {
		return
	}
	if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
		s.Metrics.ObserveDuration(r.Ctx.Get("phase"), time.Since(start))
	}
}

func (s *Scraper) recordError(phase, target string, err error) {
	atomic.AddInt64(&s.errorCount, 1)
	category := errorTypeLabel(err)

	s.mu.Lock()
	s.errorsByType[category]++
	s.mu.Unlock()

	s.Metrics.IncError(category)
	slog.Error("request error",
		slog.String("phase", phase),
		slog.String("url", target),
		slog.String("category", category),
		slog.Any("error", err),
	)
}

// sessionCookie accepts either a bare itchio token or a full cookie header.
func (s *Scraper) sessionCookie() string {
	value := strings.TrimSpace(s.cfg.SessionCookie)
	if value == "" || strings.Contains(value, "=") {
		return value
	}
	return sessionCookieName + "=" + value
}

func (s *Scraper) purchasesURL(page int) string {
	u := s.base.ResolveReference(&url.URL{Path: "/my-purchases"})
	u.RawQuery = url.Values{
		"format": {"json"},
		"page":   {strconv.Itoa(page)},
	}.Encode()
	return u.String()
}

func (s *Scraper) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return s.base.ResolveReference(u).String()
}

func (s *Scraper) finish(result *models.ScrapeResult) *models.ScrapeResult {
	result.EndTime = time.Now()
	result.ErrorCount = int(atomic.LoadInt64(&s.errorCount))
	result.FailedURLs = s.snapshotFailedURLs()
	result.ErrorsByType = s.snapshotErrors()
	result.RetryCount = s.retry.TotalRetries()
	result.RequestCount = int(atomic.LoadInt64(&s.requestCount))
	result.PageCount = int(atomic.LoadInt64(&s.pageCount))
	return result
}

func (s *Scraper) snapshotFailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedURLs))
	copy(out, s.failedURLs)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

func records(source string, b *models.Bundle, games []*models.Game) []*models.GameRecord {
	now := time.Now()
	out := make([]*models.GameRecord, 0, len(games))
	for _, g := range games {
		r := &models.GameRecord{Source: source, Game: g, ScrapedAt: now}
		if b != nil {
			r.BundleID = b.ID
			r.BundleName = b.Name
		}
		out = append(out, r)
	}
	return out
}

func process(p *pipeline.Pipeline, recs []*models.GameRecord) error {
	if p == nil {
		return nil
	}
	if err := p.Process(recs...); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}
