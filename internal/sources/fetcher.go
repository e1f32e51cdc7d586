package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/STRATINT/eventcatalog/internal/ingestion"
	"github.com/STRATINT/eventcatalog/internal/models"
)

const (
	// DefaultRequestTimeout bounds each page request.
	DefaultRequestTimeout = 20 * time.Second
	// DefaultRequestPause is the wait before every page request.
	DefaultRequestPause = 500 * time.Millisecond

	maxPageBytes    = 5 << 20
	maxListingPages = 50
	userAgent       = "Mozilla/5.0 (compatible; eventcatalog/1.0; +https://github.com/STRATINT/eventcatalog)"
)

// FetcherOptions tunes HTTP behaviour. A zero Pause uses
// DefaultRequestPause; a negative one disables pausing.
type FetcherOptions struct {
	Client   *http.Client
	Pause    time.Duration
	Resolver HostResolver
}

// Fetcher crawls a source's listing pages and parses every linked detail
// page. It implements ingestion.RecordFetcher.
type Fetcher struct {
	config SourceConfig
	client *http.Client
	guard  *URLGuard
	parser DetailParser
	detail *regexp.Regexp
	page   *regexp.Regexp
	pause  time.Duration
	logger *slog.Logger
}

var _ ingestion.RecordFetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher for cfg.
func NewFetcher(cfg SourceConfig, opts FetcherOptions, logger *slog.Logger) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	switch {
	case opts.Pause == 0:
		opts.Pause = DefaultRequestPause
	case opts.Pause < 0:
		opts.Pause = 0
	}

	f := &Fetcher{
		config: cfg,
		client: opts.Client,
		guard:  NewURLGuard(cfg.AllowedHosts, opts.Resolver),
		detail: regexp.MustCompile(cfg.DetailPattern),
		pause:  opts.Pause,
		logger: logger.With("component", "fetcher", "source", cfg.Name),
	}
	f.parser = DetailParser{Source: cfg.Name}
	if cfg.IDPattern != "" {
		f.parser.IDPattern = regexp.MustCompile(cfg.IDPattern)
	}
	if cfg.PagePattern != "" {
		f.page = regexp.MustCompile(cfg.PagePattern)
	}
	return f, nil
}

// Name returns the source name.
func (f *Fetcher) Name() string {
	return f.config.Name
}

// Fetch returns the records of every detail page reachable from the
// listing pages. Pages that fail to load or parse are logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context) ([]models.EventData, error) {
	urls, err := f.listDetailURLs(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]models.EventData, 0, len(urls))
	for _, u := range urls {
		doc, err := f.fetchDocument(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			f.logger.Warn("failed to fetch detail page", "url", u, "error", err)
			continue
		}
		rec, err := f.parser.Parse(doc, u)
		if err != nil {
			f.logger.Debug("skipping detail page", "url", u, "error", err)
			continue
		}
		records = append(records, *rec)
	}

	f.logger.Info("fetched source", "detail_pages", len(urls), "records", len(records))
	return records, nil
}

func (f *Fetcher) listDetailURLs(ctx context.Context) ([]string, error) {
	queue := append([]string(nil), f.config.ListingURLs...)
	visited := make(map[string]bool)
	seen := make(map[string]bool)
	var urls []string
	var firstErr error

	for len(queue) > 0 && len(visited) < maxListingPages {
		pageURL := queue[0]
		queue = queue[1:]
		if visited[pageURL] {
			continue
		}
		visited[pageURL] = true

		doc, err := f.fetchDocument(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("listing page request failed", "url", pageURL, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		base := pageURL
		if href, ok := doc.Find("base").First().Attr("href"); ok && href != "" {
			base = href
		}

		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			abs, err := f.guard.Resolve(ctx, href, base)
			if err != nil {
				return
			}
			switch {
			case f.detail.MatchString(abs):
				if !seen[abs] {
					seen[abs] = true
					urls = append(urls, abs)
				}
			case f.page != nil && f.page.MatchString(abs):
				queue = append(queue, abs)
			}
		})
	}

	if len(urls) == 0 && firstErr != nil {
		return nil, fmt.Errorf("failed to load listing pages: %w", firstErr)
	}
	return urls, nil
}

func (f *Fetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := f.guard.Check(ctx, pageURL); err != nil {
		return nil, err
	}
	if err := sleep(ctx, f.pause); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "cs,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
