// Package crawler harvests the pages of one site.
//
// A crawl starts from a single URL and follows only links whose host:port
// equals the start URL's. Pages are visited depth-first from an explicit
// worklist, each URL at most once. A page is kept only when it has a title
// and body text; rejected pages contribute no links. Failures are recorded
// per URL and never stop the crawl.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Jojodayolo/testforge/internal/metrics"
	"github.com/Jojodayolo/testforge/internal/model"
	"github.com/Jojodayolo/testforge/internal/urlcodec"
)

// PageStore persists raw HTML under its artifact name.
type PageStore interface {
	Exists(name string) bool
	Save(name string, html []byte) error
}

// RecordSink receives every accepted page record.
type RecordSink interface {
	UpsertPage(ctx context.Context, rec model.PageRecord) error
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tunes retry and politeness behaviour.
type Options struct {
	// BaseDelay is multiplied by the attempt number after each 429.
	BaseDelay time.Duration
	// MaxAttempts bounds fetch attempts per URL.
	MaxAttempts int
	// Politeness is the pause after every successful fetch.
	Politeness time.Duration
	// MaxPages stops the crawl after this many accepted pages. Zero means no limit.
	MaxPages int
}

// DefaultOptions returns the stock crawl settings.
func DefaultOptions() Options {
	return Options{
		BaseDelay:   5 * time.Second,
		MaxAttempts: 5,
		Politeness:  500 * time.Millisecond,
	}
}

// Crawler runs domain-scoped crawls.
type Crawler struct {
	fetcher Fetcher
	pages   PageStore
	records RecordSink
	opts    Options
	sleep   SleepFunc
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithOptions replaces the crawl settings.
func WithOptions(o Options) Option {
	return func(c *Crawler) { c.opts = o }
}

// WithRecordSink forwards accepted records to sink.
func WithRecordSink(sink RecordSink) Option {
	return func(c *Crawler) { c.records = sink }
}

// WithSleep replaces the delay function.
func WithSleep(fn SleepFunc) Option {
	return func(c *Crawler) { c.sleep = fn }
}

// WithMetrics records fetch and page counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Crawler) { c.metrics = m }
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) { c.logger = l }
}

// New creates a Crawler. pages may be nil, in which case nothing is persisted
// and no URL is skipped as already stored.
func New(f Fetcher, pages PageStore, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher: f,
		pages:   pages,
		opts:    DefaultOptions(),
		sleep:   sleepContext,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.opts.MaxAttempts < 1 {
		c.opts.MaxAttempts = 1
	}
	return c
}

// Failure is a URL that could not be turned into a page record.
type Failure struct {
	URL string
	Err error
}

// Result is the outcome of one crawl.
type Result struct {
	StartURL string
	Pages    []model.PageRecord
	Visited  []string
	Failures []Failure
	// Skipped counts URLs whose artifact already existed in the page store.
	Skipped int
}

// Crawl harvests every reachable in-scope page starting at startURL. The
// returned error is non-nil only for an unusable start URL or a cancelled
// context; the partial result is returned in both cases.
func (c *Crawler) Crawl(ctx context.Context, startURL string) (*Result, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}
	if (start.Scheme != "http" && start.Scheme != "https") || start.Host == "" {
		return nil, fmt.Errorf("start url %q must be an absolute http(s) url", startURL)
	}
	authority := start.Host
	first := Normalize(start)

	res := &Result{StartURL: first}
	visited := make(map[string]bool)
	stack := []string{first}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if c.opts.MaxPages > 0 && len(res.Pages) >= c.opts.MaxPages {
			c.logger.Info("page limit reached", "limit", c.opts.MaxPages)
			break
		}

		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[u] {
			continue
		}
		visited[u] = true

		if c.pages != nil && c.pages.Exists(urlcodec.Encode(u)) {
			res.Skipped++
			c.logger.Debug("page already stored", "url", u)
			continue
		}
		res.Visited = append(res.Visited, u)

		rec, links, err := c.visit(ctx, u, authority)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.Failures = append(res.Failures, Failure{URL: u, Err: err})
			c.logger.Warn("page skipped", "url", u, "error", err)
			continue
		}
		res.Pages = append(res.Pages, *rec)

		// Reverse push keeps document order when popping.
		for i := len(links) - 1; i >= 0; i-- {
			if !visited[links[i]] {
				stack = append(stack, links[i])
			}
		}
	}

	c.logger.Info("crawl finished",
		"start_url", res.StartURL,
		"pages", len(res.Pages),
		"failures", len(res.Failures),
		"skipped", res.Skipped,
	)
	return res, nil
}

// visit fetches, validates and stores one page and returns its in-scope links.
func (c *Crawler) visit(ctx context.Context, u, authority string) (*model.PageRecord, []string, error) {
	body, err := c.fetch(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	if err := c.sleep(ctx, c.opts.Politeness); err != nil {
		return nil, nil, err
	}

	rec, err := ParsePage(u, body)
	if err != nil {
		c.metrics.ObservePage(false)
		return nil, nil, err
	}
	c.metrics.ObservePage(true)
	rec.Name = urlcodec.Encode(u)
	rec.CrawledAt = time.Now().UTC().Format(time.RFC3339)

	if c.pages != nil {
		if err := c.pages.Save(rec.Name, body); err != nil {
			return nil, nil, fmt.Errorf("save page: %w", err)
		}
	}
	if c.records != nil {
		if err := c.records.UpsertPage(ctx, *rec); err != nil {
			return nil, nil, fmt.Errorf("record page: %w", err)
		}
	}

	base, err := url.Parse(u)
	if err != nil {
		return rec, nil, nil
	}
	return rec, ScopedLinks(base, rec.Links, authority), nil
}

// fetch retries 429 responses with a linearly growing delay and fails fast on
// any other non-2xx status.
func (c *Crawler) fetch(ctx context.Context, u string) ([]byte, error) {
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		resp, err := c.fetcher.Fetch(ctx, u)
		if err != nil {
			c.metrics.ObserveFetch(metrics.FetchError)
			return nil, &model.FetchError{URL: u, Err: err}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.metrics.ObserveFetch(metrics.FetchRateLimited)
			if attempt == c.opts.MaxAttempts {
				continue
			}
			delay := c.opts.BaseDelay * time.Duration(attempt)
			c.logger.Warn("rate limited, backing off",
				"url", u, "attempt", attempt, "max_attempts", c.opts.MaxAttempts, "delay", delay.String())
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.metrics.ObserveFetch(metrics.FetchError)
			return nil, &model.FetchError{URL: u, StatusCode: resp.StatusCode}
		}

		c.metrics.ObserveFetch(metrics.FetchOK)
		return resp.Body, nil
	}
	return nil, &model.RateLimitExhaustedError{URL: u, Attempts: c.opts.MaxAttempts}
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
