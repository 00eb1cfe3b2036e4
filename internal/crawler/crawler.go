package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/wiki-weaver/internal/extract"
	"github.com/alvmarrod/wiki-weaver/internal/fetch"
	"github.com/alvmarrod/wiki-weaver/internal/storage"
)

//go:generate mockgen -package mocks -destination mocks/mock_fetcher.go github.com/alvmarrod/wiki-weaver/internal/crawler Fetcher

// Fetcher retrieves a single document
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Response, error)
}

// Extractor turns a fetched document into text and same-site links
type Extractor interface {
	Extract(body []byte, pageURL string) (*extract.Page, error)
}

// Normalizer turns plain text into words and bigrams
type Normalizer interface {
	Normalize(text string) (words, bigrams []string)
}

// Observer is notified about crawl progress
type Observer interface {
	DocumentDiscovered()
	DocumentCrawled()
	FetchSucceeded(elapsed time.Duration)
	FetchFailed(kind string, elapsed time.Duration)
}

// TerminationReason tells why a crawl stopped
type TerminationReason string

const (
	ReasonMaxArticles       TerminationReason = "max_articles"
	ReasonFrontierExhausted TerminationReason = "frontier_exhausted"
	ReasonCancelled         TerminationReason = "cancelled"
)

// KindExtract marks documents that were fetched but could not be parsed
const KindExtract = "extract"

// Failure records a document that was skipped
type Failure struct {
	URL   string
	Depth int
	Kind  string
	Err   error
}

// Result holds the documents processed by one crawl
type Result struct {
	Documents []storage.Document
	Failed    []Failure
	Reason    TerminationReason
}

// Partial reports whether the crawl stopped before reaching its article limit
func (r *Result) Partial() bool {
	return r.Reason != ReasonMaxArticles
}

// Config holds the traversal bounds
type Config struct {
	SeedURL     string
	MaxDepth    int
	MaxArticles int
	DelayMin    time.Duration
	DelayMax    time.Duration
}

func (cfg Config) validate() error {
	switch {
	case cfg.SeedURL == "":
		return errors.New("seed URL is required")
	case cfg.MaxDepth < 0:
		return errors.New("max depth must be >= 0")
	case cfg.MaxArticles < 1:
		return errors.New("max articles must be >= 1")
	case cfg.DelayMin < 0 || cfg.DelayMax < cfg.DelayMin:
		return fmt.Errorf("invalid delay range [%s, %s]", cfg.DelayMin, cfg.DelayMax)
	}
	return nil
}

// Option customizes a Crawler
type Option func(*Crawler)

// WithClock sets the clock used for the politeness delay
func WithClock(clk clock.Clock) Option {
	return func(c *Crawler) { c.clock = clk }
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Entry) Option {
	return func(c *Crawler) { c.logger = logger }
}

// WithObserver registers a progress observer
func WithObserver(o Observer) Option {
	return func(c *Crawler) { c.observer = o }
}

// WithRandSource sets the source for the delay jitter
func WithRandSource(src rand.Source) Option {
	return func(c *Crawler) { c.rand = rand.New(src) }
}

// Crawler performs a sequential breadth-first crawl from a seed document
type Crawler struct {
	cfg        Config
	fetcher    Fetcher
	extractor  Extractor
	normalizer Normalizer

	clock    clock.Clock
	logger   *logrus.Entry
	observer Observer
	rand     *rand.Rand
}

// New creates a crawler instance
func New(cfg Config, fetcher Fetcher, extractor Extractor, normalizer Normalizer, opts ...Option) (*Crawler, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("crawler config: %w", err)
	}

	c := &Crawler{
		cfg:        cfg,
		fetcher:    fetcher,
		extractor:  extractor,
		normalizer: normalizer,
		clock:      clock.WallClock,
		logger:     logrus.NewEntry(&logrus.Logger{Out: io.Discard}),
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rand == nil {
		c.rand = rand.New(rand.NewSource(c.clock.Now().UnixNano()))
	}

	return c, nil
}

// Crawl visits documents in BFS order until MaxArticles documents have been
// processed or the frontier is empty. Fetch failures are logged and skipped.
// On cancellation the documents collected so far are returned with the
// context error.
func (c *Crawler) Crawl(ctx context.Context) (*Result, error) {
	frontier := NewFrontier()
	visited := mapset.NewThreadUnsafeSet[string]()
	result := &Result{}

	frontier.Push(storage.QueueEntry{URL: c.cfg.SeedURL, Depth: 0})
	c.observer.DocumentDiscovered()

	c.logger.WithFields(logrus.Fields{
		"seed":         c.cfg.SeedURL,
		"max_depth":    c.cfg.MaxDepth,
		"max_articles": c.cfg.MaxArticles,
	}).Info("Starting crawl")

	for {
		if len(result.Documents) >= c.cfg.MaxArticles {
			result.Reason = ReasonMaxArticles
			break
		}

		entry, ok := frontier.Pop()
		if !ok {
			result.Reason = ReasonFrontierExhausted
			break
		}

		if visited.Contains(entry.URL) || entry.Depth > c.cfg.MaxDepth {
			continue
		}

		if err := c.politenessDelay(ctx); err != nil {
			result.Reason = ReasonCancelled
			return result, err
		}

		doc, failure := c.process(ctx, entry)
		if ctx.Err() != nil {
			result.Reason = ReasonCancelled
			return result, ctx.Err()
		}

		// Failed documents are not revisited either
		visited.Add(entry.URL)

		if failure != nil {
			result.Failed = append(result.Failed, *failure)
			continue
		}

		result.Documents = append(result.Documents, *doc)
		c.observer.DocumentCrawled()

		// Check depth limit
		nextDepth := entry.Depth + 1
		if nextDepth > c.cfg.MaxDepth {
			continue
		}
		for _, link := range doc.Links {
			if visited.Contains(link) {
				continue
			}
			if frontier.Push(storage.QueueEntry{URL: link, Depth: nextDepth}) {
				c.observer.DocumentDiscovered()
			}
		}
	}

	c.logger.WithFields(logrus.Fields{
		"documents": len(result.Documents),
		"failed":    len(result.Failed),
		"pending":   frontier.Size(),
		"reason":    result.Reason,
		"partial":   result.Partial(),
	}).Info("Crawl finished")

	return result, nil
}

// process fetches, extracts and normalizes one frontier entry
func (c *Crawler) process(ctx context.Context, entry storage.QueueEntry) (*storage.Document, *Failure) {
	log := c.logger.WithFields(logrus.Fields{"url": entry.URL, "depth": entry.Depth})

	start := c.clock.Now()
	resp, err := c.fetcher.Fetch(ctx, entry.URL)
	elapsed := c.clock.Now().Sub(start)

	if err != nil {
		kind := string(fetch.KindOf(err))
		c.observer.FetchFailed(kind, elapsed)
		logFetchFailure(log, err)
		return nil, &Failure{URL: entry.URL, Depth: entry.Depth, Kind: kind, Err: err}
	}
	c.observer.FetchSucceeded(elapsed)

	pageURL := resp.URL
	if pageURL == "" {
		pageURL = entry.URL
	}
	page, err := c.extractor.Extract(resp.Body, pageURL)
	if err != nil {
		log.WithError(err).Warn("Extraction failed, skipping")
		return nil, &Failure{URL: entry.URL, Depth: entry.Depth, Kind: KindExtract, Err: err}
	}

	words, bigrams := c.normalizer.Normalize(page.Text)

	log.WithFields(logrus.Fields{
		"words": len(words),
		"links": len(page.Links),
	}).Info("Processed document")

	return &storage.Document{
		URL:     entry.URL,
		Depth:   entry.Depth,
		Words:   words,
		Bigrams: bigrams,
		Links:   page.Links,
	}, nil
}

// nextDelay draws a uniformly random duration in [DelayMin, DelayMax]
func (c *Crawler) nextDelay() time.Duration {
	delay := c.cfg.DelayMin
	if spread := c.cfg.DelayMax - c.cfg.DelayMin; spread > 0 {
		delay += time.Duration(c.rand.Int63n(int64(spread) + 1))
	}
	return delay
}

// politenessDelay waits before a fetch attempt
func (c *Crawler) politenessDelay(ctx context.Context) error {
	delay := c.nextDelay()
	if delay <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(delay):
		return nil
	}
}

func logFetchFailure(log *logrus.Entry, err error) {
	var fe *fetch.Error
	if !errors.As(err, &fe) {
		log.WithError(err).Warn("Request error, skipping")
		return
	}

	log = log.WithField("kind", fe.Kind)
	switch fe.Kind {
	case fetch.KindHTTPStatus:
		log.WithField("status", fe.StatusCode).Warn("HTTP error, skipping")
	case fetch.KindConnection:
		log.WithError(fe.Err).Warn("Connection error, skipping")
	case fetch.KindTimeout:
		log.Warn("Timeout, skipping")
	case fetch.KindContentType:
		log.WithField("content_type", fe.ContentType).Warn("Not a document, skipping")
	default:
		log.WithError(fe.Err).Warn("Request error, skipping")
	}
}

type nopObserver struct{}

func (nopObserver) DocumentDiscovered()               {}
func (nopObserver) DocumentCrawled()                  {}
func (nopObserver) FetchSucceeded(time.Duration)      {}
func (nopObserver) FetchFailed(string, time.Duration) {}
