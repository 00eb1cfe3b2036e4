// Package fetch retrieves documents over HTTP on top of a colly collector.
package fetch

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
)

// Response is a successfully fetched document
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Config holds the HTTP-layer settings of a Fetcher
type Config struct {
	// Per-request timeout.
	Timeout time.Duration

	UserAgent string

	// Retries on a retryable status after the first attempt. 0 disables retries.
	MaxRetries int

	// Base backoff; attempt n waits RetryDelay << n.
	RetryDelay time.Duration

	// Statuses considered transient. Defaults to 429, 500, 502, 503, 504.
	RetryStatuses []int

	// Accepted media types. Defaults to text/html and application/xhtml+xml.
	ContentTypes []string

	// Clock used for backoff waits. Defaults to the wall clock.
	Clock clock.Clock

	// Logger to use. Defaults to an output-discarding logger.
	Logger *logrus.Entry
}

func (cfg *Config) applyDefaults() {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if len(cfg.RetryStatuses) == 0 {
		cfg.RetryStatuses = []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}
	if len(cfg.ContentTypes) == 0 {
		cfg.ContentTypes = []string{"text/html", "application/xhtml+xml"}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}
}

// Fetcher performs one request at a time through a shared colly collector
type Fetcher struct {
	cfg       Config
	collector *colly.Collector
	retryable map[int]bool
}

// NewFetcher creates a fetcher with a synchronous collector limited to a
// single in-flight request
func NewFetcher(cfg Config) (*Fetcher, error) {
	cfg.applyDefaults()

	options := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxDepth(0),
	}
	if cfg.UserAgent != "" {
		options = append(options, colly.UserAgent(cfg.UserAgent))
	}

	collector := colly.NewCollector(options...)
	collector.SetRequestTimeout(cfg.Timeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
	}); err != nil {
		return nil, err
	}

	retryable := make(map[int]bool, len(cfg.RetryStatuses))
	for _, status := range cfg.RetryStatuses {
		retryable[status] = true
	}

	return &Fetcher{
		cfg:       cfg,
		collector: collector,
		retryable: retryable,
	}, nil
}

// Fetch retrieves url, retrying transient status codes with exponential
// backoff. Every failure is returned as an *Error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	for attempt := 0; ; attempt++ {
		resp, fe := f.fetchOnce(url)
		if fe == nil {
			return resp, nil
		}

		if fe.Kind != KindHTTPStatus || !f.retryable[fe.StatusCode] || attempt >= f.cfg.MaxRetries {
			return nil, fe
		}

		backoff := f.cfg.RetryDelay << attempt
		f.cfg.Logger.WithFields(logrus.Fields{
			"url":     url,
			"status":  fe.StatusCode,
			"attempt": attempt + 1,
			"backoff": backoff,
		}).Warn("Transient response, retrying")

		select {
		case <-ctx.Done():
			return nil, &Error{Kind: KindOther, URL: url, Err: ctx.Err()}
		case <-f.cfg.Clock.After(backoff):
		}
	}
}

func (f *Fetcher) fetchOnce(url string) (*Response, *Error) {
	// A clone shares the transport and limits but not callbacks, so the
	// closures below only see this request.
	c := f.collector.Clone()

	var resp *Response
	var fetchErr *Error

	c.OnResponse(func(r *colly.Response) {
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		resp = &Response{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        r.Body,
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = classify(url, status, err)
	})

	err := c.Visit(url)
	switch {
	case fetchErr != nil:
		return nil, fetchErr
	case err != nil:
		return nil, classify(url, 0, err)
	case resp == nil:
		return nil, &Error{Kind: KindOther, URL: url, Err: io.ErrUnexpectedEOF}
	}

	if !f.acceptsContentType(resp.ContentType) {
		return nil, &Error{
			Kind:        KindContentType,
			URL:         url,
			StatusCode:  resp.StatusCode,
			ContentType: resp.ContentType,
		}
	}

	return resp, nil
}

func (f *Fetcher) acceptsContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	mediaType = strings.ToLower(mediaType)

	for _, accepted := range f.cfg.ContentTypes {
		if mediaType == accepted {
			return true
		}
	}
	return false
}
