package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(new(fetcherTestSuite))

func Test(t *testing.T) {
	check.TestingT(t)
}

type fetcherTestSuite struct {
	srv  *httptest.Server
	hits int32
}

func (s *fetcherTestSuite) SetUpTest(c *check.C) {
	atomic.StoreInt32(&s.hits, 0)

	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/Ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>hello</p></body></html>")
	})
	mux.HandleFunc("/wiki/Missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/wiki/Image.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	})
	mux.HandleFunc("/wiki/Flaky", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&s.hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/xhtml+xml")
		fmt.Fprint(w, "<html><body><p>recovered</p></body></html>")
	})
	mux.HandleFunc("/wiki/Down", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/wiki/Slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<p>late</p>")
	})

	s.srv = httptest.NewServer(mux)
}

func (s *fetcherTestSuite) TearDownTest(c *check.C) {
	s.srv.Close()
}

func (s *fetcherTestSuite) TestFetchSuccess(c *check.C) {
	f := s.newFetcher(c, Config{})

	resp, err := f.Fetch(context.TODO(), s.srv.URL+"/wiki/Ok")
	c.Assert(err, check.IsNil)
	c.Assert(resp.StatusCode, check.Equals, http.StatusOK)
	c.Assert(resp.ContentType, check.Equals, "text/html; charset=utf-8")
	c.Assert(string(resp.Body), check.Matches, ".*<p>hello</p>.*")
}

func (s *fetcherTestSuite) TestNotFoundIsHTTPStatusError(c *check.C) {
	f := s.newFetcher(c, Config{MaxRetries: 3, RetryDelay: time.Millisecond})

	_, err := f.Fetch(context.TODO(), s.srv.URL+"/wiki/Missing")
	c.Assert(err, check.NotNil)

	var fe *Error
	c.Assert(errors.As(err, &fe), check.Equals, true)
	c.Assert(fe.Kind, check.Equals, KindHTTPStatus)
	c.Assert(fe.StatusCode, check.Equals, http.StatusNotFound)
}

func (s *fetcherTestSuite) TestNonHTMLContentTypeIsRejected(c *check.C) {
	f := s.newFetcher(c, Config{})

	_, err := f.Fetch(context.TODO(), s.srv.URL+"/wiki/Image.png")
	c.Assert(KindOf(err), check.Equals, KindContentType)
	c.Assert(err, check.ErrorMatches, `.*unsupported content type "image/png"`)
}

func (s *fetcherTestSuite) TestTransientStatusIsRetriedAfterBackoff(c *check.C) {
	clk := testclock.NewClock(time.Now())
	f := s.newFetcher(c, Config{MaxRetries: 2, RetryDelay: time.Second, Clock: clk})

	go func() {
		// The first attempt fails with 503; release the backoff wait.
		c.Assert(clk.WaitAdvance(time.Second, 10*time.Second, 1), check.IsNil)
	}()

	resp, err := f.Fetch(context.TODO(), s.srv.URL+"/wiki/Flaky")
	c.Assert(err, check.IsNil)
	c.Assert(string(resp.Body), check.Matches, ".*recovered.*")
	c.Assert(atomic.LoadInt32(&s.hits), check.Equals, int32(2))
}

func (s *fetcherTestSuite) TestRetriesAreBounded(c *check.C) {
	f := s.newFetcher(c, Config{MaxRetries: 2, RetryDelay: time.Millisecond})

	_, err := f.Fetch(context.TODO(), s.srv.URL+"/wiki/Down")
	c.Assert(KindOf(err), check.Equals, KindHTTPStatus)
	c.Assert(atomic.LoadInt32(&s.hits), check.Equals, int32(3))
}

func (s *fetcherTestSuite) TestCancelledBackoffStopsRetrying(c *check.C) {
	clk := testclock.NewClock(time.Now())
	f := s.newFetcher(c, Config{MaxRetries: 5, RetryDelay: time.Hour, Clock: clk})

	ctx, cancelFn := context.WithCancel(context.TODO())
	go func() {
		// Wait until the fetcher blocks on the backoff timer.
		c.Assert(clk.WaitAdvance(0, 10*time.Second, 1), check.IsNil)
		cancelFn()
	}()

	_, err := f.Fetch(ctx, s.srv.URL+"/wiki/Down")
	c.Assert(errors.Is(err, context.Canceled), check.Equals, true)
	c.Assert(atomic.LoadInt32(&s.hits), check.Equals, int32(1))
}

func (s *fetcherTestSuite) TestTimeout(c *check.C) {
	f := s.newFetcher(c, Config{Timeout: 50 * time.Millisecond})

	_, err := f.Fetch(context.TODO(), s.srv.URL+"/wiki/Slow")
	c.Assert(KindOf(err), check.Equals, KindTimeout)
}

func (s *fetcherTestSuite) TestConnectionRefused(c *check.C) {
	f := s.newFetcher(c, Config{})

	// Grab a free address and close it so nothing listens there.
	closed := httptest.NewServer(http.NotFoundHandler())
	addr := closed.URL
	closed.Close()

	_, err := f.Fetch(context.TODO(), addr+"/wiki/Gone")
	c.Assert(KindOf(err), check.Equals, KindConnection)
}

func (s *fetcherTestSuite) newFetcher(c *check.C, cfg Config) *Fetcher {
	f, err := NewFetcher(cfg)
	c.Assert(err, check.IsNil)
	return f
}
