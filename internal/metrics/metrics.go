package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alvmarrod/wiki-weaver/internal/storage"
)

// Tracker holds and manages crawl metrics. It keeps the JSON run summary and
// mirrors every update into a private Prometheus registry.
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	totalFetchTimeMs int64
	fetchCount       int

	registry      *prometheus.Registry
	documents     *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	graphNodes    *prometheus.GaugeVec
	graphEdges    *prometheus.GaugeVec
}

// NewTracker creates a new metrics tracker
func NewTracker(runID string) *Tracker {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Tracker{
		data: storage.Metrics{
			RunID:          runID,
			StartTime:      time.Now(),
			FailuresByKind: make(map[string]int),
		},
		registry: reg,
		documents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weaver_documents_total",
				Help: "Documents discovered and crawled",
			},
			[]string{"state"},
		),
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weaver_fetches_total",
				Help: "Fetch attempts by outcome",
			},
			[]string{"outcome"},
		),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "weaver_fetch_duration_seconds",
			Help:    "Time spent fetching a document",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		graphNodes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weaver_graph_nodes",
				Help: "Nodes per graph after pruning",
			},
			[]string{"graph"},
		),
		graphEdges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weaver_graph_edges",
				Help: "Edges per graph after pruning",
			},
			[]string{"graph"},
		),
	}
}

// DocumentDiscovered increments the discovered documents counter
func (t *Tracker) DocumentDiscovered() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.DocumentsDiscovered++
	t.documents.WithLabelValues("discovered").Inc()
}

// DocumentCrawled increments the crawled documents counter
func (t *Tracker) DocumentCrawled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.DocumentsCrawled++
	t.documents.WithLabelValues("crawled").Inc()
}

// FetchSucceeded records a successful fetch and its duration
func (t *Tracker) FetchSucceeded(elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFetched++
	t.fetches.WithLabelValues("ok").Inc()
	t.recordFetchTime(elapsed)
}

// FetchFailed records a failed fetch under its failure kind
func (t *Tracker) FetchFailed(kind string, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFailed++
	t.data.FailuresByKind[kind]++
	t.fetches.WithLabelValues(kind).Inc()
	t.recordFetchTime(elapsed)
}

func (t *Tracker) recordFetchTime(duration time.Duration) {
	t.totalFetchTimeMs += duration.Milliseconds()
	t.fetchCount++
	t.fetchDuration.Observe(duration.Seconds())
}

// RecordGraph stores the final size of a graph. Known names are "words"
// and "links".
func (t *Tracker) RecordGraph(name string, nodes, edges int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch name {
	case "words":
		t.data.WordNodes, t.data.WordEdges = nodes, edges
	case "links":
		t.data.LinkNodes, t.data.LinkEdges = nodes, edges
	}
	t.graphNodes.WithLabelValues(name).Set(float64(nodes))
	t.graphEdges.WithLabelValues(name).Set(float64(edges))
}

// Finish marks the end of the run
func (t *Tracker) Finish(reason string, partial bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.data.Partial = partial
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *Tracker) snapshot() storage.Metrics {
	snapshot := t.data
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs

	snapshot.FailuresByKind = make(map[string]int, len(t.data.FailuresByKind))
	for k, v := range t.data.FailuresByKind {
		snapshot.FailuresByKind[k] = v
	}

	// Calculate average fetch time
	if t.fetchCount > 0 {
		snapshot.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path string) error {
	t.mu.Lock()
	snapshot := t.snapshot()
	t.mu.Unlock()

	if snapshot.EndTime.IsZero() {
		snapshot.EndTime = time.Now()
	}

	jsonData, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress returns a one-line progress summary
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Documents: %d discovered, %d crawled | Pages: %d fetched, %d failed",
		t.data.DocumentsDiscovered,
		t.data.DocumentsCrawled,
		t.data.PagesFetched,
		t.data.PagesFailed,
	)
}

// Registry returns the Prometheus registry holding the run metrics
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}

// Handler serves the run metrics in the Prometheus exposition format
func (t *Tracker) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
