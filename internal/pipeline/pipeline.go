// Package pipeline runs a full weaving run: crawl, link pruning, graph
// assembly, percentile pruning and export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alvmarrod/wiki-weaver/internal/config"
	"github.com/alvmarrod/wiki-weaver/internal/crawler"
	"github.com/alvmarrod/wiki-weaver/internal/export"
	"github.com/alvmarrod/wiki-weaver/internal/extract"
	"github.com/alvmarrod/wiki-weaver/internal/fetch"
	"github.com/alvmarrod/wiki-weaver/internal/graph"
	"github.com/alvmarrod/wiki-weaver/internal/lexical"
	"github.com/alvmarrod/wiki-weaver/internal/metrics"
	"github.com/alvmarrod/wiki-weaver/internal/prune"
	"github.com/alvmarrod/wiki-weaver/internal/storage"
)

// Graph names used in storage, metrics and exported file names
const (
	WordGraph = "words"
	LinkGraph = "links"
)

const progressInterval = 10 * time.Second

// GraphSink receives the final graphs of a run
type GraphSink interface {
	WriteGraph(ctx context.Context, runID string, nodes []storage.NodeRow, edges []storage.EdgeRow) error
	Close() error
}

// SinkFactory opens a GraphSink
type SinkFactory func(cfg export.Neo4jConfig) (GraphSink, error)

func neo4jSink(cfg export.Neo4jConfig) (GraphSink, error) {
	return export.NewNeo4jSink(cfg)
}

// Summary describes a finished run
type Summary struct {
	RunID     uuid.UUID
	Documents int
	Failed    int
	Reason    crawler.TerminationReason
	Partial   bool

	WordNodes, WordEdges int
	LinkNodes, LinkEdges int

	Pruning          prune.Summary
	MalformedBigrams int
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger
func WithLogger(logger *logrus.Entry) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock sets the clock used by the crawler and progress logging
func WithClock(clk clock.Clock) Option {
	return func(p *Pipeline) { p.clock = clk }
}

// WithFetcher replaces the HTTP fetcher
func WithFetcher(f crawler.Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithSinkFactory replaces the Neo4j sink constructor
func WithSinkFactory(f SinkFactory) Option {
	return func(p *Pipeline) { p.sinkFactory = f }
}

// WithRunID fixes the run identifier
func WithRunID(id uuid.UUID) Option {
	return func(p *Pipeline) { p.runID = id }
}

// Pipeline wires the components of a run from configuration
type Pipeline struct {
	cfg         *config.Config
	runID       uuid.UUID
	logger      *logrus.Entry
	clock       clock.Clock
	fetcher     crawler.Fetcher
	sinkFactory SinkFactory
	tracker     *metrics.Tracker
}

// New creates a pipeline for a validated configuration
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:         cfg,
		runID:       uuid.New(),
		logger:      logrus.NewEntry(&logrus.Logger{Out: io.Discard}),
		clock:       clock.WallClock,
		sinkFactory: neo4jSink,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.tracker = metrics.NewTracker(p.runID.String())
	return p
}

// Tracker returns the metrics tracker of the run
func (p *Pipeline) Tracker() *metrics.Tracker {
	return p.tracker
}

// RunID returns the run identifier
func (p *Pipeline) RunID() uuid.UUID {
	return p.runID
}

// Run executes the whole pipeline. A cancelled crawl still assembles and
// exports the documents collected so far; its summary has Reason cancelled.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	log := p.logger.WithField("run_id", p.runID.String())
	started := p.clock.Now()

	var store *storage.Storage
	if p.cfg.DBPath != "" {
		var err error
		if store, err = storage.NewStorage(p.cfg.DBPath); err != nil {
			return nil, err
		}
		defer store.Close()

		if err := store.SaveRun(storage.Run{RunID: p.runID, SeedURL: p.cfg.SeedURL, StartedAt: started}); err != nil {
			return nil, err
		}
		log.Infof("Database initialized: %s", p.cfg.DBPath)
	}

	cr, err := p.newCrawler()
	if err != nil {
		return nil, err
	}

	stopProgress := p.logProgress(log)
	res, crawlErr := cr.Crawl(ctx)
	stopProgress()

	if crawlErr != nil {
		interrupted := errors.Is(crawlErr, context.Canceled) || errors.Is(crawlErr, context.DeadlineExceeded)
		if res == nil || !interrupted {
			return nil, fmt.Errorf("crawl failed: %w", crawlErr)
		}
		log.WithError(crawlErr).Warn("Crawl interrupted, exporting partial results")
	}

	// Export is not cut short by the cancellation that ended the crawl
	exportCtx := context.WithoutCancel(ctx)

	summary := &Summary{
		RunID:     p.runID,
		Documents: len(res.Documents),
		Failed:    len(res.Failed),
		Reason:    res.Reason,
		Partial:   res.Partial(),
	}

	links := p.assembleLinks(log, res.Documents)
	words, err := p.assembleWords(log, res.Documents, summary)
	if err != nil {
		return nil, err
	}

	summary.WordNodes, summary.WordEdges = words.GetStats()
	summary.LinkNodes, summary.LinkEdges = links.GetStats()
	p.tracker.RecordGraph(WordGraph, summary.WordNodes, summary.WordEdges)
	p.tracker.RecordGraph(LinkGraph, summary.LinkNodes, summary.LinkEdges)
	p.tracker.Finish(string(res.Reason), summary.Partial)

	wordNodes, wordEdges := words.Rows(WordGraph)
	linkNodes, linkEdges := links.Rows(LinkGraph)

	run := storage.Run{
		RunID:             p.runID,
		SeedURL:           p.cfg.SeedURL,
		StartedAt:         started,
		FinishedAt:        p.clock.Now(),
		Documents:         summary.Documents,
		Failures:          summary.Failed,
		TerminationReason: string(res.Reason),
	}

	err = p.export(exportCtx, log, store, exportSet{
		run:       run,
		documents: res.Documents,
		report: export.RunReport{
			SeedURL: p.cfg.SeedURL,
			Metrics: p.tracker.GetSnapshot(),
			Pruning: summary.Pruning,
			Words:   export.GraphRows{Nodes: wordNodes, Edges: wordEdges},
			Links:   export.GraphRows{Nodes: linkNodes, Edges: linkEdges},
		},
	})
	if err != nil {
		return summary, err
	}

	log.WithFields(logrus.Fields{
		"documents":  summary.Documents,
		"failed":     summary.Failed,
		"reason":     summary.Reason,
		"partial":    summary.Partial,
		"word_nodes": summary.WordNodes,
		"word_edges": summary.WordEdges,
		"link_nodes": summary.LinkNodes,
		"link_edges": summary.LinkEdges,
	}).Info("Run complete")

	return summary, nil
}

func (p *Pipeline) newCrawler() (*crawler.Crawler, error) {
	fetcher := p.fetcher
	if fetcher == nil {
		f, err := fetch.NewFetcher(fetch.Config{
			Timeout:    p.cfg.RequestTimeout(),
			UserAgent:  p.cfg.UserAgent,
			MaxRetries: p.cfg.RetryAttempts,
			RetryDelay: p.cfg.RetryDelay(),
			Clock:      p.clock,
			Logger:     p.logger.WithField("component", "fetch"),
		})
		if err != nil {
			return nil, err
		}
		fetcher = f
	}

	extractor, err := extract.New(extract.Config{
		BaseURL:          p.cfg.BaseURL,
		ArticlePrefix:    p.cfg.ArticlePrefix,
		ExcludedPatterns: p.cfg.ExcludedPatterns,
		TextMode:         p.cfg.TextMode,
	})
	if err != nil {
		return nil, err
	}

	normalizer := lexical.New(lexical.Config{
		MinTokenLength: p.cfg.MinTokenLength,
		ExtraStopwords: p.cfg.ExtraStopwords,
		FoldEntities:   p.cfg.FoldEntities,
		Stem:           p.cfg.Stem,
		Bigrams:        p.cfg.Bigrams,
		Logger:         p.logger.WithField("component", "lexical"),
	})

	delayMin, delayMax := p.cfg.DelayRange()
	return crawler.New(
		crawler.Config{
			SeedURL:     p.cfg.SeedURL,
			MaxDepth:    p.cfg.MaxDepth,
			MaxArticles: p.cfg.MaxArticles,
			DelayMin:    delayMin,
			DelayMax:    delayMax,
		},
		fetcher,
		extractor,
		normalizer,
		crawler.WithClock(p.clock),
		crawler.WithLogger(p.logger.WithField("component", "crawler")),
		crawler.WithObserver(p.tracker),
	)
}

// logProgress logs the tracker progress line periodically until stopped
func (p *Pipeline) logProgress(log *logrus.Entry) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-p.clock.After(progressInterval):
				log.Info(p.tracker.LogProgress())
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func (p *Pipeline) assembleLinks(log *logrus.Entry, docs []storage.Document) *graph.Graph {
	docLinks := make([]storage.DocLinks, 0, len(docs))
	for _, d := range docs {
		docLinks = append(docLinks, storage.DocLinks{Source: d.URL, Targets: d.Links})
	}

	kept := prune.Links(docLinks, p.cfg.MinLinkFreq)
	log.WithFields(logrus.Fields{
		"documents": len(docLinks),
		"kept":      len(kept),
		"min_freq":  p.cfg.MinLinkFreq,
	}).Info("Links pruned")

	return graph.BuildLinkGraph(kept, graph.WithLogger(log.WithField("component", "graph")))
}

func (p *Pipeline) assembleWords(log *logrus.Entry, docs []storage.Document, summary *Summary) (*graph.Graph, error) {
	words, stats := graph.BuildWordGraph(docs, p.cfg.WindowSize, p.cfg.TopNBigrams,
		graph.WithLogger(log.WithField("component", "graph")))
	summary.MalformedBigrams = stats.MalformedBigrams
	if stats.MalformedBigrams > 0 {
		log.WithField("count", stats.MalformedBigrams).Warn("Skipped malformed bigrams")
	}

	pruned, err := prune.Graph(words, prune.Options{
		EdgePercentile: p.cfg.EdgePercentile,
		EdgeMinWeight:  p.cfg.EdgeMinWeight,
		NodePercentile: p.cfg.NodePercentile,
		NodeMinFreq:    p.cfg.NodeMinFreq,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prune word graph: %w", err)
	}
	summary.Pruning = pruned

	if pruned.EdgesSkipped {
		log.Info("Edge pruning skipped: " + prune.ErrNothingToPrune.Error())
	}
	if pruned.NodesSkipped {
		log.Info("Node pruning skipped: " + prune.ErrNothingToPrune.Error())
	}
	log.WithFields(logrus.Fields{
		"edge_threshold": pruned.Edges.Threshold,
		"edges_removed":  pruned.Edges.Removed,
		"node_threshold": pruned.Nodes.Threshold,
		"nodes_removed":  pruned.Nodes.Removed,
		"edges_dropped":  pruned.Nodes.EdgesDropped,
	}).Info("Word graph pruned")

	return words, nil
}

type exportSet struct {
	run       storage.Run
	documents []storage.Document
	report    export.RunReport
}

// export writes every artifact of the run concurrently. Each artifact has its
// own file or connection.
func (p *Pipeline) export(ctx context.Context, log *logrus.Entry, store *storage.Storage, set exportSet) error {
	if err := os.MkdirAll(p.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var clean export.LabelCleaner
	if p.cfg.CleanLinkLabels {
		clean = export.LinkLabelCleaner(p.cfg.BaseURL, p.cfg.ArticlePrefix)
	}

	words, links := set.report.Words, set.report.Links
	g, ctx := errgroup.WithContext(ctx)

	if store != nil {
		g.Go(func() error {
			if err := store.SaveRun(set.run); err != nil {
				return err
			}
			if err := store.SaveDocuments(p.runID, set.documents); err != nil {
				return err
			}
			if err := store.SaveGraph(p.runID, words.Nodes, words.Edges); err != nil {
				return err
			}
			return store.SaveGraph(p.runID, links.Nodes, links.Edges)
		})
	}

	g.Go(func() error {
		return export.WriteCSV(p.cfg.OutputDir, WordGraph, words.Nodes, words.Edges, nil)
	})
	g.Go(func() error {
		return export.WriteCSV(p.cfg.OutputDir, LinkGraph, links.Nodes, links.Edges, clean)
	})
	g.Go(func() error {
		return export.WriteReportFile(p.reportPath(), set.report)
	})

	if p.cfg.MetricsPath != "" {
		g.Go(func() error {
			return p.tracker.WriteToFile(p.cfg.MetricsPath)
		})
	}

	if p.cfg.Neo4jURI != "" {
		g.Go(func() error {
			return p.exportNeo4j(ctx, words, links)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	log.WithFields(logrus.Fields{
		"output_dir": p.cfg.OutputDir,
		"report":     p.reportPath(),
		"metrics":    p.cfg.MetricsPath,
	}).Info("Artifacts written")
	return nil
}

func (p *Pipeline) exportNeo4j(ctx context.Context, words, links export.GraphRows) error {
	sink, err := p.sinkFactory(export.Neo4jConfig{
		URI:       p.cfg.Neo4jURI,
		User:      p.cfg.Neo4jUser,
		Password:  p.cfg.Neo4jPassword,
		Database:  p.cfg.Neo4jDatabase,
		BatchSize: p.cfg.Neo4jBatchSize,
		Logger:    p.logger.WithField("component", "neo4j"),
	})
	if err != nil {
		return err
	}
	defer sink.Close()

	if err := sink.WriteGraph(ctx, p.runID.String(), words.Nodes, words.Edges); err != nil {
		return err
	}
	return sink.WriteGraph(ctx, p.runID.String(), links.Nodes, links.Edges)
}

func (p *Pipeline) reportPath() string {
	if p.cfg.ReportPath != "" {
		return p.cfg.ReportPath
	}
	return filepath.Join(p.cfg.OutputDir, "report.md")
}
