package prune

import (
	"errors"
	"fmt"

	"github.com/alvmarrod/wiki-weaver/internal/graph"
)

// ErrNothingToPrune signals that a pruning pass had no edges or nodes to act
// on. It is informational: the graph is left untouched.
var ErrNothingToPrune = errors.New("nothing to prune")

// Report describes the outcome of one pruning pass
type Report struct {
	Threshold float64
	Floor     int
	Before    int
	Removed   int
	// EdgesDropped counts edges removed as a side effect of node removal
	EdgesDropped int
}

// Kept returns how many elements survived the pass
func (r Report) Kept() int {
	return r.Before - r.Removed
}

// Edges removes every edge whose weight is below the given percentile of all
// edge weights, or below minWeight. Either condition alone is enough.
// Endpoint nodes are never removed here.
func Edges(g *graph.Graph, percentile float64, minWeight int) (Report, error) {
	if err := CheckPercentile(percentile); err != nil {
		return Report{}, err
	}

	edges := g.Edges()
	if len(edges) == 0 {
		return Report{}, ErrNothingToPrune
	}

	weights := make([]float64, len(edges))
	for i, e := range edges {
		weights[i] = float64(e.Weight)
	}
	threshold, err := Percentile(weights, percentile)
	if err != nil {
		return Report{}, fmt.Errorf("edge weight percentile: %w", err)
	}

	report := Report{Threshold: threshold, Floor: minWeight, Before: len(edges)}
	for _, e := range edges {
		if float64(e.Weight) < threshold || e.Weight < minWeight {
			if g.RemoveEdge(e.Source, e.Target) {
				report.Removed++
			}
		}
	}
	return report, nil
}

// Nodes removes word nodes whose frequency is below the given percentile of
// all word frequencies, or below minFreq. Bigram and link nodes are exempt.
// Removing a node removes all of its incident edges.
func Nodes(g *graph.Graph, percentile float64, minFreq int) (Report, error) {
	if err := CheckPercentile(percentile); err != nil {
		return Report{}, err
	}

	var words []graph.Node
	for _, n := range g.Nodes() {
		if n.Kind == graph.KindWord {
			words = append(words, n)
		}
	}
	if len(words) == 0 {
		return Report{}, ErrNothingToPrune
	}

	freqs := make([]float64, len(words))
	for i, n := range words {
		freqs[i] = float64(n.Attribute)
	}
	threshold, err := Percentile(freqs, percentile)
	if err != nil {
		return Report{}, fmt.Errorf("node frequency percentile: %w", err)
	}

	report := Report{Threshold: threshold, Floor: minFreq, Before: len(words)}
	for _, n := range words {
		if float64(n.Attribute) < threshold || n.Attribute < minFreq {
			if dropped := g.RemoveNode(n.Label); dropped >= 0 {
				report.Removed++
				report.EdgesDropped += dropped
			}
		}
	}
	return report, nil
}

// Options holds the thresholds for a full graph pruning run
type Options struct {
	EdgePercentile float64
	EdgeMinWeight  int
	NodePercentile float64
	NodeMinFreq    int
}

// Validate checks both percentiles are within [0, 100]
func (o Options) Validate() error {
	if err := CheckPercentile(o.EdgePercentile); err != nil {
		return fmt.Errorf("edge percentile: %w", err)
	}
	if err := CheckPercentile(o.NodePercentile); err != nil {
		return fmt.Errorf("node percentile: %w", err)
	}
	return nil
}

// Summary combines the edge and node passes. A Skipped flag is set when the
// corresponding pass had nothing to act on.
type Summary struct {
	Edges        Report
	Nodes        Report
	EdgesSkipped bool
	NodesSkipped bool
}

// Graph prunes edges and then nodes of g in place. Empty passes are recorded
// in the summary rather than returned as errors.
func Graph(g *graph.Graph, opts Options) (Summary, error) {
	var summary Summary
	if err := opts.Validate(); err != nil {
		return summary, err
	}

	edgeReport, err := Edges(g, opts.EdgePercentile, opts.EdgeMinWeight)
	switch {
	case errors.Is(err, ErrNothingToPrune):
		summary.EdgesSkipped = true
	case err != nil:
		return summary, err
	}
	summary.Edges = edgeReport

	nodeReport, err := Nodes(g, opts.NodePercentile, opts.NodeMinFreq)
	switch {
	case errors.Is(err, ErrNothingToPrune):
		summary.NodesSkipped = true
	case err != nil:
		return summary, err
	}
	summary.Nodes = nodeReport

	return summary, nil
}
