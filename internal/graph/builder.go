package graph

import (
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/wiki-weaver/internal/cooccur"
	"github.com/alvmarrod/wiki-weaver/internal/storage"
)

// BuildStats summarises what the word graph assembler folded in
type BuildStats struct {
	Documents         int
	WordNodes         int
	CooccurrenceEdges int
	BigramNodes       int
	ContainsEdges     int
	CoOccursEdges     int
	MalformedBigrams  int
	MissingWords      int
}

// BuildOption configures the graph assemblers
type BuildOption func(*buildOptions)

type buildOptions struct {
	logger *logrus.Entry
}

// WithLogger routes assembler warnings to logger
func WithLogger(logger *logrus.Entry) BuildOption {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

func newBuildOptions(opts []BuildOption) *buildOptions {
	o := &buildOptions{logger: logrus.NewEntry(&logrus.Logger{Out: io.Discard})}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// counter keeps occurrence counts together with first-encounter order
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string, n int) {
	if _, seen := c.counts[key]; !seen {
		c.order = append(c.order, key)
	}
	c.counts[key] += n
}

// top returns up to n keys by descending count; equal counts keep first-encounter order
func (c *counter) top(n int) []string {
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	sort.SliceStable(keys, func(i, j int) bool {
		return c.counts[keys[i]] > c.counts[keys[j]]
	})
	if n >= 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// BuildWordGraph folds per-document words and bigrams into one undirected graph.
// Word frequencies and co-occurrence counts are summed across documents. Only the
// topN most frequent bigrams become nodes; their Contains and Co-occurs edges
// carry weight 1 and are added once per pair.
func BuildWordGraph(docs []storage.Document, window, topN int, opts ...BuildOption) (*Graph, BuildStats) {
	log := newBuildOptions(opts).logger
	g := NewGraph()
	stats := BuildStats{Documents: len(docs)}

	words := newCounter()
	bigrams := newCounter()
	pairs := make(map[cooccur.Pair]int)
	var pairOrder []cooccur.Pair

	for _, doc := range docs {
		for _, w := range doc.Words {
			words.add(w, 1)
		}
		for _, b := range doc.Bigrams {
			bigrams.add(b, 1)
		}

		counts, order := cooccur.Count(doc.Words, window)
		for _, p := range order {
			if _, seen := pairs[p]; !seen {
				pairOrder = append(pairOrder, p)
			}
			pairs[p] += counts[p]
		}
	}

	for _, w := range words.order {
		if err := g.AddFrequency(w, KindWord, words.counts[w]); err != nil {
			log.Warnf("Skipping word %q: %v", w, err)
			continue
		}
		stats.WordNodes++
	}

	for _, p := range pairOrder {
		if err := g.AddEdge(p.A, p.B, EdgeUndirected, pairs[p]); err != nil {
			log.Warnf("Skipping co-occurrence edge %s-%s: %v", p.A, p.B, err)
			continue
		}
		stats.CooccurrenceEdges++
	}

	addBigrams(log, g, bigrams, topN, &stats)

	return g, stats
}

// usableBigrams drops malformed bigrams and those whose label is already taken
// by a word node, keeping counts and first-encounter order for ranking.
func usableBigrams(log *logrus.Entry, g *Graph, bigrams *counter, stats *BuildStats) *counter {
	usable := newCounter()
	for _, b := range bigrams.order {
		if len(strings.Fields(b)) != 2 {
			log.Debugf("Skipping malformed bigram %q", b)
			stats.MalformedBigrams++
			continue
		}
		if node, exists := g.Node(b); exists && node.Kind != KindBigram {
			log.Debugf("Skipping bigram %q: label already used by a %s node", b, node.Kind)
			stats.MalformedBigrams++
			continue
		}
		usable.add(b, bigrams.counts[b])
	}
	return usable
}

func addBigrams(log *logrus.Entry, g *Graph, bigrams *counter, topN int, stats *BuildStats) {
	if topN <= 0 || len(bigrams.order) == 0 {
		return
	}

	usable := usableBigrams(log, g, bigrams, stats)

	// constituent word -> retained bigrams containing it
	byWord := make(map[string][]string)
	var wordOrder []string

	for _, b := range usable.top(topN) {
		parts := strings.Fields(b)
		if err := g.AddFrequency(b, KindBigram, usable.counts[b]); err != nil {
			log.Warnf("Skipping bigram %q: %v", b, err)
			continue
		}
		stats.BigramNodes++

		for _, w := range parts {
			if node, exists := g.Node(w); !exists || node.Kind != KindWord {
				stats.MissingWords++
				continue
			}
			added, err := g.SetEdge(b, w, EdgeContains, 1)
			if err != nil {
				log.Warnf("Skipping contains edge %q-%q: %v", b, w, err)
				continue
			}
			if added {
				stats.ContainsEdges++
			}

			if _, seen := byWord[w]; !seen {
				wordOrder = append(wordOrder, w)
			}
			if len(byWord[w]) == 0 || byWord[w][len(byWord[w])-1] != b {
				byWord[w] = append(byWord[w], b)
			}
		}
	}

	for _, w := range wordOrder {
		group := byWord[w]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				added, err := g.SetEdge(group[i], group[j], EdgeCoOccurs, 1)
				if err != nil {
					log.Warnf("Skipping co-occurs edge %q-%q: %v", group[i], group[j], err)
					continue
				}
				if added {
					stats.CoOccursEdges++
				}
			}
		}
	}
}

// BuildLinkGraph turns pruned link observations into a simple directed graph.
// Every source and target becomes a link node; each (source, target) pair
// yields exactly one edge of weight 1.
func BuildLinkGraph(docs []storage.DocLinks, opts ...BuildOption) *Graph {
	log := newBuildOptions(opts).logger
	g := NewDirectedGraph()

	for _, doc := range docs {
		g.AddNode(doc.Source, KindLink)
		for _, target := range doc.Targets {
			g.AddNode(target, KindLink)
		}
	}

	for _, doc := range docs {
		for _, target := range doc.Targets {
			if _, err := g.SetEdge(doc.Source, target, EdgeDirected, 1); err != nil {
				log.Warnf("Skipping link %s -> %s: %v", doc.Source, target, err)
			}
		}
	}

	return g
}
