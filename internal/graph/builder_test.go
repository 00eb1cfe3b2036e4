package graph

import (
	"bytes"
	"strings"

	"github.com/sirupsen/logrus"
	check "gopkg.in/check.v1"

	"github.com/alvmarrod/wiki-weaver/internal/storage"
)

type builderTestSuite struct{}

func (s *builderTestSuite) TestWordFrequenciesAndEdgesAreSummed(c *check.C) {
	docs := []storage.Document{
		{URL: "a", Words: []string{"drug", "use", "drug"}},
		{URL: "b", Words: []string{"use", "drug", "risk"}},
	}

	g, stats := BuildWordGraph(docs, 2, 0)

	assertAttribute(c, g, "drug", 3)
	assertAttribute(c, g, "use", 2)
	assertAttribute(c, g, "risk", 1)

	// doc a windows: (drug,use) (use,drug); doc b: (use,drug) (drug,risk)
	assertWeight(c, g, "drug", "use", 3)
	assertWeight(c, g, "drug", "risk", 1)

	c.Assert(stats.Documents, check.Equals, 2)
	c.Assert(stats.WordNodes, check.Equals, 3)
	c.Assert(stats.CooccurrenceEdges, check.Equals, 2)
	c.Assert(stats.BigramNodes, check.Equals, 0)

	edgeWeight, nodeAttribute := g.Totals()
	c.Assert(edgeWeight, check.Equals, 4)
	c.Assert(nodeAttribute, check.Equals, 6)
}

func (s *builderTestSuite) TestShortDocumentsContributeNodesOnly(c *check.C) {
	docs := []storage.Document{{URL: "a", Words: []string{"lonely"}}}

	g, _ := BuildWordGraph(docs, 5, 10)

	nodeCount, edgeCount := g.GetStats()
	c.Assert(nodeCount, check.Equals, 1)
	c.Assert(edgeCount, check.Equals, 0)
}

func (s *builderTestSuite) TestTopNBigramsTieBreakByFirstEncounter(c *check.C) {
	docs := []storage.Document{
		{
			URL:     "a",
			Words:   []string{"drug", "use", "risk", "factor", "opioid"},
			Bigrams: []string{"risk factor", "drug use", "use risk", "drug use"},
		},
		{
			URL:     "b",
			Words:   []string{"opioid", "risk"},
			Bigrams: []string{"opioid risk", "use risk"},
		},
	}

	g, stats := BuildWordGraph(docs, 5, 3)

	// counts: risk factor 1, drug use 2, use risk 2, opioid risk 1.
	// Top 3 = drug use, use risk, risk factor (first seen among the ties).
	c.Assert(stats.BigramNodes, check.Equals, 3)
	_, ok := g.Node("opioid risk")
	c.Assert(ok, check.Equals, false)

	assertAttribute(c, g, "drug use", 2)
	assertAttribute(c, g, "use risk", 2)
	assertAttribute(c, g, "risk factor", 1)

	node, _ := g.Node("drug use")
	c.Assert(node.Kind, check.Equals, KindBigram)

	edge, ok := g.Edge("drug use", "drug")
	c.Assert(ok, check.Equals, true)
	c.Assert(edge.Type, check.Equals, EdgeContains)
	c.Assert(edge.Weight, check.Equals, 1)

	// drug use ~ use risk share "use"; use risk ~ risk factor share "risk".
	edge, ok = g.Edge("drug use", "use risk")
	c.Assert(ok, check.Equals, true)
	c.Assert(edge.Type, check.Equals, EdgeCoOccurs)
	c.Assert(edge.Weight, check.Equals, 1)
	_, ok = g.Edge("use risk", "risk factor")
	c.Assert(ok, check.Equals, true)
	_, ok = g.Edge("drug use", "risk factor")
	c.Assert(ok, check.Equals, false)

	c.Assert(stats.ContainsEdges, check.Equals, 6)
	c.Assert(stats.CoOccursEdges, check.Equals, 2)
}

func (s *builderTestSuite) TestMalformedBigramsAreSkipped(c *check.C) {
	docs := []storage.Document{
		{
			URL:     "a",
			Words:   []string{"drug", "use"},
			Bigrams: []string{"drug use", "single", "one two three"},
		},
	}

	g, stats := BuildWordGraph(docs, 2, 10)

	c.Assert(stats.MalformedBigrams, check.Equals, 2)
	c.Assert(stats.BigramNodes, check.Equals, 1)
	_, ok := g.Node("single")
	c.Assert(ok, check.Equals, false)
	_, ok = g.Node("drug use")
	c.Assert(ok, check.Equals, true)
}

func (s *builderTestSuite) TestMalformedBigramsDoNotTakeTopSlots(c *check.C) {
	docs := []storage.Document{
		{
			URL:     "a",
			Words:   []string{"drug", "use"},
			Bigrams: []string{"bad", "bad", "drug use"},
		},
	}

	g, stats := BuildWordGraph(docs, 2, 1)

	c.Assert(stats.MalformedBigrams, check.Equals, 1)
	c.Assert(stats.BigramNodes, check.Equals, 1)
	assertAttribute(c, g, "drug use", 1)
	_, ok := g.Node("bad")
	c.Assert(ok, check.Equals, false)
}

func (s *builderTestSuite) TestWarningsGoToInjectedLogger(c *check.C) {
	var buf bytes.Buffer
	logger := &logrus.Logger{
		Out:       &buf,
		Formatter: &logrus.TextFormatter{DisableTimestamp: true},
		Level:     logrus.DebugLevel,
	}
	docs := []storage.Document{{URL: "a", Words: []string{"drug"}, Bigrams: []string{"bad"}}}

	BuildWordGraph(docs, 2, 1, WithLogger(logger.WithField("component", "graph")))

	out := buf.String()
	c.Assert(strings.Contains(out, `Skipping malformed bigram`), check.Equals, true, check.Commentf("got %q", out))
	c.Assert(strings.Contains(out, "component=graph"), check.Equals, true, check.Commentf("got %q", out))
}

func (s *builderTestSuite) TestBigramWithUnknownConstituent(c *check.C) {
	docs := []storage.Document{
		{URL: "a", Words: []string{"drug"}, Bigrams: []string{"drug abuse"}},
	}

	g, stats := BuildWordGraph(docs, 2, 10)

	c.Assert(stats.BigramNodes, check.Equals, 1)
	c.Assert(stats.MissingWords, check.Equals, 1)
	_, ok := g.Edge("drug abuse", "drug")
	c.Assert(ok, check.Equals, true)
	_, ok = g.Node("abuse")
	c.Assert(ok, check.Equals, false)
}

func (s *builderTestSuite) TestLinkGraph(c *check.C) {
	docs := []storage.DocLinks{
		{Source: "seed", Targets: []string{"A", "B"}},
		{Source: "A", Targets: []string{"B", "seed"}},
	}

	g := BuildLinkGraph(docs)

	c.Assert(g.Directed(), check.Equals, true)
	nodeCount, edgeCount := g.GetStats()
	c.Assert(nodeCount, check.Equals, 3)
	c.Assert(edgeCount, check.Equals, 4)

	for _, n := range g.Nodes() {
		c.Assert(n.Kind, check.Equals, KindLink)
		c.Assert(n.Attribute, check.Equals, 0)
	}
	for _, e := range g.Edges() {
		c.Assert(e.Type, check.Equals, EdgeDirected)
		c.Assert(e.Weight, check.Equals, 1)
	}

	_, ok := g.Edge("A", "seed")
	c.Assert(ok, check.Equals, true)
	_, ok = g.Edge("B", "A")
	c.Assert(ok, check.Equals, false)
}

func (s *builderTestSuite) TestLinkGraphDuplicateTargetsYieldOneEdge(c *check.C) {
	g := BuildLinkGraph([]storage.DocLinks{{Source: "seed", Targets: []string{"A", "A"}}})

	edge, ok := g.Edge("seed", "A")
	c.Assert(ok, check.Equals, true)
	c.Assert(edge.Weight, check.Equals, 1)
	_, edgeCount := g.GetStats()
	c.Assert(edgeCount, check.Equals, 1)
}

func assertAttribute(c *check.C, g *Graph, label string, expected int) {
	node, ok := g.Node(label)
	c.Assert(ok, check.Equals, true, check.Commentf("node %q missing", label))
	c.Assert(node.Attribute, check.Equals, expected, check.Commentf("node %q", label))
}

func assertWeight(c *check.C, g *Graph, a, b string, expected int) {
	edge, ok := g.Edge(a, b)
	c.Assert(ok, check.Equals, true, check.Commentf("edge %q-%q missing", a, b))
	c.Assert(edge.Weight, check.Equals, expected, check.Commentf("edge %q-%q", a, b))
}
