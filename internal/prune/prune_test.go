package prune

import (
	"errors"
	"fmt"
	"testing"

	check "gopkg.in/check.v1"

	"github.com/alvmarrod/wiki-weaver/internal/graph"
	"github.com/alvmarrod/wiki-weaver/internal/storage"
)

var (
	_ = check.Suite(new(linkPruneTestSuite))
	_ = check.Suite(new(percentileTestSuite))
	_ = check.Suite(new(graphPruneTestSuite))
)

func Test(t *testing.T) {
	check.TestingT(t)
}

type linkPruneTestSuite struct{}

func (s *linkPruneTestSuite) TestOnlyFrequentLinksSurvive(c *check.C) {
	docs := []storage.DocLinks{
		{Source: "seed", Targets: []string{"A", "B", "A", "C"}},
		{Source: "other", Targets: []string{"A"}},
	}

	freq := LinkFrequencies(docs)
	c.Assert(freq, check.DeepEquals, map[string]int{"A": 2, "B": 1, "C": 1})

	pruned := Links(docs, 2)
	c.Assert(pruned, check.DeepEquals, []storage.DocLinks{
		{Source: "seed", Targets: []string{"A"}},
		{Source: "other", Targets: []string{"A"}},
	})
}

func (s *linkPruneTestSuite) TestEmptyDocumentsAreDropped(c *check.C) {
	docs := []storage.DocLinks{
		{Source: "seed", Targets: []string{"A", "B"}},
		{Source: "lonely", Targets: []string{"C"}},
		{Source: "empty"},
		{Source: "other", Targets: []string{"A", "B"}},
	}

	pruned := Links(docs, 2)
	c.Assert(pruned, check.HasLen, 2)
	c.Assert(pruned[0].Source, check.Equals, "seed")
	c.Assert(pruned[1].Source, check.Equals, "other")
}

func (s *linkPruneTestSuite) TestPruningIsIdempotent(c *check.C) {
	docs := []storage.DocLinks{
		{Source: "d1", Targets: []string{"A", "B", "C"}},
		{Source: "d2", Targets: []string{"A", "C", "D"}},
		{Source: "d3", Targets: []string{"B", "E"}},
		{Source: "d4", Targets: []string{"E", "F", "A"}},
	}

	for minFreq := 0; minFreq <= 4; minFreq++ {
		once := Links(docs, minFreq)
		twice := Links(once, minFreq)
		c.Assert(twice, check.DeepEquals, once, check.Commentf("minFreq=%d", minFreq))
	}
}

type percentileTestSuite struct{}

func (s *percentileTestSuite) TestMedian(c *check.C) {
	p, err := Percentile([]float64{10, 1, 5, 2, 1}, 50)
	c.Assert(err, check.IsNil)
	c.Assert(p, check.Equals, 2.0)
}

func (s *percentileTestSuite) TestInterpolation(c *check.C) {
	values := []float64{1, 2, 3, 4}

	p, err := Percentile(values, 50)
	c.Assert(err, check.IsNil)
	c.Assert(p, check.Equals, 2.5)

	p, err = Percentile(values, 0)
	c.Assert(err, check.IsNil)
	c.Assert(p, check.Equals, 1.0)

	p, err = Percentile(values, 100)
	c.Assert(err, check.IsNil)
	c.Assert(p, check.Equals, 4.0)

	p, err = Percentile(values, 25)
	c.Assert(err, check.IsNil)
	c.Assert(p, check.Equals, 1.75)
}

func (s *percentileTestSuite) TestInputIsNotModified(c *check.C) {
	values := []float64{3, 1, 2}
	_, err := Percentile(values, 50)
	c.Assert(err, check.IsNil)
	c.Assert(values, check.DeepEquals, []float64{3, 1, 2})
}

func (s *percentileTestSuite) TestErrors(c *check.C) {
	_, err := Percentile(nil, 50)
	c.Assert(errors.Is(err, ErrEmpty), check.Equals, true)

	_, err = Percentile([]float64{1}, 101)
	c.Assert(errors.Is(err, ErrPercentileRange), check.Equals, true)

	_, err = Percentile([]float64{1}, -0.5)
	c.Assert(errors.Is(err, ErrPercentileRange), check.Equals, true)
}

type graphPruneTestSuite struct{}

func (s *graphPruneTestSuite) TestEdgeThresholdOrFloor(c *check.C) {
	g := starGraph([]int{1, 1, 2, 5, 10})

	report, err := Edges(g, 50, 2)
	c.Assert(err, check.IsNil)
	c.Assert(report.Threshold, check.Equals, 2.0)
	c.Assert(report.Removed, check.Equals, 2)
	c.Assert(report.Kept(), check.Equals, 3)

	var kept []int
	for _, e := range g.Edges() {
		kept = append(kept, e.Weight)
	}
	c.Assert(kept, check.DeepEquals, []int{2, 5, 10})

	// Endpoints of removed edges stay.
	nodeCount, _ := g.GetStats()
	c.Assert(nodeCount, check.Equals, 6)
}

func (s *graphPruneTestSuite) TestFloorAloneRemoves(c *check.C) {
	g := starGraph([]int{1, 1, 2, 5, 10})

	report, err := Edges(g, 0, 3)
	c.Assert(err, check.IsNil)
	c.Assert(report.Threshold, check.Equals, 1.0)
	c.Assert(report.Removed, check.Equals, 3)
}

func (s *graphPruneTestSuite) TestPercentileAloneRemoves(c *check.C) {
	g := starGraph([]int{1, 1, 2, 5, 10})

	report, err := Edges(g, 75, 0)
	c.Assert(err, check.IsNil)
	c.Assert(report.Threshold, check.Equals, 5.0)
	c.Assert(report.Removed, check.Equals, 3)
}

func (s *graphPruneTestSuite) TestEmptyGraphSignalsNothingToPrune(c *check.C) {
	g := graph.NewGraph()

	_, err := Edges(g, 50, 1)
	c.Assert(errors.Is(err, ErrNothingToPrune), check.Equals, true)

	g.AddNode("drug use", graph.KindBigram)
	_, err = Nodes(g, 50, 1)
	c.Assert(errors.Is(err, ErrNothingToPrune), check.Equals, true)

	summary, err := Graph(g, Options{EdgePercentile: 50, NodePercentile: 50})
	c.Assert(err, check.IsNil)
	c.Assert(summary.EdgesSkipped, check.Equals, true)
	c.Assert(summary.NodesSkipped, check.Equals, true)
}

func (s *graphPruneTestSuite) TestNodePruningExemptsBigramsAndDropsEdges(c *check.C) {
	g := graph.NewGraph()
	c.Assert(g.AddFrequency("drug", graph.KindWord, 10), check.IsNil)
	c.Assert(g.AddFrequency("use", graph.KindWord, 6), check.IsNil)
	c.Assert(g.AddFrequency("rare", graph.KindWord, 1), check.IsNil)
	c.Assert(g.AddFrequency("drug use", graph.KindBigram, 1), check.IsNil)
	c.Assert(g.AddEdge("drug", "rare", graph.EdgeUndirected, 4), check.IsNil)
	c.Assert(g.AddEdge("use", "rare", graph.EdgeUndirected, 4), check.IsNil)
	c.Assert(g.AddEdge("drug", "use", graph.EdgeUndirected, 4), check.IsNil)
	_, err := g.SetEdge("drug use", "drug", graph.EdgeContains, 1)
	c.Assert(err, check.IsNil)

	report, err := Nodes(g, 50, 2)
	c.Assert(err, check.IsNil)
	c.Assert(report.Threshold, check.Equals, 6.0)
	c.Assert(report.Before, check.Equals, 3)
	c.Assert(report.Removed, check.Equals, 1)
	c.Assert(report.EdgesDropped, check.Equals, 2)

	_, ok := g.Node("rare")
	c.Assert(ok, check.Equals, false)
	bigram, ok := g.Node("drug use")
	c.Assert(ok, check.Equals, true)
	c.Assert(bigram.Attribute, check.Equals, 1)

	for _, e := range g.Edges() {
		c.Assert(e.Source, check.Not(check.Equals), "rare")
		c.Assert(e.Target, check.Not(check.Equals), "rare")
	}
}

func (s *graphPruneTestSuite) TestPruningNeverGrowsOrAltersGraph(c *check.C) {
	for _, p := range []float64{0, 25, 50, 90, 100} {
		g := graph.NewGraph()
		for i := 0; i < 8; i++ {
			c.Assert(g.AddFrequency(fmt.Sprintf("w%d", i), graph.KindWord, i+1), check.IsNil)
		}
		for i := 0; i < 8; i++ {
			for j := i + 1; j < 8; j += 2 {
				c.Assert(g.AddEdge(fmt.Sprintf("w%d", i), fmt.Sprintf("w%d", j), graph.EdgeUndirected, (i*j)%7+1), check.IsNil)
			}
		}

		before := make(map[string]int)
		for _, n := range g.Nodes() {
			before[n.Label] = n.Attribute
		}
		weightBefore, attrBefore := g.Totals()
		nodesBefore, edgesBefore := g.GetStats()

		_, err := Graph(g, Options{EdgePercentile: p, EdgeMinWeight: 2, NodePercentile: p, NodeMinFreq: 2})
		c.Assert(err, check.IsNil)

		weightAfter, attrAfter := g.Totals()
		nodesAfter, edgesAfter := g.GetStats()
		c.Assert(weightAfter <= weightBefore, check.Equals, true)
		c.Assert(attrAfter <= attrBefore, check.Equals, true)
		c.Assert(nodesAfter <= nodesBefore, check.Equals, true)
		c.Assert(edgesAfter <= edgesBefore, check.Equals, true)

		for _, n := range g.Nodes() {
			c.Assert(n.Attribute, check.Equals, before[n.Label])
		}
		for _, e := range g.Edges() {
			_, ok := g.Node(e.Source)
			c.Assert(ok, check.Equals, true)
			_, ok = g.Node(e.Target)
			c.Assert(ok, check.Equals, true)
		}
	}
}

func (s *graphPruneTestSuite) TestInvalidPercentileIsRejected(c *check.C) {
	g := starGraph([]int{1, 2})

	_, err := Graph(g, Options{EdgePercentile: 120, NodePercentile: 50})
	c.Assert(errors.Is(err, ErrPercentileRange), check.Equals, true)

	_, edgeCount := g.GetStats()
	c.Assert(edgeCount, check.Equals, 2)
}

// starGraph builds a hub word connected to one leaf per weight
func starGraph(weights []int) *graph.Graph {
	g := graph.NewGraph()
	g.AddNode("hub", graph.KindWord)
	for i, w := range weights {
		leaf := fmt.Sprintf("leaf%d", i)
		g.AddNode(leaf, graph.KindWord)
		if err := g.AddEdge("hub", leaf, graph.EdgeUndirected, w); err != nil {
			panic(err)
		}
	}
	return g
}
