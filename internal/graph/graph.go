package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alvmarrod/wiki-weaver/internal/storage"
)

// Kind tags a node as one of the three node variants sharing the export schema
type Kind string

const (
	KindWord   Kind = "word"
	KindBigram Kind = "bigram"
	KindLink   Kind = "link"
)

// HasAttribute reports whether nodes of this kind carry a frequency attribute
func (k Kind) HasAttribute() bool {
	return k != KindLink
}

// EdgeType labels the relationship an edge represents
type EdgeType string

const (
	EdgeUndirected EdgeType = "Undirected"
	EdgeContains   EdgeType = "Contains"
	EdgeCoOccurs   EdgeType = "Co-occurs"
	EdgeDirected   EdgeType = "Directed"
)

// Node is a graph vertex identified by its label
type Node struct {
	ID        int
	Label     string
	Kind      Kind
	Attribute int
}

// Edge connects two node labels
type Edge struct {
	Source string
	Target string
	Type   EdgeType
	Weight int
	seq    int
}

type edgeKey struct {
	from, to string
}

// Graph holds a weighted graph in memory for a single run
type Graph struct {
	directed    bool
	nodes       map[string]*Node
	edges       map[edgeKey]*Edge
	incident    map[string]map[edgeKey]struct{}
	nodeCounter int
	edgeCounter int
	mu          sync.RWMutex
}

// NewGraph creates an empty undirected graph
func NewGraph() *Graph {
	return newGraph(false)
}

// NewDirectedGraph creates an empty directed graph
func NewDirectedGraph() *Graph {
	return newGraph(true)
}

func newGraph(directed bool) *Graph {
	return &Graph{
		directed: directed,
		nodes:    make(map[string]*Node),
		edges:    make(map[edgeKey]*Edge),
		incident: make(map[string]map[edgeKey]struct{}),
	}
}

// Directed reports whether edge direction is significant
func (g *Graph) Directed() bool {
	return g.directed
}

// AddNode inserts a node if it does not exist yet and returns its ID.
// The kind of an existing node is never changed.
func (g *Graph) AddNode(label string, kind Kind) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.addNodeLocked(label, kind).ID
}

func (g *Graph) addNodeLocked(label string, kind Kind) *Node {
	if node, exists := g.nodes[label]; exists {
		return node
	}

	g.nodeCounter++
	node := &Node{
		ID:    g.nodeCounter,
		Label: label,
		Kind:  kind,
	}
	g.nodes[label] = node
	return node
}

// AddFrequency adds delta to the attribute of a node, creating it if needed
func (g *Graph) AddFrequency(label string, kind Kind, delta int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node := g.addNodeLocked(label, kind)
	if !node.Kind.HasAttribute() {
		return fmt.Errorf("node %q of kind %s has no frequency attribute", label, node.Kind)
	}
	node.Attribute += delta
	return nil
}

func (g *Graph) key(a, b string) edgeKey {
	if !g.directed && b < a {
		a, b = b, a
	}
	return edgeKey{from: a, to: b}
}

// AddEdge adds weight to the edge between a and b, creating it if needed
func (g *Graph) AddEdge(a, b string, edgeType EdgeType, weight int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	edge, err := g.edgeLocked(a, b, edgeType)
	if err != nil {
		return err
	}
	edge.Weight += weight
	return nil
}

// SetEdge creates the edge between a and b with a fixed weight.
// Returns false if the edge already existed, in which case it is left untouched.
func (g *Graph) SetEdge(a, b string, edgeType EdgeType, weight int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.edges[g.key(a, b)]; exists {
		return false, nil
	}

	edge, err := g.edgeLocked(a, b, edgeType)
	if err != nil {
		return false, err
	}
	edge.Weight = weight
	return true, nil
}

func (g *Graph) edgeLocked(a, b string, edgeType EdgeType) (*Edge, error) {
	// Verify nodes exist
	if _, exists := g.nodes[a]; !exists {
		return nil, fmt.Errorf("source node %q not found", a)
	}
	if _, exists := g.nodes[b]; !exists {
		return nil, fmt.Errorf("target node %q not found", b)
	}

	k := g.key(a, b)
	if edge, exists := g.edges[k]; exists {
		return edge, nil
	}

	g.edgeCounter++
	edge := &Edge{
		Source: k.from,
		Target: k.to,
		Type:   edgeType,
		seq:    g.edgeCounter,
	}
	g.edges[k] = edge
	g.link(k.from, k)
	g.link(k.to, k)
	return edge, nil
}

func (g *Graph) link(label string, k edgeKey) {
	set, ok := g.incident[label]
	if !ok {
		set = make(map[edgeKey]struct{})
		g.incident[label] = set
	}
	set[k] = struct{}{}
}

func (g *Graph) unlink(k edgeKey) {
	delete(g.incident[k.from], k)
	delete(g.incident[k.to], k)
}

// RemoveEdge deletes the edge between a and b. Endpoint nodes are kept.
func (g *Graph) RemoveEdge(a, b string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := g.key(a, b)
	if _, exists := g.edges[k]; !exists {
		return false
	}
	delete(g.edges, k)
	g.unlink(k)
	return true
}

// RemoveNode deletes a node together with every edge incident to it.
// Returns the number of edges removed, or -1 if the node did not exist.
func (g *Graph) RemoveNode(label string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[label]; !exists {
		return -1
	}

	removed := 0
	for k := range g.incident[label] {
		delete(g.edges, k)
		g.unlink(k)
		removed++
	}
	delete(g.incident, label)
	delete(g.nodes, label)
	return removed
}

// Node retrieves a copy of the node with the given label
func (g *Graph) Node(label string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[label]
	if !exists {
		return Node{}, false
	}
	return *node, true
}

// Edge retrieves a copy of the edge between a and b
func (g *Graph) Edge(a, b string) (Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edge, exists := g.edges[g.key(a, b)]
	if !exists {
		return Edge{}, false
	}
	return *edge, true
}

// Nodes returns copies of all nodes in insertion order
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		nodes = append(nodes, *node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Edges returns copies of all edges in insertion order
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := make([]Edge, 0, len(g.edges))
	for _, edge := range g.edges {
		edges = append(edges, *edge)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].seq < edges[j].seq })
	return edges
}

// GetStats returns current graph statistics
func (g *Graph) GetStats() (nodeCount, edgeCount int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.nodes), len(g.edges)
}

// Totals returns the sum of all edge weights and of all node attributes
func (g *Graph) Totals() (edgeWeight, nodeAttribute int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, edge := range g.edges {
		edgeWeight += edge.Weight
	}
	for _, node := range g.nodes {
		nodeAttribute += node.Attribute
	}
	return edgeWeight, nodeAttribute
}

// Rows converts the graph into snapshot rows tagged with the graph name
func (g *Graph) Rows(name string) ([]storage.NodeRow, []storage.EdgeRow) {
	nodes := g.Nodes()
	edges := g.Edges()

	nodeRows := make([]storage.NodeRow, 0, len(nodes))
	for _, n := range nodes {
		nodeRows = append(nodeRows, storage.NodeRow{
			Graph:     name,
			Label:     n.Label,
			Group:     string(n.Kind),
			Attribute: n.Attribute,
		})
	}

	edgeRows := make([]storage.EdgeRow, 0, len(edges))
	for _, e := range edges {
		edgeRows = append(edgeRows, storage.EdgeRow{
			Graph:  name,
			Source: e.Source,
			Target: e.Target,
			Type:   string(e.Type),
			Weight: e.Weight,
		})
	}

	return nodeRows, edgeRows
}
