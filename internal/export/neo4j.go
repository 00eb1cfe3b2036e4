package export

import (
	"context"
	"fmt"
	"io"

	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/wiki-weaver/internal/storage"
)

// Neo4jConfig holds connection settings for the optional graph sink
type Neo4jConfig struct {
	URI       string
	User      string
	Password  string
	Database  string
	BatchSize int
	Logger    *logrus.Entry
}

// Neo4jSink writes pruned graphs into Neo4j, one UNWIND batch at a time
type Neo4jSink struct {
	driver neo4j.Driver
	cfg    Neo4jConfig
}

// NewNeo4jSink creates the driver and checks the server is reachable
func NewNeo4jSink(cfg Neo4jConfig) (*Neo4jSink, error) {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 500
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	driver, err := neo4j.NewDriver(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(); err != nil {
		driver.Close()
		return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}

	return &Neo4jSink{driver: driver, cfg: cfg}, nil
}

// Close releases the driver
func (s *Neo4jSink) Close() error {
	return s.driver.Close()
}

// WriteGraph merges the nodes and then the edges of one graph, tagging every
// element with the run ID
func (s *Neo4jSink) WriteGraph(ctx context.Context, runID string, nodes []storage.NodeRow, edges []storage.EdgeRow) error {
	session := s.driver.NewSession(neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.cfg.Database,
	})
	defer session.Close()

	if len(nodes) > 0 {
		query := nodeQuery(nodes[0].Graph)
		for _, batch := range batches(NodeParams(nodes), s.cfg.BatchSize) {
			if err := s.run(ctx, session, query, runID, batch); err != nil {
				return fmt.Errorf("failed to write nodes: %w", err)
			}
		}
	}

	if len(edges) > 0 {
		query := edgeQuery(edges[0].Graph)
		for _, batch := range batches(EdgeParams(edges), s.cfg.BatchSize) {
			if err := s.run(ctx, session, query, runID, batch); err != nil {
				return fmt.Errorf("failed to write edges: %w", err)
			}
		}
	}

	s.cfg.Logger.WithFields(logrus.Fields{
		"nodes": len(nodes),
		"edges": len(edges),
	}).Info("Graph written to Neo4j")
	return nil
}

func (s *Neo4jSink) run(ctx context.Context, session neo4j.Session, query, runID string, rows []map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		result, err := tx.Run(query, map[string]interface{}{
			"run_id": runID,
			"rows":   rows,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume()
	})
	return err
}

// nodeLabel maps a graph name to the Neo4j node label of its nodes
func nodeLabel(graphName string) string {
	if graphName == "links" {
		return "Article"
	}
	return "Term"
}

// relType maps a graph name to the relationship type of its edges
func relType(graphName string) string {
	if graphName == "links" {
		return "LINKS_TO"
	}
	return "RELATES"
}

func nodeQuery(graphName string) string {
	return fmt.Sprintf(`
		UNWIND $rows AS row
		MERGE (n:%s {run_id: $run_id, label: row.label})
		SET n.group = row.group, n.attribute = row.attribute
	`, nodeLabel(graphName))
}

func edgeQuery(graphName string) string {
	label := nodeLabel(graphName)
	return fmt.Sprintf(`
		UNWIND $rows AS row
		MATCH (a:%s {run_id: $run_id, label: row.source})
		MATCH (b:%s {run_id: $run_id, label: row.target})
		MERGE (a)-[r:%s {type: row.type}]->(b)
		SET r.weight = row.weight
	`, label, label, relType(graphName))
}

// NodeParams converts node rows into Cypher parameter maps
func NodeParams(nodes []storage.NodeRow) []map[string]interface{} {
	params := make([]map[string]interface{}, 0, len(nodes))
	for _, n := range nodes {
		params = append(params, map[string]interface{}{
			"label":     n.Label,
			"group":     n.Group,
			"attribute": int64(n.Attribute),
		})
	}
	return params
}

// EdgeParams converts edge rows into Cypher parameter maps
func EdgeParams(edges []storage.EdgeRow) []map[string]interface{} {
	params := make([]map[string]interface{}, 0, len(edges))
	for _, e := range edges {
		params = append(params, map[string]interface{}{
			"source": e.Source,
			"target": e.Target,
			"type":   e.Type,
			"weight": int64(e.Weight),
		})
	}
	return params
}

func batches(rows []map[string]interface{}, size int) [][]map[string]interface{} {
	var out [][]map[string]interface{}
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
