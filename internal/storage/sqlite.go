package storage

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Storage persists run snapshots: the run itself, its crawled documents and
// the final pruned graphs
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: sqlite has a single writer and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		seed_url TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		documents INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		termination_reason TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS documents (
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		depth INTEGER NOT NULL,
		word_count INTEGER NOT NULL,
		bigram_count INTEGER NOT NULL,
		link_count INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id),
		PRIMARY KEY (run_id, url)
	);

	CREATE TABLE IF NOT EXISTS nodes (
		node_id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		graph TEXT NOT NULL,
		label TEXT NOT NULL,
		grp TEXT NOT NULL,
		attribute INTEGER DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES runs(run_id),
		UNIQUE(run_id, graph, label)
	);

	CREATE TABLE IF NOT EXISTS edges (
		edge_id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		graph TEXT NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		type TEXT NOT NULL,
		weight INTEGER DEFAULT 1,
		FOREIGN KEY (run_id) REFERENCES runs(run_id),
		UNIQUE(run_id, graph, source, target)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_run ON nodes(run_id, graph);
	CREATE INDEX IF NOT EXISTS idx_edges_run ON edges(run_id, graph);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts a run or updates its outcome if it exists
func (s *Storage) SaveRun(run Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, seed_url, started_at, finished_at, documents, failures, termination_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			documents = EXCLUDED.documents,
			failures = EXCLUDED.failures,
			termination_reason = EXCLUDED.termination_reason
	`, run.RunID.String(), run.SeedURL, run.StartedAt, run.FinishedAt, run.Documents, run.Failures, run.TerminationReason)

	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID, returns nil if not found
func (s *Storage) GetRun(runID uuid.UUID) (*Run, error) {
	var run Run
	var id string
	var finished sql.NullTime
	err := s.db.QueryRow(`
		SELECT run_id, seed_url, started_at, finished_at, documents, failures, termination_reason
		FROM runs
		WHERE run_id = ?
	`, runID.String()).Scan(&id, &run.SeedURL, &run.StartedAt, &finished, &run.Documents, &run.Failures, &run.TerminationReason)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if run.RunID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("malformed run id %q: %w", id, err)
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}

	return &run, nil
}

// SaveDocuments records the crawled documents of a run
func (s *Storage) SaveDocuments(runID uuid.UUID, docs []Document) error {
	return s.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO documents (run_id, url, depth, word_count, bigram_count, link_count)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, url) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare document insert: %w", err)
		}
		defer stmt.Close()

		for _, d := range docs {
			if _, err := stmt.Exec(runID.String(), d.URL, d.Depth, len(d.Words), len(d.Bigrams), len(d.Links)); err != nil {
				return fmt.Errorf("failed to insert document %s: %w", d.URL, err)
			}
		}
		return nil
	})
}

// SaveGraph stores graph rows for a run in a single transaction. Rows for a
// label or edge already stored under the same run and graph are replaced.
func (s *Storage) SaveGraph(runID uuid.UUID, nodes []NodeRow, edges []EdgeRow) error {
	return s.inTx(func(tx *sql.Tx) error {
		nodeStmt, err := tx.Prepare(`
			INSERT INTO nodes (run_id, graph, label, grp, attribute)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id, graph, label) DO UPDATE SET
				grp = EXCLUDED.grp,
				attribute = EXCLUDED.attribute
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare node upsert: %w", err)
		}
		defer nodeStmt.Close()

		edgeStmt, err := tx.Prepare(`
			INSERT INTO edges (run_id, graph, source, target, type, weight)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, graph, source, target) DO UPDATE SET
				type = EXCLUDED.type,
				weight = EXCLUDED.weight
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare edge upsert: %w", err)
		}
		defer edgeStmt.Close()

		for _, n := range nodes {
			if _, err := nodeStmt.Exec(runID.String(), n.Graph, n.Label, n.Group, n.Attribute); err != nil {
				return fmt.Errorf("failed to upsert node %q: %w", n.Label, err)
			}
		}
		for _, e := range edges {
			if _, err := edgeStmt.Exec(runID.String(), e.Graph, e.Source, e.Target, e.Type, e.Weight); err != nil {
				return fmt.Errorf("failed to upsert edge %q -> %q: %w", e.Source, e.Target, err)
			}
		}
		return nil
	})
}

// LoadGraph returns the stored rows of one graph of a run in insertion order
func (s *Storage) LoadGraph(runID uuid.UUID, graph string) ([]NodeRow, []EdgeRow, error) {
	rows, err := s.db.Query(`
		SELECT graph, label, grp, attribute
		FROM nodes
		WHERE run_id = ? AND graph = ?
		ORDER BY node_id ASC
	`, runID.String(), graph)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load nodes: %w", err)
	}

	var nodes []NodeRow
	for rows.Next() {
		var n NodeRow
		if err := rows.Scan(&n.Graph, &n.Label, &n.Group, &n.Attribute); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	rows, err = s.db.Query(`
		SELECT graph, source, target, type, weight
		FROM edges
		WHERE run_id = ? AND graph = ?
		ORDER BY edge_id ASC
	`, runID.String(), graph)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load edges: %w", err)
	}
	defer rows.Close()

	var edges []EdgeRow
	for rows.Next() {
		var e EdgeRow
		if err := rows.Scan(&e.Graph, &e.Source, &e.Target, &e.Type, &e.Weight); err != nil {
			return nil, nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating edges: %w", err)
	}

	return nodes, edges, nil
}

// inTx runs fn in a transaction, committing on success
func (s *Storage) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
