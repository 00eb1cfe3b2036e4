package storage

import (
	"time"

	"github.com/google/uuid"
)

// QueueEntry represents an item in the BFS crawl frontier
type QueueEntry struct {
	URL   string
	Depth int
}

// Document is a single crawled page and the observations extracted from it
type Document struct {
	URL     string
	Depth   int
	Words   []string
	Bigrams []string
	// Links holds same-site targets in first-seen order, without duplicates
	Links []string
}

// Run describes one crawl run as persisted in the runs table
type Run struct {
	RunID             uuid.UUID
	SeedURL           string
	StartedAt         time.Time
	FinishedAt        time.Time
	Documents         int
	Failures          int
	TerminationReason string
}

// NodeRow is a graph node as stored in the snapshot tables
type NodeRow struct {
	Graph     string
	Label     string
	Group     string
	Attribute int
}

// EdgeRow is a graph edge as stored in the snapshot tables
type EdgeRow struct {
	Graph  string
	Source string
	Target string
	Type   string
	Weight int
}

// Metrics tracks crawl statistics for export on exit
type Metrics struct {
	RunID               string         `json:"run_id"`
	StartTime           time.Time      `json:"start_time"`
	EndTime             time.Time      `json:"end_time"`
	DocumentsDiscovered int            `json:"documents_discovered"`
	DocumentsCrawled    int            `json:"documents_crawled"`
	PagesFetched        int            `json:"pages_fetched"`
	PagesFailed         int            `json:"pages_failed"`
	FailuresByKind      map[string]int `json:"failures_by_kind"`
	WordNodes           int            `json:"word_nodes"`
	WordEdges           int            `json:"word_edges"`
	LinkNodes           int            `json:"link_nodes"`
	LinkEdges           int            `json:"link_edges"`
	TotalFetchTimeMs    int64          `json:"total_fetch_time_ms"`
	AvgFetchTimeMs      int64          `json:"avg_fetch_time_ms"`
	Partial             bool           `json:"partial"`
	TerminationReason   string         `json:"termination_reason"`
}

// DocLinks is the set of link targets observed on one source document
type DocLinks struct {
	Source  string
	Targets []string
}
