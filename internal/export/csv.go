package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alvmarrod/wiki-weaver/internal/storage"
)

var (
	nodeHeader = []string{"Id", "Label", "Group", "Attribute"}
	edgeHeader = []string{"Source", "Target", "Type", "Weight"}
)

// LabelCleaner rewrites link node labels for export. A nil cleaner keeps
// labels unchanged.
type LabelCleaner func(label string) string

// LinkLabelCleaner strips double quotes and the base URL plus article prefix
// from link labels, leaving the article name
func LinkLabelCleaner(baseURL, articlePrefix string) LabelCleaner {
	prefix := strings.TrimRight(baseURL, "/") + "/" + strings.Trim(articlePrefix, "/") + "/"
	return func(label string) string {
		label = strings.ReplaceAll(label, `"`, "")
		return strings.TrimPrefix(label, prefix)
	}
}

// WriteCSV writes <name>_nodes.csv and <name>_edges.csv into dir
func WriteCSV(dir, name string, nodes []storage.NodeRow, edges []storage.EdgeRow, clean LabelCleaner) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ids, err := writeFile(filepath.Join(dir, name+"_nodes.csv"), func(w io.Writer) (map[string]int, error) {
		return WriteNodes(w, nodes, clean)
	})
	if err != nil {
		return err
	}

	_, err = writeFile(filepath.Join(dir, name+"_edges.csv"), func(w io.Writer) (map[string]int, error) {
		return nil, WriteEdges(w, edges, ids)
	})
	return err
}

func writeFile(path string, write func(io.Writer) (map[string]int, error)) (map[string]int, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	ids, err := write(f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return ids, nil
}

// WriteNodes writes the node table with Ids assigned 1..n in row order and
// returns the label to Id mapping used for the edge table. Link nodes carry no
// frequency and are written with Attribute 0.
func WriteNodes(w io.Writer, nodes []storage.NodeRow, clean LabelCleaner) (map[string]int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(nodeHeader); err != nil {
		return nil, err
	}

	ids := make(map[string]int, len(nodes))
	for i, n := range nodes {
		id := i + 1
		ids[n.Label] = id

		label := n.Label
		attribute := n.Attribute
		if n.Group == "link" {
			attribute = 0
			if clean != nil {
				label = clean(label)
			}
		}

		record := []string{strconv.Itoa(id), label, n.Group, strconv.Itoa(attribute)}
		if err := cw.Write(record); err != nil {
			return nil, err
		}
	}

	cw.Flush()
	return ids, cw.Error()
}

// WriteEdges writes the edge table with endpoints referenced by node Id.
// Directed link edges are always written with weight 1.
func WriteEdges(w io.Writer, edges []storage.EdgeRow, ids map[string]int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(edgeHeader); err != nil {
		return err
	}

	for _, e := range edges {
		source, ok := ids[e.Source]
		if !ok {
			return fmt.Errorf("edge source %q has no node", e.Source)
		}
		target, ok := ids[e.Target]
		if !ok {
			return fmt.Errorf("edge target %q has no node", e.Target)
		}

		weight := e.Weight
		if e.Type == "Directed" {
			weight = 1
		}

		record := []string{strconv.Itoa(source), strconv.Itoa(target), e.Type, strconv.Itoa(weight)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
