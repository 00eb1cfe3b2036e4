package export

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/alvmarrod/wiki-weaver/internal/prune"
	"github.com/alvmarrod/wiki-weaver/internal/storage"
)

const topNodes = 10

// GraphRows is one exported graph
type GraphRows struct {
	Nodes []storage.NodeRow
	Edges []storage.EdgeRow
}

// RunReport gathers everything the Markdown run report shows
type RunReport struct {
	SeedURL string
	Metrics storage.Metrics
	Pruning prune.Summary
	Words   GraphRows
	Links   GraphRows
}

// Ranked is a node label with the score it was ranked by
type Ranked struct {
	Label string
	Score int
}

// WriteReportFile writes the Markdown run report to path
func WriteReportFile(path string, report RunReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := WriteReport(f, report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

// WriteReport renders the run report as Markdown
func WriteReport(w io.Writer, report RunReport) error {
	md := markdown.NewMarkdown(w)
	m := report.Metrics

	md.H1("Wiki Weaver Run Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + m.RunID + "`"},
			{"Seed", report.SeedURL},
			{"Started", m.StartTime.Format(time.RFC3339)},
			{"Finished", m.EndTime.Format(time.RFC3339)},
			{"Documents", strconv.Itoa(m.DocumentsCrawled)},
			{"Failed fetches", strconv.Itoa(m.PagesFailed)},
			{"Termination", m.TerminationReason},
		},
	})
	md.PlainText("")

	if m.Partial {
		md.Warningf("Partial run: %d documents collected before %s.", m.DocumentsCrawled, m.TerminationReason)
		md.PlainText("")
	}

	if len(m.FailuresByKind) > 0 {
		md.H2("Failures")
		md.PlainText("")
		kinds := make([]string, 0, len(m.FailuresByKind))
		for kind := range m.FailuresByKind {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		rows := make([][]string, 0, len(kinds))
		for _, kind := range kinds {
			rows = append(rows, []string{kind, strconv.Itoa(m.FailuresByKind[kind])})
		}
		md.Table(markdown.TableSet{Header: []string{"Kind", "Count"}, Rows: rows})
		md.PlainText("")
	}

	md.H2("Graphs")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Graph", "Nodes", "Edges"},
		Rows: [][]string{
			{"words", strconv.Itoa(len(report.Words.Nodes)), strconv.Itoa(len(report.Words.Edges))},
			{"links", strconv.Itoa(len(report.Links.Nodes)), strconv.Itoa(len(report.Links.Edges))},
		},
	})
	md.PlainText("")

	writePruning(md, report.Pruning)

	md.H2("Top words")
	md.PlainText("")
	writeRanking(md, TopByAttribute(report.Words.Nodes, topNodes), "Frequency")

	md.H2("Top linked articles")
	md.PlainText("")
	writeRanking(md, TopByInDegree(report.Links.Nodes, report.Links.Edges, topNodes), "In-degree")

	return md.Build()
}

func writePruning(md *markdown.Markdown, s prune.Summary) {
	md.H2("Pruning")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Pass", "Threshold", "Floor", "Before", "Removed", "Kept"},
		Rows: [][]string{
			pruneRow("edges", s.Edges, s.EdgesSkipped),
			pruneRow("nodes", s.Nodes, s.NodesSkipped),
		},
	})
	md.PlainText("")
}

func pruneRow(pass string, r prune.Report, skipped bool) []string {
	if skipped {
		return []string{pass, "-", "-", "0", "0", "0"}
	}
	return []string{
		pass,
		strconv.FormatFloat(r.Threshold, 'f', 2, 64),
		strconv.Itoa(r.Floor),
		strconv.Itoa(r.Before),
		strconv.Itoa(r.Removed),
		strconv.Itoa(r.Kept()),
	}
}

func writeRanking(md *markdown.Markdown, ranked []Ranked, scoreName string) {
	if len(ranked) == 0 {
		md.Note("Nothing to rank.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(ranked))
	for i, r := range ranked {
		rows = append(rows, []string{strconv.Itoa(i + 1), r.Label, strconv.Itoa(r.Score)})
	}
	md.Table(markdown.TableSet{Header: []string{"#", "Label", scoreName}, Rows: rows})
	md.PlainText("")
}

// TopByAttribute ranks word nodes by frequency, ties kept in row order
func TopByAttribute(nodes []storage.NodeRow, n int) []Ranked {
	var ranked []Ranked
	for _, node := range nodes {
		if node.Group == "word" {
			ranked = append(ranked, Ranked{Label: node.Label, Score: node.Attribute})
		}
	}
	return top(ranked, n)
}

// TopByInDegree ranks nodes by the number of edges pointing at them
func TopByInDegree(nodes []storage.NodeRow, edges []storage.EdgeRow, n int) []Ranked {
	indegree := make(map[string]int, len(nodes))
	for _, e := range edges {
		indegree[e.Target]++
	}

	ranked := make([]Ranked, 0, len(nodes))
	for _, node := range nodes {
		ranked = append(ranked, Ranked{Label: node.Label, Score: indegree[node.Label]})
	}
	return top(ranked, n)
}

func top(ranked []Ranked, n int) []Ranked {
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
