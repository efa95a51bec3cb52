// Package kg builds Neo4j-compatible TSV exports of the verbal-autopsy
// knowledge graph from static reference files: ICD-10 and ICD-11
// classifications, WHO VA cause categories, PHMRC gold-standard terms,
// the InterVA probbase, and HPO phenotype annotations.
package kg

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Node is one graph node. Props values line up with the property columns
// declared on the Graph; missing keys are written as empty cells.
type Node struct {
	ID    string
	Label string
	Props map[string]string
}

// Edge is one directed relation between two node IDs.
type Edge struct {
	Start string
	End   string
	Type  string
	Props map[string]string
}

// Graph accumulates nodes and edges and writes them as a pair of TSV files
// loadable by neo4j-admin import (id:ID, :LABEL, :START_ID, :END_ID, :TYPE
// header conventions).
type Graph struct {
	nodeProps []string
	edgeProps []string
	nodes     map[string]Node
	edges     []Edge
	edgeSeen  map[string]struct{}
}

// NewGraph declares the property columns carried by this graph's nodes and
// edges. Both may be nil.
func NewGraph(nodeProps, edgeProps []string) *Graph {
	return &Graph{
		nodeProps: nodeProps,
		edgeProps: edgeProps,
		nodes:     make(map[string]Node),
		edgeSeen:  make(map[string]struct{}),
	}
}

// AddNode records a node, deduplicating by ID. A later node with a non-empty
// label or props overrides an earlier placeholder.
func (g *Graph) AddNode(n Node) {
	if existing, ok := g.nodes[n.ID]; ok {
		if n.Label == "" && len(n.Props) == 0 {
			return
		}
		if existing.Label != "" && n.Label == "" {
			n.Label = existing.Label
		}
	}
	g.nodes[n.ID] = n
}

// AddEdge records an edge, deduplicating exact repeats.
func (g *Graph) AddEdge(e Edge) {
	key := e.Start + "\x00" + e.End + "\x00" + e.Type
	for _, prop := range g.edgeProps {
		key += "\x00" + e.Props[prop]
	}
	if _, ok := g.edgeSeen[key]; ok {
		return
	}
	g.edgeSeen[key] = struct{}{}
	g.edges = append(g.edges, e)
}

// NodeCount returns the number of distinct nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Export writes <name>_nodes.tsv and <name>_edges.tsv under outDir, rows
// sorted by ID for stable diffs.
func (g *Graph) Export(outDir, name string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := g.writeNodes(filepath.Join(outDir, name+"_nodes.tsv")); err != nil {
		return err
	}
	return g.writeEdges(filepath.Join(outDir, name+"_edges.tsv"))
}

func (g *Graph) writeNodes(path string) error {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	header := append([]string{"id:ID", ":LABEL"}, g.nodeProps...)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		node := g.nodes[id]
		row := []string{node.ID, node.Label}
		for _, prop := range g.nodeProps {
			row = append(row, node.Props[prop])
		}
		rows = append(rows, row)
	}
	return writeTSV(path, header, rows)
}

func (g *Graph) writeEdges(path string) error {
	edges := make([]Edge, len(g.edges))
	copy(edges, g.edges)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Start != edges[j].Start {
			return edges[i].Start < edges[j].Start
		}
		if edges[i].End != edges[j].End {
			return edges[i].End < edges[j].End
		}
		return edges[i].Type < edges[j].Type
	})

	header := append([]string{":START_ID", ":END_ID", ":TYPE"}, g.edgeProps...)
	rows := make([][]string, 0, len(edges))
	for _, edge := range edges {
		row := []string{edge.Start, edge.End, edge.Type}
		for _, prop := range g.edgeProps {
			row = append(row, edge.Props[prop])
		}
		rows = append(rows, row)
	}
	return writeTSV(path, header, rows)
}

func writeTSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	w.Comma = '\t'
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}

// Exporter builds one source's subgraph from files under dataDir.
type Exporter interface {
	Name() string
	Export(dataDir string) (*Graph, error)
}

// ExportAll runs the given exporters and writes each subgraph under outDir.
// A failing source is logged and skipped so one missing reference file does
// not abort the whole export; the first error is returned after all sources
// have been attempted.
func ExportAll(exporters []Exporter, dataDir, outDir string, logger *logrus.Logger) error {
	var firstErr error
	for _, exporter := range exporters {
		graph, err := exporter.Export(dataDir)
		if err != nil {
			logger.WithError(err).WithField("source", exporter.Name()).Error("KG source export failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("exporting %s: %w", exporter.Name(), err)
			}
			continue
		}
		if err := graph.Export(outDir, exporter.Name()); err != nil {
			logger.WithError(err).WithField("source", exporter.Name()).Error("KG source write failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		logger.WithFields(logrus.Fields{
			"source": exporter.Name(),
			"nodes":  graph.NodeCount(),
			"edges":  graph.EdgeCount(),
		}).Info("Exported KG source")
	}
	return firstErr
}

// ExporterByName returns the named source exporter.
func ExporterByName(name string) (Exporter, error) {
	switch strings.ToLower(name) {
	case "icd10":
		return &ICD10Exporter{}, nil
	case "icd11":
		return &ICD11Exporter{}, nil
	case "who_va":
		return &WhoVAExporter{}, nil
	case "phmrc":
		return &PhmrcExporter{}, nil
	case "probbase":
		return &ProbBaseExporter{}, nil
	case "hpo":
		return &HpoExporter{}, nil
	default:
		return nil, fmt.Errorf("unknown KG source: %s", name)
	}
}

// AllExporters returns every source exporter in build order.
func AllExporters() []Exporter {
	return []Exporter{
		&ICD10Exporter{},
		&ICD11Exporter{},
		&WhoVAExporter{},
		&PhmrcExporter{},
		&ProbBaseExporter{},
		&HpoExporter{},
	}
}
