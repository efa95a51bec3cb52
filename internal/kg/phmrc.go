package kg

import (
	"path/filepath"
	"strings"
)

const phmrcMappingsFile = "phmrc_icd10_mappings.csv"

// PhmrcExporter emits the PHMRC gold-standard cause terms as `phmrc:` nodes
// with `maps_to` edges from their ICD-10 codes.
type PhmrcExporter struct{}

func (e *PhmrcExporter) Name() string { return "phmrc" }

func (e *PhmrcExporter) Export(dataDir string) (*Graph, error) {
	rows, err := readCSVFile(filepath.Join(dataDir, phmrcMappingsFile),
		[]string{"phmrc_name", "icd10_code"})
	if err != nil {
		return nil, err
	}

	g := NewGraph([]string{"name"}, nil)
	for _, row := range rows {
		name := strings.TrimSpace(row["phmrc_name"])
		if name == "" {
			continue
		}
		curie := "phmrc:" + name
		g.AddNode(Node{
			ID:    curie,
			Label: "phmrc",
			Props: map[string]string{"name": name},
		})

		code := strings.TrimSpace(row["icd10_code"])
		if code == "" {
			continue
		}
		g.AddEdge(Edge{Start: "icd10:" + code, End: curie, Type: "maps_to"})
	}
	return g, nil
}
