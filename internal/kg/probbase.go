package kg

import (
	"fmt"
	"path/filepath"
	"strings"
)

const probbaseFile = "probbase.csv"

// ProbBaseExporter emits the InterVA probbase questionnaire: one
// `who.va.q:` node per question, and `probbase_rel` edges carrying the
// conditional-probability letter grade linking each question to the WHO VA
// causes it bears on (the `b_*` columns).
type ProbBaseExporter struct{}

func (e *ProbBaseExporter) Name() string { return "probbase" }

func (e *ProbBaseExporter) Export(dataDir string) (*Graph, error) {
	rows, err := readCSVFile(filepath.Join(dataDir, probbaseFile),
		[]string{"who_2016", "qdesc", "indic"})
	if err != nil {
		return nil, err
	}

	g := NewGraph([]string{"name", "indic", "sdesc"}, []string{"value"})
	for _, row := range rows {
		if strings.TrimSpace(row["indic"]) == "" {
			continue
		}
		curie := "who.va.q:" + row["who_2016"]
		g.AddNode(Node{
			ID:    curie,
			Label: "who.va.q",
			Props: map[string]string{
				"name":  row["qdesc"],
				"indic": row["indic"],
				"sdesc": row["sdesc"],
			},
		})

		for column, value := range row {
			if !strings.HasPrefix(column, "b_") || strings.TrimSpace(value) == "" {
				continue
			}
			causeCurie, err := probbaseCauseCurie(column)
			if err != nil {
				return nil, err
			}
			g.AddEdge(Edge{
				Start: curie,
				End:   causeCurie,
				Type:  "probbase_rel",
				Props: map[string]string{"value": value},
			})
		}
	}
	return g, nil
}

// probbaseCauseCurie maps a probbase cause column to a WHO VA curie:
// b_0101 refers to category VAs-01.01 while b_0100 refers to the top-level
// VAs-01.
func probbaseCauseCurie(column string) (string, error) {
	code := strings.TrimPrefix(column, "b_")
	if len(code) != 4 {
		return "", fmt.Errorf("unexpected probbase cause column: %s", column)
	}
	if strings.HasSuffix(code, "00") {
		return "who.va:VAs-" + code[:2], nil
	}
	return "who.va:VAs-" + code[:2] + "." + code[2:], nil
}
