package kg

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	icd11TabulationFile = "icd11_simple_tabulation.txt"
	icd11MappingFile    = "icd11_to_icd10.csv"
)

// ICD11Exporter emits the ICD-11 MMS linearization from the WHO simple
// tabulation file: `icd11:` nodes keyed by foundation ID, `is_a` edges
// recovered from the DepthInKind column, and `maps_to` edges into ICD-10
// from the WHO 11-to-10 one-category mapping.
type ICD11Exporter struct{}

func (e *ICD11Exporter) Name() string { return "icd11" }

func (e *ICD11Exporter) Export(dataDir string) (*Graph, error) {
	icd11ToICD10, err := loadICD11Mapping(filepath.Join(dataDir, icd11MappingFile))
	if err != nil {
		return nil, err
	}

	rows, err := readICD11Tabulation(filepath.Join(dataDir, icd11TabulationFile))
	if err != nil {
		return nil, err
	}

	g := NewGraph([]string{"name", "code", "class_kind"}, nil)
	parentAtDepth := make(map[int]string)
	for _, row := range rows {
		// Residual .Y/.Z categories reuse their parent's foundation URI
		// and would collide with it.
		if strings.EqualFold(row["IsResidual"], "true") {
			continue
		}

		foundationID := foundationIDFromURI(row["Foundation URI"])
		if foundationID == "" {
			continue
		}
		curie := "icd11:" + foundationID

		title := strings.ReplaceAll(row["Title"], "- ", "")
		g.AddNode(Node{
			ID:    curie,
			Label: "icd11",
			Props: map[string]string{
				"name":       title,
				"code":       row["Code"],
				"class_kind": row["ClassKind"],
			},
		})

		depth, err := strconv.Atoi(strings.TrimSpace(row["DepthInKind"]))
		if err != nil {
			return nil, fmt.Errorf("bad DepthInKind for %s: %w", curie, err)
		}
		if parent, ok := parentAtDepth[depth-1]; ok && depth > 1 {
			g.AddEdge(Edge{Start: curie, End: "icd11:" + parent, Type: "is_a"})
		}
		parentAtDepth[depth] = foundationID

		if icd10Code, ok := icd11ToICD10[foundationID]; ok {
			g.AddNode(Node{ID: "icd10:" + icd10Code, Label: "icd10",
				Props: map[string]string{"code": icd10Code}})
			g.AddEdge(Edge{Start: curie, End: "icd10:" + icd10Code, Type: "maps_to"})
		}
	}
	return g, nil
}

func readICD11Tabulation(path string) ([]map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	header := records[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{"Foundation URI", "Code", "Title", "ClassKind", "DepthInKind", "IsResidual"} {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%s is missing column %q", path, name)
		}
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(index))
		for name, i := range index {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func loadICD11Mapping(path string) (map[string]string, error) {
	rows, err := readCSVFile(path, []string{"Foundation URI", "icd10Code"})
	if err != nil {
		return nil, err
	}
	mapping := make(map[string]string, len(rows))
	for _, row := range rows {
		foundationID := foundationIDFromURI(row["Foundation URI"])
		code := strings.TrimSpace(row["icd10Code"])
		if foundationID == "" || code == "" {
			continue
		}
		mapping[foundationID] = code
	}
	return mapping, nil
}

func foundationIDFromURI(uri string) string {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return ""
	}
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
