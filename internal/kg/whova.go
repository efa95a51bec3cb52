package kg

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const whoVAMappingsFile = "who_va_icd10_mappings.csv"

// WhoVAExporter emits the WHO verbal-autopsy cause categories: `who.va:`
// nodes with `is_a` edges following the dotted category IDs, and `maps_to`
// edges from ICD-10 categories, expanding ranges like "A40-A41" against the
// known ICD-10 code list.
type WhoVAExporter struct{}

func (e *WhoVAExporter) Name() string { return "who_va" }

func (e *WhoVAExporter) Export(dataDir string) (*Graph, error) {
	rows, err := readCSVFile(filepath.Join(dataDir, whoVAMappingsFile),
		[]string{"who_va_id", "who_va_name", "icd10_codes"})
	if err != nil {
		return nil, err
	}

	definitions, err := loadICD10Definitions(dataDir)
	if err != nil {
		return nil, err
	}
	categories := icd10Categories(definitions)

	g := NewGraph([]string{"name"}, nil)
	for _, row := range rows {
		id := row["who_va_id"]
		curie := "who.va:" + id
		g.AddNode(Node{
			ID:    curie,
			Label: "who.va",
			Props: map[string]string{"name": row["who_va_name"]},
		})

		// The dotted ID encodes the category hierarchy: VAs-01.01 is a
		// child of VAs-01.
		if i := strings.LastIndexByte(id, '.'); i > 0 {
			g.AddEdge(Edge{Start: curie, End: "who.va:" + id[:i], Type: "is_a"})
		}

		for _, part := range strings.Split(row["icd10_codes"], ";") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			codes := []string{part}
			if start, end, ok := strings.Cut(part, "-"); ok {
				codes = expandICD10Range(categories, strings.TrimSpace(start), strings.TrimSpace(end))
			}
			for _, code := range codes {
				g.AddEdge(Edge{Start: "icd10:" + code, End: curie, Type: "maps_to"})
			}
		}
	}
	return g, nil
}

// readCSVFile reads a header-first CSV and returns each row as a column
// name to value map, validating that the required columns are present.
func readCSVFile(path string, required []string) ([]map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
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
	for _, name := range required {
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
