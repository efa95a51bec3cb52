package kg

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const hpoAnnotationsFile = "phenotype.hpoa"

// HpoExporter emits disease-to-phenotype annotations from the HPO
// phenotype.hpoa file: disease nodes labeled by their namespace (omim,
// orpha, decipher), `hp:` phenotype nodes, and `has_phenotype` edges
// carrying evidence and frequency.
type HpoExporter struct{}

func (e *HpoExporter) Name() string { return "hpo" }

func (e *HpoExporter) Export(dataDir string) (*Graph, error) {
	rows, err := readHpoaFile(filepath.Join(dataDir, hpoAnnotationsFile))
	if err != nil {
		return nil, err
	}

	g := NewGraph([]string{"name"}, []string{"evidence", "frequency"})
	for _, row := range rows {
		diseaseID := strings.TrimSpace(row["database_id"])
		phenotypeID := strings.TrimSpace(row["hpo_id"])
		if diseaseID == "" || phenotypeID == "" {
			continue
		}

		diseaseCurie := strings.ToLower(diseaseID)
		phenotypeCurie := strings.ToLower(phenotypeID)

		g.AddNode(Node{
			ID:    diseaseCurie,
			Label: curiePrefix(diseaseCurie),
			Props: map[string]string{"name": row["disease_name"]},
		})
		g.AddNode(Node{
			ID:    phenotypeCurie,
			Label: curiePrefix(phenotypeCurie),
		})
		g.AddEdge(Edge{
			Start: diseaseCurie,
			End:   phenotypeCurie,
			Type:  "has_phenotype",
			Props: map[string]string{
				"evidence":  row["evidence"],
				"frequency": row["frequency"],
			},
		})
	}
	return g, nil
}

// readHpoaFile reads the tab-separated annotation file, skipping the
// leading `#` comment block above the header row.
func readHpoaFile(path string) ([]map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	var body strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	reader := csv.NewReader(strings.NewReader(body.String()))
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s has no header row", path)
	}

	header := records[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{"database_id", "disease_name", "hpo_id"} {
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

func curiePrefix(curie string) string {
	if prefix, _, ok := strings.Cut(curie, ":"); ok {
		return prefix
	}
	return "entity"
}
