package kg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const icd10DefinitionsFile = "icd10_code_to_definition.json"

type icd10Definition struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// ICD10Exporter emits the ICD-10 classification itself: one node per code
// with an `icd10:` curie, and `is_a` edges from dotted subcategories to
// their three-character category.
type ICD10Exporter struct{}

func (e *ICD10Exporter) Name() string { return "icd10" }

func (e *ICD10Exporter) Export(dataDir string) (*Graph, error) {
	definitions, err := loadICD10Definitions(dataDir)
	if err != nil {
		return nil, err
	}

	g := NewGraph([]string{"name", "code"}, nil)
	for code, def := range definitions {
		g.AddNode(Node{
			ID:    "icd10:" + code,
			Label: "icd10",
			Props: map[string]string{"name": def.Name, "code": code},
		})

		parent := icd10Parent(code)
		if parent == "" {
			continue
		}
		if _, ok := definitions[parent]; !ok {
			continue
		}
		g.AddEdge(Edge{Start: "icd10:" + code, End: "icd10:" + parent, Type: "is_a"})
	}
	return g, nil
}

func loadICD10Definitions(dataDir string) (map[string]icd10Definition, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, icd10DefinitionsFile))
	if err != nil {
		return nil, fmt.Errorf("reading ICD-10 definitions: %w", err)
	}
	definitions := make(map[string]icd10Definition)
	if err := json.Unmarshal(data, &definitions); err != nil {
		return nil, fmt.Errorf("parsing ICD-10 definitions: %w", err)
	}
	return definitions, nil
}

// icd10Parent returns the three-character category of a dotted subcategory,
// or "" when the code is already a category.
func icd10Parent(code string) string {
	if i := strings.IndexByte(code, '.'); i > 0 {
		return code[:i]
	}
	return ""
}

// expandICD10Range returns every known category within [start, end], both
// inclusive. Categories sort lexically (letter then two digits), so the
// range is a simple scan of the sorted code list.
func expandICD10Range(categories []string, start, end string) []string {
	sorted := make([]string, len(categories))
	copy(sorted, categories)
	sort.Strings(sorted)

	var expanded []string
	for _, code := range sorted {
		if code >= start && code <= end {
			expanded = append(expanded, code)
		}
	}
	return expanded
}

// icd10Categories lists the distinct three-character categories present in
// the definitions table.
func icd10Categories(definitions map[string]icd10Definition) []string {
	seen := make(map[string]struct{})
	for code := range definitions {
		category := code
		if parent := icd10Parent(code); parent != "" {
			category = parent
		}
		seen[category] = struct{}{}
	}
	categories := make([]string, 0, len(seen))
	for category := range seen {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}
