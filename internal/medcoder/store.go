package medcoder

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/domain"
)

// Embedding store file names within the embeddings directory. The files are
// produced offline by the embedding-generation stage and are read-only here.
const (
	embeddingsFile  = "icd10_embeddings.bin"
	codeIndexFile   = "icd10_code_index.json"
	definitionsFile = "icd10_code_to_definition.json"
)

// embeddingsMagic identifies the matrix file format: magic, uint32 row
// count, uint32 dimension count, then rows*dims little-endian float32s.
var embeddingsMagic = [4]byte{'C', 'V', 'E', '1'}

// CodeDefinition is the human-readable metadata for one ICD-10 code.
type CodeDefinition struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// EmbeddingStore holds the precomputed ICD-10 embedding matrix, the parallel
// code index, and the code metadata table. Immutable after Load; safe for
// concurrent reads.
type EmbeddingStore struct {
	matrix      [][]float32
	dims        int
	idxToCode   []string
	definitions map[string]CodeDefinition
}

// LoadEmbeddingStore reads the matrix, index, and definitions from dir.
// Missing or malformed files are fatal: the retriever cannot operate
// without them.
func LoadEmbeddingStore(dir string, logger *logrus.Logger) (*EmbeddingStore, error) {
	matrix, dims, err := readMatrix(filepath.Join(dir, embeddingsFile))
	if err != nil {
		return nil, domain.NewCodingError(domain.ErrResourceNotFound,
			"embedding matrix unavailable", err.Error())
	}

	idxToCode, err := readCodeIndex(filepath.Join(dir, codeIndexFile))
	if err != nil {
		return nil, domain.NewCodingError(domain.ErrResourceNotFound,
			"code index unavailable", err.Error())
	}
	if len(idxToCode) != len(matrix) {
		return nil, domain.NewCodingError(domain.ErrResourceNotFound,
			"code index does not match embedding matrix",
			fmt.Sprintf("index has %d entries but matrix has %d rows", len(idxToCode), len(matrix)))
	}

	definitions, err := readDefinitions(filepath.Join(dir, definitionsFile))
	if err != nil {
		return nil, domain.NewCodingError(domain.ErrResourceNotFound,
			"code definitions unavailable", err.Error())
	}

	logger.WithFields(logrus.Fields{
		"codes": len(idxToCode),
		"dims":  dims,
		"dir":   dir,
	}).Info("Embedding store loaded")

	return &EmbeddingStore{
		matrix:      matrix,
		dims:        dims,
		idxToCode:   idxToCode,
		definitions: definitions,
	}, nil
}

// Size returns the number of codes in the store.
func (s *EmbeddingStore) Size() int {
	return len(s.matrix)
}

// Dims returns the embedding dimensionality.
func (s *EmbeddingStore) Dims() int {
	return s.dims
}

// Code returns the ICD-10 code stored at row idx.
func (s *EmbeddingStore) Code(idx int) string {
	return s.idxToCode[idx]
}

// CodeName returns the human-readable name for a code, degrading to a
// placeholder when metadata is missing.
func (s *EmbeddingStore) CodeName(code string) string {
	if def, ok := s.definitions[code]; ok && def.Name != "" {
		return def.Name
	}
	return fmt.Sprintf("Code: %s", code)
}

// CodeDefinition returns the definition text for a code, or "" if unknown.
func (s *EmbeddingStore) CodeDefinition(code string) string {
	return s.definitions[code].Definition
}

// Similarities computes the cosine similarity of query against every stored
// row. Both the query and the stored rows are unit-normalized, so the dot
// product is the cosine.
func (s *EmbeddingStore) Similarities(query []float32) []float64 {
	sims := make([]float64, len(s.matrix))
	for i, row := range s.matrix {
		var dot float32
		for j := range row {
			dot += row[j] * query[j]
		}
		sims[i] = float64(dot)
	}
	return sims
}

func readMatrix(path string) ([][]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < 12 {
		return nil, 0, fmt.Errorf("matrix file truncated: %s", path)
	}
	if [4]byte(data[:4]) != embeddingsMagic {
		return nil, 0, fmt.Errorf("matrix file has unexpected magic: %s", path)
	}
	rows := int(binary.LittleEndian.Uint32(data[4:8]))
	dims := int(binary.LittleEndian.Uint32(data[8:12]))
	need := 12 + rows*dims*4
	if len(data) < need {
		return nil, 0, fmt.Errorf("matrix file truncated: want %d bytes, have %d", need, len(data))
	}

	matrix := make([][]float32, rows)
	off := 12
	for i := range matrix {
		row := make([]float32, dims)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		matrix[i] = row
	}
	return matrix, dims, nil
}

func readCodeIndex(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var index struct {
		IdxToCode []string `json:"idx_to_code"`
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(index.IdxToCode) == 0 {
		return nil, fmt.Errorf("code index is empty: %s", path)
	}
	return index.IdxToCode, nil
}

func readDefinitions(path string) (map[string]CodeDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	definitions := make(map[string]CodeDefinition)
	if err := json.Unmarshal(data, &definitions); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return definitions, nil
}

// WriteMatrix serializes an embedding matrix in the store's binary format.
// Used by the offline embedding-generation stage and by tests.
func WriteMatrix(path string, matrix [][]float32) error {
	if len(matrix) == 0 {
		return fmt.Errorf("refusing to write empty matrix")
	}
	dims := len(matrix[0])
	buf := make([]byte, 12, 12+len(matrix)*dims*4)
	copy(buf[:4], embeddingsMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(matrix)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(dims))
	for _, row := range matrix {
		if len(row) != dims {
			return fmt.Errorf("ragged matrix: row has %d dims, want %d", len(row), dims)
		}
		for _, v := range row {
			var cell [4]byte
			binary.LittleEndian.PutUint32(cell[:], math.Float32bits(v))
			buf = append(buf, cell[:]...)
		}
	}
	return os.WriteFile(path, buf, 0644)
}
