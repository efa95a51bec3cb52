package medcoder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coda-va-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// writeStoreFixture lays out a complete embeddings directory in dir.
func writeStoreFixture(t *testing.T, dir string, matrix [][]float32, codes []string, definitions map[string]CodeDefinition) {
	t.Helper()

	require.NoError(t, WriteMatrix(filepath.Join(dir, embeddingsFile), matrix))

	indexData, err := json.Marshal(map[string][]string{"idx_to_code": codes})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, codeIndexFile), indexData, 0644))

	defData, err := json.Marshal(definitions)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, definitionsFile), defData, 0644))
}

func newTestStore(t *testing.T, matrix [][]float32, codes []string, definitions map[string]CodeDefinition) *EmbeddingStore {
	t.Helper()
	dir := t.TempDir()
	writeStoreFixture(t, dir, matrix, codes, definitions)
	store, err := LoadEmbeddingStore(dir, testLogger())
	require.NoError(t, err)
	return store
}

func TestLoadEmbeddingStore_RoundTrip(t *testing.T) {
	matrix := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	codes := []string{"A41.9", "I21.9", "J18.9"}
	definitions := map[string]CodeDefinition{
		"A41.9": {Name: "Sepsis, unspecified organism", Definition: "A systemic infection."},
		"I21.9": {Name: "Acute myocardial infarction, unspecified"},
	}

	store := newTestStore(t, matrix, codes, definitions)

	assert.Equal(t, 3, store.Size())
	assert.Equal(t, 3, store.Dims())
	assert.Equal(t, "A41.9", store.Code(0))
	assert.Equal(t, "Sepsis, unspecified organism", store.CodeName("A41.9"))
	assert.Equal(t, "A systemic infection.", store.CodeDefinition("A41.9"))
	assert.Equal(t, "", store.CodeDefinition("I21.9"))
}

func TestEmbeddingStore_CodeNameDegradesGracefully(t *testing.T) {
	store := newTestStore(t,
		[][]float32{{1, 0}},
		[]string{"Z99.9"},
		map[string]CodeDefinition{})

	assert.Equal(t, "Code: Z99.9", store.CodeName("Z99.9"))
}

func TestEmbeddingStore_Similarities(t *testing.T) {
	store := newTestStore(t,
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0.6, 0.8, 0},
		},
		[]string{"A00", "B00", "C00"},
		map[string]CodeDefinition{})

	sims := store.Similarities([]float32{1, 0, 0})
	require.Len(t, sims, 3)
	assert.InDelta(t, 1.0, sims[0], 1e-6)
	assert.InDelta(t, 0.0, sims[1], 1e-6)
	assert.InDelta(t, 0.6, sims[2], 1e-6)
}

func TestLoadEmbeddingStore_MissingFiles(t *testing.T) {
	_, err := LoadEmbeddingStore(t.TempDir(), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding matrix")

	var coding *domain.CodingError
	require.ErrorAs(t, err, &coding)
	assert.Equal(t, domain.ErrResourceNotFound, coding.Code)
}

func TestLoadEmbeddingStore_IndexMatrixMismatch(t *testing.T) {
	dir := t.TempDir()
	writeStoreFixture(t, dir,
		[][]float32{{1, 0}, {0, 1}},
		[]string{"A00"}, // one code for two rows
		map[string]CodeDefinition{})

	_, err := LoadEmbeddingStore(dir, testLogger())
	require.Error(t, err)

	var coding *domain.CodingError
	require.ErrorAs(t, err, &coding)
	assert.Equal(t, domain.ErrResourceNotFound, coding.Code)
	assert.Contains(t, coding.Details, "matrix has 2 rows")
}

func TestReadMatrix_RejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), embeddingsFile)
	require.NoError(t, os.WriteFile(path, []byte("XXXX\x01\x00\x00\x00\x01\x00\x00\x00\x00\x00\x80\x3f"), 0644))

	_, _, err := readMatrix(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected magic")
}

func TestReadMatrix_RejectsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), embeddingsFile)
	// Header claims 2x3 floats but carries none.
	buf := append([]byte{}, embeddingsMagic[:]...)
	buf = append(buf, 2, 0, 0, 0, 3, 0, 0, 0)
	require.NoError(t, os.WriteFile(path, buf, 0644))

	_, _, err := readMatrix(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")
}

func TestWriteMatrix_RejectsRaggedAndEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), embeddingsFile)

	err := WriteMatrix(path, nil)
	require.Error(t, err)

	err = WriteMatrix(path, [][]float32{{1, 2}, {3}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ragged")
}
