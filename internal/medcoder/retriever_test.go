package medcoder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEncoder returns a fixed vector per query text and counts calls.
type stubEncoder struct {
	vectors map[string][]float32
	dims    int
	calls   int
	err     error
}

func (s *stubEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	return make([]float32, s.dims), nil
}

func (s *stubEncoder) Dims() int { return s.dims }

func newRetrieverFixture(t *testing.T, cacheSize int) (*CodeRetriever, *stubEncoder) {
	t.Helper()
	store := newTestStore(t,
		[][]float32{
			{1, 0, 0},   // A41.9
			{0.8, 0.6, 0}, // A41.0
			{0, 1, 0},   // I21.9
			{0.6, 0.8, 0}, // J18.9
		},
		[]string{"A41.9", "A41.0", "I21.9", "J18.9"},
		map[string]CodeDefinition{
			"A41.9": {Name: "Sepsis, unspecified organism", Definition: "Systemic infection."},
			"A41.0": {Name: "Sepsis due to Staphylococcus aureus"},
		})

	encoder := &stubEncoder{
		dims: 3,
		vectors: map[string][]float32{
			"sepsis": {1, 0, 0},
		},
	}

	retriever, err := NewCodeRetriever(store, encoder, cacheSize, testLogger())
	require.NoError(t, err)
	return retriever, encoder
}

func TestCodeRetriever_DescendingOrder(t *testing.T) {
	retriever, _ := newRetrieverFixture(t, 0)

	results, err := retriever.Retrieve(context.Background(), "sepsis", 10, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "A41.9", results[0].Code)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.Equal(t, "A41.0", results[1].Code)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Similarity, results[i-1].Similarity)
	}
	assert.Equal(t, "Sepsis, unspecified organism", results[0].Name)
	assert.Equal(t, "Systemic infection.", results[0].Definition)
	assert.Equal(t, "J18.9", results[2].Code)
	// Missing metadata degrades to the placeholder name.
	assert.Equal(t, "Code: J18.9", results[2].Name)
}

func TestCodeRetriever_TopKTruncation(t *testing.T) {
	retriever, _ := newRetrieverFixture(t, 0)

	results, err := retriever.Retrieve(context.Background(), "sepsis", 2, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A41.9", results[0].Code)
	assert.Equal(t, "A41.0", results[1].Code)
}

func TestCodeRetriever_MinSimilarityFilter(t *testing.T) {
	retriever, _ := newRetrieverFixture(t, 0)

	results, err := retriever.Retrieve(context.Background(), "sepsis", 10, 0.7)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A41.9", results[0].Code)
	assert.Equal(t, "A41.0", results[1].Code)

	none, err := retriever.Retrieve(context.Background(), "sepsis", 10, 1.5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCodeRetriever_BlankQuery(t *testing.T) {
	retriever, encoder := newRetrieverFixture(t, 0)

	results, err := retriever.Retrieve(context.Background(), "   ", 10, 0.0)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Equal(t, 0, encoder.calls)
}

func TestCodeRetriever_QueryCacheMemoizesEmbeddings(t *testing.T) {
	retriever, encoder := newRetrieverFixture(t, 8)

	_, err := retriever.Retrieve(context.Background(), "sepsis", 3, 0.0)
	require.NoError(t, err)
	_, err = retriever.Retrieve(context.Background(), "sepsis", 3, 0.0)
	require.NoError(t, err)

	assert.Equal(t, 1, encoder.calls)
}

func TestCodeRetriever_EncoderFailure(t *testing.T) {
	retriever, encoder := newRetrieverFixture(t, 0)
	encoder.err = errors.New("model not loaded")

	_, err := retriever.Retrieve(context.Background(), "sepsis", 3, 0.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding query")
}

func TestCodeRetriever_DimensionMismatch(t *testing.T) {
	retriever, encoder := newRetrieverFixture(t, 0)
	encoder.vectors["sepsis"] = []float32{1, 0}

	_, err := retriever.Retrieve(context.Background(), "sepsis", 3, 0.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dims")
}
