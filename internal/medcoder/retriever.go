package medcoder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/domain"
)

// CodeRetriever performs semantic nearest-neighbor search over the
// precomputed ICD-10 embedding matrix. The store and encoder are shared,
// immutable resources; the retriever itself carries only a query-embedding
// memo cache and is safe for concurrent use.
type CodeRetriever struct {
	store   *EmbeddingStore
	encoder domain.Encoder
	cache   *lru.Cache[string, []float32]
	logger  *logrus.Logger
}

// NewCodeRetriever creates a retriever over store using encoder for query
// embeddings. cacheSize bounds the query-embedding memo; zero disables it.
func NewCodeRetriever(store *EmbeddingStore, encoder domain.Encoder, cacheSize int, logger *logrus.Logger) (*CodeRetriever, error) {
	r := &CodeRetriever{
		store:   store,
		encoder: encoder,
		logger:  logger,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, []float32](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating query cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Retrieve returns the topK stored codes most similar to text, strictly
// descending by cosine similarity, ties broken by matrix row order. Entries
// below minSimilarity are filtered out. Blank text yields an empty result.
func (r *CodeRetriever) Retrieve(ctx context.Context, text string, topK int, minSimilarity float64) ([]domain.RetrievedCandidate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}

	query, err := r.embedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	sims := r.store.Similarities(query)

	indices := make([]int, 0, len(sims))
	for i, sim := range sims {
		if sim >= minSimilarity {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		return nil, nil
	}

	// Stable sort preserves row order among equal similarities.
	sort.SliceStable(indices, func(a, b int) bool {
		return sims[indices[a]] > sims[indices[b]]
	})
	if len(indices) > topK {
		indices = indices[:topK]
	}

	results := make([]domain.RetrievedCandidate, 0, len(indices))
	for _, idx := range indices {
		code := r.store.Code(idx)
		results = append(results, domain.RetrievedCandidate{
			Code:       code,
			Similarity: sims[idx],
			Name:       r.store.CodeName(code),
			Definition: r.store.CodeDefinition(code),
		})
	}

	r.logger.WithFields(logrus.Fields{
		"candidates": len(results),
		"top_k":      topK,
	}).Debug("Retrieved candidate codes")

	return results, nil
}

// CodeName returns the human-readable name for an ICD-10 code.
func (r *CodeRetriever) CodeName(code string) string {
	return r.store.CodeName(code)
}

func (r *CodeRetriever) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if r.cache != nil {
		if vec, ok := r.cache.Get(text); ok {
			return vec, nil
		}
	}
	vec, err := r.encoder.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != r.store.Dims() {
		return nil, fmt.Errorf("encoder produced %d dims, store expects %d", len(vec), r.store.Dims())
	}
	if r.cache != nil {
		r.cache.Add(text, vec)
	}
	return vec, nil
}
