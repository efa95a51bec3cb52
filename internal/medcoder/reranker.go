package medcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/domain"
)

// CodeReranker re-orders retrieved ICD-10 candidates by clinical
// appropriateness using one structured-output LLM call.
type CodeReranker struct {
	llm    domain.StructuredCompleter
	logger *logrus.Logger
}

// NewCodeReranker creates a reranker backed by llm.
func NewCodeReranker(llm domain.StructuredCompleter, logger *logrus.Logger) *CodeReranker {
	return &CodeReranker{llm: llm, logger: logger}
}

type rerankingResponse struct {
	RerankedCodes []struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"reranked_codes"`
}

// Rerank returns candidates ordered most-to-least appropriate for the
// disease. An empty candidate list short-circuits without an external call.
// Codes failing ICD-10 format validation are dropped; similarity scores are
// always recovered from the retrieved list by exact code match (0 if
// absent), never taken from the model. Call failures yield an empty list so
// the caller can fall back to the raw retrieval order.
func (r *CodeReranker) Rerank(ctx context.Context, disease string, evidence []string, initialCode, initialName string, candidates []domain.RetrievedCandidate) []domain.RerankedCandidate {
	if len(candidates) == 0 {
		return nil
	}

	raw, err := r.llm.CompleteJSON(ctx, domain.CompletionRequest{
		SystemPrompt: rerankingSystemPrompt,
		UserPrompt:   r.buildPrompt(disease, evidence, initialCode, initialName, candidates),
		SchemaName:   "reranked_icd10_codes",
		Schema:       rerankingSchema(),
	})
	if err != nil {
		r.logger.WithError(err).WithField("disease", disease).Warn("Re-ranking call failed")
		return nil
	}

	var response rerankingResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		r.logger.WithError(err).Warn("Re-ranking returned malformed JSON")
		return nil
	}

	similarityByCode := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		if c.Code != "" {
			similarityByCode[c.Code] = c.Similarity
		}
	}

	var reranked []domain.RerankedCandidate
	for _, entry := range response.RerankedCodes {
		if !domain.ValidICD10Code(entry.Code) {
			r.logger.WithField("code", entry.Code).Warn("Dropping invalid ICD-10 code from re-ranking result")
			continue
		}
		reranked = append(reranked, domain.RerankedCandidate{
			Code:       entry.Code,
			Name:       entry.Name,
			Similarity: similarityByCode[entry.Code],
		})
	}
	return reranked
}

func (r *CodeReranker) buildPrompt(disease string, evidence []string, initialCode, initialName string, candidates []domain.RetrievedCandidate) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Diagnosed disease:\n%s\n\n", disease)

	b.WriteString("Supporting evidence:\n")
	if len(evidence) == 0 {
		b.WriteString("  (No specific evidence provided)\n")
	} else {
		for _, ev := range evidence {
			fmt.Fprintf(&b, "  - %s\n", ev)
		}
	}

	fmt.Fprintf(&b, "\nInitial ICD-10 prediction:\n  Code: %s\n  Name: %s\n\n", initialCode, initialName)

	b.WriteString("Retrieved ICD-10 candidate codes (from semantic search):\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "  - Code: %s, Name: %s, Similarity: %.3f\n", c.Code, c.Name, c.Similarity)
	}

	b.WriteString("\nRe-rank these codes based on how well they match the disease and evidence.")
	return b.String()
}
