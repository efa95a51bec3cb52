package medcoder

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/domain"
)

// maxGroundingCodes bounds how many candidate codes each disease
// contributes to a grounding result.
const maxGroundingCodes = 5

// RAGGrounder grounds free text by running the full coding pipeline over it
// and presenting the top reranked ICD-10 codes as scored term matches
// anchored to their evidence spans. It is a drop-in alternative to the
// remote grounding service for the realtime interview path.
type RAGGrounder struct {
	pipeline *Pipeline
	logger   *logrus.Logger
}

// NewRAGGrounder wraps a coding pipeline as a Grounder.
func NewRAGGrounder(pipeline *Pipeline, logger *logrus.Logger) *RAGGrounder {
	return &RAGGrounder{pipeline: pipeline, logger: logger}
}

var _ domain.Grounder = (*RAGGrounder)(nil)

// Annotate codes the text and flattens the result into term matches: one
// match per evidence span and candidate code, scored by candidate rank
// (0.9 for the top code, decreasing by 0.1, floored at 0.1). Diseases whose
// evidence could not be located in the text contribute nothing. The
// pipeline recovers from its own stage failures, so Annotate never errors.
func (g *RAGGrounder) Annotate(ctx context.Context, text string) ([]domain.TermMatch, error) {
	result := g.pipeline.Process(ctx, text)

	var matches []domain.TermMatch
	for i := range result.Diseases {
		d := &result.Diseases[i]
		codes := groundingCandidates(d)
		if len(codes) == 0 {
			continue
		}
		for _, span := range d.EvidenceSpans {
			if span.Start == nil || span.End == nil || span.Text == "" {
				continue
			}
			for rank, c := range codes {
				score := 0.9 - 0.1*float64(rank)
				if score < 0.1 {
					score = 0.1
				}
				matches = append(matches, domain.TermMatch{
					Text:  span.Text,
					CURIE: "icd10:" + c.Code,
					Name:  c.Name,
					Score: score,
					Start: *span.Start,
					End:   *span.End,
				})
			}
		}
	}

	g.logger.WithFields(logrus.Fields{
		"diseases": len(result.Diseases),
		"matches":  len(matches),
	}).Debug("RAG grounding complete")
	return matches, nil
}

// groundingCandidates picks the codes a disease grounds to: the reranked
// ordering when re-ranking produced anything, otherwise the raw retrieval.
func groundingCandidates(d *domain.DiseaseCoding) []domain.RerankedCandidate {
	if len(d.RerankedCodes) > 0 {
		codes := d.RerankedCodes
		if len(codes) > maxGroundingCodes {
			codes = codes[:maxGroundingCodes]
		}
		return codes
	}

	codes := make([]domain.RerankedCandidate, 0, maxGroundingCodes)
	for _, c := range d.RetrievedCodes {
		codes = append(codes, domain.RerankedCandidate{
			Code:       c.Code,
			Name:       c.Name,
			Similarity: c.Similarity,
		})
		if len(codes) == maxGroundingCodes {
			break
		}
	}
	return codes
}
