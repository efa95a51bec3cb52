package medcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/domain"
)

// DiseaseExtractor extracts diseases, verbatim evidence, and initial ICD-10
// codes from clinical text with one structured-output LLM call per document.
type DiseaseExtractor struct {
	llm    domain.StructuredCompleter
	logger *logrus.Logger
}

// NewDiseaseExtractor creates an extractor backed by llm.
func NewDiseaseExtractor(llm domain.StructuredCompleter, logger *logrus.Logger) *DiseaseExtractor {
	return &DiseaseExtractor{llm: llm, logger: logger}
}

type extractionResponse struct {
	Diseases []struct {
		Disease            string   `json:"disease"`
		SupportingEvidence []string `json:"supporting_evidence"`
		ICD10              string   `json:"icd10"`
	} `json:"diseases"`
}

// Extract returns the diseases found in document. External-call failures and
// malformed responses yield an empty list, never an error: downstream stages
// treat "nothing extracted" and "extraction failed" identically.
func (e *DiseaseExtractor) Extract(ctx context.Context, document string) []domain.Disease {
	if strings.TrimSpace(document) == "" {
		return nil
	}

	userPrompt := fmt.Sprintf(
		"Extract diseases and supporting evidence from the following clinical description.\n\n"+
			"IMPORTANT: For 'supporting_evidence', copy EXACT text spans from the description below. "+
			"Do not paraphrase or reword.\n\n"+
			"Clinical Description:\n%s", document)

	raw, err := e.llm.CompleteJSON(ctx, domain.CompletionRequest{
		SystemPrompt: extractionSystemPrompt,
		UserPrompt:   userPrompt,
		SchemaName:   "disease_evidence_icd10",
		Schema:       extractionSchema(),
	})
	if err != nil {
		e.logger.WithError(err).Warn("Disease extraction call failed")
		return nil
	}

	var response extractionResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		e.logger.WithError(err).Warn("Disease extraction returned malformed JSON")
		return nil
	}

	return e.validate(document, response)
}

// validate applies the local gates: diseases with malformed ICD-10 codes are
// dropped; non-verbatim evidence is kept but flagged as suspect.
func (e *DiseaseExtractor) validate(document string, response extractionResponse) []domain.Disease {
	documentLower := strings.ToLower(document)

	var diseases []domain.Disease
	for _, d := range response.Diseases {
		if !domain.ValidICD10Code(d.ICD10) {
			e.logger.WithFields(logrus.Fields{
				"code":    d.ICD10,
				"disease": d.Disease,
			}).Warn("Dropping disease with invalid ICD-10 code")
			continue
		}

		var evidence []string
		var suspect []bool
		for _, ev := range d.SupportingEvidence {
			cleaned := strings.TrimSpace(ev)
			if cleaned == "" {
				continue
			}
			verbatim := strings.Contains(documentLower, strings.ToLower(cleaned))
			if !verbatim {
				e.logger.WithField("evidence", truncate(cleaned, 50)).
					Warn("Evidence may not be verbatim from input text")
			}
			evidence = append(evidence, cleaned)
			suspect = append(suspect, !verbatim)
		}

		diseases = append(diseases, domain.Disease{
			Name:            d.Disease,
			Evidence:        evidence,
			InitialCode:     d.ICD10,
			SuspectEvidence: suspect,
		})
	}
	return diseases
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
