package medcoder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coda-va-server/internal/domain"
)

// stubCompleter returns a canned JSON payload per schema name and records
// every request it receives.
type stubCompleter struct {
	responses map[string]string
	requests  []domain.CompletionRequest
	err       error
}

func (s *stubCompleter) CompleteJSON(_ context.Context, req domain.CompletionRequest) ([]byte, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if payload, ok := s.responses[req.SchemaName]; ok {
		return []byte(payload), nil
	}
	return []byte("{}"), nil
}

func TestDiseaseExtractor_Extract(t *testing.T) {
	llm := &stubCompleter{responses: map[string]string{
		"disease_evidence_icd10": `{
			"diseases": [
				{
					"disease": "Sepsis",
					"supporting_evidence": ["high fever", "low blood pressure"],
					"icd10": "A41.9"
				}
			]
		}`,
	}}
	extractor := NewDiseaseExtractor(llm, testLogger())

	diseases := extractor.Extract(context.Background(),
		"Patient presented with high fever and low blood pressure.")
	require.Len(t, diseases, 1)

	d := diseases[0]
	assert.Equal(t, "Sepsis", d.Name)
	assert.Equal(t, "A41.9", d.InitialCode)
	assert.Equal(t, []string{"high fever", "low blood pressure"}, d.Evidence)
	assert.Equal(t, []bool{false, false}, d.SuspectEvidence)

	require.Len(t, llm.requests, 1)
	assert.Contains(t, llm.requests[0].UserPrompt, "high fever")
}

func TestDiseaseExtractor_BlankDocumentSkipsCall(t *testing.T) {
	llm := &stubCompleter{}
	extractor := NewDiseaseExtractor(llm, testLogger())

	assert.Nil(t, extractor.Extract(context.Background(), ""))
	assert.Nil(t, extractor.Extract(context.Background(), "   \n\t"))
	assert.Empty(t, llm.requests)
}

func TestDiseaseExtractor_DropsInvalidICD10(t *testing.T) {
	llm := &stubCompleter{responses: map[string]string{
		"disease_evidence_icd10": `{
			"diseases": [
				{"disease": "Sepsis", "supporting_evidence": ["fever"], "icd10": "A41.9"},
				{"disease": "Mystery", "supporting_evidence": ["fever"], "icd10": "not-a-code"},
				{"disease": "Lowercase", "supporting_evidence": ["fever"], "icd10": "a41.9"}
			]
		}`,
	}}
	extractor := NewDiseaseExtractor(llm, testLogger())

	diseases := extractor.Extract(context.Background(), "Patient has fever.")
	require.Len(t, diseases, 1)
	assert.Equal(t, "Sepsis", diseases[0].Name)
}

func TestDiseaseExtractor_FlagsNonVerbatimEvidence(t *testing.T) {
	llm := &stubCompleter{responses: map[string]string{
		"disease_evidence_icd10": `{
			"diseases": [
				{
					"disease": "Pneumonia",
					"supporting_evidence": ["productive cough", "bilateral infiltrates on imaging"],
					"icd10": "J18.9"
				}
			]
		}`,
	}}
	extractor := NewDiseaseExtractor(llm, testLogger())

	diseases := extractor.Extract(context.Background(),
		"Patient reports a productive cough for one week.")
	require.Len(t, diseases, 1)

	d := diseases[0]
	// Non-verbatim evidence is kept, not dropped, but marked suspect.
	require.Equal(t, []string{"productive cough", "bilateral infiltrates on imaging"}, d.Evidence)
	assert.Equal(t, []bool{false, true}, d.SuspectEvidence)
}

func TestDiseaseExtractor_VerbatimCheckIsCaseInsensitive(t *testing.T) {
	llm := &stubCompleter{responses: map[string]string{
		"disease_evidence_icd10": `{
			"diseases": [
				{"disease": "Sepsis", "supporting_evidence": ["High Fever"], "icd10": "A41.9"}
			]
		}`,
	}}
	extractor := NewDiseaseExtractor(llm, testLogger())

	diseases := extractor.Extract(context.Background(), "Patient has high fever.")
	require.Len(t, diseases, 1)
	assert.Equal(t, []bool{false}, diseases[0].SuspectEvidence)
}

func TestDiseaseExtractor_CallFailureYieldsEmpty(t *testing.T) {
	llm := &stubCompleter{err: errors.New("upstream timeout")}
	extractor := NewDiseaseExtractor(llm, testLogger())

	assert.Nil(t, extractor.Extract(context.Background(), "Patient has fever."))
}

func TestDiseaseExtractor_MalformedJSONYieldsEmpty(t *testing.T) {
	llm := &stubCompleter{responses: map[string]string{
		"disease_evidence_icd10": `{"diseases": [`,
	}}
	extractor := NewDiseaseExtractor(llm, testLogger())

	assert.Nil(t, extractor.Extract(context.Background(), "Patient has fever."))
}

func TestValidICD10Code(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"A41.9", true},
		{"J18", true},
		{"I21.01", true},
		{"a41.9", false},
		{"A4", false},
		{"A41.", false},
		{"41.9", false},
		{"A41.9X", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.valid, domain.ValidICD10Code(tt.code))
		})
	}
}
