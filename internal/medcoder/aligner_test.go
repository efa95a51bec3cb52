package medcoder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coda-va-server/internal/domain"
)

func TestEvidenceAligner_ExactMatch(t *testing.T) {
	aligner := NewEvidenceAligner()
	document := "Patient reports chest pain and fatigue."

	spans := aligner.FindSpans(document, []string{"chest pain"}, 0.7)
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, domain.MatchExact, span.MatchType)
	assert.Equal(t, 1.0, span.Similarity)
	require.NotNil(t, span.Start)
	require.NotNil(t, span.End)
	assert.Equal(t, 16, *span.Start)
	assert.Equal(t, 26, *span.End)
	assert.Equal(t, "chest pain", document[*span.Start:*span.End])
}

func TestEvidenceAligner_CaseInsensitiveExact(t *testing.T) {
	aligner := NewEvidenceAligner()
	document := "Severe Chest Pain radiating to the left arm."

	spans := aligner.FindSpans(document, []string{"chest pain"}, 0.7)
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, domain.MatchExact, span.MatchType)
	// Text preserves the document's original casing.
	assert.Equal(t, "Chest Pain", span.Text)
	require.NotNil(t, span.Start)
	assert.Equal(t, document[*span.Start:*span.End], span.Text)
}

func TestEvidenceAligner_FuzzyMatch(t *testing.T) {
	aligner := NewEvidenceAligner()
	document := "The patient complained of severe headaches over two weeks."

	// Close paraphrase that is not a verbatim substring.
	spans := aligner.FindSpans(document, []string{"severe headache"}, 0.7)
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, domain.MatchFuzzy, span.MatchType)
	assert.GreaterOrEqual(t, span.Similarity, 0.7)
	assert.Less(t, span.Similarity, 1.0)
	require.NotNil(t, span.Start)
	require.NotNil(t, span.End)
	assert.Equal(t, document[*span.Start:*span.End], span.Text)
	assert.Contains(t, strings.ToLower(span.Text), "headache")
}

func TestEvidenceAligner_NotFound(t *testing.T) {
	aligner := NewEvidenceAligner()
	document := "Patient reports chest pain and fatigue."

	spans := aligner.FindSpans(document, []string{"pulmonary embolism"}, 0.7)
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, domain.MatchNotFound, span.MatchType)
	assert.Nil(t, span.Start)
	assert.Nil(t, span.End)
	assert.Equal(t, 0.0, span.Similarity)
	assert.Equal(t, "pulmonary embolism", span.Text)
}

func TestEvidenceAligner_OnePerEvidenceInOrder(t *testing.T) {
	aligner := NewEvidenceAligner()
	document := "Fever for three days, followed by a dry cough and night sweats."
	evidence := []string{"dry cough", "no such phrase here at all", "night sweats", ""}

	spans := aligner.FindSpans(document, evidence, 0.7)
	require.Len(t, spans, len(evidence))

	assert.Equal(t, domain.MatchExact, spans[0].MatchType)
	assert.Equal(t, domain.MatchNotFound, spans[1].MatchType)
	assert.Equal(t, domain.MatchExact, spans[2].MatchType)
	// Blank evidence yields a not_found placeholder rather than being dropped.
	assert.Equal(t, domain.MatchNotFound, spans[3].MatchType)
	assert.Nil(t, spans[3].Start)
}

func TestEvidenceAligner_EmptyInputs(t *testing.T) {
	aligner := NewEvidenceAligner()

	assert.Nil(t, aligner.FindSpans("", []string{"chest pain"}, 0.7))
	assert.Nil(t, aligner.FindSpans("some document", nil, 0.7))
	assert.Nil(t, aligner.FindSpans("some document", []string{}, 0.7))
}

func TestEvidenceAligner_ThresholdFiltersWeakMatches(t *testing.T) {
	aligner := NewEvidenceAligner()
	document := "Patient has mild shortness of breath."

	loose := aligner.FindSpans(document, []string{"short breath"}, 0.5)
	require.Len(t, loose, 1)
	assert.Equal(t, domain.MatchFuzzy, loose[0].MatchType)

	strict := aligner.FindSpans(document, []string{"short breath"}, 0.99)
	require.Len(t, strict, 1)
	assert.Equal(t, domain.MatchNotFound, strict[0].MatchType)
}

func TestEvidenceAligner_TieBreakKeepsFirstWindow(t *testing.T) {
	aligner := NewEvidenceAligner()
	// Both occurrences of "acute fevers" score identically against the
	// evidence; the earliest window must win.
	document := "acute fevers persisted, then acute fevers returned"

	spans := aligner.FindSpans(document, []string{"acute fever"}, 0.7)
	require.Len(t, spans, 1)
	require.NotNil(t, spans[0].Start)
	assert.Equal(t, 0, *spans[0].Start)
}

func TestSimilarityRatio(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"Identical", "chest pain", "chest pain", 1.0},
		{"Empty left", "", "chest", 0.0},
		{"Empty right", "chest", "", 0.0},
		{"Disjoint", "abc", "xyz", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, similarityRatio(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSimilarityRatio_PartialOverlap(t *testing.T) {
	// "abcd" vs "abed": LCS "abd" has length 3 -> 2*3/8 = 0.75.
	assert.InDelta(t, 0.75, similarityRatio("abcd", "abed"), 1e-9)
	// Symmetric.
	assert.InDelta(t, similarityRatio("abcd", "abed"), similarityRatio("abed", "abcd"), 1e-9)
}
