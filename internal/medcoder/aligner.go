package medcoder

import (
	"regexp"
	"strings"

	"github.com/coda-va-server/internal/domain"
)

// EvidenceAligner locates evidence strings in the original clinical text,
// falling back to fuzzy matching over word windows when the model's output
// is not a verbatim substring.
type EvidenceAligner struct {
	// MinSimilarity is the default fuzzy-match threshold used when the
	// caller passes a non-positive value to FindSpans.
	MinSimilarity float64
	CaseSensitive bool
}

// NewEvidenceAligner returns an aligner with the default 0.7 threshold.
func NewEvidenceAligner() *EvidenceAligner {
	return &EvidenceAligner{MinSimilarity: 0.7}
}

var wordPattern = regexp.MustCompile(`\S+`)

// FindSpans returns one span per evidence string, in input order. Evidence
// that cannot be located yields a not_found span with nil offsets rather
// than being omitted. An empty document or evidence list yields an empty
// result, not an error.
func (a *EvidenceAligner) FindSpans(document string, evidence []string, minSimilarity float64) []domain.EvidenceSpan {
	if document == "" || len(evidence) == 0 {
		return nil
	}
	if minSimilarity <= 0 {
		minSimilarity = a.MinSimilarity
	}

	docSearch := document
	if !a.CaseSensitive {
		docSearch = strings.ToLower(document)
	}

	spans := make([]domain.EvidenceSpan, 0, len(evidence))
	for _, ev := range evidence {
		spans = append(spans, a.findOne(document, docSearch, ev, minSimilarity))
	}
	return spans
}

func (a *EvidenceAligner) findOne(document, docSearch, evidence string, minSimilarity float64) domain.EvidenceSpan {
	cleaned := strings.TrimSpace(evidence)
	if cleaned == "" {
		return notFoundSpan(cleaned)
	}

	needle := cleaned
	if !a.CaseSensitive {
		needle = strings.ToLower(cleaned)
	}

	// Exact substring first: offsets are authoritative and similarity is 1.
	if start := strings.Index(docSearch, needle); start >= 0 {
		end := start + len(needle)
		s, e := start, end
		return domain.EvidenceSpan{
			Text:       document[start:end],
			Start:      &s,
			End:        &e,
			Similarity: 1.0,
			MatchType:  domain.MatchExact,
		}
	}

	// Fuzzy fallback: slide word windows over the original text so byte
	// offsets stay exact, comparing normalized window text to the evidence.
	words := wordPattern.FindAllStringIndex(document, -1)
	if len(words) == 0 {
		return notFoundSpan(cleaned)
	}

	var best *domain.EvidenceSpan
	bestSimilarity := 0.0

	evidenceWords := len(strings.Fields(needle))
	maxWindow := evidenceWords + 4
	if maxWindow > len(words) {
		maxWindow = len(words)
	}
	for windowSize := evidenceWords; windowSize <= maxWindow; windowSize++ {
		for i := 0; i+windowSize <= len(words); i++ {
			start := words[i][0]
			end := words[i+windowSize-1][1]
			windowText := document[start:end]
			normalized := windowText
			if !a.CaseSensitive {
				normalized = strings.ToLower(windowText)
			}

			// Strictly-greater keeps the first qualifying window on ties
			// (smallest window size, then earliest offset).
			similarity := similarityRatio(needle, normalized)
			if similarity > bestSimilarity && similarity >= minSimilarity {
				s, e := start, end
				bestSimilarity = similarity
				best = &domain.EvidenceSpan{
					Text:       windowText,
					Start:      &s,
					End:        &e,
					Similarity: similarity,
					MatchType:  domain.MatchFuzzy,
				}
			}
		}
	}

	if best != nil {
		return *best
	}
	return notFoundSpan(cleaned)
}

func notFoundSpan(text string) domain.EvidenceSpan {
	return domain.EvidenceSpan{
		Text:       text,
		Start:      nil,
		End:        nil,
		Similarity: 0.0,
		MatchType:  domain.MatchNotFound,
	}
}

// similarityRatio computes a normalized similarity in [0, 1] between two
// strings: twice the length of their longest common subsequence over the
// total length. Identical strings score 1, disjoint strings 0.
func similarityRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	// Single-row LCS to keep memory proportional to the shorter string.
	if len(rb) < len(ra) {
		ra, rb = rb, ra
	}
	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for j := 1; j <= len(rb); j++ {
		for i := 1; i <= len(ra); i++ {
			if ra[i-1] == rb[j-1] {
				curr[i] = prev[i-1] + 1
			} else if prev[i] >= curr[i-1] {
				curr[i] = prev[i]
			} else {
				curr[i] = curr[i-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(ra)]
	return 2.0 * float64(lcs) / float64(len(ra)+len(rb))
}
