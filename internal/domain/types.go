// Package domain contains the core entities for verbal-autopsy medical coding:
// extracted diseases, ICD-10 candidate codes, evidence spans, and the message
// shapes exchanged over the realtime interview channel.
package domain

import (
	"regexp"
	"time"
)

// MatchType describes how an evidence string was located in the source document.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchFuzzy    MatchType = "fuzzy"
	MatchNotFound MatchType = "not_found"
)

// icd10Pattern matches codes like "A41", "I50.9", "B20.1".
var icd10Pattern = regexp.MustCompile(`^[A-Z][0-9]{2}(\.[0-9]+)?$`)

// ValidICD10Code reports whether code has the ICD-10 shape
// letter + two digits, optionally followed by "." and more digits.
func ValidICD10Code(code string) bool {
	return icd10Pattern.MatchString(code)
}

// Disease is a single condition extracted from a clinical description.
// Evidence strings are expected to be verbatim substrings of the source
// document; entries that fail the verbatim check are kept but flagged in
// SuspectEvidence (false negatives of the check are common, dropping would
// lose real signal).
type Disease struct {
	Name            string   `json:"disease"`
	Evidence        []string `json:"evidence"`
	InitialCode     string   `json:"initial_code"`
	SuspectEvidence []bool   `json:"suspect_evidence,omitempty"`
}

// RetrievedCandidate is one ICD-10 code returned by semantic retrieval.
type RetrievedCandidate struct {
	Code       string  `json:"code"`
	Similarity float64 `json:"similarity"`
	Name       string  `json:"name"`
	Definition string  `json:"definition"`
}

// RerankedCandidate is a retrieved candidate after LLM re-ranking. The
// similarity score is always carried over from the retrieval stage, never
// produced by the reranker.
type RerankedCandidate struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// EvidenceSpan locates an evidence string in the original document.
// Start and End are byte offsets into the document; both are nil when the
// evidence could not be matched. Text preserves the document's original
// spacing and casing for matched spans.
type EvidenceSpan struct {
	Text       string    `json:"text"`
	Start      *int      `json:"start"`
	End        *int      `json:"end"`
	Similarity float64   `json:"similarity"`
	MatchType  MatchType `json:"match_type"`
}

// DiseaseCoding is the fully processed record for one disease: the
// extraction, the retrieval candidates, the reranked ordering, and the
// evidence alignment.
type DiseaseCoding struct {
	Disease        Disease              `json:"disease"`
	EvidenceSpans  []EvidenceSpan       `json:"evidence_spans,omitempty"`
	RetrievedCodes []RetrievedCandidate `json:"retrieved_codes"`
	RerankedCodes  []RerankedCandidate  `json:"reranked_codes"`
	InitialName    string               `json:"initial_code_name,omitempty"`
}

// FinalCode returns the best code for the disease: the top reranked code if
// re-ranking produced anything, otherwise the extractor's initial guess.
func (d *DiseaseCoding) FinalCode() string {
	if len(d.RerankedCodes) > 0 {
		return d.RerankedCodes[0].Code
	}
	return d.Disease.InitialCode
}

// CodingResult is the output of one pipeline run over a single document.
// It is owned by the caller and never persisted by the pipeline.
type CodingResult struct {
	Diseases []DiseaseCoding `json:"diseases"`
	Timing   StageTiming     `json:"timing,omitzero"`
}

// StageTiming records per-stage wall-clock durations for observability.
// Advisory only; nothing gates on these values.
type StageTiming struct {
	Extraction time.Duration `json:"extraction"`
	Retrieval  time.Duration `json:"retrieval"`
	Reranking  time.Duration `json:"reranking"`
	Annotation time.Duration `json:"annotation"`
	Total      time.Duration `json:"total"`
}

// AudioChunk is one fixed-size window of audio samples emitted by the
// streaming chunk window. Samples are 16-bit signed PCM.
type AudioChunk struct {
	ID        string
	Timestamp float64
	Samples   []int16
}

// TermMatch is a scored grounding of a text mention to an ontology entry.
type TermMatch struct {
	Text  string  `json:"text"`
	CURIE string  `json:"curie"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// Render formats the match the way the interview UI displays groundings.
func (m TermMatch) Render() string {
	return m.Text + " = " + m.CURIE + " (" + m.Name + ")"
}

// InferenceRequest is the payload sent to the cause-of-death inference
// service for each transcript chunk.
type InferenceRequest struct {
	ChunkID     string      `json:"chunk_id"`
	Timestamp   float64     `json:"timestamp"`
	Text        string      `json:"text"`
	Annotations []TermMatch `json:"annotations"`
}

// InferenceResult is the inference service's response for one chunk.
type InferenceResult struct {
	ChunkID         string  `json:"chunk_id"`
	Timestamp       float64 `json:"timestamp"`
	COD             string  `json:"cod"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning,omitempty"`
	ChunksProcessed int     `json:"chunks_processed"`
}

// Message type discriminators for the realtime channel.
const (
	MessageTranscript = "transcript"
	MessageInference  = "inference"
	MessageWarning    = "warning"
	MessageError      = "error"
)

// TranscriptMessage is sent to the client as soon as a chunk is transcribed.
type TranscriptMessage struct {
	Type        string   `json:"type"`
	ChunkID     string   `json:"chunk_id"`
	Timestamp   float64  `json:"timestamp"`
	Transcript  string   `json:"transcript"`
	Annotations []string `json:"annotations"`
}

// InferenceMessage carries an inference result back to the client.
type InferenceMessage struct {
	Type string `json:"type"`
	InferenceResult
}

// WarningMessage notifies the client of a recoverable condition, such as an
// admission-control drop. Code carries the error-taxonomy classification.
type WarningMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ErrorMessage reports a failure scoped to a chunk (or to the session when
// ChunkID is empty) without tearing down the channel.
type ErrorMessage struct {
	Type    string `json:"type"`
	ChunkID string `json:"chunk_id,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}
