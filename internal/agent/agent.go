// Package agent implements the cause-of-death inference service: an agent
// that accumulates interview dialogue across chunks and produces a running
// cause-of-death estimate.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/domain"
)

// historyEntry is one processed dialogue chunk.
type historyEntry struct {
	chunkID     string
	timestamp   float64
	text        string
	annotations []domain.TermMatch
}

// RuleBasedAgent infers a probable cause of death from accumulated symptom
// mentions. It is stateful across chunks within one interview and reset
// between interviews. Safe for concurrent use.
type RuleBasedAgent struct {
	mu      sync.Mutex
	history []historyEntry
	allText strings.Builder
	logger  *logrus.Logger
}

// NewRuleBasedAgent creates an agent with empty dialogue history.
func NewRuleBasedAgent(logger *logrus.Logger) *RuleBasedAgent {
	return &RuleBasedAgent{logger: logger}
}

// ProcessChunk appends the chunk to the dialogue history and returns the
// cause-of-death estimate over all accumulated evidence.
func (a *RuleBasedAgent) ProcessChunk(_ context.Context, req domain.InferenceRequest) (*domain.InferenceResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	timestamp := req.Timestamp
	if timestamp == 0 {
		timestamp = float64(time.Now().UnixNano()) / float64(time.Second)
	}

	a.history = append(a.history, historyEntry{
		chunkID:     req.ChunkID,
		timestamp:   timestamp,
		text:        req.Text,
		annotations: req.Annotations,
	})
	a.allText.WriteString(" ")
	a.allText.WriteString(req.Text)

	cod, confidence, reasoning := a.estimate()

	a.logger.WithFields(logrus.Fields{
		"chunk_id":         req.ChunkID,
		"chunks_processed": len(a.history),
		"cod":              cod,
	}).Info("Chunk processed")

	return &domain.InferenceResult{
		ChunkID:         req.ChunkID,
		Timestamp:       timestamp,
		COD:             cod,
		Confidence:      confidence,
		Reasoning:       reasoning,
		ChunksProcessed: len(a.history),
	}, nil
}

// estimate scores symptom mentions over the whole dialogue. Confidence grows
// with repeated mentions, capped at 0.9. Caller holds the lock.
func (a *RuleBasedAgent) estimate() (cod string, confidence float64, reasoning string) {
	text := strings.ToLower(a.allText.String())
	chunks := len(a.history)

	feverMentions := strings.Count(text, "fever") + strings.Count(text, "temperature")
	cardiacMentions := strings.Count(text, "chest pain") +
		strings.Count(text, "heart") +
		strings.Count(text, "cardiac")

	switch {
	case feverMentions > 0:
		cod = "Infectious disease (suspected COVID-19)"
		confidence = cappedConfidence(feverMentions)
		reasoning = fmt.Sprintf("Fever/temperature mentioned %d time(s) across %d chunk(s)", feverMentions, chunks)
	case cardiacMentions > 0:
		cod = "Cardiac arrest"
		confidence = cappedConfidence(cardiacMentions)
		reasoning = fmt.Sprintf("Cardiac symptoms mentioned %d time(s) across %d chunk(s)", cardiacMentions, chunks)
	default:
		cod = "Unknown"
		confidence = 0.3
		reasoning = fmt.Sprintf("Insufficient evidence after %d chunk(s)", chunks)
	}
	return cod, confidence, reasoning
}

func cappedConfidence(mentions int) float64 {
	confidence := 0.5 + float64(mentions)*0.1
	if confidence > 0.9 {
		confidence = 0.9
	}
	return confidence
}

// Reset clears dialogue history for a new interview.
func (a *RuleBasedAgent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	a.allText.Reset()
	a.logger.Info("Agent state reset for new interview")
}

// ChunksProcessed returns the number of chunks in the current interview.
func (a *RuleBasedAgent) ChunksProcessed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history)
}
