package streaming

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coda-va-server/internal/domain"
)

// ChunkWindow accumulates raw 16-bit PCM audio into fixed-size windows for
// incremental transcription. On emission, the trailing overlap is retained
// so the next window re-includes it; this avoids clipping words at chunk
// boundaries. Owned exclusively by one session; not safe for concurrent use.
type ChunkWindow struct {
	sampleRate int
	windowSize int
	overlap    int

	buffer   []int16
	position int // absolute sample offset of buffer[0] within the stream
}

// NewChunkWindow creates a window emitting chunkDuration-long chunks of
// sampleRate-Hz audio, retaining overlap seconds of trailing samples between
// consecutive chunks.
func NewChunkWindow(sampleRate int, chunkDuration time.Duration, overlapSeconds float64) (*ChunkWindow, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	windowSize := int(float64(sampleRate) * chunkDuration.Seconds())
	if windowSize <= 0 {
		return nil, fmt.Errorf("chunk duration %s yields empty window", chunkDuration)
	}
	overlap := int(float64(sampleRate) * overlapSeconds)
	if overlap < 0 || overlap >= windowSize {
		return nil, fmt.Errorf("overlap %d samples must be in [0, window size %d)", overlap, windowSize)
	}
	return &ChunkWindow{
		sampleRate: sampleRate,
		windowSize: windowSize,
		overlap:    overlap,
	}, nil
}

// SampleRate returns the configured sample rate in Hz.
func (w *ChunkWindow) SampleRate() int { return w.sampleRate }

// WindowSize returns the number of samples per emitted chunk.
func (w *ChunkWindow) WindowSize() int { return w.windowSize }

// BufferedSamples returns the number of samples currently buffered.
func (w *ChunkWindow) BufferedSamples() int { return len(w.buffer) }

// AddAudio appends little-endian 16-bit PCM bytes to the buffer and reports
// whether at least one full window is ready for emission.
func (w *ChunkWindow) AddAudio(data []byte) (bool, error) {
	if len(data)%2 != 0 {
		return false, domain.NewCodingError(domain.ErrInvalidInput,
			"audio frame must contain 16-bit little-endian samples",
			fmt.Sprintf("got odd length %d bytes", len(data)))
	}
	for i := 0; i < len(data); i += 2 {
		w.buffer = append(w.buffer, int16(binary.LittleEndian.Uint16(data[i:i+2])))
	}
	return len(w.buffer) >= w.windowSize, nil
}

// GetChunk emits the next full window, or nil when not enough samples are
// buffered. The emitted chunk owns its sample slice; the window keeps only
// the trailing overlap plus any surplus beyond the window size. Timestamps
// are audio-stream positions in seconds, not wall-clock times.
func (w *ChunkWindow) GetChunk() *domain.AudioChunk {
	if len(w.buffer) < w.windowSize {
		return nil
	}

	samples := make([]int16, w.windowSize)
	copy(samples, w.buffer[:w.windowSize])

	chunk := &domain.AudioChunk{
		ID:        uuid.New().String(),
		Timestamp: float64(w.position) / float64(w.sampleRate),
		Samples:   samples,
	}

	retainFrom := w.windowSize - w.overlap
	remaining := make([]int16, len(w.buffer)-retainFrom)
	copy(remaining, w.buffer[retainFrom:])
	w.buffer = remaining
	w.position += retainFrom

	return chunk
}

// Clear drops all buffered samples. Called on disconnect or unrecoverable
// session error.
func (w *ChunkWindow) Clear() {
	w.buffer = nil
	w.position = 0
}
