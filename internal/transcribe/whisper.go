package transcribe

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/coda-va-server/internal/domain"
)

// WhisperClient sends PCM audio windows to a Whisper-compatible
// transcription endpoint and returns the recognized text.
type WhisperClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewWhisperClient creates a transcription client from config.
func NewWhisperClient(config domain.WhisperConfig) *WhisperClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &WhisperClient{
		baseURL: config.BaseURL,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe wraps the samples in a WAV container and posts them to the
// transcription endpoint.
func (c *WhisperClient) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create audio form part: %w", err)
	}
	if _, err := part.Write(encodeWAV(samples, sampleRate)); err != nil {
		return "", fmt.Errorf("failed to write audio form part: %w", err)
	}
	if c.model != "" {
		if err := writer.WriteField("model", c.model); err != nil {
			return "", fmt.Errorf("failed to write model field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute transcription request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription service returned status %d", resp.StatusCode)
	}

	var result transcriptionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse transcription response: %w", err)
	}
	return result.Text, nil
}

var _ domain.Transcriber = (*WhisperClient)(nil)

// encodeWAV wraps 16-bit mono PCM samples in a minimal RIFF/WAVE container.
func encodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, 0, 44+dataLen)

	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataLen))
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 1) // mono
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate*2)) // byte rate
	buf = binary.LittleEndian.AppendUint16(buf, 2)                    // block align
	buf = binary.LittleEndian.AppendUint16(buf, 16)                   // bits per sample

	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataLen))
	for _, s := range samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}
	return buf
}
