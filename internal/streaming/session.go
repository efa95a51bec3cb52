package streaming

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/domain"
)

// Conn is the subset of the websocket connection the session drives.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Recorder persists interview activity for later review. Implementations
// must tolerate concurrent calls from the read loop and inference tasks.
type Recorder interface {
	RecordTranscript(ctx context.Context, sessionID, chunkID string, timestamp float64, transcript string) error
	RecordInference(ctx context.Context, sessionID string, result domain.InferenceResult) error
}

// Session owns one live interview: it reads binary audio frames from the
// connection, windows them into chunks, transcribes and grounds each chunk
// in order, and dispatches cause-of-death inference as concurrent tasks
// gated by the admission controller. Transcripts reach the client in chunk
// order; inference results arrive in completion order, correlated by chunk
// id. The audio buffer and pending-task table are exclusive to this session.
type Session struct {
	id          string
	conn        Conn
	window      *ChunkWindow
	admission   *AdmissionController
	transcriber domain.Transcriber
	grounder    domain.Grounder
	inference   domain.InferenceService
	recorder    Recorder
	logger      *logrus.Logger

	writeMu sync.Mutex
	tasks   sync.WaitGroup
}

// NewSession wires a session over conn. grounder and recorder may be nil,
// disabling annotation and persistence respectively.
func NewSession(conn Conn, window *ChunkWindow, admission *AdmissionController,
	transcriber domain.Transcriber, grounder domain.Grounder, inference domain.InferenceService,
	recorder Recorder, logger *logrus.Logger) *Session {
	return &Session{
		id:          uuid.New().String(),
		conn:        conn,
		window:      window,
		admission:   admission,
		transcriber: transcriber,
		grounder:    grounder,
		inference:   inference,
		recorder:    recorder,
		logger:      logger,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Run drives the session until the client disconnects or ctx is cancelled.
// On return all pending inference tasks are cancelled, the audio buffer is
// cleared, and no background work remains.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.admission.CancelAll()
		s.window.Clear()
		s.tasks.Wait()
	}()

	s.logger.WithField("session_id", s.id).Info("Interview session started")

	// ReadMessage blocks with no deadline, so a cancelled context alone
	// cannot stop the loop. Closing the connection forces it to return.
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.WithField("session_id", s.id).Info("Interview session shut down")
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WithField("session_id", s.id).Info("Interview session closed by client")
				return nil
			}
			s.logger.WithError(err).WithField("session_id", s.id).Warn("Interview session read failed")
			return domain.NewCodingError(domain.ErrTransport, "interview channel read failed", err.Error())
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		ready, err := s.window.AddAudio(data)
		if err != nil {
			s.writeError("", domain.ErrorCode(err), err.Error())
			continue
		}
		if !ready {
			continue
		}
		for chunk := s.window.GetChunk(); chunk != nil; chunk = s.window.GetChunk() {
			s.processChunk(ctx, chunk)
		}
	}
}

// processChunk transcribes and grounds one chunk synchronously, then hands
// inference off to a background task under admission control.
func (s *Session) processChunk(ctx context.Context, chunk *domain.AudioChunk) {
	start := time.Now()

	transcript, err := s.transcriber.Transcribe(ctx, chunk.Samples, s.window.SampleRate())
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": s.id,
			"chunk_id":   chunk.ID,
		}).Warn("Transcription failed")
		s.writeError(chunk.ID, domain.ErrExternalAPI, "transcription failed: "+err.Error())
		return
	}
	if strings.TrimSpace(transcript) == "" {
		return
	}

	var annotations []domain.TermMatch
	if s.grounder != nil {
		annotations, err = s.grounder.Annotate(ctx, transcript)
		if err != nil {
			// Grounding is best-effort; the transcript still goes out.
			s.logger.WithError(err).WithField("chunk_id", chunk.ID).Warn("Grounding failed")
			annotations = nil
		}
	}

	rendered := make([]string, 0, len(annotations))
	for _, m := range annotations {
		rendered = append(rendered, m.Render())
	}

	s.writeJSON(domain.TranscriptMessage{
		Type:        domain.MessageTranscript,
		ChunkID:     chunk.ID,
		Timestamp:   chunk.Timestamp,
		Transcript:  transcript,
		Annotations: rendered,
	})

	if s.recorder != nil {
		if err := s.recorder.RecordTranscript(ctx, s.id, chunk.ID, chunk.Timestamp, transcript); err != nil {
			s.logger.WithError(err).Warn("Failed to persist transcript")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"chunk_id":   chunk.ID,
		"elapsed":    time.Since(start),
	}).Debug("Chunk transcribed")

	s.dispatchInference(ctx, domain.InferenceRequest{
		ChunkID:     chunk.ID,
		Timestamp:   chunk.Timestamp,
		Text:        transcript,
		Annotations: annotations,
	})
}

// dispatchInference runs the inference call as an independent task so the
// read loop keeps consuming audio. At capacity the oldest pending task is
// evicted, and the client is warned.
func (s *Session) dispatchInference(ctx context.Context, req domain.InferenceRequest) {
	taskCtx, evicted := s.admission.Admit(ctx, req.ChunkID)
	if evicted != "" {
		s.writeJSON(domain.WarningMessage{
			Type:    domain.MessageWarning,
			Code:    domain.ErrBackpressureDrop,
			Message: "inference backlog full, dropped pending chunk " + evicted,
		})
	}

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer s.admission.Done(req.ChunkID)

		result, err := s.inference.Infer(taskCtx, req)
		if taskCtx.Err() != nil {
			// Evicted or session closed: suppress the result.
			return
		}
		if err != nil {
			s.writeError(req.ChunkID, domain.ErrExternalAPI, "inference failed: "+err.Error())
			return
		}

		s.writeJSON(domain.InferenceMessage{
			Type:            domain.MessageInference,
			InferenceResult: *result,
		})

		if s.recorder != nil {
			if err := s.recorder.RecordInference(context.WithoutCancel(taskCtx), s.id, *result); err != nil {
				s.logger.WithError(err).Warn("Failed to persist inference result")
			}
		}
	}()
}

func (s *Session) writeError(chunkID, code, message string) {
	s.writeJSON(domain.ErrorMessage{
		Type:    domain.MessageError,
		ChunkID: chunkID,
		Code:    code,
		Error:   message,
	})
}

// writeJSON serializes access to the connection: transcript writes from the
// read loop and result writes from inference tasks would otherwise
// interleave frames.
func (s *Session) writeJSON(v interface{}) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		s.logger.WithError(err).WithField("session_id", s.id).Warn("Failed to write message")
	}
}
