package streaming

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultMaxPending bounds concurrently in-flight inference calls per
// session.
const DefaultMaxPending = 3

type pendingTask struct {
	chunkID string
	cancel  context.CancelFunc
}

// AdmissionController bounds the number of in-flight inference tasks for one
// session. Under backpressure it sheds load by cancelling and evicting the
// oldest pending task instead of queuing: stale chunks are worthless once
// newer audio has arrived. Safe for concurrent use.
type AdmissionController struct {
	mu         sync.Mutex
	maxPending int
	pending    []pendingTask // insertion order, oldest first
	evictions  int
	logger     *logrus.Logger
}

// NewAdmissionController creates a controller admitting at most maxPending
// concurrent tasks; non-positive values fall back to DefaultMaxPending.
func NewAdmissionController(maxPending int, logger *logrus.Logger) *AdmissionController {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &AdmissionController{
		maxPending: maxPending,
		logger:     logger,
	}
}

// Admit registers chunkID and returns a context to run its inference call
// under. When the table is at capacity, the oldest pending task is cancelled
// and evicted first; its chunk id is returned so the session can surface a
// warning. Cancellation only suppresses the evicted task's result; an
// external call already in flight is not forcibly stopped.
func (c *AdmissionController) Admit(parent context.Context, chunkID string) (context.Context, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := ""
	if len(c.pending) >= c.maxPending {
		oldest := c.pending[0]
		c.pending = c.pending[1:]
		oldest.cancel()
		c.evictions++
		evicted = oldest.chunkID
		c.logger.WithFields(logrus.Fields{
			"evicted_chunk": oldest.chunkID,
			"new_chunk":     chunkID,
			"max_pending":   c.maxPending,
		}).Warn("Inference backlog full, dropping oldest pending task")
	}

	ctx, cancel := context.WithCancel(parent)
	c.pending = append(c.pending, pendingTask{chunkID: chunkID, cancel: cancel})
	return ctx, evicted
}

// Done releases chunkID's slot after its task completes or fails. Unknown
// ids are ignored; the task may already have been evicted.
func (c *AdmissionController) Done(chunkID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, task := range c.pending {
		if task.chunkID == chunkID {
			task.cancel()
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// CancelAll cancels every pending task and clears the table. Called on
// session termination so no background work outlives the session.
func (c *AdmissionController) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, task := range c.pending {
		task.cancel()
	}
	c.pending = nil
}

// Pending returns the number of in-flight tasks.
func (c *AdmissionController) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Evictions returns the number of tasks dropped under backpressure.
func (c *AdmissionController) Evictions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}
