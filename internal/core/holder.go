package core

import (
	"sync"
	"time"
)

// Status is the outcome of a run.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusNoQueries Status = "no_queries"
	StatusFailed    Status = "failed"
)

// RunResult is what a run publishes. Result is nil when the run failed.
type RunResult struct {
	Request   FanoutRequest
	Backend   string
	Model     string
	Prompt    string
	Raw       string
	Result    *FanoutResult
	Status    Status
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// ResultHolder keeps the last published run. It is owned by the caller and
// passed to Run; every run resets it before calling the model and
// overwrites it afterwards.
type ResultHolder struct {
	mu   sync.RWMutex
	last *RunResult
}

func NewResultHolder() *ResultHolder {
	return &ResultHolder{}
}

// Reset clears the last result.
func (h *ResultHolder) Reset() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = nil
}

// Publish replaces the last result.
func (h *ResultHolder) Publish(result RunResult) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &result
}

// Last returns a copy of the last published run.
func (h *ResultHolder) Last() (RunResult, bool) {
	if h == nil {
		return RunResult{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return RunResult{}, false
	}
	return *h.last, true
}
