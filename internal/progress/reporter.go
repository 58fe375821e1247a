// Package progress tracks the three import milestones and an ordered log,
// publishing a snapshot event on every change.
package progress

import (
	"sync"
	"time"

	"github.com/iconidentify/recipegrabba/internal/domain"
)

// Sink receives events in emission order. It must not retain the event
// beyond the call unless it copies it; events are already snapshots.
type Sink func(domain.ProgressEvent)

// Discard is a Sink that drops every event.
func Discard(domain.ProgressEvent) {}

// Reporter is safe for concurrent use. Milestones only move forward from
// unstarted; a milestone that was set stays set except when a failure marks
// the first unfinished one false.
type Reporter struct {
	mu    sync.Mutex
	state domain.ProgressState
	logs  []domain.LogEntry
	sink  Sink
	now   func() time.Time
}

// NewReporter creates a reporter that publishes to sink.
func NewReporter(sink Sink) *Reporter {
	if sink == nil {
		sink = Discard
	}
	return &Reporter{sink: sink, now: time.Now}
}

func okPtr(v bool) *bool { return &v }

// Start publishes the initial all-unstarted state.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(domain.ProgressEvent{Progress: r.stateLocked(), Logs: r.logsLocked()})
}

// Info appends a pending log line for step.
func (r *Reporter) Info(step domain.Step, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(step, nil, message)
	r.emitLocked(domain.ProgressEvent{Logs: r.logsLocked()})
}

// Succeed marks step done and appends a success log line.
func (r *Reporter) Succeed(step domain.Step, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setLocked(step, true)
	r.appendLocked(step, okPtr(true), message)
	r.emitLocked(domain.ProgressEvent{Progress: r.stateLocked(), Logs: r.logsLocked()})
}

// Fail marks the first unfinished milestone false, logs message against it
// and publishes the terminal error event. It returns the failed step.
func (r *Reporter) Fail(message string) domain.Step {
	r.mu.Lock()
	defer r.mu.Unlock()

	step := r.failedStepLocked()
	r.setLocked(step, false)
	r.appendLocked(step, okPtr(false), message)
	r.emitLocked(domain.ProgressEvent{Progress: r.stateLocked(), Logs: r.logsLocked(), Error: message})
	return step
}

// Duplicate publishes the terminal duplicate event.
func (r *Reporter) Duplicate(existing *domain.RecipeSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(domain.ProgressEvent{Duplicate: true, Recipe: existing})
}

// Done publishes the terminal success event carrying the created recipe.
func (r *Reporter) Done(created *domain.RecipeSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(domain.ProgressEvent{Progress: r.stateLocked(), Logs: r.logsLocked(), Recipe: created})
}

// Snapshot returns copies of the current state and logs.
func (r *Reporter) Snapshot() (domain.ProgressState, []domain.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone(), r.logsLocked()
}

func (r *Reporter) failedStepLocked() domain.Step {
	for _, step := range []domain.Step{domain.StepVideo, domain.StepAudio} {
		if v := r.state.Get(step); v == nil || !*v {
			return step
		}
	}
	return domain.StepRecipe
}

func (r *Reporter) setLocked(step domain.Step, v bool) {
	switch step {
	case domain.StepVideo:
		r.state.VideoDownloaded = okPtr(v)
	case domain.StepAudio:
		r.state.AudioTranscribed = okPtr(v)
	case domain.StepRecipe:
		r.state.RecipeCreated = okPtr(v)
	}
}

func (r *Reporter) appendLocked(step domain.Step, ok *bool, message string) {
	r.logs = append(r.logs, domain.LogEntry{
		Step:    step,
		OK:      ok,
		Message: message,
		TS:      r.now().UnixMilli(),
	})
}

func (r *Reporter) stateLocked() *domain.ProgressState {
	s := r.state.Clone()
	return &s
}

func (r *Reporter) logsLocked() []domain.LogEntry {
	out := make([]domain.LogEntry, len(r.logs))
	for i, e := range r.logs {
		if e.OK != nil {
			e.OK = okPtr(*e.OK)
		}
		out[i] = e
	}
	return out
}

// emitLocked is called with the lock held so events reach the sink in the
// order the changes were made.
func (r *Reporter) emitLocked(ev domain.ProgressEvent) {
	r.sink(ev)
}
