// Package telemetry carries machine-readable decision events out of the
// agent loop.
package telemetry

import (
	"sync"
	"time"

	"voxelmind.ai/internal/ai/entity"
)

type Kind string

const (
	PlanFound     Kind = "PLAN_FOUND"
	StepCompleted Kind = "STEP_COMPLETED"
	PlanFailed    Kind = "PLAN_FAILED"
	PlanCompleted Kind = "PLAN_COMPLETED"
	// PlanAborted ends a plan that was replaced or removed before it
	// finished. Outcome says why.
	PlanAborted Kind = "PLAN_ABORTED"
)

type Event struct {
	Kind   Kind      `json:"kind"`
	Agent  entity.ID `json:"agent"`
	PlanID string    `json:"plan_id,omitempty"`
	Root   string    `json:"root,omitempty"`
	// AtMS is simulated time in milliseconds.
	AtMS int64 `json:"at_ms"`

	Steps       []string `json:"steps,omitempty"`
	Step        string   `json:"step,omitempty"`
	Outcome     string   `json:"outcome,omitempty"`
	Unsupported bool     `json:"unsupported,omitempty"`
	Score       float64  `json:"score,omitempty"`
}

// At sets AtMS from a simulated clock reading.
func (e Event) At(now time.Duration) Event {
	e.AtMS = now.Milliseconds()
	return e
}

// Sink receives events. Emit must not block the tick.
type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// Fanout forwards each event to every sink in order.
type Fanout []Sink

func (f Fanout) Emit(e Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(e)
		}
	}
}

// Recorder keeps events in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds lists the recorded event kinds in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
