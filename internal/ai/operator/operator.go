// Package operator holds the units that perform one concrete world action,
// possibly across many ticks.
package operator

import "time"

// Outcome is the result of ticking an operator once.
type Outcome uint8

const (
	// Continuing keeps the operator at the head of the plan.
	Continuing Outcome = iota
	Success
	// Failed discards the rest of the plan.
	Failed
	// Unsupported is reported by operators with no real behavior. The agent
	// loop treats it like Failed but reports it separately.
	Unsupported
)

func (o Outcome) String() string {
	switch o {
	case Continuing:
		return "continuing"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further Execute calls are expected.
func (o Outcome) Terminal() bool { return o != Continuing }

type Operator interface {
	Execute(dt time.Duration) Outcome
}

// Starter is implemented by operators that need a hook before the first
// Execute.
type Starter interface {
	Start()
}

// Finisher is implemented by operators that release something (a steering
// request, a reservation) once they reach a terminal outcome.
type Finisher interface {
	Finish(Outcome)
}

// Func adapts a function into an Operator.
type Func func(dt time.Duration) Outcome

func (f Func) Execute(dt time.Duration) Outcome {
	if f == nil {
		return Unsupported
	}
	return f(dt)
}

// NotImplemented returns an operator that always reports Unsupported.
func NotImplemented(name string) Operator { return unsupported{name: name} }

type unsupported struct{ name string }

func (u unsupported) Execute(time.Duration) Outcome { return Unsupported }
func (u unsupported) String() string                { return "unsupported:" + u.name }

// Wait succeeds once Duration of simulated time has passed.
type Wait struct {
	Duration time.Duration

	elapsed time.Duration
}

func (w *Wait) Start() { w.elapsed = 0 }

func (w *Wait) Execute(dt time.Duration) Outcome {
	w.elapsed += dt
	if w.elapsed >= w.Duration {
		return Success
	}
	return Continuing
}
