package htn

import (
	"time"

	"voxelmind.ai/internal/ai/operator"
)

type stepState uint8

const (
	stepPending stepState = iota
	stepRunning
	stepDone
)

// Step is one primitive task in a plan together with its operator instance.
//
// Once the operator reports a terminal outcome the step keeps returning that
// outcome without executing the operator again until Setup builds a new one.
type Step struct {
	Task *Task

	op    operator.Operator
	state stepState
	last  operator.Outcome
	runs  int
}

// Setup constructs a fresh operator, discarding any previous progress.
func (s *Step) Setup() {
	s.op = s.Task.SetupOperator()
	if st, ok := s.op.(operator.Starter); ok {
		st.Start()
	}
	s.state = stepRunning
	s.last = operator.Continuing
}

// Tick executes the operator once, setting it up first when needed.
func (s *Step) Tick(dt time.Duration) operator.Outcome {
	switch s.state {
	case stepPending:
		s.Setup()
	case stepDone:
		return s.last
	}

	out := s.op.Execute(dt)
	s.runs++
	s.last = out
	if out.Terminal() {
		s.state = stepDone
		if f, ok := s.op.(operator.Finisher); ok {
			f.Finish(out)
		}
	}
	return out
}

// Abort finishes a running operator as Failed without executing it. Used when
// the plan holding the step is replaced.
func (s *Step) Abort() {
	if s.state != stepRunning {
		return
	}
	s.state = stepDone
	s.last = operator.Failed
	if f, ok := s.op.(operator.Finisher); ok {
		f.Finish(operator.Failed)
	}
}

// Done reports whether the operator reached a terminal outcome.
func (s *Step) Done() bool { return s.state == stepDone }

// Executions counts Execute calls across every setup of this step.
func (s *Step) Executions() int { return s.runs }

func (s *Step) Operator() operator.Operator { return s.op }
