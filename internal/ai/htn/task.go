// Package htn is a hierarchical task network planner.
//
// A Task is one of three kinds. A primitive wraps exactly one operator. A
// sequence expands into a fixed ordered list of subtasks. A selector picks the
// first of its methods whose preconditions hold. Non-primitive tasks rebuild
// their children on every decomposition, so target references never survive
// from one planning cycle into the next.
package htn

import (
	"voxelmind.ai/internal/ai/blackboard"
	"voxelmind.ai/internal/ai/operator"
)

type Kind uint8

const (
	KindPrimitive Kind = iota + 1
	KindSequence
	KindSelector
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindSequence:
		return "sequence"
	case KindSelector:
		return "selector"
	default:
		return "invalid"
	}
}

// DecompositionRule controls the order a selector tries its methods in.
type DecompositionRule uint8

const (
	// Ordered tries methods in declaration order; the first eligible wins.
	Ordered DecompositionRule = iota
	// Random shuffles the methods before trying them.
	Random
)

type Precondition func(bb blackboard.Reader) bool

// Effect records a primitive's expected outcome on the planning shadow so
// that later preconditions in the same plan can account for it.
type Effect func(s *blackboard.Shadow)

type Task struct {
	Name string

	kind Kind
	pre  []Precondition

	prim *primitive
	seq  *sequence
	sel  *selector
}

type primitive struct {
	setup       func() operator.Operator
	effects     []Effect
	invalidates []blackboard.Kind
}

type sequence struct {
	build func(bb blackboard.Reader, b *SequenceBuilder)
}

type selector struct {
	rule    DecompositionRule
	methods func(bb blackboard.Reader) []*Task
}

type Option func(*Task)

// When adds a precondition. All preconditions must hold.
func When(p Precondition) Option {
	return func(t *Task) {
		if p != nil {
			t.pre = append(t.pre, p)
		}
	}
}

// WithEffects declares planning-time effects. Primitive tasks only.
func WithEffects(effects ...Effect) Option {
	return func(t *Task) {
		if t.prim != nil {
			t.prim.effects = append(t.prim.effects, effects...)
		}
	}
}

// Invalidates names the blackboard facts the primitive's world effect
// changes. They are dropped from the cache once the step succeeds.
func Invalidates(kinds ...blackboard.Kind) Option {
	return func(t *Task) {
		if t.prim != nil {
			t.prim.invalidates = append(t.prim.invalidates, kinds...)
		}
	}
}

// Primitive builds a leaf task. setup is called every time the task is set
// up for execution and must return a fresh operator.
func Primitive(name string, setup func() operator.Operator, opts ...Option) *Task {
	t := &Task{Name: name, kind: KindPrimitive, prim: &primitive{setup: setup}}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Sequence builds a task whose subtasks are produced by build. See
// SequenceBuilder for the order contract.
func Sequence(name string, build func(bb blackboard.Reader, b *SequenceBuilder), opts ...Option) *Task {
	t := &Task{Name: name, kind: KindSequence, seq: &sequence{build: build}}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Selector builds a task choosing among the tasks returned by methods.
func Selector(name string, rule DecompositionRule, methods func(bb blackboard.Reader) []*Task, opts ...Option) *Task {
	t := &Task{Name: name, kind: KindSelector, sel: &selector{rule: rule, methods: methods}}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Task) Kind() Kind { return t.kind }

func (t *Task) PreconditionsMet(bb blackboard.Reader) bool {
	for _, p := range t.pre {
		if !p(bb) {
			return false
		}
	}
	return true
}

// InvalidatedKinds lists the facts to drop when this primitive succeeds.
func (t *Task) InvalidatedKinds() []blackboard.Kind {
	if t.prim == nil {
		return nil
	}
	return t.prim.invalidates
}

// SetupOperator constructs a fresh operator for a primitive task. Tasks with
// no setup function get an operator reporting Unsupported.
func (t *Task) SetupOperator() operator.Operator {
	if t.prim == nil || t.prim.setup == nil {
		return operator.NotImplemented(t.Name)
	}
	op := t.prim.setup()
	if op == nil {
		return operator.NotImplemented(t.Name)
	}
	return op
}

// SequenceBuilder collects a sequence's subtasks back to front: each Push
// places its task before every task pushed earlier. Author the final step
// first. Steps pushed later may rely on state prepared while building the
// steps that run after them; decomposition restores execution order.
type SequenceBuilder struct {
	reversed []*Task
}

func (b *SequenceBuilder) Push(t *Task) {
	if t != nil {
		b.reversed = append(b.reversed, t)
	}
}

func (b *SequenceBuilder) Len() int { return len(b.reversed) }

// Tasks returns the subtasks in execution order.
func (b *SequenceBuilder) Tasks() []*Task {
	out := make([]*Task, len(b.reversed))
	for i, t := range b.reversed {
		out[len(b.reversed)-1-i] = t
	}
	return out
}
