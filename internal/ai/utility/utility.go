// Package utility scores candidate actions and picks the best one.
//
// An Expandable is an action template ("pick up and eat food"). For every
// candidate target it yields, an Action is built and scored as its bonus times
// the product of its considerations. One zero consideration vetoes the action.
package utility

import (
	"fmt"
	"iter"
	"math"

	"voxelmind.ai/internal/ai/blackboard"
	"voxelmind.ai/internal/ai/entity"
	"voxelmind.ai/internal/ai/htn"
)

// Context is what considerations and expansion see for one candidate.
type Context struct {
	Blackboard blackboard.Reader
	Target     entity.ID
}

// Input extracts a raw fact.
type Input func(ctx Context) float64

type Consideration struct {
	Name  string
	Input Input
	Curve Curve
}

func (c Consideration) Score(ctx Context) float64 {
	if c.Input == nil {
		return 0
	}
	curve := c.Curve
	if curve == nil {
		curve = Identity{}
	}
	return curve.Score(c.Input(ctx))
}

// BoolInput reads a boolean fact as 0 or 1.
func BoolInput(key blackboard.Key[bool]) Input {
	return func(ctx Context) float64 {
		if blackboard.Get(ctx.Blackboard, key) {
			return 1
		}
		return 0
	}
}

// CountInput reads an integer fact.
func CountInput(key blackboard.Key[int]) Input {
	return func(ctx Context) float64 { return float64(blackboard.Get(ctx.Blackboard, key)) }
}

// TargetDistance is the distance from the owner to the candidate target, or
// +Inf when it cannot be measured.
func TargetDistance(ctx Context) float64 {
	w := ctx.Blackboard.World()
	if w == nil || !ctx.Target.Valid() {
		return math.Inf(1)
	}
	d, ok := entity.Distance(w, ctx.Blackboard.Owner(), ctx.Target)
	if !ok {
		return math.Inf(1)
	}
	return d
}

type Expandable struct {
	ID    string
	Bonus float64
	// Candidates yields the targets to build actions for. Nil means the
	// action is untargeted and yields one action with no target.
	Candidates func(bb blackboard.Reader) iter.Seq[entity.ID]
	// Preconditions gate an action before it is scored.
	Preconditions  []func(ctx Context) bool
	Considerations []Consideration
	// Expand builds the operator sequence for a chosen action. It must
	// return fresh task instances on every call.
	Expand func(ctx Context) *htn.Task
	// Requires lists the facts the template reads, checked at setup.
	Requires []blackboard.Kind
}

// Actions builds one Action per candidate target, in enumeration order.
func (e *Expandable) Actions(bb blackboard.Reader) iter.Seq[*Action] {
	return func(yield func(*Action) bool) {
		if e.Candidates == nil {
			yield(e.action(0))
			return
		}
		for target := range e.Candidates(bb) {
			if !yield(e.action(target)) {
				return
			}
		}
	}
}

func (e *Expandable) action(target entity.ID) *Action {
	name := e.ID
	if target.Valid() {
		name = fmt.Sprintf("%s#%d", e.ID, target)
	}
	return &Action{Name: name, Target: target, Bonus: e.Bonus, template: e}
}

// Action is an Expandable bound to one target.
type Action struct {
	Name   string
	Target entity.ID
	Bonus  float64

	template *Expandable
}

func (a *Action) ID() string { return a.template.ID }

func (a *Action) PreconditionsMet(bb blackboard.Reader) bool {
	ctx := Context{Blackboard: bb, Target: a.Target}
	for _, p := range a.template.Preconditions {
		if !p(ctx) {
			return false
		}
	}
	return true
}

// Score is Bonus times the product of the consideration scores. Unmet
// preconditions score 0.
func (a *Action) Score(bb blackboard.Reader) float64 {
	if !a.PreconditionsMet(bb) {
		return 0
	}
	ctx := Context{Blackboard: bb, Target: a.Target}
	score := a.Bonus
	for _, c := range a.template.Considerations {
		if score == 0 {
			return 0
		}
		score *= c.Score(ctx)
	}
	return score
}

// Task expands the action into a fresh task tree named after the action.
func (a *Action) Task(bb blackboard.Reader) *htn.Task {
	if a.template.Expand == nil {
		return nil
	}
	t := a.template.Expand(Context{Blackboard: bb, Target: a.Target})
	if t != nil {
		t.Name = a.Name
	}
	return t
}

// Choice is the result of a selection.
type Choice struct {
	Action *Action
	Score  float64
}

type Selector struct {
	actions []*Expandable
}

func NewSelector(actions ...*Expandable) *Selector {
	return &Selector{actions: actions}
}

func (s *Selector) Expandables() []*Expandable { return s.actions }

// Select returns the action with the strictly highest positive score. Ties
// keep the first action enumerated.
func (s *Selector) Select(bb blackboard.Reader) (Choice, bool) {
	var best Choice
	for _, e := range s.actions {
		for a := range e.Actions(bb) {
			score := a.Score(bb)
			if score > best.Score {
				best = Choice{Action: a, Score: score}
			}
		}
	}
	return best, best.Action != nil
}

// ScoreAll scores every candidate, in enumeration order. Intended for
// debugging and telemetry.
func (s *Selector) ScoreAll(bb blackboard.Reader) []Choice {
	var out []Choice
	for _, e := range s.actions {
		for a := range e.Actions(bb) {
			out = append(out, Choice{Action: a, Score: a.Score(bb)})
		}
	}
	return out
}
