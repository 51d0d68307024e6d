package htn

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"voxelmind.ai/internal/ai/blackboard"
)

// MaxDepth bounds decomposition. Trees are acyclic by construction; hitting
// the bound means a task definition rebuilds itself.
const MaxDepth = 32

var (
	ErrNoPlan  = errors.New("htn: no plan")
	ErrTooDeep = errors.New("htn: decomposition too deep")

	errBranch = errors.New("branch cannot run")
)

// Planner decomposes root tasks into plans. It only reads the blackboard.
// A Planner is not safe for concurrent use; give each agent its own.
type Planner struct {
	rng *rand.Rand
}

// NewPlanner returns a planner whose Random selectors shuffle from seed.
func NewPlanner(seed uint64) *Planner {
	return &Planner{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Plan fully decomposes root against bb.
func (p *Planner) Plan(root *Task, bb blackboard.Reader) (*Plan, error) {
	tasks, err := p.Decompose(root, bb)
	if err != nil {
		return nil, err
	}
	return newPlan(root, tasks), nil
}

// Decompose returns the ordered primitives root expands into.
func (p *Planner) Decompose(root *Task, bb blackboard.Reader) ([]*Task, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil root", ErrNoPlan)
	}
	shadow := blackboard.NewShadow(bb)
	var out []*Task
	if err := p.decompose(root, shadow, 0, &out); err != nil {
		if errors.Is(err, ErrTooDeep) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNoPlan, root.Name, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrNoPlan, root.Name)
	}
	return out, nil
}

func (p *Planner) decompose(t *Task, shadow *blackboard.Shadow, depth int, out *[]*Task) error {
	if depth > MaxDepth {
		return ErrTooDeep
	}
	if !t.PreconditionsMet(shadow) {
		return errBranch
	}

	switch t.kind {
	case KindPrimitive:
		*out = append(*out, t)
		for _, e := range t.prim.effects {
			e(shadow)
		}
		return nil

	case KindSequence:
		var b SequenceBuilder
		if t.seq.build != nil {
			t.seq.build(shadow, &b)
		}
		if b.Len() == 0 {
			return errBranch
		}
		mark := shadow.Mark()
		n := len(*out)
		for _, sub := range b.Tasks() {
			if err := p.decompose(sub, shadow, depth+1, out); err != nil {
				shadow.Rollback(mark)
				*out = (*out)[:n]
				return err
			}
		}
		return nil

	case KindSelector:
		var methods []*Task
		if t.sel.methods != nil {
			methods = t.sel.methods(shadow)
		}
		if t.sel.rule == Random {
			methods = append([]*Task(nil), methods...)
			p.rng.Shuffle(len(methods), func(i, j int) { methods[i], methods[j] = methods[j], methods[i] })
		}
		for _, m := range methods {
			if m == nil || !m.PreconditionsMet(shadow) {
				continue
			}
			mark := shadow.Mark()
			n := len(*out)
			err := p.decompose(m, shadow, depth+1, out)
			if err == nil {
				return nil
			}
			shadow.Rollback(mark)
			*out = (*out)[:n]
			if errors.Is(err, ErrTooDeep) {
				return err
			}
		}
		return errBranch

	default:
		return errBranch
	}
}

// Plan is the ordered queue of primitive steps derived from Root. It is only
// meaningful while Root is the agent's active root task.
type Plan struct {
	ID   uuid.UUID
	Root *Task

	steps []*Step
}

func newPlan(root *Task, tasks []*Task) *Plan {
	p := &Plan{ID: uuid.New(), Root: root, steps: make([]*Step, 0, len(tasks))}
	for _, t := range tasks {
		p.steps = append(p.steps, &Step{Task: t})
	}
	return p
}

// Head returns the step to tick next, or nil when the plan is exhausted.
func (p *Plan) Head() *Step {
	if p == nil || len(p.steps) == 0 {
		return nil
	}
	return p.steps[0]
}

// Pop retires the head step.
func (p *Plan) Pop() {
	if p == nil || len(p.steps) == 0 {
		return
	}
	p.steps[0] = nil
	p.steps = p.steps[1:]
}

// Abort stops the head step's operator, if one is running.
func (p *Plan) Abort() {
	if h := p.Head(); h != nil {
		h.Abort()
	}
}

func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.steps)
}

func (p *Plan) Empty() bool { return p.Len() == 0 }

// StepNames lists the remaining steps' task names.
func (p *Plan) StepNames() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.Task.Name
	}
	return out
}
