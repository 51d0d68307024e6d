// Package agent drives one NPC's decisions tick by tick.
//
// A Loop owns the agent's blackboard, planner, optional utility selector and
// running plan. Each Tick it first decides whether to (re)plan, then executes
// the head step of the plan once.
package agent

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"voxelmind.ai/internal/ai/blackboard"
	"voxelmind.ai/internal/ai/entity"
	"voxelmind.ai/internal/ai/htn"
	"voxelmind.ai/internal/ai/operator"
	"voxelmind.ai/internal/ai/telemetry"
	"voxelmind.ai/internal/ai/utility"
)

const DefaultReplanCooldown = 500 * time.Millisecond

type Config struct {
	ReplanCooldown time.Duration
	PlannerSeed    uint64
	Logger         *log.Logger
	Sink           telemetry.Sink
}

// Status summarises what a tick did.
type Status uint8

const (
	// Idle: no plan ran this tick.
	Idle Status = iota
	// Running: a step ran and the plan still has work.
	Running
	// Completed: the last step of the plan succeeded.
	Completed
	// Failed: a step failed or was unsupported and the plan was dropped.
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type Loop struct {
	id       entity.ID
	bb       *blackboard.Blackboard
	planner  *htn.Planner
	cooldown time.Duration
	logger   *log.Logger
	sink     telemetry.Sink

	goal     *htn.Task
	selector *utility.Selector

	now         time.Duration
	plan        *htn.Plan
	activeKey   string
	force       bool
	attempted   bool
	lastAttempt time.Duration
	attempts    int
}

func New(id entity.ID, bb *blackboard.Blackboard, cfg Config) *Loop {
	if cfg.ReplanCooldown <= 0 {
		cfg.ReplanCooldown = DefaultReplanCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Sink == nil {
		cfg.Sink = telemetry.Discard
	}
	return &Loop{
		id:       id,
		bb:       bb,
		planner:  htn.NewPlanner(cfg.PlannerSeed ^ uint64(id)),
		cooldown: cfg.ReplanCooldown,
		logger:   cfg.Logger,
		sink:     cfg.Sink,
		force:    true,
	}
}

func (l *Loop) ID() entity.ID                      { return l.id }
func (l *Loop) Blackboard() *blackboard.Blackboard { return l.bb }
func (l *Loop) Plan() *htn.Plan                    { return l.plan }
func (l *Loop) Now() time.Duration                 { return l.now }
func (l *Loop) RootTask() *htn.Task                { return l.goal }

// Attempts counts planning and selection attempts.
func (l *Loop) Attempts() int { return l.attempts }

// SetRootTask makes root the agent's goal. A different root is planned on
// the next tick and replaces any running plan.
func (l *Loop) SetRootTask(root *htn.Task) {
	if root == l.goal {
		return
	}
	l.goal = root
	l.force = true
}

// SetSelector switches the agent to utility selection. Every fact the
// selector's actions read must be registered.
func (l *Loop) SetSelector(s *utility.Selector) error {
	if s != nil {
		for _, e := range s.Expandables() {
			if err := l.bb.Registry().Require(e.Requires...); err != nil {
				return fmt.Errorf("action %s: %w", e.ID, err)
			}
		}
	}
	l.selector = s
	l.force = true
	return nil
}

// Tick advances the agent's clock by dt, replans if due, then executes the
// head step once.
func (l *Loop) Tick(dt time.Duration) Status {
	l.now += dt
	l.bb.SetNow(l.now)

	if l.selector != nil {
		l.reselect()
	} else {
		l.replan()
	}
	return l.execute(dt)
}

func (l *Loop) due() bool {
	return l.force || !l.attempted || l.now-l.lastAttempt >= l.cooldown
}

func (l *Loop) markAttempt() {
	l.force = false
	l.attempted = true
	l.lastAttempt = l.now
	l.attempts++
}

func (l *Loop) replan() {
	if l.goal == nil {
		if l.plan != nil {
			l.drop(AbortRootCleared)
		}
		return
	}
	if l.plan != nil && l.plan.Root == l.goal {
		return
	}
	if !l.due() {
		return
	}
	if l.plan != nil {
		l.drop(AbortReplaced)
	}
	l.markAttempt()

	plan, err := l.planner.Plan(l.goal, l.bb)
	if err != nil {
		if errors.Is(err, htn.ErrTooDeep) {
			l.logger.Printf("agent=%d plan root=%s err=%v", l.id, l.goal.Name, err)
		}
		return
	}
	l.adopt(plan, l.goal.Name, 0)
}

func (l *Loop) reselect() {
	if !l.due() {
		return
	}
	l.markAttempt()

	choice, ok := l.selector.Select(l.bb)
	if !ok {
		return
	}
	if l.plan != nil && choice.Action.Name == l.activeKey {
		return
	}
	root := choice.Action.Task(l.bb)
	if root == nil {
		l.logger.Printf("agent=%d action=%s err=no task", l.id, choice.Action.Name)
		return
	}
	plan, err := l.planner.Plan(root, l.bb)
	if err != nil {
		l.logger.Printf("agent=%d plan action=%s score=%.3f err=%v", l.id, choice.Action.Name, choice.Score, err)
		return
	}
	if l.plan != nil {
		l.drop(AbortReplaced)
	}
	l.adopt(plan, choice.Action.Name, choice.Score)
}

func (l *Loop) adopt(plan *htn.Plan, key string, score float64) {
	l.plan = plan
	l.activeKey = key
	l.logger.Printf("agent=%d plan root=%s steps=%d", l.id, key, plan.Len())
	l.emit(telemetry.Event{
		Kind:  telemetry.PlanFound,
		Root:  key,
		Steps: plan.StepNames(),
		Score: score,
	})
}

// Reasons carried in the Outcome of a PlanAborted event.
const (
	AbortReplaced    = "replaced"
	AbortRootCleared = "root_cleared"
	AbortRemoved     = "removed"
)

// drop abandons the running plan and reports it as aborted, not failed.
func (l *Loop) drop(reason string) {
	l.plan.Abort()
	l.emit(telemetry.Event{Kind: telemetry.PlanAborted, Outcome: reason})
	l.plan = nil
	l.activeKey = ""
}

func (l *Loop) execute(dt time.Duration) Status {
	step := l.plan.Head()
	if step == nil {
		return Idle
	}
	out := step.Tick(dt)
	switch out {
	case operator.Continuing:
		return Running

	case operator.Success:
		if kinds := step.Task.InvalidatedKinds(); len(kinds) > 0 {
			l.bb.Invalidate(kinds...)
		}
		l.emit(telemetry.Event{Kind: telemetry.StepCompleted, Step: step.Task.Name, Outcome: out.String()})
		l.plan.Pop()
		if !l.plan.Empty() {
			return Running
		}
		l.emit(telemetry.Event{Kind: telemetry.PlanCompleted})
		l.clear()
		return Completed

	default:
		l.logger.Printf("agent=%d step=%s outcome=%s root=%s", l.id, step.Task.Name, out, l.activeKey)
		l.emit(telemetry.Event{
			Kind:        telemetry.PlanFailed,
			Step:        step.Task.Name,
			Outcome:     out.String(),
			Unsupported: out == operator.Unsupported,
		})
		l.clear()
		l.force = true
		// Whatever the plan assumed no longer holds.
		l.bb.InvalidateAll()
		return Failed
	}
}

// clear forgets the plan and active root. The next plan still waits for the
// cooldown unless the caller forces it.
func (l *Loop) clear() {
	l.plan = nil
	l.activeKey = ""
}

func (l *Loop) emit(e telemetry.Event) {
	e.Agent = l.id
	if e.Root == "" {
		e.Root = l.activeKey
	}
	if l.plan != nil {
		e.PlanID = l.plan.ID.String()
	}
	l.sink.Emit(e.At(l.now))
}
