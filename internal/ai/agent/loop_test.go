package agent

import (
	"bytes"
	"errors"
	"log"
	"reflect"
	"strings"
	"testing"
	"time"

	bt "github.com/joeycumines/go-behaviortree"

	"voxelmind.ai/internal/ai/blackboard"
	"voxelmind.ai/internal/ai/entity"
	"voxelmind.ai/internal/ai/entity/entitytest"
	"voxelmind.ai/internal/ai/htn"
	"voxelmind.ai/internal/ai/operator"
	"voxelmind.ai/internal/ai/sensory"
	"voxelmind.ai/internal/ai/telemetry"
	"voxelmind.ai/internal/ai/utility"
)

const tick = 100 * time.Millisecond

func newLoop(t *testing.T, reg *blackboard.Registry) (*Loop, *telemetry.Recorder) {
	t.Helper()
	if reg == nil {
		reg = blackboard.NewRegistry()
	}
	rec := &telemetry.Recorder{}
	bb := blackboard.New(reg, 1, nil, nil, 0)
	return New(1, bb, Config{Sink: rec}), rec
}

func constOp(out operator.Outcome) func() operator.Operator {
	return func() operator.Operator {
		return operator.Func(func(time.Duration) operator.Outcome { return out })
	}
}

func seq(name string, tasks ...*htn.Task) *htn.Task {
	return htn.Sequence(name, func(_ blackboard.Reader, b *htn.SequenceBuilder) {
		for i := len(tasks) - 1; i >= 0; i-- {
			b.Push(tasks[i])
		}
	})
}

type trackedOp struct {
	finished *[]operator.Outcome
}

func (o *trackedOp) Execute(time.Duration) operator.Outcome { return operator.Continuing }
func (o *trackedOp) Finish(out operator.Outcome)            { *o.finished = append(*o.finished, out) }

func TestReplanCadence(t *testing.T) {
	cases := []struct {
		name string
		root *htn.Task
		want int
	}{
		{"no plan", htn.Selector("unreachable", htn.Ordered, func(blackboard.Reader) []*htn.Task { return nil }), 2},
		{"finishes at once", htn.Primitive("quick", constOp(operator.Success)), 2},
		{"keeps running", htn.Primitive("slow", constOp(operator.Continuing)), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _ := newLoop(t, nil)
			l.SetRootTask(tc.root)
			for i := 0; i < 10; i++ {
				l.Tick(tick)
			}
			if got := l.Attempts(); got != tc.want {
				t.Fatalf("attempts in 1s with 0.5s cooldown: got %d want %d", got, tc.want)
			}
		})
	}
}

func TestFailedEmptiesPlanAndReplans(t *testing.T) {
	l, rec := newLoop(t, nil)
	l.SetRootTask(seq("root",
		htn.Primitive("broken", constOp(operator.Failed)),
		htn.Primitive("never", constOp(operator.Success)),
	))

	if st := l.Tick(tick); st != Failed {
		t.Fatalf("first tick: %s", st)
	}
	if l.Plan() != nil {
		t.Fatalf("plan must be empty right after a failure")
	}
	if st := l.Tick(tick); st != Failed {
		t.Fatalf("second tick: %s", st)
	}

	events := rec.Events()
	kinds := rec.Kinds()
	want := []telemetry.Kind{telemetry.PlanFound, telemetry.PlanFailed, telemetry.PlanFound, telemetry.PlanFailed}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("events: %v", kinds)
	}
	if events[0].PlanID == "" || events[0].PlanID == events[2].PlanID {
		t.Fatalf("replan should produce a fresh plan: %q %q", events[0].PlanID, events[2].PlanID)
	}
	if events[1].Step != "broken" || events[1].Unsupported {
		t.Fatalf("failure event: %+v", events[1])
	}
}

func TestUnsupportedIsReportedDistinctly(t *testing.T) {
	l, rec := newLoop(t, nil)
	l.SetRootTask(seq("chat", htn.Primitive("talk", nil)))
	if st := l.Tick(tick); st != Failed {
		t.Fatalf("got %s", st)
	}
	ev := rec.Events()[1]
	if ev.Kind != telemetry.PlanFailed || !ev.Unsupported || ev.Outcome != operator.Unsupported.String() {
		t.Fatalf("event: %+v", ev)
	}
}

func TestSuccessAdvancesAndInvalidates(t *testing.T) {
	reg := blackboard.NewRegistry()
	counter := blackboard.NewKey[int](1, "Counter")
	n := 0
	if err := blackboard.Register(reg, counter, func(blackboard.Context) int {
		n++
		return n
	}); err != nil {
		t.Fatal(err)
	}
	l, rec := newLoop(t, reg)
	root := seq("root",
		htn.Primitive("one", constOp(operator.Success), htn.Invalidates(counter.Kind())),
		htn.Primitive("two", constOp(operator.Success)),
	)
	l.SetRootTask(root)

	if got := blackboard.Get(l.Blackboard(), counter); got != 1 {
		t.Fatalf("first read: %d", got)
	}
	if st := l.Tick(tick); st != Running {
		t.Fatalf("first tick: %s", st)
	}
	if got := blackboard.Get(l.Blackboard(), counter); got != 2 {
		t.Fatalf("success should invalidate the declared fact, got %d", got)
	}
	if got := l.Plan().StepNames(); !reflect.DeepEqual(got, []string{"two"}) {
		t.Fatalf("remaining: %v", got)
	}
	if st := l.Tick(tick); st != Completed {
		t.Fatalf("second tick: %s", st)
	}
	want := []telemetry.Kind{telemetry.PlanFound, telemetry.StepCompleted, telemetry.StepCompleted, telemetry.PlanCompleted}
	if got := rec.Kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events: %v", got)
	}
	found := rec.Events()[0]
	if found.Root != "root" || !reflect.DeepEqual(found.Steps, []string{"one", "two"}) || found.Agent != 1 {
		t.Fatalf("plan found: %+v", found)
	}
}

func TestContinuingKeepsHead(t *testing.T) {
	l, _ := newLoop(t, nil)
	l.SetRootTask(seq("root", htn.Primitive("wait", func() operator.Operator {
		return &operator.Wait{Duration: time.Second}
	})))
	for i := 0; i < 9; i++ {
		if st := l.Tick(tick); st != Running {
			t.Fatalf("tick %d: %s", i, st)
		}
	}
	if st := l.Tick(tick); st != Completed {
		t.Fatalf("final tick: %s", st)
	}
	if l.Attempts() != 1 {
		t.Fatalf("running plan must not be replanned, attempts=%d", l.Attempts())
	}
}

func TestRootChangeReplacesPlan(t *testing.T) {
	var finished []operator.Outcome
	l, _ := newLoop(t, nil)
	a := seq("a", htn.Primitive("hold", func() operator.Operator { return &trackedOp{finished: &finished} }))
	b := seq("b", htn.Primitive("other", constOp(operator.Continuing)))

	l.SetRootTask(a)
	l.Tick(tick)
	l.SetRootTask(b)
	l.Tick(tick)

	if l.Plan() == nil || l.Plan().Root != b {
		t.Fatalf("plan should follow the new root")
	}
	if !reflect.DeepEqual(finished, []operator.Outcome{operator.Failed}) {
		t.Fatalf("replaced operator should be finished once: %v", finished)
	}
}

func TestUtilityWinnerReplacesPlanOnCooldown(t *testing.T) {
	var finished []operator.Outcome
	scoreA, scoreB := 0.9, 0.1
	mk := func(id string, score *float64, op func() operator.Operator) *utility.Expandable {
		return &utility.Expandable{
			ID:    id,
			Bonus: 1,
			Considerations: []utility.Consideration{
				{Name: id, Input: func(utility.Context) float64 { return *score }},
			},
			Expand: func(utility.Context) *htn.Task { return seq(id, htn.Primitive(id+"-op", op)) },
		}
	}
	l, rec := newLoop(t, nil)
	err := l.SetSelector(utility.NewSelector(
		mk("a", &scoreA, func() operator.Operator { return &trackedOp{finished: &finished} }),
		mk("b", &scoreB, constOp(operator.Continuing)),
	))
	if err != nil {
		t.Fatalf("selector: %v", err)
	}

	l.Tick(tick)
	if got := rec.Events()[0]; got.Root != "a" || got.Score != 0.9 {
		t.Fatalf("first choice: %+v", got)
	}

	scoreA, scoreB = 0.1, 0.9
	for i := 0; i < 3; i++ {
		l.Tick(tick)
	}
	if l.Plan().Root.Name != "a" {
		t.Fatalf("selection must wait for the cooldown")
	}
	l.Tick(tick)
	l.Tick(tick)
	if l.Plan().Root.Name != "b" {
		t.Fatalf("higher scoring action should replace the plan, got %s", l.Plan().Root.Name)
	}
	if len(finished) != 1 {
		t.Fatalf("replaced operator not finished: %v", finished)
	}

	events := rec.Events()
	want := []telemetry.Kind{telemetry.PlanFound, telemetry.PlanAborted, telemetry.PlanFound}
	if got := rec.Kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events: %v", got)
	}
	aborted := events[1]
	if aborted.PlanID != events[0].PlanID || aborted.Root != "a" || aborted.Outcome != AbortReplaced {
		t.Fatalf("aborted event: %+v", aborted)
	}
	if events[2].PlanID == aborted.PlanID || events[2].Root != "b" {
		t.Fatalf("replacement: %+v", events[2])
	}
}

func TestDroppedPlansAreReported(t *testing.T) {
	l, rec := newLoop(t, nil)
	a := seq("a", htn.Primitive("hold", constOp(operator.Continuing)))
	b := seq("b", htn.Primitive("hold", constOp(operator.Continuing)))

	l.SetRootTask(a)
	l.Tick(tick)
	l.SetRootTask(b)
	l.Tick(tick)
	l.SetRootTask(nil)
	l.Tick(tick)

	events := rec.Events()
	want := []telemetry.Kind{telemetry.PlanFound, telemetry.PlanAborted, telemetry.PlanFound, telemetry.PlanAborted}
	if got := rec.Kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events: %v", got)
	}
	if events[1].Root != "a" || events[1].Outcome != AbortReplaced || events[1].PlanID != events[0].PlanID {
		t.Fatalf("root change: %+v", events[1])
	}
	if events[3].Root != "b" || events[3].Outcome != AbortRootCleared || events[3].PlanID != events[2].PlanID {
		t.Fatalf("root cleared: %+v", events[3])
	}
	if l.Plan() != nil {
		t.Fatalf("plan should be gone")
	}
}

func TestUnplannableWinnerIsLogged(t *testing.T) {
	cases := []struct {
		name   string
		action *utility.Expandable
		want   string
	}{
		{"no task", &utility.Expandable{ID: "empty", Bonus: 1}, "agent=1 action=empty err=no task"},
		{"no plan", &utility.Expandable{ID: "dead_end", Bonus: 1, Expand: func(utility.Context) *htn.Task {
			return htn.Selector("dead_end", htn.Ordered, func(blackboard.Reader) []*htn.Task { return nil })
		}}, "agent=1 plan action=dead_end score=1.000 err="},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			bb := blackboard.New(blackboard.NewRegistry(), 1, nil, nil, 0)
			l := New(1, bb, Config{Logger: log.New(&buf, "", 0)})
			if err := l.SetSelector(utility.NewSelector(tc.action)); err != nil {
				t.Fatalf("selector: %v", err)
			}
			l.Tick(tick)
			if got := buf.String(); !strings.Contains(got, tc.want) {
				t.Fatalf("log %q does not contain %q", got, tc.want)
			}
			if l.Plan() != nil {
				t.Fatalf("no plan expected")
			}
		})
	}
}

func TestSetSelectorRequiresFacts(t *testing.T) {
	l, _ := newLoop(t, nil)
	err := l.SetSelector(utility.NewSelector(&utility.Expandable{ID: "x", Requires: []blackboard.Kind{7}}))
	if !errors.Is(err, blackboard.ErrUnregistered) {
		t.Fatalf("got %v", err)
	}
}

func TestNode(t *testing.T) {
	l, _ := newLoop(t, nil)
	l.SetRootTask(seq("root",
		htn.Primitive("one", constOp(operator.Success)),
		htn.Primitive("two", constOp(operator.Success)),
	))
	node := l.Node(tick)
	if st, err := node.Tick(); err != nil || st != bt.Running {
		t.Fatalf("first: %v %v", st, err)
	}
	if st, err := node.Tick(); err != nil || st != bt.Success {
		t.Fatalf("second: %v %v", st, err)
	}

	idle, _ := newLoop(t, nil)
	fallback := bt.New(bt.Selector, idle.Node(tick), bt.New(func([]bt.Node) (bt.Status, error) { return bt.Success, nil }))
	if st, err := fallback.Tick(); err != nil || st != bt.Success {
		t.Fatalf("idle agent should fall through: %v %v", st, err)
	}
}

func TestManager(t *testing.T) {
	world := entitytest.New()
	var ids []entity.ID
	for i := 0; i < 4; i++ {
		ids = append(ids, world.Spawn(entity.Coordinates{X: float64(i)}, "agent"))
	}
	sensors := sensory.New(world, 0)
	m := NewManager(world, sensors, blackboard.NewRegistry(), ManagerConfig{Workers: 3})

	wait := func(l *Loop) error {
		l.SetRootTask(seq("wait", htn.Primitive("wait", func() operator.Operator {
			return &operator.Wait{Duration: time.Hour}
		})))
		return nil
	}
	for _, i := range []int{2, 0, 3, 1} {
		if _, err := m.Add(ids[i], wait); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if !reflect.DeepEqual(m.IDs(), ids) {
		t.Fatalf("order: %v want %v", m.IDs(), ids)
	}
	if _, err := m.Add(ids[0]); err == nil {
		t.Fatalf("duplicate add should fail")
	}
	if _, err := m.Add(0); err == nil {
		t.Fatalf("invalid id should fail")
	}
	boom := errors.New("boom")
	extra := world.Spawn(entity.Coordinates{}, "agent")
	if _, err := m.Add(extra, func(*Loop) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("setup error: %v", err)
	}
	if _, ok := m.Loop(extra); ok {
		t.Fatalf("failed setup must not register")
	}

	for i := 0; i < 5; i++ {
		for j, st := range m.Tick(tick) {
			if st != Running {
				t.Fatalf("agent %d: %s", m.IDs()[j], st)
			}
		}
	}

	q := sensory.Query{Agent: ids[1], Capability: "agent"}
	sensors.Nearest(q, 0)
	before := sensors.Scans()
	if !m.Remove(ids[1]) || m.Len() != 3 {
		t.Fatalf("remove failed")
	}
	sensors.Nearest(q, 0)
	if sensors.Scans() != before+1 {
		t.Fatalf("removing an agent should forget its sensory entries")
	}
	if m.Remove(ids[1]) {
		t.Fatalf("second remove should report false")
	}
}

func TestManagerFallback(t *testing.T) {
	world := entitytest.New()
	busy := world.Spawn(entity.Coordinates{}, "agent")
	idle := world.Spawn(entity.Coordinates{X: 1}, "agent")
	fallbacks := map[entity.ID]int{}
	m := NewManager(world, sensory.New(world, 0), blackboard.NewRegistry(), ManagerConfig{
		Fallback: func(l *Loop) bt.Node {
			return bt.New(func([]bt.Node) (bt.Status, error) {
				fallbacks[l.ID()]++
				return bt.Success, nil
			})
		},
	})
	if _, err := m.Add(busy, func(l *Loop) error {
		l.SetRootTask(seq("wait", htn.Primitive("wait", constOp(operator.Continuing))))
		return nil
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.Add(idle); err != nil {
		t.Fatalf("add: %v", err)
	}

	for i := 0; i < 3; i++ {
		if got := m.Tick(tick); !reflect.DeepEqual(got, []Status{Running, Idle}) {
			t.Fatalf("tick %d: %v", i, got)
		}
	}
	if fallbacks[busy] != 0 || fallbacks[idle] != 3 {
		t.Fatalf("fallbacks: %v", fallbacks)
	}
}
