package telemetry

import (
	"testing"
	"time"
)

func TestFanoutDeliversInOrder(t *testing.T) {
	var a, b Recorder
	var calls []string
	f := Fanout{&a, nil, SinkFunc(func(Event) { calls = append(calls, "func") }), &b, Discard}

	f.Emit(Event{Kind: PlanFound, Agent: 3, Root: "survive"}.At(1500 * time.Millisecond))
	f.Emit(Event{Kind: PlanCompleted, Agent: 3})

	if got := a.Kinds(); len(got) != 2 || got[0] != PlanFound || got[1] != PlanCompleted {
		t.Fatalf("a: %v", got)
	}
	if got := b.Events(); len(got) != 2 || got[0].AtMS != 1500 {
		t.Fatalf("b: %+v", got)
	}
	if len(calls) != 2 {
		t.Fatalf("func sink calls: %v", calls)
	}
	a.Reset()
	if len(a.Events()) != 0 {
		t.Fatalf("reset kept events")
	}
}
