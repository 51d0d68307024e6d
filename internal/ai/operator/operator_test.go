package operator

import (
	"errors"
	"testing"
	"time"

	"voxelmind.ai/internal/ai/entity"
	"voxelmind.ai/internal/ai/entity/entitytest"
)

type fakeActuator struct {
	steer     []SteerStatus
	stopped   int
	pickupErr error
	useErr    error
	picked    []entity.ID
	used      []entity.ID
}

func (f *fakeActuator) Steer(entity.ID, entity.Coordinates, float64, time.Duration) SteerStatus {
	if len(f.steer) == 0 {
		return SteerMoving
	}
	s := f.steer[0]
	f.steer = f.steer[1:]
	return s
}

func (f *fakeActuator) StopSteering(entity.ID) { f.stopped++ }

func (f *fakeActuator) Pickup(_, item entity.ID) error {
	if f.pickupErr != nil {
		return f.pickupErr
	}
	f.picked = append(f.picked, item)
	return nil
}

func (f *fakeActuator) UseHeld(_, item entity.ID) error {
	if f.useErr != nil {
		return f.useErr
	}
	f.used = append(f.used, item)
	return nil
}

func TestOutcome_Terminal(t *testing.T) {
	cases := map[Outcome]bool{Continuing: false, Success: true, Failed: true, Unsupported: true}
	for o, want := range cases {
		if o.Terminal() != want {
			t.Fatalf("%s terminal=%v", o, o.Terminal())
		}
	}
	if Outcome(99).String() != "unknown" {
		t.Fatalf("unknown outcome string")
	}
}

func TestNotImplemented_ReportsUnsupported(t *testing.T) {
	op := NotImplemented("dance")
	if got := op.Execute(time.Second); got != Unsupported {
		t.Fatalf("got %s", got)
	}
	var nilFunc Func
	if got := nilFunc.Execute(0); got != Unsupported {
		t.Fatalf("nil func: got %s", got)
	}
}

func TestWait(t *testing.T) {
	w := &Wait{Duration: 300 * time.Millisecond}
	w.Start()
	for i := 0; i < 2; i++ {
		if got := w.Execute(100 * time.Millisecond); got != Continuing {
			t.Fatalf("step %d: %s", i, got)
		}
	}
	if got := w.Execute(100 * time.Millisecond); got != Success {
		t.Fatalf("final: %s", got)
	}
}

func TestMoveTo(t *testing.T) {
	w := entitytest.New()
	agent := w.Spawn(entity.Coordinates{MapID: "m"})
	target := w.Spawn(entity.Coordinates{MapID: "m", X: 3})

	act := &fakeActuator{steer: []SteerStatus{SteerMoving, SteerArrived}}
	m := &MoveTo{Agent: agent, Target: target, Range: 1, World: w, Act: act}
	m.Start()
	if got := m.Execute(time.Second); got != Continuing {
		t.Fatalf("first: %s", got)
	}
	if got := m.Execute(time.Second); got != Success {
		t.Fatalf("second: %s", got)
	}
	m.Finish(Success)
	if act.stopped != 1 {
		t.Fatalf("finish should stop steering")
	}

	blocked := &MoveTo{Agent: agent, Target: target, World: w, Act: &fakeActuator{steer: []SteerStatus{SteerBlocked}}}
	if got := blocked.Execute(time.Second); got != Failed {
		t.Fatalf("blocked: %s", got)
	}

	slow := &MoveTo{Agent: agent, Target: target, Timeout: 1500 * time.Millisecond, World: w, Act: &fakeActuator{}}
	slow.Start()
	if got := slow.Execute(time.Second); got != Continuing {
		t.Fatalf("slow first: %s", got)
	}
	if got := slow.Execute(time.Second); got != Failed {
		t.Fatalf("timeout: %s", got)
	}

	w.Delete(target)
	gone := &MoveTo{Agent: agent, Target: target, World: w, Act: &fakeActuator{}}
	if got := gone.Execute(time.Second); got != Failed {
		t.Fatalf("missing target: %s", got)
	}
}

func TestPickupAndUse(t *testing.T) {
	w := entitytest.New()
	agent := w.Spawn(entity.Coordinates{MapID: "m"})
	item := w.Spawn(entity.Coordinates{MapID: "m"})
	other := w.Spawn(entity.Coordinates{MapID: "m"})

	act := &fakeActuator{}
	if got := (&Pickup{Agent: agent, Item: item, World: w, Act: act}).Execute(0); got != Success {
		t.Fatalf("pickup: %s", got)
	}
	if got := (&UseHeld{Agent: agent, Item: item, World: w, Act: act}).Execute(0); got != Success {
		t.Fatalf("use: %s", got)
	}
	if len(act.picked) != 1 || len(act.used) != 1 {
		t.Fatalf("actuator calls: %+v", act)
	}

	// Someone else already holds it.
	w.Contain(item, other)
	if got := (&Pickup{Agent: agent, Item: item, World: w, Act: act}).Execute(0); got != Failed {
		t.Fatalf("contained pickup: %s", got)
	}

	refusing := &fakeActuator{pickupErr: errors.New("hands full"), useErr: errors.New("not held")}
	w.Contain(item, 0)
	if got := (&Pickup{Agent: agent, Item: item, World: w, Act: refusing}).Execute(0); got != Failed {
		t.Fatalf("refused pickup: %s", got)
	}
	if got := (&UseHeld{Agent: agent, Item: item, World: w, Act: refusing}).Execute(0); got != Failed {
		t.Fatalf("refused use: %s", got)
	}
}
