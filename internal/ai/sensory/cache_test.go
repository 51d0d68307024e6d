package sensory

import (
	"sync"
	"testing"
	"time"

	"voxelmind.ai/internal/ai/entity"
	"voxelmind.ai/internal/ai/entity/entitytest"
)

const capFood entity.Capability = "food"

func at(x, y float64) entity.Coordinates { return entity.Coordinates{MapID: "m1", X: x, Y: y} }

func TestNearest_SortsByDistanceAndFiltersRange(t *testing.T) {
	w := entitytest.New()
	agent := w.Spawn(at(0, 0))
	far := w.Spawn(at(9, 0), capFood)
	near := w.Spawn(at(1, 1), capFood)
	out := w.Spawn(at(30, 0), capFood)
	other := w.Spawn(entity.Coordinates{MapID: "m2", X: 1}, capFood)
	_, _ = out, other

	c := New(w, 0)
	got := c.NearestList(Query{Agent: agent, Capability: capFood, MaxRange: 10}, 0)
	if len(got) != 2 || got[0] != near || got[1] != far {
		t.Fatalf("nearest: got %v want [%d %d]", got, near, far)
	}
	if c.TTL() != DefaultTTL {
		t.Fatalf("default ttl: got %v", c.TTL())
	}
}

func TestNearest_StableWithinTTLThenRefreshes(t *testing.T) {
	w := entitytest.New()
	agent := w.Spawn(at(0, 0))
	a := w.Spawn(at(2, 0), capFood)
	b := w.Spawn(at(5, 0), capFood)

	c := New(w, 2*time.Second)
	q := Query{Agent: agent, Capability: capFood, MaxRange: 20}

	first := c.NearestList(q, 0)
	if first[0] != a || first[1] != b {
		t.Fatalf("first read: %v", first)
	}

	// b moves closer than a; a read inside the TTL window keeps the old order.
	w.Move(b, at(1, 0))
	second := c.NearestList(q, 1900*time.Millisecond)
	if second[0] != a || second[1] != b {
		t.Fatalf("within ttl order changed: %v", second)
	}
	if c.Scans() != 1 {
		t.Fatalf("scans within ttl: got %d want 1", c.Scans())
	}

	third := c.NearestList(q, 2*time.Second)
	if third[0] != b || third[1] != a {
		t.Fatalf("after ttl order not refreshed: %v", third)
	}
	if c.Scans() != 2 {
		t.Fatalf("scans after ttl: got %d want 2", c.Scans())
	}
}

func TestNearest_DropsDeletedEntitiesLazily(t *testing.T) {
	w := entitytest.New()
	agent := w.Spawn(at(0, 0))
	a := w.Spawn(at(1, 0), capFood)
	b := w.Spawn(at(2, 0), capFood)
	d := w.Spawn(at(3, 0), capFood)

	c := New(w, time.Second)
	q := Query{Agent: agent, Capability: capFood}
	_ = c.NearestList(q, 0)

	w.Delete(b)
	got := c.NearestList(q, 10*time.Millisecond)
	if len(got) != 2 || got[0] != a || got[1] != d {
		t.Fatalf("after delete: %v", got)
	}
	if c.Scans() != 1 {
		t.Fatalf("deletion must not force a rescan, scans=%d", c.Scans())
	}
}

func TestNearest_ExcludeContained(t *testing.T) {
	w := entitytest.New()
	agent := w.Spawn(at(0, 0))
	bag := w.Spawn(at(4, 0))
	loose := w.Spawn(at(3, 0), capFood)
	bagged := w.Spawn(at(4, 0), capFood)
	w.Contain(bagged, bag)

	c := New(w, time.Second)
	all := c.NearestList(Query{Agent: agent, Capability: capFood}, 0)
	if len(all) != 2 {
		t.Fatalf("all: %v", all)
	}
	free := c.NearestList(Query{Agent: agent, Capability: capFood, ExcludeContained: true}, 0)
	if len(free) != 1 || free[0] != loose {
		t.Fatalf("exclude contained: %v", free)
	}
}

func TestNearest_RangeChangeIsAMiss(t *testing.T) {
	w := entitytest.New()
	agent := w.Spawn(at(0, 0))
	w.Spawn(at(5, 0), capFood)

	c := New(w, time.Second)
	if got := c.NearestList(Query{Agent: agent, Capability: capFood, MaxRange: 1}, 0); len(got) != 0 {
		t.Fatalf("range 1: %v", got)
	}
	if got := c.NearestList(Query{Agent: agent, Capability: capFood, MaxRange: 10}, 0); len(got) != 1 {
		t.Fatalf("range 10: %v", got)
	}
}

func TestForget_DropsAgentEntries(t *testing.T) {
	w := entitytest.New()
	agent := w.Spawn(at(0, 0))
	w.Spawn(at(1, 0), capFood)

	c := New(w, time.Minute)
	q := Query{Agent: agent, Capability: capFood}
	_ = c.NearestList(q, 0)
	c.Forget(agent)
	_ = c.NearestList(q, 0)
	if c.Scans() != 2 {
		t.Fatalf("forget should force rescan, scans=%d", c.Scans())
	}
}

func TestNearest_ConcurrentAgents(t *testing.T) {
	w := entitytest.New()
	var agents []entity.ID
	for i := 0; i < 16; i++ {
		agents = append(agents, w.Spawn(at(float64(i), 0)))
	}
	for i := 0; i < 8; i++ {
		w.Spawn(at(float64(i), 1), capFood)
	}

	c := New(w, time.Second)
	var wg sync.WaitGroup
	for _, a := range agents {
		wg.Add(1)
		go func(a entity.ID) {
			defer wg.Done()
			for step := 0; step < 20; step++ {
				got := c.NearestList(Query{Agent: a, Capability: capFood}, time.Duration(step)*100*time.Millisecond)
				if len(got) != 8 {
					t.Errorf("agent %d: got %d entities", a, len(got))
					return
				}
			}
		}(a)
	}
	wg.Wait()
}
