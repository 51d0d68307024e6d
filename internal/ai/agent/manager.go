package agent

import (
	"fmt"
	"slices"
	"sync"
	"time"

	bt "github.com/joeycumines/go-behaviortree"

	"voxelmind.ai/internal/ai/blackboard"
	"voxelmind.ai/internal/ai/entity"
	"voxelmind.ai/internal/ai/sensory"
)

type ManagerConfig struct {
	Loop          Config
	BlackboardTTL time.Duration
	// Workers > 1 ticks agents in parallel. The world and sinks must then be
	// safe for concurrent use.
	Workers int
	// Fallback, when set, runs for an agent whose tick was idle or failed.
	// Each agent is ticked as bt.Selector(loop, Fallback(loop)).
	Fallback func(*Loop) bt.Node
}

// Manager owns every agent's loop and ticks them in ascending id order.
type Manager struct {
	world   entity.Query
	sensors *sensory.Cache
	reg     *blackboard.Registry
	cfg     ManagerConfig

	agents map[entity.ID]*Loop
	order  []entity.ID
}

func NewManager(world entity.Query, sensors *sensory.Cache, reg *blackboard.Registry, cfg ManagerConfig) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Manager{
		world:   world,
		sensors: sensors,
		reg:     reg,
		cfg:     cfg,
		agents:  map[entity.ID]*Loop{},
	}
}

// Add builds a loop for id and runs each setup on it. The agent is only
// registered if every setup succeeds.
func (m *Manager) Add(id entity.ID, setup ...func(*Loop) error) (*Loop, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("agent: invalid id")
	}
	if _, ok := m.agents[id]; ok {
		return nil, fmt.Errorf("agent %d: already registered", id)
	}
	bb := blackboard.New(m.reg, id, m.world, m.sensors, m.cfg.BlackboardTTL)
	l := New(id, bb, m.cfg.Loop)
	for _, fn := range setup {
		if err := fn(l); err != nil {
			return nil, fmt.Errorf("agent %d: %w", id, err)
		}
	}
	m.agents[id] = l
	i, _ := slices.BinarySearch(m.order, id)
	m.order = slices.Insert(m.order, i, id)
	return l, nil
}

// Remove stops the agent's plan and drops its sensory cache entries.
func (m *Manager) Remove(id entity.ID) bool {
	l, ok := m.agents[id]
	if !ok {
		return false
	}
	if l.plan != nil {
		l.drop(AbortRemoved)
	}
	delete(m.agents, id)
	if i, found := slices.BinarySearch(m.order, id); found {
		m.order = slices.Delete(m.order, i, i+1)
	}
	if m.sensors != nil {
		m.sensors.Forget(id)
	}
	return true
}

func (m *Manager) Loop(id entity.ID) (*Loop, bool) {
	l, ok := m.agents[id]
	return l, ok
}

func (m *Manager) IDs() []entity.ID { return slices.Clone(m.order) }

func (m *Manager) Len() int { return len(m.order) }

// Tick ticks every agent once. The returned statuses line up with IDs().
func (m *Manager) Tick(dt time.Duration) []Status {
	out := make([]Status, len(m.order))
	if m.cfg.Workers <= 1 || len(m.order) < 2 {
		for i, id := range m.order {
			out[i] = m.tickOne(m.agents[id], dt)
		}
		return out
	}

	jobs := make(chan int, len(m.order))
	for i := range m.order {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < min(m.cfg.Workers, len(m.order)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = m.tickOne(m.agents[m.order[i]], dt)
			}
		}()
	}
	wg.Wait()
	return out
}

func (m *Manager) tickOne(l *Loop, dt time.Duration) Status {
	if m.cfg.Fallback == nil {
		return l.Tick(dt)
	}
	return tree(l, dt, m.cfg.Fallback)
}
