package operator

import (
	"time"

	"voxelmind.ai/internal/ai/entity"
)

type SteerStatus uint8

const (
	SteerMoving SteerStatus = iota
	SteerArrived
	// SteerBlocked means no step toward the target exists right now.
	SteerBlocked
)

// Actuator is the world-mutating side of the host. Movement integration,
// inventories and item use all live behind it.
type Actuator interface {
	// Steer advances agent toward target for dt and reports progress.
	Steer(agent entity.ID, target entity.Coordinates, arriveRange float64, dt time.Duration) SteerStatus
	StopSteering(agent entity.ID)
	Pickup(agent, item entity.ID) error
	UseHeld(agent, item entity.ID) error
}

// MoveTo follows Target until the agent is within Range of it. It fails when
// the target disappears, the path is blocked, or Timeout (when set) elapses.
type MoveTo struct {
	Agent   entity.ID
	Target  entity.ID
	Range   float64
	Timeout time.Duration

	World entity.Query
	Act   Actuator

	elapsed time.Duration
}

func (m *MoveTo) Start() { m.elapsed = 0 }

func (m *MoveTo) Execute(dt time.Duration) Outcome {
	if !m.World.Exists(m.Target) {
		return Failed
	}
	dest, ok := m.World.Coordinates(m.Target)
	if !ok {
		return Failed
	}
	m.elapsed += dt
	if m.Timeout > 0 && m.elapsed > m.Timeout {
		return Failed
	}
	switch m.Act.Steer(m.Agent, dest, m.Range, dt) {
	case SteerArrived:
		return Success
	case SteerBlocked:
		return Failed
	default:
		return Continuing
	}
}

func (m *MoveTo) Finish(Outcome) { m.Act.StopSteering(m.Agent) }

// Pickup moves Item into one of the agent's hands. Another agent grabbing it
// first is an ordinary failure.
type Pickup struct {
	Agent entity.ID
	Item  entity.ID

	World entity.Query
	Act   Actuator
}

func (p *Pickup) Execute(time.Duration) Outcome {
	if !p.World.Exists(p.Item) || p.World.InContainer(p.Item) {
		return Failed
	}
	if err := p.Act.Pickup(p.Agent, p.Item); err != nil {
		return Failed
	}
	return Success
}

// UseHeld uses an item the agent is holding (eats it, drinks it, ...).
type UseHeld struct {
	Agent entity.ID
	Item  entity.ID

	World entity.Query
	Act   Actuator
}

func (u *UseHeld) Execute(time.Duration) Outcome {
	if !u.World.Exists(u.Item) {
		return Failed
	}
	if err := u.Act.UseHeld(u.Agent, u.Item); err != nil {
		return Failed
	}
	return Success
}
