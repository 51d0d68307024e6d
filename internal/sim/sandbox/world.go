// Package sandbox is a small grid world for running agents outside a game:
// walls, loose food, and hungry agents with hands.
package sandbox

import (
	"errors"
	"math"
	"slices"
	"sync"
	"time"

	"voxelmind.ai/internal/ai/behaviors"
	"voxelmind.ai/internal/ai/entity"
	"voxelmind.ai/internal/ai/operator"
)

var (
	ErrNoSuchEntity = errors.New("sandbox: no such entity")
	ErrOutOfReach   = errors.New("sandbox: out of reach")
	ErrHandsFull    = errors.New("sandbox: hands full")
	ErrAlreadyHeld  = errors.New("sandbox: already held")
	ErrNotHeld      = errors.New("sandbox: not held")
	ErrNotUsable    = errors.New("sandbox: not usable")
)

type Config struct {
	Width  int
	Height int
	MapID  string
	// Speed is in cells per second.
	Speed float64
	// HungerEvery is how often every agent loses one point of satiety.
	HungerEvery time.Duration
	DetourDepth int
	// Reach is how close an agent must be to pick something up.
	Reach float64
}

func DefaultConfig() Config {
	return Config{
		Width:       32,
		Height:      32,
		MapID:       "sandbox",
		Speed:       4,
		HungerEvery: 5 * time.Second,
		DetourDepth: 16,
		Reach:       1.5,
	}
}

type thing struct {
	id     entity.ID
	cell   Cell
	caps   map[entity.Capability]any
	holder entity.ID

	// movement
	progress float64
}

// World implements entity.Query and operator.Actuator. It is safe for
// concurrent use.
type World struct {
	cfg Config

	mu        sync.RWMutex
	nextID    entity.ID
	things    map[entity.ID]*thing
	walls     map[Cell]bool
	hungerAcc time.Duration
}

var (
	_ entity.Query      = (*World)(nil)
	_ operator.Actuator = (*World)(nil)
)

func New(cfg Config) *World {
	def := DefaultConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.MapID == "" {
		cfg.MapID = def.MapID
	}
	if cfg.Speed <= 0 {
		cfg.Speed = def.Speed
	}
	if cfg.DetourDepth <= 0 {
		cfg.DetourDepth = def.DetourDepth
	}
	if cfg.Reach <= 0 {
		cfg.Reach = def.Reach
	}
	return &World{
		cfg:    cfg,
		things: map[entity.ID]*thing{},
		walls:  map[Cell]bool{},
	}
}

func (w *World) Config() Config { return w.cfg }

func (w *World) AddWall(c Cell) {
	w.mu.Lock()
	w.walls[c] = true
	w.mu.Unlock()
}

func (w *World) spawnLocked(c Cell, caps map[entity.Capability]any) entity.ID {
	w.nextID++
	w.things[w.nextID] = &thing{id: w.nextID, cell: c, caps: caps}
	return w.nextID
}

// SpawnAgent places an agent with the given number of hands and hunger state.
func (w *World) SpawnAgent(c Cell, hands int, hunger behaviors.Hunger) entity.ID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spawnLocked(c, map[entity.Capability]any{
		behaviors.CapAgent:  nil,
		behaviors.CapHands:  behaviors.Hands{Count: hands},
		behaviors.CapHunger: hunger,
	})
}

func (w *World) SpawnFood(c Cell, nutrition int) entity.ID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spawnLocked(c, map[entity.Capability]any{
		behaviors.CapFood: behaviors.Food{Nutrition: nutrition},
	})
}

func (w *World) Remove(id entity.ID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(id)
}

func (w *World) removeLocked(id entity.ID) {
	t, ok := w.things[id]
	if !ok {
		return
	}
	if t.holder.Valid() {
		if h, ok := w.things[t.holder]; ok {
			hands, _ := h.caps[behaviors.CapHands].(behaviors.Hands)
			hands.Held = slices.DeleteFunc(slices.Clone(hands.Held), func(x entity.ID) bool { return x == id })
			h.caps[behaviors.CapHands] = hands
		}
	}
	delete(w.things, id)
}

// Step advances world time: satiety drops by one every HungerEvery.
func (w *World) Step(dt time.Duration) {
	if w.cfg.HungerEvery <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hungerAcc += dt
	for w.hungerAcc >= w.cfg.HungerEvery {
		w.hungerAcc -= w.cfg.HungerEvery
		for _, t := range w.things {
			h, ok := t.caps[behaviors.CapHunger].(behaviors.Hunger)
			if !ok || h.Satiety <= 0 {
				continue
			}
			h.Satiety--
			t.caps[behaviors.CapHunger] = h
		}
	}
}

// SetHunger overwrites an agent's hunger state.
func (w *World) SetHunger(id entity.ID, h behaviors.Hunger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.things[id]; ok {
		t.caps[behaviors.CapHunger] = h
	}
}

func (w *World) Cell(id entity.ID) (Cell, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.things[id]
	if !ok {
		return Cell{}, false
	}
	return w.cellLocked(t), true
}

func (w *World) cellLocked(t *thing) Cell {
	if t.holder.Valid() {
		if h, ok := w.things[t.holder]; ok {
			return h.cell
		}
	}
	return t.cell
}

func (w *World) inBounds(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < w.cfg.Width && c.Y < w.cfg.Height
}

func (w *World) passableLocked(c Cell) bool {
	return w.inBounds(c) && !w.walls[c]
}

func (w *World) coords(c Cell) entity.Coordinates {
	return entity.Coordinates{MapID: w.cfg.MapID, X: float64(c.X), Y: float64(c.Y)}
}

// Query surface.

func (w *World) Exists(id entity.ID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.things[id]
	return ok
}

func (w *World) HasCapability(id entity.ID, c entity.Capability) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.things[id]
	if !ok {
		return false
	}
	_, ok = t.caps[c]
	return ok
}

func (w *World) Component(id entity.ID, c entity.Capability) (any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.things[id]
	if !ok {
		return nil, false
	}
	v, ok := t.caps[c]
	if hands, isHands := v.(behaviors.Hands); isHands {
		hands.Held = slices.Clone(hands.Held)
		return hands, ok
	}
	return v, ok
}

func (w *World) Coordinates(id entity.ID) (entity.Coordinates, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.things[id]
	if !ok {
		return entity.Coordinates{}, false
	}
	return w.coords(w.cellLocked(t)), true
}

func (w *World) AllWithCapability(c entity.Capability) []entity.ID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []entity.ID
	for id, t := range w.things {
		if _, ok := t.caps[c]; ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (w *World) InContainer(id entity.ID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.things[id]
	return ok && t.holder.Valid()
}

// Actuator surface.

// Steer moves agent cell by cell toward target. Each step goes along the
// longer axis, or around the obstacle when that cell is blocked.
func (w *World) Steer(agent entity.ID, target entity.Coordinates, arriveRange float64, dt time.Duration) operator.SteerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	t, ok := w.things[agent]
	if !ok || target.MapID != w.cfg.MapID {
		return operator.SteerBlocked
	}
	goal := Cell{X: int(math.Round(target.X)), Y: int(math.Round(target.Y))}
	arrived := func() bool {
		d, _ := w.coords(t.cell).DistanceTo(target)
		return d <= arriveRange
	}
	if arrived() {
		t.progress = 0
		return operator.SteerArrived
	}

	t.progress += w.cfg.Speed * dt.Seconds()
	for t.progress >= 1 {
		next, ok := w.nextStepLocked(t.cell, goal)
		if !ok {
			t.progress = 0
			return operator.SteerBlocked
		}
		t.cell = next
		t.progress--
		if arrived() {
			t.progress = 0
			return operator.SteerArrived
		}
	}
	return operator.SteerMoving
}

func (w *World) nextStepLocked(cur, goal Cell) (Cell, bool) {
	dx, dy := goal.X-cur.X, goal.Y-cur.Y
	px := primaryAxis(dx, dy)
	if next := primaryStep(cur, dx, dy, px); next != cur && w.passableLocked(next) {
		return next, true
	}
	return DetourStep(cur, goal, w.cfg.DetourDepth, w.passableLocked)
}

func (w *World) StopSteering(agent entity.ID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.things[agent]; ok {
		t.progress = 0
	}
}

func (w *World) Pickup(agent, item entity.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	a, ok := w.things[agent]
	if !ok {
		return ErrNoSuchEntity
	}
	it, ok := w.things[item]
	if !ok {
		return ErrNoSuchEntity
	}
	if it.holder.Valid() {
		return ErrAlreadyHeld
	}
	d, _ := w.coords(a.cell).DistanceTo(w.coords(it.cell))
	if d > w.cfg.Reach {
		return ErrOutOfReach
	}
	hands, _ := a.caps[behaviors.CapHands].(behaviors.Hands)
	if hands.Free() == 0 {
		return ErrHandsFull
	}
	hands.Held = append(slices.Clone(hands.Held), item)
	a.caps[behaviors.CapHands] = hands
	it.holder = agent
	return nil
}

// UseHeld eats a held food item. Each point of nutrition restores two points
// of satiety, capped at the agent's maximum.
func (w *World) UseHeld(agent, item entity.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	a, ok := w.things[agent]
	if !ok {
		return ErrNoSuchEntity
	}
	it, ok := w.things[item]
	if !ok {
		return ErrNoSuchEntity
	}
	if it.holder != agent {
		return ErrNotHeld
	}
	food, ok := it.caps[behaviors.CapFood].(behaviors.Food)
	if !ok || food.Nutrition <= 0 {
		return ErrNotUsable
	}
	if h, ok := a.caps[behaviors.CapHunger].(behaviors.Hunger); ok {
		h.Satiety += max(food.Nutrition*2, 1)
		if h.Max > 0 && h.Satiety > h.Max {
			h.Satiety = h.Max
		}
		a.caps[behaviors.CapHunger] = h
	}
	w.removeLocked(item)
	return nil
}
