// Package behaviors is the stock library of facts, tasks and utility actions
// built on the decision core: hungry agents find food, pick it up and eat it.
package behaviors

import (
	"iter"
	"time"

	"voxelmind.ai/internal/ai/blackboard"
	"voxelmind.ai/internal/ai/entity"
	"voxelmind.ai/internal/ai/operator"
	"voxelmind.ai/internal/ai/sensory"
)

const (
	CapAgent  entity.Capability = "agent"
	CapFood   entity.Capability = "food"
	CapHunger entity.Capability = "hunger"
	CapHands  entity.Capability = "hands"
)

// Hunger is satiety on a 0..Max scale. The agent is hungry at or below
// HungryAt.
type Hunger struct {
	Satiety  int
	Max      int
	HungryAt int
}

func (h Hunger) Hungry() bool { return h.Satiety <= h.HungryAt }

type Hands struct {
	Count int
	Held  []entity.ID
}

func (h Hands) Free() int {
	if n := h.Count - len(h.Held); n > 0 {
		return n
	}
	return 0
}

type Food struct {
	Nutrition int
}

const (
	KindHungry blackboard.Kind = iota + 1
	KindFreeHands
	KindNearbyFood
	KindNearestFood
	KindHeldFood
)

var (
	Hungry      = blackboard.NewKey[bool](KindHungry, "Hungry")
	FreeHands   = blackboard.NewKey[int](KindFreeHands, "FreeHands")
	NearbyFood  = blackboard.NewKey[iter.Seq[entity.ID]](KindNearbyFood, "NearbyFood")
	NearestFood = blackboard.NewKey[entity.ID](KindNearestFood, "NearestFood")
	HeldFood    = blackboard.NewKey[entity.ID](KindHeldFood, "HeldFood")
)

const (
	DefaultVisionRadius = 10.0
	DefaultArriveRange  = 1.0
	DefaultMoveTimeout  = 20 * time.Second
	DefaultIdleFor      = time.Second
)

// Library binds the stock behaviors to a host actuator.
type Library struct {
	Act          operator.Actuator
	VisionRadius float64
	ArriveRange  float64
	MoveTimeout  time.Duration
	IdleFor      time.Duration
}

func NewLibrary(act operator.Actuator) *Library {
	return &Library{
		Act:          act,
		VisionRadius: DefaultVisionRadius,
		ArriveRange:  DefaultArriveRange,
		MoveTimeout:  DefaultMoveTimeout,
		IdleFor:      DefaultIdleFor,
	}
}

// Register binds every stock fact to its provider.
func (lib *Library) Register(reg *blackboard.Registry) error {
	if err := blackboard.Register(reg, Hungry, hungry); err != nil {
		return err
	}
	if err := blackboard.Register(reg, FreeHands, freeHands); err != nil {
		return err
	}
	if err := blackboard.Register(reg, NearbyFood, lib.nearbyFood); err != nil {
		return err
	}
	if err := blackboard.Register(reg, NearestFood, lib.nearestFood); err != nil {
		return err
	}
	return blackboard.Register(reg, HeldFood, heldFood)
}

func hungry(ctx blackboard.Context) bool {
	h, ok := entity.TryGet[Hunger](ctx.World, ctx.Owner, CapHunger)
	return ok && h.Hungry()
}

func freeHands(ctx blackboard.Context) int {
	h, ok := entity.TryGet[Hands](ctx.World, ctx.Owner, CapHands)
	if !ok {
		return 0
	}
	return h.Free()
}

// nearbyFood lists visible loose food nearest first. Items eaten or picked up
// since the sensory scan are skipped at read time.
func (lib *Library) nearbyFood(ctx blackboard.Context) iter.Seq[entity.ID] {
	if ctx.Sensors == nil || ctx.World == nil {
		return func(func(entity.ID) bool) {}
	}
	ids := ctx.Sensors.NearestList(sensory.Query{
		Agent:            ctx.Owner,
		Capability:       CapFood,
		MaxRange:         lib.VisionRadius,
		ExcludeContained: true,
	}, ctx.Now)
	world := ctx.World
	return func(yield func(entity.ID) bool) {
		for _, id := range ids {
			if !world.Exists(id) || world.InContainer(id) {
				continue
			}
			if !yield(id) {
				return
			}
		}
	}
}

func (lib *Library) nearestFood(ctx blackboard.Context) entity.ID {
	for id := range lib.nearbyFood(ctx) {
		return id
	}
	return 0
}

func heldFood(ctx blackboard.Context) entity.ID {
	h, ok := entity.TryGet[Hands](ctx.World, ctx.Owner, CapHands)
	if !ok {
		return 0
	}
	for _, id := range h.Held {
		if ctx.World.Exists(id) && ctx.World.HasCapability(id, CapFood) {
			return id
		}
	}
	return 0
}
