package behaviors

import (
	"voxelmind.ai/internal/ai/blackboard"
	"voxelmind.ai/internal/ai/entity"
	"voxelmind.ai/internal/ai/htn"
	"voxelmind.ai/internal/ai/operator"
)

func isHungry(bb blackboard.Reader) bool    { return blackboard.Get(bb, Hungry) }
func hasFreeHand(bb blackboard.Reader) bool { return blackboard.Get(bb, FreeHands) > 0 }
func holdsFood(bb blackboard.Reader) bool   { return blackboard.Get(bb, HeldFood).Valid() }
func seesFood(bb blackboard.Reader) bool    { return blackboard.Get(bb, NearestFood).Valid() }

// Survive eats held food when hungry, otherwise fetches the nearest food,
// otherwise idles.
func (lib *Library) Survive() *htn.Task {
	return htn.Selector("survive", htn.Ordered, func(blackboard.Reader) []*htn.Task {
		return []*htn.Task{
			lib.eatHeldTask(),
			lib.fetchAndEatTask(),
			lib.idleTask(),
		}
	})
}

// Wander randomly idles long or short. Agents on it never eat.
func (lib *Library) Wander() *htn.Task {
	return htn.Selector("wander", htn.Random, func(blackboard.Reader) []*htn.Task {
		return []*htn.Task{
			lib.idleTask(),
			htn.Primitive("pause", func() operator.Operator {
				return &operator.Wait{Duration: lib.IdleFor / 2}
			}),
		}
	})
}

// Chat is a social root whose talk step has no operator yet. Its plan
// reports Unsupported on the first tick.
func (lib *Library) Chat() *htn.Task {
	return htn.Sequence("chat", func(_ blackboard.Reader, b *htn.SequenceBuilder) {
		b.Push(htn.Primitive("talk", nil))
	})
}

func (lib *Library) eatHeldTask() *htn.Task {
	return htn.Sequence("eat_held_food", func(bb blackboard.Reader, b *htn.SequenceBuilder) {
		b.Push(lib.useHeld(bb, blackboard.Get(bb, HeldFood)))
	}, htn.When(isHungry), htn.When(holdsFood))
}

func (lib *Library) fetchAndEatTask() *htn.Task {
	return htn.Sequence("pickup_and_eat_food", func(bb blackboard.Reader, b *htn.SequenceBuilder) {
		lib.pushFetchAndEat(bb, b, blackboard.Get(bb, NearestFood))
	}, htn.When(isHungry), htn.When(hasFreeHand), htn.When(seesFood))
}

// pushFetchAndEat authors move, pickup, use back to front.
func (lib *Library) pushFetchAndEat(bb blackboard.Reader, b *htn.SequenceBuilder, target entity.ID) {
	b.Push(lib.useHeld(bb, target))
	b.Push(lib.pickup(bb, target))
	b.Push(lib.moveTo(bb, target))
}

func (lib *Library) idleTask() *htn.Task {
	return htn.Primitive("idle", func() operator.Operator {
		return &operator.Wait{Duration: lib.IdleFor}
	})
}

func (lib *Library) moveTo(bb blackboard.Reader, target entity.ID) *htn.Task {
	agent, world := bb.Owner(), bb.World()
	return htn.Primitive("move_to", func() operator.Operator {
		return &operator.MoveTo{
			Agent:   agent,
			Target:  target,
			Range:   lib.ArriveRange,
			Timeout: lib.MoveTimeout,
			World:   world,
			Act:     lib.Act,
		}
	})
}

func (lib *Library) pickup(bb blackboard.Reader, item entity.ID) *htn.Task {
	agent, world := bb.Owner(), bb.World()
	return htn.Primitive("pickup", func() operator.Operator {
		return &operator.Pickup{Agent: agent, Item: item, World: world, Act: lib.Act}
	},
		htn.When(hasFreeHand),
		htn.WithEffects(func(s *blackboard.Shadow) {
			blackboard.Override(s, FreeHands, blackboard.Get(s, FreeHands)-1)
			blackboard.Override(s, HeldFood, item)
		}),
		htn.Invalidates(KindFreeHands, KindHeldFood, KindNearbyFood, KindNearestFood),
	)
}

func (lib *Library) useHeld(bb blackboard.Reader, item entity.ID) *htn.Task {
	agent, world := bb.Owner(), bb.World()
	return htn.Primitive("use_held", func() operator.Operator {
		return &operator.UseHeld{Agent: agent, Item: item, World: world, Act: lib.Act}
	},
		htn.When(func(bb blackboard.Reader) bool {
			return item.Valid() && blackboard.Get(bb, HeldFood) == item
		}),
		htn.WithEffects(func(s *blackboard.Shadow) {
			blackboard.Override(s, HeldFood, entity.ID(0))
			blackboard.Override(s, FreeHands, blackboard.Get(s, FreeHands)+1)
			blackboard.Override(s, Hungry, false)
		}),
		htn.Invalidates(KindHungry, KindHeldFood, KindFreeHands),
	)
}
