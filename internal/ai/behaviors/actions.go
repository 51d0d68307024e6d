package behaviors

import (
	"fmt"
	"iter"
	"slices"

	"voxelmind.ai/internal/ai/blackboard"
	"voxelmind.ai/internal/ai/entity"
	"voxelmind.ai/internal/ai/htn"
	"voxelmind.ai/internal/ai/utility"
	"voxelmind.ai/internal/sim/catalogs"
)

const (
	ActionEatHeldFood      = "eat_held_food"
	ActionPickupAndEatFood = "pickup_and_eat_food"
	ActionIdle             = "idle"

	RootSurvive = "survive"
	RootWander  = "wander"
	RootChat    = "chat"
)

// Action returns the utility action template registered under id.
func (lib *Library) Action(id string) (*utility.Expandable, bool) {
	switch id {
	case ActionEatHeldFood:
		return lib.eatHeldFood(), true
	case ActionPickupAndEatFood:
		return lib.pickupAndEatFood(), true
	case ActionIdle:
		return lib.idle(), true
	default:
		return nil, false
	}
}

func (lib *Library) ActionIDs() []string {
	return []string{ActionEatHeldFood, ActionPickupAndEatFood, ActionIdle}
}

func (lib *Library) HasAction(id string) bool { return slices.Contains(lib.ActionIDs(), id) }

// Root builds a fresh root task registered under id.
func (lib *Library) Root(id string) (*htn.Task, bool) {
	switch id {
	case RootSurvive:
		return lib.Survive(), true
	case RootWander:
		return lib.Wander(), true
	case RootChat:
		return lib.Chat(), true
	default:
		return nil, false
	}
}

func (lib *Library) RootIDs() []string { return []string{RootSurvive, RootWander, RootChat} }

func (lib *Library) HasRoot(id string) bool { return slices.Contains(lib.RootIDs(), id) }

// Selector builds a utility selector over ids, in order. Each extra
// consideration is compiled against reg and scored with its action.
func (lib *Library) Selector(reg *blackboard.Registry, ids []string, extra ...catalogs.Consideration) (*utility.Selector, error) {
	actions := make([]*utility.Expandable, 0, len(ids))
	byID := make(map[string]*utility.Expandable, len(ids))
	for _, id := range ids {
		a, ok := lib.Action(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", catalogs.ErrUnknownAction, id)
		}
		actions = append(actions, a)
		byID[id] = a
	}
	for _, c := range extra {
		a, ok := byID[c.Action]
		if !ok {
			return nil, fmt.Errorf("consideration: %w: %s", catalogs.ErrUnknownAction, c.Action)
		}
		in, err := utility.CompileExpr(c.Expr, c.Facts, reg)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", c.Action, err)
		}
		curve, err := curveOf(c.Curve)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", c.Action, err)
		}
		name := c.Name
		if name == "" {
			name = c.Expr
		}
		a.Considerations = append(a.Considerations, utility.Consideration{Name: name, Input: in.Input(), Curve: curve})
		a.Requires = append(a.Requires, in.Kinds()...)
	}
	return utility.NewSelector(actions...), nil
}

func curveOf(c *catalogs.Curve) (utility.Curve, error) {
	if c == nil {
		return utility.Identity{}, nil
	}
	switch c.Type {
	case "", "identity":
		return utility.Identity{}, nil
	case "boolean":
		return utility.Boolean{Invert: c.Invert}, nil
	case "linear":
		return utility.Linear{Slope: c.Slope, Intercept: c.Intercept}, nil
	case "quadratic":
		return utility.Quadratic{Slope: c.Slope, Exponent: c.Exponent, XShift: c.XShift, YShift: c.YShift}, nil
	case "logistic":
		return utility.Logistic{Steepness: c.Steepness, Midpoint: c.Midpoint}, nil
	default:
		return nil, fmt.Errorf("unknown curve %q", c.Type)
	}
}

func (lib *Library) eatHeldFood() *utility.Expandable {
	return &utility.Expandable{
		ID:    ActionEatHeldFood,
		Bonus: 2,
		Preconditions: []func(utility.Context) bool{
			func(ctx utility.Context) bool { return holdsFood(ctx.Blackboard) },
		},
		Considerations: []utility.Consideration{
			{Name: "hungry", Input: utility.BoolInput(Hungry), Curve: utility.Boolean{}},
		},
		Expand: func(ctx utility.Context) *htn.Task {
			return htn.Sequence(ActionEatHeldFood, func(bb blackboard.Reader, b *htn.SequenceBuilder) {
				b.Push(lib.useHeld(bb, blackboard.Get(bb, HeldFood)))
			})
		},
		Requires: []blackboard.Kind{KindHungry, KindHeldFood},
	}
}

func (lib *Library) pickupAndEatFood() *utility.Expandable {
	return &utility.Expandable{
		ID:    ActionPickupAndEatFood,
		Bonus: 1,
		Candidates: func(bb blackboard.Reader) iter.Seq[entity.ID] {
			return blackboard.Get(bb, NearbyFood)
		},
		Preconditions: []func(utility.Context) bool{
			func(ctx utility.Context) bool { return hasFreeHand(ctx.Blackboard) },
		},
		Considerations: []utility.Consideration{
			{Name: "hungry", Input: utility.BoolInput(Hungry), Curve: utility.Boolean{}},
			{
				Name:  "distance",
				Input: utility.TargetDistance,
				Curve: utility.Linear{Slope: -0.9 / lib.VisionRadius, Intercept: 1},
			},
		},
		Expand: func(ctx utility.Context) *htn.Task {
			target := ctx.Target
			return htn.Sequence(ActionPickupAndEatFood, func(bb blackboard.Reader, b *htn.SequenceBuilder) {
				lib.pushFetchAndEat(bb, b, target)
			})
		},
		Requires: []blackboard.Kind{KindHungry, KindFreeHands, KindNearbyFood, KindHeldFood},
	}
}

func (lib *Library) idle() *utility.Expandable {
	return &utility.Expandable{
		ID:    ActionIdle,
		Bonus: 0.05,
		Expand: func(utility.Context) *htn.Task {
			return lib.idleTask()
		},
	}
}
