package behaviors

import (
	"errors"
	"fmt"

	"voxelmind.ai/internal/ai/agent"
	"voxelmind.ai/internal/ai/blackboard"
	"voxelmind.ai/internal/ai/utility"
	"voxelmind.ai/internal/sim/catalogs"
)

// Configure returns an agent setup that drives the loop the way archetype id
// says: with its HTN root when it names one, otherwise by utility selection
// over its flattened behavior set.
func (lib *Library) Configure(cats *catalogs.Catalogs, id string) func(*agent.Loop) error {
	return func(l *agent.Loop) error {
		a, ok := cats.Archetype(id)
		if !ok {
			return fmt.Errorf("%w: %s", catalogs.ErrUnknownArchetype, id)
		}
		if a.Root != "" {
			return lib.UseRoot(l, a.Root)
		}
		sel, err := lib.archetypeSelector(l.Blackboard().Registry(), cats, a)
		if err != nil {
			return err
		}
		return l.SetSelector(sel)
	}
}

// Check builds every selector-driven archetype against reg so config errors
// surface at startup rather than at spawn.
func (lib *Library) Check(reg *blackboard.Registry, cats *catalogs.Catalogs) error {
	var errs []error
	for _, id := range cats.Archetypes.IDs {
		a := cats.Archetypes.ByID[id]
		if a.Root != "" {
			continue
		}
		sel, err := lib.archetypeSelector(reg, cats, a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range sel.Expandables() {
			if err := reg.Require(e.Requires...); err != nil {
				errs = append(errs, fmt.Errorf("archetype %s: action %s: %w", id, e.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (lib *Library) archetypeSelector(reg *blackboard.Registry, cats *catalogs.Catalogs, a catalogs.Archetype) (*utility.Selector, error) {
	sel, err := lib.Selector(reg, cats.Actions(a.BehaviorSet), cats.Considerations(a.BehaviorSet)...)
	if err != nil {
		return nil, fmt.Errorf("archetype %s: %w", a.ID, err)
	}
	return sel, nil
}

// UseRoot points the loop at the stock root task id.
func (lib *Library) UseRoot(l *agent.Loop, id string) error {
	root, ok := lib.Root(id)
	if !ok {
		return fmt.Errorf("%w: %s", catalogs.ErrUnknownRoot, id)
	}
	if err := l.Blackboard().Registry().Require(KindHungry, KindFreeHands, KindNearbyFood, KindNearestFood, KindHeldFood); err != nil {
		return fmt.Errorf("root %s: %w", id, err)
	}
	l.SetRootTask(root)
	return nil
}
