package utility

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"voxelmind.ai/internal/ai/blackboard"
	"voxelmind.ai/internal/ai/entity"
)

// ExprInput is a consideration input authored as an expression over named
// facts, e.g. `Hungry ? 1.0 : 0.0` or `distance / 10`.
//
// The environment exposes each declared fact by name plus `distance` (owner to
// target) and `target`. Booleans evaluate as 0 or 1; runtime errors score 0.
type ExprInput struct {
	Source string

	program *vm.Program
	facts   []factRef
}

type factRef struct {
	name string
	kind blackboard.Kind
}

// CompileExpr compiles src against the named facts. Every name must be
// registered in reg.
func CompileExpr(src string, facts []string, reg *blackboard.Registry) (*ExprInput, error) {
	in := &ExprInput{Source: src}
	for _, name := range facts {
		k, ok := reg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q in expression %q", blackboard.ErrUnregistered, name, src)
		}
		in.facts = append(in.facts, factRef{name: name, kind: k})
	}
	program, err := expr.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	in.program = program
	return in, nil
}

// Kinds lists the facts the expression reads.
func (in *ExprInput) Kinds() []blackboard.Kind {
	out := make([]blackboard.Kind, len(in.facts))
	for i, f := range in.facts {
		out[i] = f.kind
	}
	return out
}

// Input adapts the compiled expression for use in a Consideration.
func (in *ExprInput) Input() Input { return in.eval }

func (in *ExprInput) eval(ctx Context) float64 {
	env := map[string]any{
		"distance": TargetDistance(ctx),
		"target":   uint64(ctx.Target),
	}
	for _, f := range in.facts {
		v, _ := ctx.Blackboard.Value(f.kind)
		env[f.name] = scalar(v)
	}
	out, err := expr.Run(in.program, env)
	if err != nil {
		return 0
	}
	return toFloat(out)
}

func scalar(v any) any {
	switch x := v.(type) {
	case bool, int, float64:
		return x
	case entity.ID:
		return uint64(x)
	case []entity.ID:
		return len(x)
	case nil:
		return nil
	default:
		return v
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case float64:
		return x
	default:
		return 0
	}
}
