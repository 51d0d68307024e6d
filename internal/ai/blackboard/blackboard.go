// Package blackboard is the per-agent fact cache consulted by planning and
// scoring.
//
// Facts are produced by providers registered against typed keys. A computed
// fact is reused until it is older than the TTL or explicitly invalidated.
package blackboard

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"voxelmind.ai/internal/ai/entity"
	"voxelmind.ai/internal/ai/sensory"
)

const DefaultTTL = 2 * time.Second

var (
	ErrUnregistered = errors.New("blackboard: unregistered state kind")
	ErrDuplicate    = errors.New("blackboard: state kind registered twice")
)

// Kind identifies one fact. Kinds are assigned by the package defining the
// providers; a registry rejects collisions.
type Kind uint16

// Key binds a Kind to the Go type its provider returns.
type Key[T any] struct {
	kind Kind
	name string
}

func NewKey[T any](kind Kind, name string) Key[T] { return Key[T]{kind: kind, name: name} }

func (k Key[T]) Kind() Kind     { return k.kind }
func (k Key[T]) Name() string   { return k.name }
func (k Key[T]) String() string { return k.name }

// Context is what a provider sees when it computes a fact.
type Context struct {
	Owner   entity.ID
	World   entity.Query
	Sensors *sensory.Cache
	Now     time.Duration
}

type Provider[T any] func(ctx Context) T

type registration struct {
	name    string
	compute func(Context) any
}

// Registry maps kinds to providers. It is built once at setup and shared by
// every blackboard of an archetype.
type Registry struct {
	providers map[Kind]registration
	byName    map[string]Kind
}

func NewRegistry() *Registry {
	return &Registry{providers: map[Kind]registration{}, byName: map[string]Kind{}}
}

// Register binds p to key. Registering a kind or name twice is an error.
func Register[T any](r *Registry, key Key[T], p Provider[T]) error {
	if p == nil {
		return fmt.Errorf("blackboard: nil provider for %s", key.name)
	}
	if prev, ok := r.providers[key.kind]; ok {
		return fmt.Errorf("%w: kind %d (%s, %s)", ErrDuplicate, key.kind, prev.name, key.name)
	}
	if _, ok := r.byName[key.name]; ok {
		return fmt.Errorf("%w: name %s", ErrDuplicate, key.name)
	}
	r.providers[key.kind] = registration{
		name:    key.name,
		compute: func(ctx Context) any { return p(ctx) },
	}
	r.byName[key.name] = key.kind
	return nil
}

func (r *Registry) Has(kind Kind) bool {
	_, ok := r.providers[kind]
	return ok
}

// Require reports every kind in kinds that has no provider.
func (r *Registry) Require(kinds ...Kind) error {
	var missing []string
	for _, k := range kinds {
		if !r.Has(k) {
			missing = append(missing, fmt.Sprint(k))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrUnregistered, strings.Join(missing, ","))
	}
	return nil
}

// Lookup resolves a fact by its registered name.
func (r *Registry) Lookup(name string) (Kind, bool) {
	k, ok := r.byName[name]
	return k, ok
}

func (r *Registry) Name(kind Kind) string {
	return r.providers[kind].name
}

// Names lists registered fact names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Reader is the read surface shared by live blackboards and planning shadows.
type Reader interface {
	Value(kind Kind) (any, bool)
	Owner() entity.ID
	World() entity.Query
	Now() time.Duration
}

type slot struct {
	value any
	at    time.Duration
}

type Blackboard struct {
	reg   *Registry
	ctx   Context
	ttl   time.Duration
	slots map[Kind]*slot

	computes uint64
}

func New(reg *Registry, owner entity.ID, world entity.Query, sensors *sensory.Cache, ttl time.Duration) *Blackboard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Blackboard{
		reg:   reg,
		ctx:   Context{Owner: owner, World: world, Sensors: sensors},
		ttl:   ttl,
		slots: map[Kind]*slot{},
	}
}

func (b *Blackboard) Registry() *Registry     { return b.reg }
func (b *Blackboard) Owner() entity.ID        { return b.ctx.Owner }
func (b *Blackboard) World() entity.Query     { return b.ctx.World }
func (b *Blackboard) Sensors() *sensory.Cache { return b.ctx.Sensors }
func (b *Blackboard) Now() time.Duration      { return b.ctx.Now }

// SetNow advances the blackboard's view of the simulation clock.
func (b *Blackboard) SetNow(now time.Duration) { b.ctx.Now = now }

// Computes reports how many times a provider has been invoked.
func (b *Blackboard) Computes() uint64 { return b.computes }

// Value returns the fact for kind, recomputing it when missing or stale. The
// second result is false only for unregistered kinds.
func (b *Blackboard) Value(kind Kind) (any, bool) {
	reg, ok := b.reg.providers[kind]
	if !ok {
		return nil, false
	}
	if s, ok := b.slots[kind]; ok && b.fresh(s) {
		return s.value, true
	}
	v := reg.compute(b.ctx)
	b.computes++
	b.slots[kind] = &slot{value: v, at: b.ctx.Now}
	return v, true
}

func (b *Blackboard) fresh(s *slot) bool {
	if b.ctx.Now < s.at {
		return false
	}
	return b.ctx.Now-s.at < b.ttl
}

// Invalidate forces the given kinds to be recomputed on their next read.
func (b *Blackboard) Invalidate(kinds ...Kind) {
	for _, k := range kinds {
		delete(b.slots, k)
	}
}

func (b *Blackboard) InvalidateAll() {
	clear(b.slots)
}

// Get reads key through r. Unregistered keys yield the zero value; use
// Registry.Require at setup to rule that out.
func Get[T any](r Reader, key Key[T]) T {
	var zero T
	if r == nil {
		return zero
	}
	v, ok := r.Value(key.kind)
	if !ok || v == nil {
		return zero
	}
	t, ok := v.(T)
	if !ok {
		return zero
	}
	return t
}
