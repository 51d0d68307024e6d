// Package entity describes the slice of the host's entity/component store the
// decision core depends on. The store itself lives outside this module.
package entity

import "math"

// ID identifies an entity. The zero ID means "no entity".
type ID uint64

func (id ID) Valid() bool { return id != 0 }

// Capability tags a component kind an entity may carry ("food", "item", ...).
type Capability string

// Coordinates is a position on a named map. Distances are only defined between
// coordinates on the same map.
type Coordinates struct {
	MapID string
	X     float64
	Y     float64
}

// DistanceTo returns the Euclidean distance to o, or false when o is on a
// different map.
func (c Coordinates) DistanceTo(o Coordinates) (float64, bool) {
	if c.MapID != o.MapID {
		return 0, false
	}
	return math.Hypot(c.X-o.X, c.Y-o.Y), true
}

// Query is the read surface of the entity store.
type Query interface {
	Exists(id ID) bool
	HasCapability(id ID, c Capability) bool
	// Component returns the component stored under c, if any.
	Component(id ID, c Capability) (any, bool)
	Coordinates(id ID) (Coordinates, bool)
	// AllWithCapability enumerates every live entity carrying c.
	AllWithCapability(c Capability) []ID
	// InContainer reports whether id is held inside another entity (a bag,
	// a hand, a locker).
	InContainer(id ID) bool
}

// TryGet fetches the component stored under c and asserts it to T.
func TryGet[T any](q Query, id ID, c Capability) (T, bool) {
	var zero T
	if q == nil {
		return zero, false
	}
	raw, ok := q.Component(id, c)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// Distance is a convenience for the distance between two entities.
func Distance(q Query, a, b ID) (float64, bool) {
	pa, ok := q.Coordinates(a)
	if !ok {
		return 0, false
	}
	pb, ok := q.Coordinates(b)
	if !ok {
		return 0, false
	}
	return pa.DistanceTo(pb)
}
