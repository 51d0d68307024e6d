// Package entitytest is an in-memory entity store for tests.
package entitytest

import (
	"sort"

	"voxelmind.ai/internal/ai/entity"
)

type record struct {
	pos        entity.Coordinates
	components map[entity.Capability]any
	container  entity.ID
}

type Store struct {
	next    entity.ID
	records map[entity.ID]*record
}

func New() *Store {
	return &Store{records: map[entity.ID]*record{}}
}

// Spawn creates an entity at pos carrying the given capabilities (with nil
// component payloads).
func (s *Store) Spawn(pos entity.Coordinates, caps ...entity.Capability) entity.ID {
	s.next++
	r := &record{pos: pos, components: map[entity.Capability]any{}}
	for _, c := range caps {
		r.components[c] = nil
	}
	s.records[s.next] = r
	return s.next
}

func (s *Store) SetComponent(id entity.ID, c entity.Capability, v any) {
	if r, ok := s.records[id]; ok {
		r.components[c] = v
	}
}

func (s *Store) Move(id entity.ID, pos entity.Coordinates) {
	if r, ok := s.records[id]; ok {
		r.pos = pos
	}
}

func (s *Store) Delete(id entity.ID) { delete(s.records, id) }

// Contain places id inside holder; a zero holder removes it from any container.
func (s *Store) Contain(id, holder entity.ID) {
	if r, ok := s.records[id]; ok {
		r.container = holder
	}
}

func (s *Store) Exists(id entity.ID) bool {
	_, ok := s.records[id]
	return ok
}

func (s *Store) HasCapability(id entity.ID, c entity.Capability) bool {
	r, ok := s.records[id]
	if !ok {
		return false
	}
	_, ok = r.components[c]
	return ok
}

func (s *Store) Component(id entity.ID, c entity.Capability) (any, bool) {
	r, ok := s.records[id]
	if !ok {
		return nil, false
	}
	v, ok := r.components[c]
	return v, ok
}

func (s *Store) Coordinates(id entity.ID) (entity.Coordinates, bool) {
	r, ok := s.records[id]
	if !ok {
		return entity.Coordinates{}, false
	}
	if r.container != 0 {
		if h, ok := s.records[r.container]; ok {
			return h.pos, true
		}
	}
	return r.pos, true
}

func (s *Store) AllWithCapability(c entity.Capability) []entity.ID {
	var out []entity.ID
	for id, r := range s.records {
		if _, ok := r.components[c]; ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) InContainer(id entity.ID) bool {
	r, ok := s.records[id]
	return ok && r.container != 0
}
