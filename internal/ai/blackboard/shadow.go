package blackboard

import (
	"maps"
	"time"

	"voxelmind.ai/internal/ai/entity"
)

// Shadow overlays planning-time assumptions on a Reader. Procedural effects
// declared by tasks ("this pickup occupies a hand") are written here while a
// plan is being decomposed so later preconditions see them; the live
// blackboard and the world are never touched.
type Shadow struct {
	base      Reader
	overrides map[Kind]any
}

// Mark is a restorable point in a shadow's history.
type Mark struct {
	overrides map[Kind]any
}

func NewShadow(base Reader) *Shadow {
	return &Shadow{base: base, overrides: map[Kind]any{}}
}

func (s *Shadow) Value(kind Kind) (any, bool) {
	if v, ok := s.overrides[kind]; ok {
		return v, true
	}
	return s.base.Value(kind)
}

func (s *Shadow) Owner() entity.ID    { return s.base.Owner() }
func (s *Shadow) World() entity.Query { return s.base.World() }
func (s *Shadow) Now() time.Duration  { return s.base.Now() }

// Mark snapshots the current overrides.
func (s *Shadow) Mark() Mark {
	return Mark{overrides: maps.Clone(s.overrides)}
}

// Rollback discards every override written after m was taken.
func (s *Shadow) Rollback(m Mark) {
	s.overrides = maps.Clone(m.overrides)
	if s.overrides == nil {
		s.overrides = map[Kind]any{}
	}
}

// Override records a planning-time value for key.
func Override[T any](s *Shadow, key Key[T], v T) {
	s.overrides[key.kind] = v
}
