// Package sensory caches "what can this agent see" spatial scans.
//
// A scan over every entity carrying a capability is expensive and many agents
// ask the same question every tick, so results are kept per (agent,
// capability) for a TTL. Entries can be up to TTL stale: an entity that moved
// keeps its old rank until the entry expires. Entities destroyed since the scan
// are dropped lazily while reading.
package sensory

import (
	"hash/fnv"
	"iter"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"voxelmind.ai/internal/ai/entity"
)

const (
	DefaultTTL = 2 * time.Second

	shardCount = 32
)

// Query describes one nearest-first lookup.
type Query struct {
	Agent      entity.ID
	Capability entity.Capability
	// MaxRange is the agent's vision radius. Zero or negative means unbounded.
	MaxRange float64
	// ExcludeContained skips entities held inside containers.
	ExcludeContained bool
}

type key struct {
	agent            entity.ID
	capability       entity.Capability
	excludeContained bool
}

type entry struct {
	computedAt time.Duration
	maxRange   float64
	ids        []entity.ID
}

// Entries are striped across shards so agents ticked on different goroutines
// only contend when their keys hash together.
type shard struct {
	mu      sync.Mutex
	entries map[key]*entry
}

type Cache struct {
	world  entity.Query
	ttl    time.Duration
	shards [shardCount]shard

	scans atomic.Uint64
}

func New(world entity.Query, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{world: world, ttl: ttl}
	for i := range c.shards {
		c.shards[i].entries = map[key]*entry{}
	}
	return c
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// Scans reports how many full scans have run since the cache was created.
func (c *Cache) Scans() uint64 { return c.scans.Load() }

// Nearest returns the entities matching q ordered nearest first, as of the
// last scan. now is the simulation clock.
func (c *Cache) Nearest(q Query, now time.Duration) iter.Seq[entity.ID] {
	ids := c.lookup(q, now)
	return func(yield func(entity.ID) bool) {
		for _, id := range ids {
			if !c.world.Exists(id) {
				continue
			}
			if !yield(id) {
				return
			}
		}
	}
}

// NearestList is Nearest collected into a slice.
func (c *Cache) NearestList(q Query, now time.Duration) []entity.ID {
	var out []entity.ID
	for id := range c.Nearest(q, now) {
		out = append(out, id)
	}
	return out
}

// Forget drops every entry owned by agent. Call it when the agent is removed.
func (c *Cache) Forget(agent entity.ID) {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for k := range s.entries {
			if k.agent == agent {
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
	}
}

func (c *Cache) lookup(q Query, now time.Duration) []entity.ID {
	k := key{agent: q.Agent, capability: q.Capability, excludeContained: q.ExcludeContained}
	s := c.shardFor(k)

	s.mu.Lock()
	e, ok := s.entries[k]
	if ok && c.fresh(e, q, now) {
		ids := e.ids
		s.mu.Unlock()
		return ids
	}
	s.mu.Unlock()

	// Scan without holding the shard; two goroutines racing on the same key
	// both scan and the later store wins, which is harmless.
	ids := c.scan(q)
	s.mu.Lock()
	s.entries[k] = &entry{computedAt: now, maxRange: q.MaxRange, ids: ids}
	s.mu.Unlock()
	return ids
}

func (c *Cache) fresh(e *entry, q Query, now time.Duration) bool {
	if e.maxRange != q.MaxRange {
		return false
	}
	if now < e.computedAt {
		// Clock went backwards (world reset).
		return false
	}
	return now-e.computedAt < c.ttl
}

func (c *Cache) scan(q Query) []entity.ID {
	c.scans.Add(1)

	origin, ok := c.world.Coordinates(q.Agent)
	if !ok {
		return nil
	}

	type hit struct {
		id   entity.ID
		dist float64
	}
	var hits []hit
	for _, id := range c.world.AllWithCapability(q.Capability) {
		if id == q.Agent {
			continue
		}
		if q.ExcludeContained && c.world.InContainer(id) {
			continue
		}
		pos, ok := c.world.Coordinates(id)
		if !ok {
			continue
		}
		d, sameMap := origin.DistanceTo(pos)
		if !sameMap {
			continue
		}
		if q.MaxRange > 0 && d > q.MaxRange {
			continue
		}
		hits = append(hits, hit{id: id, dist: d})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].id < hits[j].id
	})

	ids := make([]entity.ID, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids
}

func (c *Cache) shardFor(k key) *shard {
	h := fnv.New64a()
	var buf [8]byte
	v := uint64(k.agent)
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(k.capability))
	return &c.shards[h.Sum64()%shardCount]
}
