package sandbox

import (
	"math/rand/v2"

	"voxelmind.ai/internal/ai/behaviors"
)

// FreeCells picks up to n distinct in-bounds cells holding no wall and no
// loose entity, in an order drawn from rng.
func (w *World) FreeCells(rng *rand.Rand, n int) []Cell {
	w.mu.RLock()
	defer w.mu.RUnlock()

	taken := make(map[Cell]bool, len(w.things))
	for _, t := range w.things {
		if !t.holder.Valid() {
			taken[t.cell] = true
		}
	}
	var free []Cell
	for y := 0; y < w.cfg.Height; y++ {
		for x := 0; x < w.cfg.Width; x++ {
			c := Cell{X: x, Y: y}
			if !w.walls[c] && !taken[c] {
				free = append(free, c)
			}
		}
	}
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	if n < len(free) {
		free = free[:n]
	}
	return free
}

// ScatterWalls adds n walls on free cells.
func (w *World) ScatterWalls(rng *rand.Rand, n int) {
	for _, c := range w.FreeCells(rng, n) {
		w.AddWall(c)
	}
}

// Replenish spawns loose food on free cells until at least target pieces lie
// on the ground. It returns how many were spawned.
func (w *World) Replenish(rng *rand.Rand, target, nutrition int) int {
	loose := 0
	w.mu.RLock()
	for _, t := range w.things {
		if _, ok := t.caps[behaviors.CapFood]; ok && !t.holder.Valid() {
			loose++
		}
	}
	w.mu.RUnlock()
	if loose >= target {
		return 0
	}
	cells := w.FreeCells(rng, target-loose)
	for _, c := range cells {
		w.SpawnFood(c, nutrition)
	}
	return len(cells)
}
