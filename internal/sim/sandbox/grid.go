package sandbox

// Cell is one grid square.
type Cell struct {
	X int
	Y int
}

func manhattan(a, b Cell) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func primaryAxis(dx, dy int) bool {
	return abs(dx) >= abs(dy)
}

func primaryStep(cur Cell, dx, dy int, primaryX bool) Cell {
	next := cur
	if primaryX {
		next.X += sign(dx)
		return next
	}
	next.Y += sign(dy)
	return next
}

// DetourStep looks for a passable neighbour of start from which some cell
// within maxDepth steps is closer to target than start is. Neighbours are
// explored in a fixed order so the same grid always yields the same step.
func DetourStep(start, target Cell, maxDepth int, passable func(Cell) bool) (Cell, bool) {
	if maxDepth <= 0 {
		return Cell{}, false
	}
	startDist := manhattan(start, target)

	type qItem struct {
		c     Cell
		depth int
		first Cell
	}

	dirs := []Cell{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}

	visited := make(map[Cell]bool, 256)
	visited[start] = true

	queue := make([]qItem, 0, 256)
	for _, d := range dirs {
		nc := Cell{X: start.X + d.X, Y: start.Y + d.Y}
		if !passable(nc) {
			continue
		}
		visited[nc] = true
		queue = append(queue, qItem{c: nc, depth: 1, first: nc})
	}

	var (
		found     bool
		bestDist  int
		bestDepth int
		bestFirst Cell
	)
	better := func(dist, depth int, first Cell) bool {
		if !found {
			return true
		}
		if dist != bestDist {
			return dist < bestDist
		}
		if depth != bestDepth {
			return depth < bestDepth
		}
		if first.X != bestFirst.X {
			return first.X < bestFirst.X
		}
		return first.Y < bestFirst.Y
	}

	for head := 0; head < len(queue); head++ {
		it := queue[head]
		if d := manhattan(it.c, target); d < startDist && better(d, it.depth, it.first) {
			found = true
			bestDist = d
			bestDepth = it.depth
			bestFirst = it.first
		}
		if it.depth >= maxDepth {
			continue
		}
		for _, dir := range dirs {
			nc := Cell{X: it.c.X + dir.X, Y: it.c.Y + dir.Y}
			if visited[nc] || !passable(nc) {
				continue
			}
			visited[nc] = true
			queue = append(queue, qItem{c: nc, depth: it.depth + 1, first: it.first})
		}
	}
	if !found {
		return Cell{}, false
	}
	return bestFirst, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
