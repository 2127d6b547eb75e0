package world

import (
	"math"
	"math/rand"
	"sort"
	"testing"
)

type point struct {
	id  int
	loc Location
}

func newPointGrid(cellSize float64) *Grid[*point] {
	return NewGrid(cellSize, func(p *point) Location { return p.loc })
}

func ids(items []*point) []int {
	out := make([]int, 0, len(items))
	for _, p := range items {
		out = append(out, p.id)
	}
	sort.Ints(out)
	return out
}

func bruteForce(points map[int]*point, center Location, radius float64) []int {
	var out []int
	for id, p := range points {
		if p.loc.DistanceTo(center) <= radius {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLocationDistance(t *testing.T) {
	a := Location{X: 0, Y: 0}
	b := Location{X: 3, Y: 4}
	if got := a.DistanceTo(b); got != 5 {
		t.Fatalf("expected distance 5, got %f", got)
	}
	if got := b.DistanceTo(a); got != 5 {
		t.Fatalf("distance must be symmetric, got %f", got)
	}
	moved := a.Displace(math.Pi/2, 2)
	if math.Abs(moved.X) > 1e-12 || math.Abs(moved.Y-2) > 1e-12 {
		t.Fatalf("unexpected displaced location %v", moved)
	}
}

func TestGridKeyForUsesFloor(t *testing.T) {
	g := newPointGrid(10)
	cases := []struct {
		loc  Location
		want CellKey
	}{
		{Location{X: 0, Y: 0}, CellKey{0, 0}},
		{Location{X: 9.999, Y: 10}, CellKey{0, 1}},
		{Location{X: -0.001, Y: -10}, CellKey{-1, -1}},
		{Location{X: -10.001, Y: 25}, CellKey{-2, 2}},
	}
	for _, tc := range cases {
		if got := g.KeyFor(tc.loc); got != tc.want {
			t.Fatalf("KeyFor(%v) = %v, want %v", tc.loc, got, tc.want)
		}
	}
}

func TestGridRemoveMissingFails(t *testing.T) {
	g := newPointGrid(10)
	p := &point{id: 1, loc: Location{X: 1, Y: 1}}
	if err := g.Remove(p); err != ErrNotIndexed {
		t.Fatalf("expected ErrNotIndexed, got %v", err)
	}
	if err := g.Insert(p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := g.Insert(p); err != ErrAlreadyIndexed {
		t.Fatalf("expected ErrAlreadyIndexed, got %v", err)
	}
	if err := g.Remove(p); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := g.Remove(p); err != ErrNotIndexed {
		t.Fatalf("expected ErrNotIndexed on second remove, got %v", err)
	}
	if g.Len() != 0 {
		t.Fatalf("expected empty grid, got %d", g.Len())
	}
}

func TestGridRelocate(t *testing.T) {
	g := newPointGrid(10)
	p := &point{id: 1, loc: Location{X: 1, Y: 1}}
	if err := g.Insert(p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	prev := p.loc
	p.loc = Location{X: 2, Y: 2}
	if err := g.Relocate(p, prev); err != nil {
		t.Fatalf("same-cell relocate: %v", err)
	}

	prev = p.loc
	p.loc = Location{X: -35, Y: 48}
	if err := g.Relocate(p, prev); err != nil {
		t.Fatalf("cross-cell relocate: %v", err)
	}
	if !g.Contains(p) {
		t.Fatalf("expected item indexed at new location")
	}
	if got := ids(g.WithinRadius(Location{X: -35, Y: 48}, 0.5)); !equalInts(got, []int{1}) {
		t.Fatalf("expected item found at new location, got %v", got)
	}
	if got := g.WithinRadius(Location{X: 1, Y: 1}, 5); len(got) != 0 {
		t.Fatalf("expected nothing at old location, got %d items", len(got))
	}

	stale := Location{X: 100, Y: 100}
	if err := g.Relocate(p, stale); err != ErrNotIndexed {
		t.Fatalf("expected ErrNotIndexed for wrong previous location, got %v", err)
	}
}

func TestGridBoundaryNeighbors(t *testing.T) {
	// cell size is twice the radius, matching the engine configuration
	const radius = 5.0
	g := newPointGrid(2 * radius)
	center := &point{id: 1, loc: Location{X: 10, Y: 10}}
	onEdge := &point{id: 2, loc: Location{X: 5, Y: 10}}
	diagonal := &point{id: 3, loc: Location{X: 10 - 3, Y: 10 - 4}}
	outside := &point{id: 4, loc: Location{X: 4.999, Y: 10}}
	for _, p := range []*point{center, onEdge, diagonal, outside} {
		if err := g.Insert(p); err != nil {
			t.Fatalf("insert %d: %v", p.id, err)
		}
	}

	got := ids(g.WithinRadius(center.loc, radius))
	if !equalInts(got, []int{1, 2, 3}) {
		t.Fatalf("expected [1 2 3] within radius, got %v", got)
	}
}

func TestGridMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const radius = 5.0
	g := newPointGrid(2 * radius)
	points := make(map[int]*point)
	nextID := 0

	for step := 0; step < 3000; step++ {
		switch op := rng.Intn(10); {
		case op < 4 || len(points) == 0:
			// Snap some coordinates onto cell boundaries to exercise edge keys.
			x := rng.Float64()*60 - 30
			y := rng.Float64()*60 - 30
			if rng.Intn(4) == 0 {
				x = math.Round(x/10) * 10
			}
			p := &point{id: nextID, loc: Location{X: x, Y: y}}
			nextID++
			points[p.id] = p
			if err := g.Insert(p); err != nil {
				t.Fatalf("insert: %v", err)
			}
		case op < 6:
			for id, p := range points {
				if err := g.Remove(p); err != nil {
					t.Fatalf("remove: %v", err)
				}
				delete(points, id)
				break
			}
		default:
			for _, p := range points {
				prev := p.loc
				p.loc = p.loc.Displace(rng.Float64()*2*math.Pi, rng.Float64()*4)
				if err := g.Relocate(p, prev); err != nil {
					t.Fatalf("relocate: %v", err)
				}
				break
			}
		}

		if step%25 == 0 {
			center := Location{X: rng.Float64()*60 - 30, Y: rng.Float64()*60 - 30}
			if rng.Intn(3) == 0 {
				for _, p := range points {
					center = p.loc.Add(radius, 0)
					break
				}
			}
			got := ids(g.WithinRadius(center, radius))
			want := bruteForce(points, center, radius)
			if !equalInts(got, want) {
				t.Fatalf("step %d: grid %v != brute force %v", step, got, want)
			}
			again := ids(g.WithinRadius(center, radius))
			if !equalInts(got, again) {
				t.Fatalf("step %d: repeated query differs: %v vs %v", step, got, again)
			}
		}
	}

	if g.Len() != len(points) {
		t.Fatalf("grid has %d items, expected %d", g.Len(), len(points))
	}
}
