package world

import (
	"errors"
	"math"
)

var (
	// ErrNotIndexed means an item was not found in the bucket its location maps to.
	// The grid and its owner have diverged.
	ErrNotIndexed = errors.New("item not indexed under its location")
	// ErrAlreadyIndexed means an item was inserted twice.
	ErrAlreadyIndexed = errors.New("item already indexed")
)

// CellKey identifies one square cell of the grid.
type CellKey struct {
	X int
	Y int
}

// Grid buckets items into fixed-size square cells so radius queries only scan
// the cells that can intersect the query circle.
//
// The grid does not store locations itself: it asks locate for an item's
// current location, so callers must Relocate an item right after changing
// where it is.
type Grid[T comparable] struct {
	cellSize float64
	locate   func(T) Location
	cells    map[CellKey]map[T]struct{}
	count    int
}

// NewGrid creates an empty grid. cellSize must be positive.
func NewGrid[T comparable](cellSize float64, locate func(T) Location) *Grid[T] {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		panic("world: grid cell size must be positive and finite")
	}
	return &Grid[T]{
		cellSize: cellSize,
		locate:   locate,
		cells:    make(map[CellKey]map[T]struct{}),
	}
}

// CellSize returns the side length of a cell.
func (g *Grid[T]) CellSize() float64 {
	return g.cellSize
}

// Len returns the number of indexed items.
func (g *Grid[T]) Len() int {
	return g.count
}

// KeyFor returns the cell containing loc. Floor division keeps cells uniform
// on both sides of the origin.
func (g *Grid[T]) KeyFor(loc Location) CellKey {
	return CellKey{
		X: int(math.Floor(loc.X / g.cellSize)),
		Y: int(math.Floor(loc.Y / g.cellSize)),
	}
}

// Insert indexes item under its current location.
func (g *Grid[T]) Insert(item T) error {
	key := g.KeyFor(g.locate(item))
	bucket, ok := g.cells[key]
	if !ok {
		bucket = make(map[T]struct{})
		g.cells[key] = bucket
	}
	if _, dup := bucket[item]; dup {
		return ErrAlreadyIndexed
	}
	bucket[item] = struct{}{}
	g.count++
	return nil
}

// Remove drops item from the cell of its current location.
func (g *Grid[T]) Remove(item T) error {
	return g.removeFrom(g.KeyFor(g.locate(item)), item)
}

// Relocate moves item to the cell of its current location. previous must be the
// location the item was indexed under.
func (g *Grid[T]) Relocate(item T, previous Location) error {
	oldKey := g.KeyFor(previous)
	newKey := g.KeyFor(g.locate(item))
	if oldKey == newKey {
		if _, ok := g.cells[oldKey][item]; !ok {
			return ErrNotIndexed
		}
		return nil
	}
	if err := g.removeFrom(oldKey, item); err != nil {
		return err
	}
	return g.Insert(item)
}

func (g *Grid[T]) removeFrom(key CellKey, item T) error {
	bucket, ok := g.cells[key]
	if !ok {
		return ErrNotIndexed
	}
	if _, ok := bucket[item]; !ok {
		return ErrNotIndexed
	}
	delete(bucket, item)
	if len(bucket) == 0 {
		delete(g.cells, key)
	}
	g.count--
	return nil
}

// WithinRadius returns every item whose distance to center is at most radius.
// The result has no duplicates and no defined order.
func (g *Grid[T]) WithinRadius(center Location, radius float64) []T {
	if radius < 0 {
		return nil
	}
	lo := g.KeyFor(Location{X: center.X - radius, Y: center.Y - radius})
	hi := g.KeyFor(Location{X: center.X + radius, Y: center.Y + radius})

	var result []T
	for cx := lo.X; cx <= hi.X; cx++ {
		for cy := lo.Y; cy <= hi.Y; cy++ {
			for item := range g.cells[CellKey{X: cx, Y: cy}] {
				if g.locate(item).DistanceTo(center) <= radius {
					result = append(result, item)
				}
			}
		}
	}
	return result
}

// Items returns all indexed items in no particular order.
func (g *Grid[T]) Items() []T {
	result := make([]T, 0, g.count)
	for _, bucket := range g.cells {
		for item := range bucket {
			result = append(result, item)
		}
	}
	return result
}

// Contains reports whether item is indexed under its current location.
func (g *Grid[T]) Contains(item T) bool {
	_, ok := g.cells[g.KeyFor(g.locate(item))][item]
	return ok
}
