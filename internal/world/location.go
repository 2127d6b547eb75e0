// Package world provides the continuous plane agents live on and the grid
// used to find neighbors on it.
package world

import (
	"fmt"
	"math"
)

// Location is an immutable point on the plane.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance between two locations.
func (l Location) DistanceTo(other Location) float64 {
	dx := l.X - other.X
	dy := l.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Add returns the location displaced by (dx, dy).
func (l Location) Add(dx, dy float64) Location {
	return Location{X: l.X + dx, Y: l.Y + dy}
}

// Displace returns the location moved distance units along direction
// (radians, counter-clockwise from the positive X axis).
func (l Location) Displace(direction, distance float64) Location {
	return l.Add(distance*math.Cos(direction), distance*math.Sin(direction))
}

// String returns a compact representation for logs.
func (l Location) String() string {
	return fmt.Sprintf("(%.3f, %.3f)", l.X, l.Y)
}
