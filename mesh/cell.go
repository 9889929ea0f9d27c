package mesh

import (
	"math"

	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"
)

// Cell is a node of the forest with its geometry in the unit square.
type Cell struct {
	Key      Key
	Shape    Shape
	Vertices []vec.Vec2

	// Index is the local sequential index of a leaf, -1 for internal cells.
	Index int

	// Rank is the rank owning the leaf.
	Rank int
}

// Cell returns the leaf k of a forest of shape s, owned by rank.
func (s Shape) Cell(k Key, rank int) Cell {
	return Cell{
		Key:      k,
		Shape:    s,
		Vertices: s.vertices(k),
		Index:    -1,
		Rank:     rank,
	}
}

func (c Cell) Level() int {
	return c.Key.Level
}

// Bounds returns the bounding box of the cell.
func (c Cell) Bounds() rect.Rect {
	b := rect.Rect{
		LLx: math.Inf(1),
		LLy: math.Inf(1),
		URx: math.Inf(-1),
		URy: math.Inf(-1),
	}

	for _, v := range c.Vertices {
		b.LLx = math.Min(b.LLx, v.X)
		b.LLy = math.Min(b.LLy, v.Y)
		b.URx = math.Max(b.URx, v.X)
		b.URy = math.Max(b.URy, v.Y)
	}
	return b
}

// Centroid returns the vertex average.
func (c Cell) Centroid() vec.Vec2 {
	var sum vec.Vec2
	for _, v := range c.Vertices {
		sum = sum.Add(v)
	}
	return sum.Mul(1 / float64(len(c.Vertices)))
}

// Contains reports whether p lies inside the cell or within tolerance of its
// boundary.
func (c Cell) Contains(p vec.Vec2, tolerance float64) bool {
	return newContainment(c, tolerance).inside(p)
}

// containment holds the per cell values of a point-in-cell test so that a
// batch of points only pays for them once.
type containment struct {
	shape     Shape
	bounds    rect.Rect
	tolerance float64

	// Triangles: edge origins and unit inward normals.
	origins [3]vec.Vec2
	normals [3]vec.Vec2
}

func newContainment(c Cell, tolerance float64) containment {
	t := containment{
		shape:     c.Shape,
		bounds:    c.Bounds(),
		tolerance: tolerance,
	}

	if c.Shape != Triangle {
		return t
	}

	v := c.Vertices
	orientation := 1.0
	if cross(v[1].Sub(v[0]), v[2].Sub(v[0])) < 0 {
		orientation = -1
	}

	for i := 0; i < 3; i++ {
		a, b := v[i], v[(i+1)%3]
		e := b.Sub(a)
		n := vec.Vec2{X: -e.Y, Y: e.X}.Mul(orientation / e.Length())
		t.origins[i] = a
		t.normals[i] = n
	}
	return t
}

func (t containment) inside(p vec.Vec2) bool {
	b := t.bounds
	if p.X < b.LLx-t.tolerance || p.X > b.URx+t.tolerance ||
		p.Y < b.LLy-t.tolerance || p.Y > b.URy+t.tolerance {
		return false
	}

	if t.shape != Triangle {
		return true
	}

	for i := 0; i < 3; i++ {
		if dot(p.Sub(t.origins[i]), t.normals[i]) < -t.tolerance {
			return false
		}
	}
	return true
}

func cross(a, b vec.Vec2) float64 {
	return a.X*b.Y - a.Y*b.X
}

func dot(a, b vec.Vec2) float64 {
	return a.X*b.X + a.Y*b.Y
}
