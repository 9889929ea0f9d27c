package mesh

import (
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"seehuhn.de/go/geom/vec"
)

const (
	ErrTypeUnknownShape = "mesh_unknown_shape"
)

// Shape is the element class of a forest.
type Shape int

const (
	// Quad forests cover the unit square with a single square tree.
	Quad Shape = iota

	// Triangle forests split the unit square along its diagonal into two
	// triangle trees.
	Triangle
)

// ParseShape converts "quad" or "triangle" into a Shape.
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quad", "0":
		return Quad, nil

	case "triangle", "1":
		return Triangle, nil

	default:
		return 0, errors.New("unknown element shape").
			WithType(ErrTypeUnknownShape).
			WithTag("shape", s)
	}
}

func (s Shape) String() string {
	switch s {
	case Quad:
		return "quad"
	case Triangle:
		return "triangle"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a known shape.
func (s Shape) Valid() bool {
	return s == Quad || s == Triangle
}

// NumVertices returns the number of vertices of a cell.
func (s Shape) NumVertices() int {
	if s == Triangle {
		return 3
	}
	return 4
}

// NumTrees returns the number of trees in the unit square coarse mesh.
func (s Shape) NumTrees() int {
	if s == Triangle {
		return 2
	}
	return 1
}

// root returns the vertices of a tree, counterclockwise.
func (s Shape) root(tree int) []vec.Vec2 {
	if s == Triangle {
		if tree == 0 {
			return []vec.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
		}
		return []vec.Vec2{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	}

	return []vec.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
}

// child returns the vertices of the i-th child of a cell with vertices v.
//
// Quads: child ids follow the Morton order, bit 0 selecting the right half
// and bit 1 the upper half.
//
// Triangles: children 0, 1 and 2 sit at vertices 0, 1 and 2; child 3 is the
// middle triangle spanned by the edge midpoints.
func (s Shape) child(v []vec.Vec2, i int) []vec.Vec2 {
	if s == Triangle {
		m01 := midpoint(v[0], v[1])
		m12 := midpoint(v[1], v[2])
		m02 := midpoint(v[0], v[2])

		switch i {
		case 0:
			return []vec.Vec2{v[0], m01, m02}
		case 1:
			return []vec.Vec2{m01, v[1], m12}
		case 2:
			return []vec.Vec2{m02, m12, v[2]}
		default:
			return []vec.Vec2{m12, m02, m01}
		}
	}

	lo, hi := v[0], v[2]
	mid := midpoint(lo, hi)

	x0, x1 := lo.X, mid.X
	if i&1 != 0 {
		x0, x1 = mid.X, hi.X
	}

	y0, y1 := lo.Y, mid.Y
	if i&2 != 0 {
		y0, y1 = mid.Y, hi.Y
	}

	return []vec.Vec2{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

// vertices computes the geometry of a cell by descending from its tree root.
func (s Shape) vertices(k Key) []vec.Vec2 {
	v := s.root(k.Tree)
	for level := 1; level <= k.Level; level++ {
		v = s.child(v, k.Digit(level))
	}
	return v
}

func midpoint(a, b vec.Vec2) vec.Vec2 {
	return vec.Vec2{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}
