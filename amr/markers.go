package amr

import (
	"fmt"

	"github.com/aukilabs/png2mesh/mesh"
)

// Markers holds one refinement flag per local leaf of one forest. It is tied
// to the forest it was reset against: using it with another forest panics.
type Markers struct {
	generation uint64
	marked     []bool
	count      int
}

// Reset sizes the markers to the local leaves of f and clears them.
func (m *Markers) Reset(f *mesh.Forest) {
	n := f.LocalCount()
	if cap(m.marked) < n {
		m.marked = make([]bool, n)
	} else {
		m.marked = m.marked[:n]
		clear(m.marked)
	}

	m.generation = f.Generation()
	m.count = 0
}

// Release drops the markers. They must be reset before being used again.
func (m *Markers) Release() {
	m.marked = nil
	m.generation = 0
	m.count = 0
}

// Set marks the i-th local leaf. Marking is idempotent.
func (m *Markers) Set(i int) {
	m.checkIndex(i)

	if !m.marked[i] {
		m.marked[i] = true
		m.count++
	}
}

// IsSet reports whether the i-th local leaf of f is marked.
func (m *Markers) IsSet(f *mesh.Forest, i int) bool {
	m.check(f)
	m.checkIndex(i)
	return m.marked[i]
}

// Count returns the number of marked leaves.
func (m *Markers) Count() int {
	return m.count
}

// Len returns the number of leaves the markers were sized for.
func (m *Markers) Len() int {
	return len(m.marked)
}

func (m *Markers) check(f *mesh.Forest) {
	if m.generation == 0 {
		panic("markers used before reset")
	}

	if m.generation != f.Generation() || len(m.marked) != f.LocalCount() {
		panic(fmt.Sprintf("markers of forest %d (%d leaves) used with forest %d (%d leaves)",
			m.generation,
			len(m.marked),
			f.Generation(),
			f.LocalCount(),
		))
	}
}

func (m *Markers) checkIndex(i int) {
	if i < 0 || i >= len(m.marked) {
		panic(fmt.Sprintf("marker index %d out of range [0, %d)", i, len(m.marked)))
	}
}
