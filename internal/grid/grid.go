// Package grid builds the Cartesian product of physical parameters that a
// sweep walks one cell at a time.
//
// Every array-valued parameter contributes one axis, in the order the
// parameter names are given; scalar parameters contribute none. A grid with
// no array-valued parameters has the empty shape and exactly one cell.
package grid

import (
	"context"
	"errors"
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/snoopython/wradex/internal/units"
)

// ErrInvalidParameter indicates a parameter that cannot take part in a grid.
var ErrInvalidParameter = errors.New("grid: invalid parameter")

// Cell is one fully resolved parameter record, expressed in input units.
type Cell struct {
	Index  []int
	Values map[string]float64
}

type axis struct {
	name   string
	values []float64
}

// Grid is the outer product of all array-valued parameters.
type Grid struct {
	names   []string
	units   map[string]units.Unit
	scalars map[string]float64
	axes    []axis
}

// New converts every parameter to its input unit and lays out the axes in
// the order given by names. params must hold exactly the names listed.
func New(names []string, params map[string]units.Quantity, inputUnits map[string]units.Unit) (*Grid, error) {
	if len(params) != len(names) {
		for key := range params {
			if !contains(names, key) {
				return nil, fmt.Errorf("%w: %q is not a grid parameter", ErrInvalidParameter, key)
			}
		}
	}

	g := &Grid{
		names:   append([]string(nil), names...),
		units:   make(map[string]units.Unit, len(names)),
		scalars: make(map[string]float64),
	}

	for _, name := range names {
		q, ok := params[name]
		if !ok || q.Data == nil {
			return nil, fmt.Errorf("%w: %q has no value", ErrInvalidParameter, name)
		}
		u, ok := inputUnits[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q has no input unit", ErrInvalidParameter, name)
		}
		conv, err := q.To(u)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidParameter, name, err)
		}
		g.units[name] = u

		if conv.IsScalar() {
			g.scalars[name] = conv.Value()
			continue
		}
		if conv.Len() == 0 {
			return nil, fmt.Errorf("%w: %q is an empty array", ErrInvalidParameter, name)
		}
		g.axes = append(g.axes, axis{name: name, values: conv.Values()})
	}

	return g, nil
}

// Names returns the parameter names in axis order.
func (g *Grid) Names() []string {
	return append([]string(nil), g.names...)
}

// Axes returns the names of the array-valued parameters, one per axis.
func (g *Grid) Axes() []string {
	names := make([]string, len(g.axes))
	for i, a := range g.axes {
		names[i] = a.name
	}
	return names
}

// Shape returns the axis lengths. All-scalar grids have the empty shape.
func (g *Grid) Shape() []int {
	shape := make([]int, len(g.axes))
	for i, a := range g.axes {
		shape[i] = len(a.values)
	}
	return shape
}

// Size is the number of cells.
func (g *Grid) Size() int {
	n := 1
	for _, a := range g.axes {
		n *= len(a.values)
	}
	return n
}

// Unit returns the input unit of the named parameter.
func (g *Grid) Unit(name string) units.Unit {
	return g.units[name]
}

// Cell resolves one coordinate.
func (g *Grid) Cell(idx ...int) (Cell, error) {
	if len(idx) != len(g.axes) {
		return Cell{}, fmt.Errorf("grid: index %v has %d axes, grid has %d", idx, len(idx), len(g.axes))
	}
	for i, a := range g.axes {
		if idx[i] < 0 || idx[i] >= len(a.values) {
			return Cell{}, fmt.Errorf("grid: index %v out of range for shape %v", idx, g.Shape())
		}
	}
	return g.cell(idx), nil
}

func (g *Grid) cell(idx []int) Cell {
	c := Cell{
		Index:  append([]int{}, idx...),
		Values: make(map[string]float64, len(g.names)),
	}
	for name, v := range g.scalars {
		c.Values[name] = v
	}
	for i, a := range g.axes {
		c.Values[a.name] = a.values[idx[i]]
	}
	return c
}

// Walk visits every cell in row-major order, last axis fastest. It stops at
// the first error returned by fn or when ctx is done.
func (g *Grid) Walk(ctx context.Context, fn func(Cell) error) error {
	return g.walk(ctx, 0, make([]int, len(g.axes)), fn)
}

func (g *Grid) walk(ctx context.Context, depth int, idx []int, fn func(Cell) error) error {
	if depth == len(g.axes) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(g.cell(idx))
	}

	for i := range g.axes[depth].values {
		idx[depth] = i
		if err := g.walk(ctx, depth+1, idx, fn); err != nil {
			return err
		}
	}
	return nil
}

// Mesh returns the value of the named parameter at every cell, shaped like
// the grid (matrix "ij" indexing).
func (g *Grid) Mesh(name string) (*sparse.DenseArray, error) {
	if _, ok := g.units[name]; !ok {
		return nil, fmt.Errorf("%w: %q is not a grid parameter", ErrInvalidParameter, name)
	}

	mesh := units.NewDense(g.Shape()...)
	for k := range mesh.Elements {
		mesh.Elements[k] = g.cell(mesh.IndexNd(k)).Values[name]
	}
	return mesh, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
