// Package sweep runs a solver over every cell of a parameter grid and
// assembles the per-cell records into unit-tagged arrays.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ctessum/sparse"
	"github.com/snoopython/wradex/internal/ctxlog"
	"github.com/snoopython/wradex/internal/grid"
	"github.com/snoopython/wradex/internal/solver"
	"github.com/snoopython/wradex/internal/units"
	"gonum.org/v1/gonum/floats"
)

var ghz = units.MustParse("GHz")

// Output declares one solver output quantity and its unit.
type Output struct {
	Name string
	Unit units.Unit
}

// Observer is notified after every cell. done counts finished cells.
type Observer interface {
	OnCell(cell grid.Cell, rec solver.Record, done, total int)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(cell grid.Cell, rec solver.Record, done, total int)

func (f ObserverFunc) OnCell(cell grid.Cell, rec solver.Record, done, total int) {
	f(cell, rec, done, total)
}

// Result holds the resolved parameters and outputs of one sweep.
// Params and Outputs are squeezed; Shape is the grid shape before squeezing.
type Result struct {
	Params      map[string]units.Quantity
	ParamOrder  []string
	Outputs     map[string]units.Quantity
	OutputOrder []string
	Shape       []int
	Axes        []string
	Moldata     string
	FreqMin     units.Quantity
	FreqMax     units.Quantity
	Cells       int
	Failed      int
	Elapsed     time.Duration
}

// Engine drives an Invoker across a grid, one cell at a time.
type Engine struct {
	invoker   solver.Invoker
	outputs   []Output
	observers []Observer
}

func New(invoker solver.Invoker, outputs []Output) *Engine {
	return &Engine{
		invoker:   invoker,
		outputs:   append([]Output(nil), outputs...),
		observers: make([]Observer, 0),
	}
}

func (e *Engine) AddObserver(o Observer) { e.observers = append(e.observers, o) }

// Run invokes the solver once per cell in row-major order. base supplies the
// molecular data file and frequency window; its Params are replaced per cell.
// Unparseable solver output becomes NaN for that cell; any other solver error
// aborts the sweep.
func (e *Engine) Run(ctx context.Context, g *grid.Grid, base solver.Request) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()

	shape := g.Shape()
	total := g.Size()

	arrays := make(map[string]*sparse.DenseArray, len(e.outputs))
	for _, o := range e.outputs {
		arrays[o.Name] = units.NewDense(shape...)
	}

	done, failed := 0, 0
	vals := make([]float64, len(e.outputs))
	err := g.Walk(ctx, func(cell grid.Cell) error {
		req := base
		req.Params = cell.Values

		rec, err := e.invoker.Invoke(ctx, req)
		switch {
		case errors.Is(err, solver.ErrOutputParse):
			logger.Warn("unparseable solver output, recording NaN", "index", cell.Index, "error", err)
		case err != nil:
			return fmt.Errorf("sweep: cell %v: %w", cell.Index, err)
		}

		for i, o := range e.outputs {
			v, ok := rec[o.Name]
			if !ok {
				v = math.NaN()
			}
			arrays[o.Name].Set(v, cell.Index...)
			vals[i] = v
		}
		if floats.Count(math.IsNaN, vals) > 0 {
			failed++
		}

		done++
		for _, obs := range e.observers {
			obs.OnCell(cell, rec, done, total)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Params:      make(map[string]units.Quantity, len(g.Names())),
		ParamOrder:  g.Names(),
		Outputs:     make(map[string]units.Quantity, len(e.outputs)),
		OutputOrder: make([]string, 0, len(e.outputs)),
		Shape:       shape,
		Axes:        survivingAxes(g.Axes(), shape),
		Moldata:     base.Moldata,
		FreqMin:     units.Scalar(base.FreqMin, ghz),
		FreqMax:     units.Scalar(base.FreqMax, ghz),
		Cells:       total,
		Failed:      failed,
	}

	for _, name := range res.ParamOrder {
		mesh, err := g.Mesh(name)
		if err != nil {
			return nil, err
		}
		res.Params[name] = Quantity(mesh, g.Unit(name))
	}
	for _, o := range e.outputs {
		res.OutputOrder = append(res.OutputOrder, o.Name)
		res.Outputs[o.Name] = units.Quantity{Data: Squeeze(arrays[o.Name]), Unit: o.Unit}
	}
	res.Elapsed = time.Since(start)

	logger.Debug("sweep finished", "cells", total, "failed", failed, "elapsed", res.Elapsed)
	return res, nil
}

// Quantity collapses an array whose elements are all identical to a scalar
// and squeezes any other array.
func Quantity(d *sparse.DenseArray, u units.Unit) units.Quantity {
	if len(d.Elements) > 0 && floats.Min(d.Elements) == floats.Max(d.Elements) {
		return units.Scalar(d.Elements[0], u)
	}
	return units.Quantity{Data: Squeeze(d), Unit: u}
}

// Squeeze returns a copy of d with every length-1 axis removed. Element order
// is unchanged; an array of only length-1 axes becomes a scalar.
func Squeeze(d *sparse.DenseArray) *sparse.DenseArray {
	shape := make([]int, 0, len(d.Shape))
	for _, n := range d.Shape {
		if n != 1 {
			shape = append(shape, n)
		}
	}
	return units.DenseOf(d.Elements, shape...)
}

func survivingAxes(names []string, shape []int) []string {
	out := make([]string, 0, len(names))
	for i, name := range names {
		if shape[i] != 1 {
			out = append(out, name)
		}
	}
	return out
}
