// Package radex is the entry point for sweeping one molecular species
// through the RADEX solver.
//
// A Calculator is built once per species: it makes sure the species' LAMDA
// data file is available locally, parses it, and resolves the default
// parameters and units from configuration. Each Run sweeps one transition
// over the Cartesian grid of the default parameters with any overrides
// applied.
//
// Example:
//
//	calc, err := radex.New(ctx, cfg, "CO")
//	if err != nil {
//		return err
//	}
//	res, err := calc.Run(ctx, "3-2", map[string]units.Quantity{
//		"T_kin": units.Array([]float64{100, 200, 300}, units.MustParse("K")),
//	})
package radex

import (
	"context"
	"errors"
	"fmt"

	"github.com/snoopython/wradex/internal/config"
	"github.com/snoopython/wradex/internal/ctxlog"
	"github.com/snoopython/wradex/internal/grid"
	"github.com/snoopython/wradex/internal/moldata"
	"github.com/snoopython/wradex/internal/solver"
	"github.com/snoopython/wradex/internal/sweep"
	"github.com/snoopython/wradex/internal/units"
)

var (
	ErrUnknownTransition = errors.New("radex: unknown transition")
	ErrInvalidParameter  = errors.New("radex: invalid parameter")
)

// FreqHalfWidth is the half width in GHz of the window around the rest
// frequency that isolates one line in the solver output.
const FreqHalfWidth = 0.001

type options struct {
	invoker    solver.Invoker
	fetcher    moldata.Fetcher
	fetcherSet bool
	observers  []sweep.Observer
}

type Option func(*options)

// WithInvoker replaces the RADEX executable with inv.
func WithInvoker(inv solver.Invoker) Option {
	return func(o *options) { o.invoker = inv }
}

// WithFetcher sets how missing data files are retrieved. A nil fetcher
// disables downloads.
func WithFetcher(f moldata.Fetcher) Option {
	return func(o *options) {
		o.fetcher = f
		o.fetcherSet = true
	}
}

// WithObserver registers an observer notified after every solver call.
func WithObserver(obs sweep.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// Calculator owns one species' molecular data and default parameters.
type Calculator struct {
	species     string
	moldataFile string
	data        *moldata.Data
	names       []string
	defaults    map[string]units.Quantity
	inputUnits  map[string]units.Unit
	engine      *sweep.Engine
}

// New prepares a calculator for species. The species must be listed in the
// configuration's catalog; its data file is downloaded when missing.
func New(ctx context.Context, cfg *config.Config, species string, opts ...Option) (*Calculator, error) {
	file, ok := cfg.MoldataFile(species)
	if !ok {
		return nil, fmt.Errorf("%w: species %q is not in moldata_list", moldata.ErrDataNotFound, species)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if !o.fetcherSet {
		o.fetcher = moldata.NewHTTPFetcher(cfg.MoldataURL)
	}

	names, defaults, err := cfg.DefaultParams()
	if err != nil {
		return nil, err
	}
	inputUnits, err := cfg.InputUnits()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		u, ok := inputUnits[name]
		if !ok {
			return nil, fmt.Errorf("%w: radex_input_units has no entry for %s", config.ErrInvalidConfig, name)
		}
		if q := defaults[name]; !q.Unit.Compatible(u) {
			return nil, fmt.Errorf("%w: radex_params.%s: %s is not convertible to %s",
				config.ErrInvalidConfig, name, q.Unit, u)
		}
	}
	outNames, outUnits, err := cfg.OutputUnits()
	if err != nil {
		return nil, err
	}

	data, err := moldata.Open(ctx, cfg.MoldataDir, file, o.fetcher)
	if err != nil {
		return nil, err
	}

	if o.invoker == nil {
		inv, err := solver.NewRadex(solver.Config{
			Path:       cfg.RadexPath,
			Input:      cfg.RadexInput,
			OutputPath: cfg.RadexOutput,
			LogPath:    cfg.RadexLog,
			Timeout:    cfg.RadexTimeout,
			Outputs:    outNames,
		})
		if err != nil {
			return nil, err
		}
		o.invoker = inv
	}

	outputs := make([]sweep.Output, len(outNames))
	for i, name := range outNames {
		outputs[i] = sweep.Output{Name: name, Unit: outUnits[name]}
	}
	engine := sweep.New(o.invoker, outputs)
	for _, obs := range o.observers {
		engine.AddObserver(obs)
	}

	ctxlog.FromContext(ctx).Debug("calculator ready",
		"species", species, "moldata", file, "levels", len(data.Levels), "transitions", len(data.Transitions))

	return &Calculator{
		species:     species,
		moldataFile: file,
		data:        data,
		names:       names,
		defaults:    defaults,
		inputUnits:  inputUnits,
		engine:      engine,
	}, nil
}

// Run sweeps transition over the defaults merged with overrides. Override
// names must be default parameters and their units must convert to the
// parameter's input unit; the solver is not called otherwise.
func (c *Calculator) Run(ctx context.Context, transition string, overrides map[string]units.Quantity) (*sweep.Result, error) {
	tr, ok := c.data.Transition(transition)
	if !ok {
		return nil, fmt.Errorf("%w: %q for %s", ErrUnknownTransition, transition, c.species)
	}

	params := make(map[string]units.Quantity, len(c.defaults))
	for name, q := range c.defaults {
		params[name] = q
	}
	for name, q := range overrides {
		if _, ok := c.defaults[name]; !ok {
			return nil, fmt.Errorf("%w: %q is not a solver parameter", ErrInvalidParameter, name)
		}
		if !q.Unit.Compatible(c.inputUnits[name]) {
			return nil, fmt.Errorf("%w: %s in %q is not convertible to %s",
				ErrInvalidParameter, name, q.Unit, c.inputUnits[name])
		}
		params[name] = q
	}

	g, err := grid.New(c.names, params, c.inputUnits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}

	req := solver.Request{
		Moldata: c.moldataFile,
		FreqMin: tr.FreqRest - FreqHalfWidth,
		FreqMax: tr.FreqRest + FreqHalfWidth,
	}

	ctxlog.FromContext(ctx).Info("running sweep",
		"species", c.species, "transition", transition, "shape", g.Shape(), "cells", g.Size())
	return c.engine.Run(ctx, g, req)
}

func (c *Calculator) Species() string     { return c.species }
func (c *Calculator) MoldataFile() string { return c.moldataFile }
func (c *Calculator) Molecule() string    { return c.data.Molecule }

// Transitions lists the transition keys in data file order.
func (c *Calculator) Transitions() []string { return c.data.Keys() }

func (c *Calculator) Transition(key string) (moldata.Transition, bool) {
	return c.data.Transition(key)
}

func (c *Calculator) EnergyLevels() []moldata.EnergyLevel {
	return append([]moldata.EnergyLevel(nil), c.data.Levels...)
}

// Param returns the default value of a solver parameter.
func (c *Calculator) Param(name string) (units.Quantity, bool) {
	q, ok := c.defaults[name]
	return q, ok
}

// ParamNames returns the parameter names in grid axis order.
func (c *Calculator) ParamNames() []string {
	return append([]string(nil), c.names...)
}

// Defaults returns a copy of the default parameters.
func (c *Calculator) Defaults() map[string]units.Quantity {
	out := make(map[string]units.Quantity, len(c.defaults))
	for name, q := range c.defaults {
		out[name] = q
	}
	return out
}

func (c *Calculator) String() string {
	return fmt.Sprintf("RADEX(%s)", c.species)
}
