package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/snoopython/wradex/internal/config"
	"github.com/snoopython/wradex/internal/ctxlog"
	"github.com/snoopython/wradex/internal/grid"
	"github.com/snoopython/wradex/internal/radex"
	"github.com/snoopython/wradex/internal/report"
	"github.com/snoopython/wradex/internal/solver"
	"github.com/snoopython/wradex/internal/storage"
	"github.com/snoopython/wradex/internal/sweep"
	"github.com/snoopython/wradex/internal/units"
	"github.com/snoopython/wradex/internal/viz"
	"github.com/spf13/cobra"
)

// loadConfig reads the configuration once. The default location is created
// on first use.
func (a *app) loadConfig(ctx context.Context) (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	path := a.configFile
	if path == "" {
		path = config.DefaultPath()
		created, err := config.EnsureFile(path)
		if err != nil {
			return nil, err
		}
		if created {
			ctxlog.FromContext(ctx).Info("wrote default configuration", "path", path)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ExpandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) initConfig(cmd *cobra.Command, args []string) error {
	path := a.configFile
	if path == "" {
		path = config.DefaultPath()
	}
	created, err := config.EnsureFile(path)
	if err != nil {
		return err
	}
	if !created {
		fmt.Fprintf(a.out, "config already exists: %s\n", path)
		return nil
	}
	fmt.Fprintf(a.out, "wrote %s\n", path)
	return nil
}

func (a *app) listMolecules(cmd *cobra.Command, args []string) error {
	cfg, err := a.loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SPECIES\tFILE\tLOCAL")
	for _, name := range cfg.Species() {
		file, _ := cfg.MoldataFile(name)
		local := "no"
		if _, err := os.Stat(filepath.Join(cfg.MoldataDir, file)); err == nil {
			local = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, file, local)
	}
	return w.Flush()
}

func (a *app) listTransitions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	calc, err := radex.New(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, viz.Header.Render(fmt.Sprintf("%s  (%s, %d levels)",
		calc, calc.MoldataFile(), len(calc.EnergyLevels()))))

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRANSITION\tFREQ [GHz]\tA_ul [s^-1]\tE_u [K]")
	for _, key := range calc.Transitions() {
		tr, _ := calc.Transition(key)
		fmt.Fprintf(w, "%s\t%.7f\t%.3e\t%.2f\n", key, tr.FreqRest, tr.AUL, tr.EUpper)
	}
	return w.Flush()
}

func (a *app) listPresets(cmd *cobra.Command, args []string) error {
	cfg, err := a.loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tPARAMETERS\tDESCRIPTION")
	for _, name := range cfg.ListPresets() {
		p, _ := cfg.GetPreset(name)
		parts := make([]string, len(p.Params))
		for i, e := range p.Params {
			parts[i] = e.Name + "=" + e.Value
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, strings.Join(parts, ", "), p.Description)
	}
	return w.Flush()
}

// overrides merges the preset and the --set flags, later values winning.
func (a *app) overrides(cfg *config.Config) (map[string]units.Quantity, error) {
	var entries config.Entries
	if a.preset != "" {
		p, ok := cfg.GetPreset(a.preset)
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", a.preset)
		}
		for _, e := range p.Params {
			entries.Set(e.Name, e.Value)
		}
	}
	for _, s := range a.sets {
		name, value, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: want name=value", s)
		}
		entries.Set(strings.TrimSpace(name), value)
	}

	out := make(map[string]units.Quantity, len(entries))
	for _, e := range entries {
		q, err := units.ParseQuantity(e.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		out[e.Name] = q
	}
	return out, nil
}

// relay forwards to an observer chosen after the calculator is built.
type relay struct {
	target sweep.Observer
}

func (r *relay) OnCell(cell grid.Cell, rec solver.Record, done, total int) {
	if r.target != nil {
		r.target.OnCell(cell, rec, done, total)
	}
}

func (a *app) runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := ctxlog.FromContext(ctx)
	species, transition := args[0], args[1]

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	overrides, err := a.overrides(cfg)
	if err != nil {
		return err
	}

	obs := &relay{}
	calc, err := radex.New(ctx, cfg, species, radex.WithObserver(obs))
	if err != nil {
		return err
	}

	var res *sweep.Result
	run := func(ctx context.Context, o sweep.Observer) error {
		obs.target = o
		var err error
		res, err = calc.Run(ctx, transition, overrides)
		return err
	}

	if a.progress {
		title := fmt.Sprintf("%s %s", calc, transition)
		err = viz.RunWithProgress(ctx, title, a.watch, gridSize(calc.Defaults(), overrides), run)
	} else {
		err = run(ctx, nil)
	}
	if err != nil {
		return err
	}

	a.printResult(calc, transition, res)

	if a.noSave {
		if a.plotFile != "" {
			return errors.New("--plot needs a saved run")
		}
		return nil
	}

	st := storage.New(a.dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(species, transition, res)
	if err != nil {
		return err
	}
	logger.Info("run saved", "id", runID, "dir", a.dataDir)
	fmt.Fprintf(a.out, "\nrun saved: %s\n", runID)

	if a.plotFile != "" {
		return a.writePNG(st, runID, a.output, a.plotFile)
	}
	return nil
}

func gridSize(defaults, overrides map[string]units.Quantity) int {
	n := 1
	for name, q := range defaults {
		if o, ok := overrides[name]; ok {
			q = o
		}
		if !q.IsScalar() {
			n *= q.Len()
		}
	}
	return n
}

func (a *app) printResult(calc *radex.Calculator, transition string, res *sweep.Result) {
	fmt.Fprintln(a.out, viz.Header.Render(fmt.Sprintf("%s %s", calc, transition)))

	width := len("moldata")
	for _, name := range res.ParamOrder {
		width = max(width, len(name))
	}
	for _, name := range res.OutputOrder {
		width = max(width, len(name))
	}

	fmt.Fprintln(a.out, viz.KeyValue("moldata", width, res.Moldata))
	fmt.Fprintln(a.out, viz.KeyValue("f_min", width, res.FreqMin.String()))
	fmt.Fprintln(a.out, viz.KeyValue("f_max", width, res.FreqMax.String()))
	for _, name := range res.ParamOrder {
		fmt.Fprintln(a.out, viz.KeyValue(name, width, res.Params[name].String()))
	}

	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, viz.Separator(40))
	for _, name := range res.OutputOrder {
		fmt.Fprintln(a.out, viz.KeyValue(name, width, res.Outputs[name].String()))
	}

	status := viz.StatusOK.Render(fmt.Sprintf("%d cells in %s", res.Cells, res.Elapsed.Round(time.Millisecond)))
	if res.Failed > 0 {
		status += "  " + viz.StatusWarn.Render(fmt.Sprintf("%d with NaN output", res.Failed))
	}
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, status)
}

func (a *app) listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(a.dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(a.out, "no runs found")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSPECIES\tTRANSITION\tTIME\tSHAPE\tAXES\tFAILED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\t%d/%d\n",
			run.ID,
			run.Species,
			run.Transition,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Shape,
			strings.Join(run.Axes, ","),
			run.Failed,
			run.Cells,
		)
	}
	return w.Flush()
}

func (a *app) showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(a.dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	table, err := st.LoadTable(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, viz.Header.Render(fmt.Sprintf("%s %s  (%s)", meta.Species, meta.Transition, meta.ID)))
	fmt.Fprintf(a.out, "window %.7f-%.7f GHz, %d cells, %d failed\n\n", meta.FreqMin, meta.FreqMax, meta.Cells, meta.Failed)

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	header := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = report.AxisLabel(meta, c)
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, row := range table.Rows {
		fields := make([]string, len(row))
		for i, v := range row {
			fields[i] = strconv.FormatFloat(v, 'g', 6, 64)
		}
		fmt.Fprintln(w, strings.Join(fields, "\t"))
	}
	return w.Flush()
}

func (a *app) plotRun(cmd *cobra.Command, args []string) error {
	runID, output := args[0], args[1]
	st := storage.New(a.dataDir)

	if a.pngFile != "" {
		if err := a.writePNG(st, runID, output, a.pngFile); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "wrote %s\n", a.pngFile)
		return nil
	}

	meta, series, err := a.series(st, runID, output)
	if err != nil {
		return err
	}
	for _, s := range series {
		caption := fmt.Sprintf("%s vs %s", report.AxisLabel(meta, output), report.AxisLabel(meta, a.plotAxis(meta)))
		if s.Label != "" {
			caption += "  " + s.Label
		}
		fmt.Fprintln(a.out, viz.Plot(s.Y, caption, a.width, a.height))
		fmt.Fprintln(a.out)
	}
	return nil
}

func (a *app) plotAxis(meta *storage.RunMetadata) string {
	if a.xAxis != "" {
		return a.xAxis
	}
	if len(meta.Axes) > 0 {
		return meta.Axes[0]
	}
	return ""
}

func (a *app) series(st *storage.Store, runID, output string) (*storage.RunMetadata, []report.Series, error) {
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	x := a.plotAxis(meta)
	if x == "" {
		return nil, nil, fmt.Errorf("run %s has no sweep axis to plot against", runID)
	}
	table, err := st.LoadTable(runID)
	if err != nil {
		return nil, nil, err
	}
	series, err := report.TableSeries(meta, table, x, output)
	if err != nil {
		return nil, nil, err
	}
	return meta, series, nil
}

func (a *app) writePNG(st *storage.Store, runID, output, path string) error {
	meta, series, err := a.series(st, runID, output)
	if err != nil {
		return err
	}
	x := a.plotAxis(meta)
	png, err := report.LinePlot(report.LineSpec{
		Title:  fmt.Sprintf("%s %s", meta.Species, meta.Transition),
		XLabel: report.AxisLabel(meta, x),
		YLabel: report.AxisLabel(meta, output),
		LogX:   logSpaced(series),
		Series: series,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, png, 0644)
}

// logSpaced reports whether the x values span more than two decades, as
// density and column density sweeps usually do.
func logSpaced(series []report.Series) bool {
	lo, hi := 0.0, 0.0
	for _, s := range series {
		for _, x := range s.X {
			if x <= 0 {
				return false
			}
			if lo == 0 || x < lo {
				lo = x
			}
			hi = max(hi, x)
		}
	}
	return lo > 0 && hi/lo > 100
}

func (a *app) exportRun(cmd *cobra.Command, args []string) error {
	return storage.New(a.dataDir).ExportJSON(a.out, args[0])
}
