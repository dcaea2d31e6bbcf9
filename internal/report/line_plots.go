// Package report renders saved sweeps as PNG line plots.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/snoopython/wradex/internal/storage"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoData indicates a plot request with nothing to draw.
var ErrNoData = errors.New("report: no data to plot")

// Series is one line of a plot.
type Series struct {
	Label string
	X, Y  []float64
}

// LineSpec describes a line plot.
type LineSpec struct {
	Title  string
	XLabel string
	YLabel string
	LogX   bool
	LogY   bool
	Series []Series
}

var plotColors = []color.Color{
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
	color.RGBA{R: 255, G: 127, B: 14, A: 255},
	color.RGBA{R: 44, G: 160, B: 44, A: 255},
	color.RGBA{R: 214, G: 39, B: 40, A: 255},
	color.RGBA{R: 148, G: 103, B: 189, A: 255},
	color.RGBA{R: 140, G: 86, B: 75, A: 255},
}

// LinePlot draws spec and returns the PNG bytes. NaN points are skipped, as
// are non-positive points on a logarithmic axis.
func LinePlot(spec LineSpec) ([]byte, error) {
	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = spec.XLabel
	p.Y.Label.Text = spec.YLabel
	if spec.LogX {
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	if spec.LogY {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	p.Add(plotter.NewGrid())

	plotted := 0
	for i, s := range spec.Series {
		pts := make(plotter.XYs, 0, len(s.X))
		for j := range s.X {
			x, y := s.X[j], s.Y[j]
			if math.IsNaN(x) || math.IsNaN(y) {
				continue
			}
			if (spec.LogX && x <= 0) || (spec.LogY && y <= 0) {
				continue
			}
			pts = append(pts, plotter.XY{X: x, Y: y})
		}
		if len(pts) == 0 {
			continue
		}

		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create line for %s: %v", s.Label, err)
		}
		c := plotColors[i%len(plotColors)]
		line.Color = c
		line.LineStyle.Width = vg.Points(1.5)
		points.Color = c

		p.Add(line, points)
		if s.Label != "" {
			p.Legend.Add(s.Label, line, points)
		}
		plotted++
	}
	if plotted == 0 {
		return nil, ErrNoData
	}

	p.Legend.Top = true
	p.Legend.XOffs = vg.Points(-10)

	writer, err := p.WriterTo(vg.Points(800), vg.Points(400), "png")
	if err != nil {
		return nil, fmt.Errorf("failed to create plot writer: %v", err)
	}
	buf := new(bytes.Buffer)
	if _, err := writer.WriteTo(buf); err != nil {
		return nil, fmt.Errorf("failed to write plot to buffer: %v", err)
	}
	return buf.Bytes(), nil
}

// TableSeries splits a run's cell table into lines of y against x, one line
// per combination of the run's other sweep axes.
func TableSeries(meta *storage.RunMetadata, table *storage.Table, x, y string) ([]Series, error) {
	xs, ok := table.Column(x)
	if !ok {
		return nil, fmt.Errorf("%w: no column %q", ErrNoData, x)
	}
	ys, ok := table.Column(y)
	if !ok {
		return nil, fmt.Errorf("%w: no column %q", ErrNoData, y)
	}

	var others []string
	for _, a := range meta.Axes {
		if a != x {
			others = append(others, a)
		}
	}
	otherCols := make([][]float64, len(others))
	for i, name := range others {
		otherCols[i], _ = table.Column(name)
	}

	index := make(map[string]int)
	var series []Series
	for k := range xs {
		parts := make([]string, len(others))
		for i, name := range others {
			parts[i] = name + "=" + strconv.FormatFloat(otherCols[i][k], 'g', 4, 64)
		}
		label := strings.Join(parts, " ")

		j, ok := index[label]
		if !ok {
			j = len(series)
			index[label] = j
			series = append(series, Series{Label: label})
		}
		series[j].X = append(series[j].X, xs[k])
		series[j].Y = append(series[j].Y, ys[k])
	}

	for i := range series {
		sort.Sort(byX(series[i]))
	}
	return series, nil
}

type byX Series

func (s byX) Len() int           { return len(s.X) }
func (s byX) Less(i, j int) bool { return s.X[i] < s.X[j] }
func (s byX) Swap(i, j int) {
	s.X[i], s.X[j] = s.X[j], s.X[i]
	s.Y[i], s.Y[j] = s.Y[j], s.Y[i]
}

// AxisLabel formats a column name with its unit.
func AxisLabel(meta *storage.RunMetadata, column string) string {
	if u := meta.Unit(column); u != "" {
		return fmt.Sprintf("%s [%s]", column, u)
	}
	return column
}
