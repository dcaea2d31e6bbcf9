package viz

import (
	"math"

	"github.com/guptarohit/asciigraph"
)

// Plot draws values as an ASCII line chart. NaN values are dropped.
func Plot(values []float64, caption string, width, height int) string {
	data := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			data = append(data, v)
		}
	}
	if len(data) == 0 {
		return Subtle.Render("(no finite values)")
	}

	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}
