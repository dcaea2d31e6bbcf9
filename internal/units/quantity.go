package units

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Quantity is an N-dimensional array of values sharing one unit.
// A zero-dimensional array (empty shape, one element) is a scalar.
type Quantity struct {
	Data *sparse.DenseArray
	Unit Unit
}

// NewDense allocates a zero-filled array of the given shape. The empty
// shape yields a single-element scalar array.
func NewDense(shape ...int) *sparse.DenseArray {
	if shape == nil {
		shape = []int{}
	}
	return sparse.ZerosDense(shape...)
}

// DenseOf returns an array of the given shape holding a copy of vals in
// row-major order.
func DenseOf(vals []float64, shape ...int) *sparse.DenseArray {
	d := NewDense(shape...)
	copy(d.Elements, vals)
	return d
}

// Scalar returns a zero-dimensional quantity.
func Scalar(v float64, u Unit) Quantity {
	d := NewDense()
	d.Elements[0] = v
	return Quantity{Data: d, Unit: u}
}

// Array returns a one-dimensional quantity holding a copy of vals.
func Array(vals []float64, u Unit) Quantity {
	return Quantity{Data: DenseOf(vals, len(vals)), Unit: u}
}

// IsScalar reports whether q has no axes.
func (q Quantity) IsScalar() bool {
	return q.Data != nil && len(q.Data.Shape) == 0
}

// Len is the number of elements.
func (q Quantity) Len() int {
	if q.Data == nil {
		return 0
	}
	return len(q.Data.Elements)
}

// Shape returns a copy of the array shape.
func (q Quantity) Shape() []int {
	if q.Data == nil {
		return nil
	}
	return append([]int{}, q.Data.Shape...)
}

// Value returns the first element, which is the value of a scalar.
func (q Quantity) Value() float64 {
	return q.Data.Elements[0]
}

// Values returns a row-major copy of every element.
func (q Quantity) Values() []float64 {
	if q.Data == nil {
		return nil
	}
	return append([]float64(nil), q.Data.Elements...)
}

// To converts q into the unit u, leaving q untouched.
func (q Quantity) To(u Unit) (Quantity, error) {
	f, err := q.Unit.Factor(u)
	if err != nil {
		return Quantity{}, err
	}
	d := NewDense(q.Shape()...)
	for i, v := range q.Data.Elements {
		d.Elements[i] = v * f
	}
	return Quantity{Data: d, Unit: u}, nil
}

func (q Quantity) String() string {
	if q.Data == nil {
		return "<nil>"
	}
	var b strings.Builder
	if q.IsScalar() {
		b.WriteString(formatFloat(q.Value()))
	} else {
		b.WriteByte('[')
		for i, v := range q.Data.Elements {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(formatFloat(v))
		}
		b.WriteByte(']')
	}
	if q.Unit.String() != "" {
		b.WriteByte(' ')
		b.WriteString(q.Unit.String())
	}
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// ParseQuantity reads "<values> [unit]". The value part is one of
//
//	100             scalar
//	10,20,30        explicit list
//	10:100:10       inclusive linear span of 10 points
//	log:1e3:1e6:4   inclusive logarithmic span of 4 points
func ParseQuantity(s string) (Quantity, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Quantity{}, fmt.Errorf("%w: empty", ErrInvalidQuantity)
	}
	u, err := Parse(strings.Join(fields[1:], " "))
	if err != nil {
		return Quantity{}, err
	}

	expr := fields[0]
	switch {
	case strings.HasPrefix(expr, "log:"):
		lo, hi, n, err := parseSpan(strings.TrimPrefix(expr, "log:"))
		if err != nil {
			return Quantity{}, fmt.Errorf("%w: %q: %v", ErrInvalidQuantity, s, err)
		}
		if lo <= 0 || hi <= 0 {
			return Quantity{}, fmt.Errorf("%w: %q: log span bounds must be positive", ErrInvalidQuantity, s)
		}
		return Array(floats.LogSpan(make([]float64, n), lo, hi), u), nil
	case strings.Contains(expr, ":"):
		lo, hi, n, err := parseSpan(expr)
		if err != nil {
			return Quantity{}, fmt.Errorf("%w: %q: %v", ErrInvalidQuantity, s, err)
		}
		return Array(floats.Span(make([]float64, n), lo, hi), u), nil
	case strings.Contains(expr, ","):
		parts := strings.Split(expr, ",")
		vals := make([]float64, 0, len(parts))
		for _, p := range parts {
			if p == "" {
				continue
			}
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return Quantity{}, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
			}
			vals = append(vals, v)
		}
		return Array(vals, u), nil
	}

	v, err := strconv.ParseFloat(expr, 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	return Scalar(v, u), nil
}

func parseSpan(expr string) (lo, hi float64, n int, err error) {
	parts := strings.Split(expr, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("want start:stop:count")
	}
	if lo, err = strconv.ParseFloat(parts[0], 64); err != nil {
		return 0, 0, 0, err
	}
	if hi, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return 0, 0, 0, err
	}
	if n, err = strconv.Atoi(parts[2]); err != nil {
		return 0, 0, 0, err
	}
	if n < 2 {
		return 0, 0, 0, fmt.Errorf("count must be at least 2")
	}
	return lo, hi, n, nil
}
