package units

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/unit"
)

// Unit is a named physical unit backed by its SI scale and dimensions.
// The zero value is dimensionless.
type Unit struct {
	name string
	si   *unit.Unit
}

type symbol struct {
	scale float64
	dims  unit.Dimensions
}

var (
	lengthDims = unit.Dimensions{unit.LengthDim: 1}
	timeDims   = unit.Dimensions{unit.TimeDim: 1}
	freqDims   = unit.Dimensions{unit.TimeDim: -1}
	tempDims   = unit.Dimensions{unit.TemperatureDim: 1}
	massDims   = unit.Dimensions{unit.MassDim: 1}
	energyDims = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -2}
	fluxDims   = unit.Dimensions{unit.MassDim: 1, unit.TimeDim: -2}
)

var symbols = map[string]symbol{
	"m":      {1, lengthDims},
	"km":     {1e3, lengthDims},
	"cm":     {1e-2, lengthDims},
	"mm":     {1e-3, lengthDims},
	"um":     {1e-6, lengthDims},
	"micron": {1e-6, lengthDims},
	"nm":     {1e-9, lengthDims},
	"AU":     {1.495978707e11, lengthDims},
	"au":     {1.495978707e11, lengthDims},
	"pc":     {3.0856775814913673e16, lengthDims},

	"s":   {1, timeDims},
	"ms":  {1e-3, timeDims},
	"min": {60, timeDims},
	"h":   {3600, timeDims},
	"hr":  {3600, timeDims},
	"yr":  {3.15576e7, timeDims},

	"Hz":  {1, freqDims},
	"kHz": {1e3, freqDims},
	"MHz": {1e6, freqDims},
	"GHz": {1e9, freqDims},
	"THz": {1e12, freqDims},

	"K": {1, tempDims},

	"g":  {1e-3, massDims},
	"kg": {1, massDims},

	"J":   {1, energyDims},
	"erg": {1e-7, energyDims},
	"eV":  {1.602176634e-19, energyDims},

	"Jy": {1e-26, fluxDims},
}

var dimensionlessNames = map[string]bool{
	"":              true,
	"dimensionless": true,
	"1":             true,
}

// factor matches one symbol with an optional exponent ("cm^-3", "cm-3",
// "cm**-3", "cm3") or one of the grouping operators.
var factorPattern = regexp.MustCompile(`([A-Za-z]+)(?:\s*(?:\^|\*\*)?\s*([+-]?\d+))?|[/()]`)

// Dimensionless is the unit of pure numbers.
var Dimensionless = Unit{}

// Parse reads a unit expression. Factors are separated by spaces or '*';
// '/' divides by the following factor or parenthesised group.
func Parse(s string) (Unit, error) {
	expr := strings.TrimSpace(s)
	if dimensionlessNames[expr] {
		return Unit{name: expr, si: unit.New(1, unit.Dimensions{})}, nil
	}

	name := expr
	if rest := strings.TrimPrefix(expr, "1"); rest != expr && strings.HasPrefix(strings.TrimSpace(rest), "/") {
		expr = strings.TrimSpace(rest)
	}

	scale := 1.0
	dims := unit.Dimensions{}

	signs := []int{1}
	divide := false
	last := 0
	for _, m := range factorPattern.FindAllStringSubmatchIndex(expr, -1) {
		if gap := expr[last:m[0]]; strings.Trim(gap, " \t*") != "" {
			return Unit{}, fmt.Errorf("%w: %q", ErrUnknownUnit, s)
		}
		last = m[1]

		tok := expr[m[0]:m[1]]
		switch tok {
		case "/":
			divide = true
			continue
		case "(":
			sign := signs[len(signs)-1]
			if divide {
				sign = -sign
				divide = false
			}
			signs = append(signs, sign)
			continue
		case ")":
			if len(signs) == 1 {
				return Unit{}, fmt.Errorf("%w: unbalanced parenthesis in %q", ErrUnknownUnit, s)
			}
			signs = signs[:len(signs)-1]
			continue
		}

		sym, ok := symbols[expr[m[2]:m[3]]]
		if !ok {
			return Unit{}, fmt.Errorf("%w: %q in %q", ErrUnknownUnit, expr[m[2]:m[3]], s)
		}
		power := 1
		if m[4] >= 0 {
			p, err := strconv.Atoi(expr[m[4]:m[5]])
			if err != nil {
				return Unit{}, fmt.Errorf("%w: exponent in %q", ErrUnknownUnit, s)
			}
			power = p
		}
		power *= signs[len(signs)-1]
		if divide {
			power = -power
			divide = false
		}

		scale *= math.Pow(sym.scale, float64(power))
		for d, p := range sym.dims {
			dims[d] += p * power
		}
	}
	if strings.Trim(expr[last:], " \t*") != "" || len(signs) != 1 || divide {
		return Unit{}, fmt.Errorf("%w: %q", ErrUnknownUnit, s)
	}
	for d, p := range dims {
		if p == 0 {
			delete(dims, d)
		}
	}

	return Unit{name: name, si: unit.New(scale, dims)}, nil
}

// MustParse is like Parse but panics on error. Intended for literals.
func MustParse(s string) Unit {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u Unit) base() *unit.Unit {
	if u.si == nil {
		return unit.New(1, unit.Dimensions{})
	}
	return u.si
}

// String returns the expression the unit was parsed from.
func (u Unit) String() string {
	return u.name
}

// IsDimensionless reports whether the unit carries no dimensions.
func (u Unit) IsDimensionless() bool {
	return len(u.base().Dimensions()) == 0
}

// Compatible reports whether values in u can be converted to o.
func (u Unit) Compatible(o Unit) bool {
	return unit.DimensionsMatch(u.base(), o.base())
}

// Factor returns the multiplier that converts values in u into values in to.
func (u Unit) Factor(to Unit) (float64, error) {
	if !u.Compatible(to) {
		return 0, fmt.Errorf("%w: %q -> %q", ErrIncompatibleUnits, u.name, to.name)
	}
	return u.base().Value() / to.base().Value(), nil
}

// Convert expresses v, given in u, in the unit to.
func (u Unit) Convert(v float64, to Unit) (float64, error) {
	f, err := u.Factor(to)
	if err != nil {
		return 0, err
	}
	return v * f, nil
}
