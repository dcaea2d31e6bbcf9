// Package moldata reads molecular data files in the LAMDA format and keeps
// the local copy of the catalog in sync with the remote database.
package moldata

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	levelsHeader      = "energy levels"
	transitionsHeader = "radiative transitions"
)

// EnergyLevel is one row of the energy level table.
type EnergyLevel struct {
	Index  int
	Energy float64 // cm^-1
	Weight float64
	Label  string
}

// Transition is one radiative transition, keyed "<upper>-<lower>" by level label.
type Transition struct {
	Key      string
	Upper    string
	Lower    string
	AUL      float64 // s^-1
	FreqRest float64 // GHz
	EUpper   float64 // K
}

// Data is a parsed molecular data file.
type Data struct {
	Molecule    string
	Weight      float64
	Levels      []EnergyLevel
	Transitions []Transition

	levels      map[int]int
	transitions map[string]int
}

// Level returns the energy level with the given 1-based index.
func (d *Data) Level(index int) (EnergyLevel, bool) {
	i, ok := d.levels[index]
	if !ok {
		return EnergyLevel{}, false
	}
	return d.Levels[i], true
}

// Transition returns the transition with the given key.
func (d *Data) Transition(key string) (Transition, bool) {
	i, ok := d.transitions[key]
	if !ok {
		return Transition{}, false
	}
	return d.Transitions[i], true
}

// Keys returns the transition keys in file order.
func (d *Data) Keys() []string {
	keys := make([]string, len(d.Transitions))
	for i, t := range d.Transitions {
		keys[i] = t.Key
	}
	return keys
}

// ParseFile opens path and parses it.
func ParseFile(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the energy level and radiative transition sections from r.
// Lines are consumed strictly in order; reaching the end of r before a
// section is complete is an ErrMalformedData.
func Parse(r io.Reader) (*Data, error) {
	lr := &lineReader{sc: bufio.NewScanner(r)}
	d := &Data{
		levels:      make(map[int]int),
		transitions: make(map[string]int),
	}

	if err := lr.seek(levelsHeader, d.readPreamble); err != nil {
		return nil, err
	}
	if err := d.readLevels(lr); err != nil {
		return nil, err
	}
	if err := lr.seek(transitionsHeader, nil); err != nil {
		return nil, err
	}
	if err := d.readTransitions(lr); err != nil {
		return nil, err
	}
	return d, nil
}

// readPreamble picks up the optional molecule name and weight that precede
// the level table.
func (d *Data) readPreamble(prev, line string) {
	p := strings.ToLower(prev)
	switch {
	case strings.Contains(p, "molecular weight") || strings.Contains(p, "molecular mass"):
		if fields := strings.Fields(line); len(fields) > 0 {
			if w, err := strconv.ParseFloat(fields[0], 64); err == nil {
				d.Weight = w
			}
		}
	case strings.Contains(p, "molecule"):
		d.Molecule = strings.TrimSpace(line)
	}
}

func (d *Data) readLevels(lr *lineReader) error {
	n, err := lr.count(levelsHeader)
	if err != nil {
		return err
	}
	if _, err := lr.expect(levelsHeader); err != nil {
		return err
	}

	d.Levels = make([]EnergyLevel, 0, n)
	for i := 0; i < n; i++ {
		line, err := lr.expect(levelsHeader)
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return lr.fail(levelsHeader, "want index, energy, weight and label")
		}

		index, err := strconv.Atoi(fields[0])
		if err != nil {
			return lr.fail(levelsHeader, "level index "+strconv.Quote(fields[0]))
		}
		energy, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return lr.fail(levelsHeader, "energy "+strconv.Quote(fields[1]))
		}
		weight, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || weight <= 0 {
			return lr.fail(levelsHeader, "statistical weight "+strconv.Quote(fields[2]))
		}
		if _, dup := d.levels[index]; dup {
			return lr.fail(levelsHeader, fmt.Sprintf("duplicate level %d", index))
		}

		d.levels[index] = len(d.Levels)
		d.Levels = append(d.Levels, EnergyLevel{
			Index:  index,
			Energy: energy,
			Weight: weight,
			Label:  fields[3],
		})
	}
	return nil
}

func (d *Data) readTransitions(lr *lineReader) error {
	n, err := lr.count(transitionsHeader)
	if err != nil {
		return err
	}
	if _, err := lr.expect(transitionsHeader); err != nil {
		return err
	}

	d.Transitions = make([]Transition, 0, n)
	for i := 0; i < n; i++ {
		line, err := lr.expect(transitionsHeader)
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			return lr.fail(transitionsHeader, "want index, upper, lower, A, frequency and E_u")
		}

		upper, err := d.levelLabel(fields[1])
		if err != nil {
			return lr.fail(transitionsHeader, err.Error())
		}
		lower, err := d.levelLabel(fields[2])
		if err != nil {
			return lr.fail(transitionsHeader, err.Error())
		}

		var vals [3]float64
		for j, f := range fields[3:6] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return lr.fail(transitionsHeader, "value "+strconv.Quote(f))
			}
			vals[j] = v
		}

		t := Transition{
			Key:      upper + "-" + lower,
			Upper:    upper,
			Lower:    lower,
			AUL:      vals[0],
			FreqRest: vals[1],
			EUpper:   vals[2],
		}
		if j, dup := d.transitions[t.Key]; dup {
			d.Transitions[j] = t
			continue
		}
		d.transitions[t.Key] = len(d.Transitions)
		d.Transitions = append(d.Transitions, t)
	}
	return nil
}

func (d *Data) levelLabel(field string) (string, error) {
	index, err := strconv.Atoi(field)
	if err != nil {
		return "", fmt.Errorf("level index %q", field)
	}
	lvl, ok := d.Level(index)
	if !ok {
		return "", fmt.Errorf("unknown level %d", index)
	}
	return lvl.Label, nil
}

// lineReader is a forward-only line source that remembers its position.
type lineReader struct {
	sc   *bufio.Scanner
	line int
}

func (r *lineReader) next() (string, bool) {
	if !r.sc.Scan() {
		return "", false
	}
	r.line++
	return r.sc.Text(), true
}

// seek consumes lines until one contains header (case-insensitive).
// Every skipped line is handed to onLine together with its predecessor.
func (r *lineReader) seek(header string, onLine func(prev, line string)) error {
	prev := ""
	for {
		line, ok := r.next()
		if !ok {
			return r.eof(header, "section header not found")
		}
		if strings.Contains(strings.ToLower(line), header) {
			return nil
		}
		if onLine != nil {
			onLine(prev, line)
		}
		prev = line
	}
}

func (r *lineReader) expect(section string) (string, error) {
	line, ok := r.next()
	if !ok {
		return "", r.eof(section, "unexpected end of data")
	}
	return line, nil
}

func (r *lineReader) count(section string) (int, error) {
	line, err := r.expect(section)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, r.fail(section, "missing count")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return 0, r.fail(section, "count "+strconv.Quote(fields[0]))
	}
	return n, nil
}

func (r *lineReader) eof(section, msg string) error {
	if err := r.sc.Err(); err != nil {
		msg = err.Error()
	}
	return &ParseError{Section: section, Msg: msg, Wrapped: ErrMalformedData}
}

func (r *lineReader) fail(section, msg string) error {
	return &ParseError{Line: r.line, Section: section, Msg: msg, Wrapped: ErrMalformedData}
}
