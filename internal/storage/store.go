package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/snoopython/wradex/internal/sweep"
)

// ErrRunNotFound indicates an unknown run id.
var ErrRunNotFound = errors.New("storage: run not found")

const (
	metadataFile = "metadata.json"
	tableFile    = "cells.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata describes one saved sweep. Scalar parameters are stored here;
// every per-cell value lives in the cell table.
type RunMetadata struct {
	ID          string             `json:"id"`
	Species     string             `json:"species"`
	Transition  string             `json:"transition"`
	Timestamp   time.Time          `json:"timestamp"`
	Moldata     string             `json:"moldata"`
	FreqMin     float64            `json:"f_min_ghz"`
	FreqMax     float64            `json:"f_max_ghz"`
	Shape       []int              `json:"shape"`
	Axes        []string           `json:"axes"`
	ParamOrder  []string           `json:"param_order"`
	ParamUnits  map[string]string  `json:"param_units"`
	Scalars     map[string]float64 `json:"scalars"`
	OutputOrder []string           `json:"output_order"`
	OutputUnits map[string]string  `json:"output_units"`
	Cells       int                `json:"cells"`
	Failed      int                `json:"failed"`
	ElapsedMS   int64              `json:"elapsed_ms"`
}

// Columns returns the cell table header: parameters then outputs.
func (m *RunMetadata) Columns() []string {
	cols := make([]string, 0, len(m.ParamOrder)+len(m.OutputOrder))
	cols = append(cols, m.ParamOrder...)
	return append(cols, m.OutputOrder...)
}

// Unit returns the unit string of a parameter or output column.
func (m *RunMetadata) Unit(column string) string {
	if u, ok := m.ParamUnits[column]; ok {
		return u
	}
	return m.OutputUnits[column]
}

// Save writes res under a new run id: metadata.json plus one CSV row per
// grid cell in row-major order.
func (s *Store) Save(species, transition string, res *sweep.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%s", now.Format("20060102-150405"), uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Species:     species,
		Transition:  transition,
		Timestamp:   now,
		Moldata:     res.Moldata,
		FreqMin:     res.FreqMin.Value(),
		FreqMax:     res.FreqMax.Value(),
		Shape:       res.Shape,
		Axes:        res.Axes,
		ParamOrder:  res.ParamOrder,
		ParamUnits:  make(map[string]string, len(res.ParamOrder)),
		Scalars:     make(map[string]float64),
		OutputOrder: res.OutputOrder,
		OutputUnits: make(map[string]string, len(res.OutputOrder)),
		Cells:       res.Cells,
		Failed:      res.Failed,
		ElapsedMS:   res.Elapsed.Milliseconds(),
	}
	for _, name := range res.ParamOrder {
		q := res.Params[name]
		meta.ParamUnits[name] = q.Unit.String()
		if q.IsScalar() {
			meta.Scalars[name] = q.Value()
		}
	}
	for _, name := range res.OutputOrder {
		meta.OutputUnits[name] = res.Outputs[name].Unit.String()
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, tableFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(meta.Columns()); err != nil {
		return "", err
	}

	columns := make([][]float64, 0, len(meta.Columns()))
	for _, name := range res.ParamOrder {
		columns = append(columns, res.Params[name].Values())
	}
	for _, name := range res.OutputOrder {
		columns = append(columns, res.Outputs[name].Values())
	}

	row := make([]string, len(columns))
	for k := 0; k < res.Cells; k++ {
		for j, col := range columns {
			// Scalars repeat on every row.
			v := col[0]
			if len(col) > 1 {
				v = col[k]
			}
			row[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return runID, nil
}

// List returns every saved run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// Table is the per-cell table of a run, one row per grid cell.
type Table struct {
	Columns []string
	Rows    [][]float64
}

// Column returns one column of the table.
func (t *Table) Column(name string) ([]float64, bool) {
	j := -1
	for i, c := range t.Columns {
		if c == name {
			j = i
			break
		}
	}
	if j < 0 {
		return nil, false
	}

	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[j]
	}
	return out, true
}

func (s *Store) LoadTable(runID string) (*Table, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, tableFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Table{}, nil
	}

	t := &Table{
		Columns: records[0],
		Rows:    make([][]float64, 0, len(records)-1),
	}
	for i, record := range records[1:] {
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", tableFile, i+2, err)
			}
			row[j] = v
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}
