package storage

import (
	"encoding/json"
	"io"
	"math"
	"strconv"
)

// ExportData is the JSON form of a saved run.
type ExportData struct {
	Run     RunMetadata            `json:"run"`
	Columns map[string][]jsonFloat `json:"columns"`
}

// jsonFloat encodes NaN and infinities as null.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// ExportJSON writes a run's metadata and cell table to w.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	table, err := s.LoadTable(runID)
	if err != nil {
		return err
	}

	data := ExportData{
		Run:     *meta,
		Columns: make(map[string][]jsonFloat, len(table.Columns)),
	}
	for _, name := range table.Columns {
		col, _ := table.Column(name)
		vals := make([]jsonFloat, len(col))
		for i, v := range col {
			vals[i] = jsonFloat(v)
		}
		data.Columns[name] = vals
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
