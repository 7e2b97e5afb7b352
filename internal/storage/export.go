package storage

import (
	"encoding/json"
	"io"
	"os"
)

// ExportData is a whole run as one JSON document.
type ExportData struct {
	RunMetadata
	Times []float64   `json:"times"`
	Rows  [][]float64 `json:"rows"`
}

// ExportJSON writes a stored run to w.
func (s *Store) ExportJSON(runID string, w io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	tr, err := s.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	return encode(w, ExportData{RunMetadata: *meta, Times: tr.Times, Rows: tr.Rows})
}

// ExportJSONFile is ExportJSON into a new file at path.
func (s *Store) ExportJSONFile(runID, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return s.ExportJSON(runID, file)
}

func encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
