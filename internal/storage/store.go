// Package storage keeps integration runs on disk. Each run is a directory
// holding metadata.json and trajectory.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/san-kum/dynsens/internal/integrator"
)

const (
	metadataFile   = "metadata.json"
	trajectoryFile = "trajectory.csv"
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

func (s *Store) BaseDir() string { return s.baseDir }

type RunMetadata struct {
	ID        string             `json:"id"`
	Problem   string             `json:"problem"`
	Solver    string             `json:"solver"`
	Timestamp time.Time          `json:"timestamp"`
	Dims      integrator.Dims    `json:"dims"`
	Options   integrator.Options `json:"options"`
	Stats     integrator.Stats   `json:"stats"`
	Columns   []string           `json:"columns"`
	Points    int                `json:"points"`
	RXF       []float64          `json:"rxf,omitempty"`
	RQF       []float64          `json:"rqf,omitempty"`
	RZF       []float64          `json:"rzf,omitempty"`
}

// Trajectory is the content of trajectory.csv.
type Trajectory struct {
	Columns []string
	Times   []float64
	Rows    [][]float64
}

// Column returns the values of column j over time.
func (tr *Trajectory) Column(j int) []float64 {
	out := make([]float64, len(tr.Rows))
	for i, row := range tr.Rows {
		if j < len(row) {
			out[i] = row[j]
		}
	}
	return out
}

func (s *Store) Save(r *Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", r.Problem, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Problem:   r.Problem,
		Solver:    r.Solver,
		Timestamp: now,
		Dims:      r.Dims,
		Options:   r.Options,
		Stats:     r.Stats,
		Columns:   r.Columns,
		Points:    len(r.Times),
		RXF:       r.RXF,
		RQF:       r.RQF,
		RZF:       r.RZF,
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeTrajectory(filepath.Join(runDir, trajectoryFile), r); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTrajectory(path string, r *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"t"}, r.Columns...)); err != nil {
		return err
	}
	for i, row := range r.Rows {
		rec := make([]string, 0, len(row)+1)
		rec = append(rec, formatFloat(r.Times[i]))
		for _, v := range row {
			rec = append(rec, formatFloat(v))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// List returns the stored runs, newest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
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
	slices.SortFunc(runs, func(a, b RunMetadata) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadTrajectory(runID string) (*Trajectory, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, trajectoryFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	tr := &Trajectory{}
	if len(records) == 0 {
		return tr, nil
	}
	tr.Columns = records[0][1:]
	tr.Times = make([]float64, 0, len(records)-1)
	tr.Rows = make([][]float64, 0, len(records)-1)

	for i, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("storage: %s: row %d column %d: %w", runID, i+1, j, err)
			}
			vals[j] = v
		}
		tr.Times = append(tr.Times, vals[0])
		tr.Rows = append(tr.Rows, vals[1:])
	}
	return tr, nil
}
