package playback

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/c360/vibestream/errors"
)

// Samples holds one recording's three-axis readings, column-per-axis
type Samples struct {
	X []float64
	Y []float64
	Z []float64
}

// Len returns the number of samples in the recording
func (s *Samples) Len() int {
	return len(s.X)
}

// Loader reads one recording file into memory. The engine loads lazily: only
// the active file's samples are ever held at once.
type Loader interface {
	Load(path string) (*Samples, error)
}

// CSVLoader reads staged recordings: CSV rows of at least three numeric
// columns (X, Y, Z acceleration). An optional non-numeric header row is
// tolerated and skipped.
type CSVLoader struct{}

// Load implements Loader. Every failure is classified as a file load failure
// so the engine's skip-forward policy applies uniformly.
func (CSVLoader) Load(path string) (*Samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrFileLoadFailure, "CSVLoader", "Load", "open "+path)
	}
	defer func() {
		_ = f.Close()
	}()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // validated per row below

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrFileLoadFailure, "CSVLoader", "Load", "parse "+path)
	}

	samples := &Samples{}
	for i, record := range records {
		if len(record) < 3 {
			return nil, errors.WrapTransient(errors.ErrFileLoadFailure, "CSVLoader", "Load",
				fmt.Sprintf("row %d of %s has %d columns, want 3", i, path, len(record)))
		}

		x, errX := strconv.ParseFloat(record[0], 64)
		y, errY := strconv.ParseFloat(record[1], 64)
		z, errZ := strconv.ParseFloat(record[2], 64)
		if errX != nil || errY != nil || errZ != nil {
			if i == 0 {
				// header row
				continue
			}
			return nil, errors.WrapTransient(errors.ErrFileLoadFailure, "CSVLoader", "Load",
				fmt.Sprintf("row %d of %s is not numeric", i, path))
		}

		samples.X = append(samples.X, x)
		samples.Y = append(samples.Y, y)
		samples.Z = append(samples.Z, z)
	}

	return samples, nil
}
