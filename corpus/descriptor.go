package corpus

import (
	"fmt"
	"strings"
	"time"
)

// Quality classifies a recording by validity. The corpus partitions every
// (machine, operation) pair into good and bad directories.
type Quality string

// Recognized quality classes
const (
	QualityGood Quality = "good"
	QualityBad  Quality = "bad"
)

// Valid reports whether q is a recognized quality class
func (q Quality) Valid() bool {
	return q == QualityGood || q == QualityBad
}

// FileDescriptor identifies one recording unit in the corpus. Descriptors are
// created once at indexing time and never mutated; playback refers to them by
// manifest position only.
type FileDescriptor struct {
	Machine      string  `json:"machine"`
	Operation    string  `json:"operation"`
	Quality      Quality `json:"quality"`
	FileName     string  `json:"file_name"`
	RelativePath string  `json:"relative_path"`
	SequenceKey  string  `json:"sequence_key"`
}

// String returns a compact identity for logging
func (d FileDescriptor) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", d.Machine, d.Operation, d.Quality, d.FileName)
}

// deriveSequenceKey extracts a chronological sort key from a recording file
// name. Names follow the corpus convention M01_Aug_2019_OP01_000.csv: a
// month-name/year pair gives the coarse chronological position and the
// trailing numeric token orders recordings within the same month.
//
// Names without a parseable date token fall back to a lexical key prefixed
// with '~', which sorts after every dated key so malformed names replay last
// in a stable order.
func deriveSequenceKey(fileName, relativePath string) string {
	base := fileName
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	parts := strings.Split(base, "_")

	for i := 0; i+1 < len(parts); i++ {
		ts, err := time.Parse("Jan_2006", parts[i]+"_"+parts[i+1])
		if err != nil {
			continue
		}
		seq := ""
		if last := parts[len(parts)-1]; isDigits(last) {
			seq = last
		}
		return fmt.Sprintf("%s/%s", ts.Format("2006-01"), seq)
	}

	return "~" + relativePath
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
