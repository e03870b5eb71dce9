package corpus

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/c360/vibestream/errors"
)

// Filter selects which parts of the corpus participate in playback.
// Machines are an include-list; operations are an exclude-list.
type Filter struct {
	IncludeMachines   []string
	ExcludeOperations []string
}

func (f Filter) includesMachine(machine string) bool {
	for _, m := range f.IncludeMachines {
		if m == machine {
			return true
		}
	}
	return false
}

func (f Filter) excludesOperation(operation string) bool {
	for _, op := range f.ExcludeOperations {
		if op == operation {
			return true
		}
	}
	return false
}

// Indexer walks a corpus root organized as machine/operation/quality/file
// and produces a deterministic Manifest.
type Indexer struct {
	root   string
	filter Filter
	logger *slog.Logger
}

// NewIndexer creates an indexer for the given corpus root and filter
func NewIndexer(root string, filter Filter, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		root:   root,
		filter: filter,
		logger: logger,
	}
}

// Index enumerates recordings for every (machine, operation) pair surviving
// the filter and returns them as an ordered Manifest. The same corpus and
// filter always yield an identical manifest: descriptors sort ascending by
// (sequence key, machine, operation, quality, relative path).
//
// A missing directory for an included machine yields zero files for it; an
// unreadable corpus root is fatal. An empty result is a valid empty manifest,
// the caller decides whether that is acceptable.
func (ix *Indexer) Index() (*Manifest, error) {
	if _, err := os.Stat(ix.root); err != nil {
		return nil, errors.WrapFatal(errors.ErrCorpusUnavailable, "Indexer", "Index", "read corpus root "+ix.root)
	}

	var files []FileDescriptor
	for _, machine := range ix.filter.IncludeMachines {
		machineDir := filepath.Join(ix.root, machine)
		ops, err := os.ReadDir(machineDir)
		if err != nil {
			// Absence of an included machine is not an error
			ix.logger.Debug("machine directory not readable, skipping",
				"machine", machine,
				"path", machineDir)
			continue
		}

		for _, op := range ops {
			if !op.IsDir() || ix.filter.excludesOperation(op.Name()) {
				continue
			}

			for _, quality := range []Quality{QualityGood, QualityBad} {
				descs, err := ix.indexQualityDir(machine, op.Name(), quality)
				if err != nil {
					return nil, err
				}
				files = append(files, descs...)
			}
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return lessDescriptor(files[i], files[j])
	})

	manifest := NewManifest(files)
	ix.logSummary(manifest)
	return manifest, nil
}

// indexQualityDir lists the recordings under one machine/operation/quality leaf
func (ix *Indexer) indexQualityDir(machine, operation string, quality Quality) ([]FileDescriptor, error) {
	dir := filepath.Join(ix.root, machine, operation, string(quality))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapFatal(err, "Indexer", "indexQualityDir", "read "+dir)
	}

	var descs []FileDescriptor
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		rel := filepath.ToSlash(filepath.Join(machine, operation, string(quality), entry.Name()))
		descs = append(descs, FileDescriptor{
			Machine:      machine,
			Operation:    operation,
			Quality:      quality,
			FileName:     entry.Name(),
			RelativePath: rel,
			SequenceKey:  deriveSequenceKey(entry.Name(), rel),
		})
	}
	return descs, nil
}

// lessDescriptor implements the total order of the manifest: chronological
// sequence key first, then (machine, operation, quality, path) to break ties
// deterministically.
func lessDescriptor(a, b FileDescriptor) bool {
	if a.SequenceKey != b.SequenceKey {
		return a.SequenceKey < b.SequenceKey
	}
	if a.Machine != b.Machine {
		return a.Machine < b.Machine
	}
	if a.Operation != b.Operation {
		return a.Operation < b.Operation
	}
	if a.Quality != b.Quality {
		return a.Quality < b.Quality
	}
	return a.RelativePath < b.RelativePath
}

// logSummary reports what survived filtering, in the same shape operators
// see from the stager.
func (ix *Indexer) logSummary(m *Manifest) {
	machines := map[string]struct{}{}
	operations := map[string]struct{}{}
	good, bad := 0, 0
	for _, f := range m.Files {
		machines[f.Machine] = struct{}{}
		operations[f.Operation] = struct{}{}
		if f.Quality == QualityGood {
			good++
		} else {
			bad++
		}
	}

	ix.logger.Info("corpus indexed",
		"root", ix.root,
		"files", len(m.Files),
		"machines", len(machines),
		"operations", len(operations),
		"good", good,
		"bad", bad,
		"generation", m.Generation)
}
