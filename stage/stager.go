// Package stage implements the producer side of the handshake: it copies the
// filtered corpus into the shared data directory, persists the play-order
// manifest, and signals readiness to the streaming consumer.
package stage

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/c360/vibestream/corpus"
	"github.com/c360/vibestream/errors"
	"github.com/c360/vibestream/readiness"
)

// lockFileName guards the shared data directory against concurrent stagers
const lockFileName = ".stage.lock"

// DefaultMonitorPeriod is how often the stager re-reports file counts after
// staging completes
const DefaultMonitorPeriod = 5 * time.Minute

// Stager copies recordings from a source root into the shared data
// directory, builds the manifest, and signals readiness. It then stays alive
// reporting health so orchestrators can watch it.
type Stager struct {
	sourceRoot    string
	sharedDir     string
	filter        corpus.Filter
	logger        *slog.Logger
	monitorPeriod time.Duration
}

// NewStager creates a stager. monitorPeriod of zero uses the default.
func NewStager(sourceRoot, sharedDir string, filter corpus.Filter, logger *slog.Logger, monitorPeriod time.Duration) *Stager {
	if logger == nil {
		logger = slog.Default()
	}
	if monitorPeriod <= 0 {
		monitorPeriod = DefaultMonitorPeriod
	}
	return &Stager{
		sourceRoot:    sourceRoot,
		sharedDir:     sharedDir,
		filter:        filter,
		logger:        logger,
		monitorPeriod: monitorPeriod,
	}
}

// Run stages the corpus and blocks in the monitoring loop until ctx is
// cancelled. Staging is skipped when the shared directory already holds
// data, so a restarted stager re-signals readiness without re-copying.
func (s *Stager) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.sharedDir, 0o755); err != nil {
		return errors.WrapFatal(err, "Stager", "Run", "create shared directory")
	}

	// One stager at a time per shared directory
	lock := flock.New(filepath.Join(s.sharedDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return errors.WrapFatal(err, "Stager", "Run", "acquire staging lock")
	}
	if !locked {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Stager", "Run",
			"another stager holds the staging lock")
	}
	defer func() {
		_ = lock.Unlock()
	}()

	if s.hasExistingData() {
		s.logger.Info("shared directory already staged, skipping copy",
			"shared_dir", s.sharedDir,
			"files", s.countStagedFiles())
	} else {
		copied, err := s.copyCorpus()
		if err != nil {
			return err
		}
		s.logger.Info("corpus staged", "files_copied", copied, "shared_dir", s.sharedDir)
	}

	manifest, err := corpus.NewIndexer(s.sharedDir, s.filter, s.logger).Index()
	if err != nil {
		return err
	}
	if err := manifest.Save(s.sharedDir); err != nil {
		return err
	}

	if err := readiness.Signal(s.sharedDir, readiness.Marker{
		Generation: manifest.Generation,
		FileCount:  manifest.Len(),
	}); err != nil {
		return err
	}

	s.logger.Info("staging complete, consumer may start streaming",
		"generation", manifest.Generation,
		"files", manifest.Len())

	return s.monitor(ctx)
}

// copyCorpus copies every recording surviving the filter from the source
// root into the shared directory, preserving the machine/operation/quality
// layout
func (s *Stager) copyCorpus() (int, error) {
	if _, err := os.Stat(s.sourceRoot); err != nil {
		return 0, errors.WrapFatal(errors.ErrCorpusUnavailable, "Stager", "copyCorpus",
			"read source root "+s.sourceRoot)
	}

	total := 0
	for _, machine := range s.filter.IncludeMachines {
		machineDir := filepath.Join(s.sourceRoot, machine)
		ops, err := os.ReadDir(machineDir)
		if err != nil {
			s.logger.Warn("source machine directory not readable, skipping",
				"machine", machine,
				"path", machineDir)
			continue
		}

		for _, op := range ops {
			if !op.IsDir() || !strings.HasPrefix(op.Name(), "OP") {
				continue
			}
			if s.excluded(op.Name()) {
				s.logger.Debug("operation excluded", "machine", machine, "operation", op.Name())
				continue
			}

			for _, quality := range []corpus.Quality{corpus.QualityGood, corpus.QualityBad} {
				n, err := s.copyQualityDir(machine, op.Name(), quality)
				if err != nil {
					return total, err
				}
				if n > 0 {
					s.logger.Info("copied recordings",
						"machine", machine,
						"operation", op.Name(),
						"quality", quality,
						"files", n)
				}
				total += n
			}
		}
	}
	return total, nil
}

func (s *Stager) copyQualityDir(machine, operation string, quality corpus.Quality) (int, error) {
	srcDir := filepath.Join(s.sourceRoot, machine, operation, string(quality))
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.WrapFatal(err, "Stager", "copyQualityDir", "read "+srcDir)
	}

	dstDir := filepath.Join(s.sharedDir, machine, operation, string(quality))
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return 0, errors.WrapFatal(err, "Stager", "copyQualityDir", "create "+dstDir)
	}

	copied := 0
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		src := filepath.Join(srcDir, entry.Name())
		dst := filepath.Join(dstDir, entry.Name())
		if err := copyFile(src, dst); err != nil {
			// A single uncopyable recording degrades the corpus, it does
			// not abort staging
			s.logger.Warn("failed to copy recording", "source", src, "error", err)
			continue
		}
		copied++
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func (s *Stager) excluded(operation string) bool {
	for _, op := range s.filter.ExcludeOperations {
		if op == operation {
			return true
		}
	}
	return false
}

// hasExistingData reports whether any included machine already has staged
// recordings
func (s *Stager) hasExistingData() bool {
	return s.countStagedFiles() > 0
}

// countStagedFiles counts recordings under the included machine directories
func (s *Stager) countStagedFiles() int {
	count := 0
	for _, machine := range s.filter.IncludeMachines {
		machineDir := filepath.Join(s.sharedDir, machine)
		_ = filepath.WalkDir(machineDir, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				// A machine directory that does not exist yet counts zero
				return nil
			}
			if !d.IsDir() && !strings.HasPrefix(d.Name(), ".") {
				count++
			}
			return nil
		})
	}
	return count
}

// monitor reports file counts periodically until cancelled
func (s *Stager) monitor(ctx context.Context) error {
	ticker := time.NewTicker(s.monitorPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stager shutting down")
			return nil
		case <-ticker.C:
			s.logger.Info("health check", "files_available", s.countStagedFiles())
		}
	}
}
