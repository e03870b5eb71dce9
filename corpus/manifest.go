package corpus

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/c360/vibestream/errors"
)

// ManifestFileName is the well-known manifest location inside the shared
// data directory. The consumer treats this file as the sole source of play
// order and never re-derives it from the corpus.
const ManifestFileName = "manifest.json"

// Manifest is the deterministic ordered list of recordings selected for
// playback. It is built once per indexing run and read-only afterwards; a new
// scan replaces it wholesale.
type Manifest struct {
	Generation string           `json:"generation"`
	CreatedAt  time.Time        `json:"created_at"`
	Files      []FileDescriptor `json:"files"`
}

// NewManifest wraps an ordered descriptor list in a new manifest generation
func NewManifest(files []FileDescriptor) *Manifest {
	return &Manifest{
		Generation: uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Files:      files,
	}
}

// Len returns the number of recordings in the manifest
func (m *Manifest) Len() int {
	return len(m.Files)
}

// Empty reports whether the manifest selects no recordings
func (m *Manifest) Empty() bool {
	return len(m.Files) == 0
}

// Save persists the manifest into dir for cross-process consumption.
// The write is atomic (temp file + rename) so a concurrently starting
// consumer never observes a partial manifest.
func (m *Manifest) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.WrapFatal(err, "Manifest", "Save", "marshal manifest")
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return errors.WrapFatal(err, "Manifest", "Save", "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.WrapFatal(err, "Manifest", "Save", "write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.WrapFatal(err, "Manifest", "Save", "close temp file")
	}

	if err := os.Rename(tmpName, filepath.Join(dir, ManifestFileName)); err != nil {
		_ = os.Remove(tmpName)
		return errors.WrapFatal(err, "Manifest", "Save", "rename into place")
	}
	return nil
}

// LoadManifest reads a previously persisted manifest from dir
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapInvalid(errors.ErrManifestNotFound, "Manifest", "LoadManifest", "read "+dir)
		}
		return nil, errors.WrapFatal(err, "Manifest", "LoadManifest", "read manifest file")
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapInvalid(err, "Manifest", "LoadManifest", "unmarshal manifest")
	}
	return &m, nil
}
