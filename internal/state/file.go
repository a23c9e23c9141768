package state

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/phasekit/internal/errors"
)

const stateLockName = "state.lock"

// FileStore keeps one YAML snapshot per plan in a directory. Writes are
// atomic: data is written to a temporary file first, then renamed into
// place. A file lock is held around every read and write for cross-process
// safety.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore in dir, creating the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStateError("failed to create state directory", err).
			WithBackend(BackendFile).
			WithPath(dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the snapshot file used for sourceID.
func (s *FileStore) Path(sourceID string) string {
	return filepath.Join(s.dir, Key(sourceID)+".yaml")
}

func (s *FileStore) lock() (*FileLock, error) {
	fl := NewFileLock(filepath.Join(s.dir, stateLockName))
	if err := fl.Lock(); err != nil {
		return nil, errors.NewStateError("failed to acquire state lock", err).
			WithBackend(BackendFile).
			WithPath(fl.Path())
	}
	return fl, nil
}

// Load reads the snapshot for sourceID.
func (s *FileStore) Load(sourceID string) (*Snapshot, error) {
	fl, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer func() { _ = fl.Unlock() }()

	path := s.Path(sourceID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewStateError("no saved state for "+sourceID, errors.ErrStateNotFound).
				WithBackend(BackendFile).
				WithPath(path)
		}
		return nil, errors.NewStateError("failed to read state file", err).
			WithBackend(BackendFile).
			WithPath(path)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, errors.NewStateError(fmt.Sprintf("failed to decode state file: %v", err), errors.ErrStateCorrupted).
			WithBackend(BackendFile).
			WithPath(path)
	}
	if snap.SourceID != sourceID {
		return nil, errors.NewStateError(fmt.Sprintf("state file belongs to %q", snap.SourceID), errors.ErrStateCorrupted).
			WithBackend(BackendFile).
			WithPath(path)
	}
	return &snap, nil
}

// Save writes snap, replacing any earlier snapshot of the same plan.
func (s *FileStore) Save(snap *Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return errors.NewStateError("failed to encode snapshot", err).WithBackend(BackendFile)
	}

	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	target := s.Path(snap.SourceID)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.NewStateError("failed to write temp file", err).
			WithBackend(BackendFile).
			WithPath(tmp)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return errors.NewStateError("failed to rename temp file", err).
			WithBackend(BackendFile).
			WithPath(target)
	}

	return nil
}

// Delete removes the snapshot for sourceID. Deleting a missing snapshot is
// not an error.
func (s *FileStore) Delete(sourceID string) error {
	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	path := s.Path(sourceID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewStateError("failed to delete state file", err).
			WithBackend(BackendFile).
			WithPath(path)
	}
	return nil
}

// Close implements Store. FileStore holds no open resources.
func (s *FileStore) Close() error {
	return nil
}
