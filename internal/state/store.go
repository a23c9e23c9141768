package state

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/phasekit/internal/config"
	"github.com/Iron-Ham/phasekit/internal/errors"
)

// Store loads and saves snapshots keyed by plan source id.
//
// Load returns an error wrapping errors.ErrStateNotFound when nothing has
// been saved for sourceID, and errors.ErrStateCorrupted when saved data
// cannot be decoded.
type Store interface {
	Load(sourceID string) (*Snapshot, error)
	Save(snap *Snapshot) error
	Delete(sourceID string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Open returns the store selected by cfg. dir is the resolved state
// directory. FileStore keeps its documents under dir/state and SQLiteStore
// uses dir/state.db.
func Open(cfg config.StateConfig, dir string) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendFile, "":
		return NewFileStore(filepath.Join(dir, "state"))
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, "state.db"))
	case BackendNone:
		return NopStore{}, nil
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown state backend %q", cfg.Backend)).
			WithField("state.backend").
			WithValue(cfg.Backend)
	}
}

// NopStore discards saves and never finds a snapshot.
type NopStore struct{}

// Load always reports errors.ErrStateNotFound.
func (NopStore) Load(sourceID string) (*Snapshot, error) {
	return nil, errors.NewStateError("state persistence is disabled", errors.ErrStateNotFound).
		WithBackend(BackendNone)
}

// Save does nothing.
func (NopStore) Save(*Snapshot) error { return nil }

// Delete does nothing.
func (NopStore) Delete(string) error { return nil }

// Close does nothing.
func (NopStore) Close() error { return nil }

func runLockPath(dir, sourceID string) string {
	return filepath.Join(dir, Key(sourceID)+".run.lock")
}
