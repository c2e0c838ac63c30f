// internal/statestore/file.go
package statestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/FairForge/switchyard/internal/endpoint"
)

// stateFile is the on-disk document.
type stateFile struct {
	Units []Record `yaml:"units"`
}

// FileStore keeps unit state in a single YAML file. Every mutation writes a
// timestamped backup first, then replaces the file atomically and fsyncs, so
// a committed value survives a crash of the orchestrating process.
type FileStore struct {
	path        string
	keepBackups int
	logger      *zap.Logger
	mu          sync.Mutex
}

// NewFileStore creates a file-backed store.
func NewFileStore(path string, keepBackups int, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keepBackups <= 0 {
		keepBackups = 10
	}
	return &FileStore{path: path, keepBackups: keepBackups, logger: logger}
}

// GetActive returns the committed active environment for a unit.
func (s *FileStore) GetActive(_ context.Context, unitID string) (endpoint.Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", err
	}

	for _, r := range doc.Units {
		if r.UnitID == unitID {
			return r.Active, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
}

// SetActive performs a durable compare-and-swap of the active environment.
func (s *FileStore) SetActive(_ context.Context, unitID string, next, expectedPrev endpoint.Environment) error {
	if !next.Valid() {
		return fmt.Errorf("statestore: invalid environment %q", next)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	idx := -1
	for i, r := range doc.Units {
		if r.UnitID == unitID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
	}

	if doc.Units[idx].Active != expectedPrev {
		return &ConflictError{Unit: unitID, Expected: expectedPrev, Actual: doc.Units[idx].Active}
	}

	doc.Units[idx].Active = next
	doc.Units[idx].LastTransition = time.Now().UTC()

	if err := s.save(doc); err != nil {
		return err
	}

	s.logger.Info("active environment updated",
		zap.String("unit", unitID),
		zap.String("from", expectedPrev.String()),
		zap.String("to", next.String()))
	return nil
}

// Units returns all unit records sorted by id.
func (s *FileStore) Units(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	units := make([]Record, len(doc.Units))
	copy(units, doc.Units)
	sort.Slice(units, func(i, j int) bool { return units[i].UnitID < units[j].UnitID })
	return units, nil
}

// Ensure creates the unit record if missing.
func (s *FileStore) Ensure(_ context.Context, unitID string, env endpoint.Environment) error {
	if !env.Valid() {
		return fmt.Errorf("statestore: invalid environment %q", env)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	for _, r := range doc.Units {
		if r.UnitID == unitID {
			return nil
		}
	}

	doc.Units = append(doc.Units, Record{
		UnitID:         unitID,
		Active:         env,
		LastTransition: time.Now().UTC(),
	})
	return s.save(doc)
}

func (s *FileStore) load() (*stateFile, error) {
	data, err := os.ReadFile(s.path) // #nosec G304 - operator-supplied path
	if os.IsNotExist(err) {
		return &stateFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statestore: read %s: %w", s.path, err)
	}

	var doc stateFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("statestore: parse %s: %w", s.path, err)
	}
	return &doc, nil
}

// save backs up the current file, then writes the new document via
// temp file + fsync + rename so readers never observe a partial write.
func (s *FileStore) save(doc *stateFile) error {
	if err := s.backup(); err != nil {
		return err
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("statestore: marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("statestore: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("statestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("statestore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("statestore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statestore: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("statestore: replace %s: %w", s.path, err)
	}

	// Sync the directory so the rename itself is durable.
	if d, err := os.Open(dir); err == nil { // #nosec G304
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (s *FileStore) backup() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(s.path) // #nosec G304
	if err != nil {
		return fmt.Errorf("statestore: read for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s.backup_%s", s.path, time.Now().UTC().Format("20060102_150405.000000"))
	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return fmt.Errorf("statestore: write backup: %w", err)
	}

	s.pruneBackups()
	return nil
}

func (s *FileStore) pruneBackups() {
	matches, err := filepath.Glob(s.path + ".backup_*")
	if err != nil || len(matches) <= s.keepBackups {
		return
	}

	sort.Strings(matches)
	for _, old := range matches[:len(matches)-s.keepBackups] {
		if err := os.Remove(old); err != nil {
			s.logger.Warn("failed to prune backup", zap.String("path", old), zap.Error(err))
		}
	}
}
