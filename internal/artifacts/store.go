package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when reading an artifact that does not exist.
var ErrNotFound = errors.New("artifact not found")

// Store is the persistence abstraction for artifacts. Presence is the only
// completeness signal, so implementations must never expose a partially
// written artifact under its final key.
type Store interface {
	Exists(ctx context.Context, key Key) (bool, error)
	Read(ctx context.Context, key Key) ([]byte, error)
	Write(ctx context.Context, key Key, data []byte) error
	Remove(ctx context.Context, key Key) error
}

// FileStore is a Store backed by a local directory. Media tools need real
// paths, so it also exposes Path and Stage.
type FileStore interface {
	Store
	Root() string
	Path(key Key) string
	Stage(key Key) (*Staged, error)
}

// Staged is a temporary file destined for a key. Commit renames it into
// place; Abort discards it.
type Staged struct {
	Path  string
	final string
	done  bool
}

// Commit atomically moves the staged file to its final path.
func (s *Staged) Commit() error {
	if s.done {
		return fmt.Errorf("staged artifact already finalised")
	}
	s.done = true
	info, err := os.Stat(s.Path)
	if err != nil {
		return fmt.Errorf("staged artifact missing: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(s.Path)
		return fmt.Errorf("staged artifact is empty")
	}
	if err := os.Rename(s.Path, s.final); err != nil {
		os.Remove(s.Path)
		return fmt.Errorf("commit artifact: %w", err)
	}
	return nil
}

// Abort removes the staged file. Safe to call after Commit.
func (s *Staged) Abort() {
	if s.done {
		return
	}
	s.done = true
	os.Remove(s.Path)
}

// FSStore stores artifacts under a root directory using Key.String() paths.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("cannot create artifact root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Root returns the store's base directory.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) Path(key Key) string {
	return filepath.Join(s.root, filepath.FromSlash(key.String()))
}

func (s *FSStore) Exists(ctx context.Context, key Key) (bool, error) {
	info, err := os.Stat(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *FSStore) Read(ctx context.Context, key Key) ([]byte, error) {
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *FSStore) Write(ctx context.Context, key Key, data []byte) error {
	staged, err := s.Stage(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(staged.Path, data, 0644); err != nil {
		staged.Abort()
		return fmt.Errorf("write artifact: %w", err)
	}
	return staged.Commit()
}

func (s *FSStore) Remove(ctx context.Context, key Key) error {
	err := os.Remove(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Stage reserves a temporary file next to the key's final path, creating
// intermediate directories. The temp name keeps the final extension so media
// tools can infer the container format.
func (s *FSStore) Stage(key Key) (*Staged, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	final := s.Path(key)
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create artifact dir: %w", err)
	}
	f, err := os.CreateTemp(dir, ".tmp-*-"+filepath.Base(final))
	if err != nil {
		return nil, fmt.Errorf("cannot create staging file: %w", err)
	}
	tmp := f.Name()
	f.Close()
	return &Staged{Path: tmp, final: final}, nil
}
