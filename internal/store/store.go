package store

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"firestige.xyz/wirelab/internal/log"
)

// Store is a workspace bound to a file. Readers get the current snapshot;
// Replace validates, persists and then swaps it.
type Store struct {
	path string

	mu sync.RWMutex
	ws *Workspace
}

// Open loads and validates path, creating an empty workspace file when it
// does not exist.
func Open(path string) (*Store, error) {
	ws, err := loadValid(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.GetLogger().WithField("path", path).Info("initializing new workspace")
		ws = &Workspace{}
		if err := Save(path, ws); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	return &Store{path: path, ws: ws}, nil
}

func loadValid(path string) (*Workspace, error) {
	ws, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := ws.Validate(); err != nil {
		return nil, fmt.Errorf("workspace %s rejected: %w", path, err)
	}
	return ws, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Workspace returns the current snapshot. Callers must not modify it.
func (s *Store) Workspace() *Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ws
}

// Replace validates ws, writes it to disk and makes it current.
func (s *Store) Replace(ws *Workspace) error {
	ws.normalize()
	if err := ws.Validate(); err != nil {
		return fmt.Errorf("workspace rejected: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := Save(s.path, ws); err != nil {
		return err
	}
	s.ws = ws
	return nil
}

// Reload re-reads the backing file. An unreadable or invalid file leaves the
// current snapshot in place.
func (s *Store) Reload() error {
	ws, err := loadValid(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()
	return nil
}
