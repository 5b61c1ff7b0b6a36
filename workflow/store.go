package workflow

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

type storeFile struct {
	Workflows []Workflow `yaml:"workflows"`
}

// Store keeps workflows in a single YAML file. Put, Update and Delete write the file
// through; the file is replaced atomically.
type Store struct {
	path string

	mu        sync.RWMutex
	workflows map[string]Workflow
}

// OpenStore loads path. A missing file yields an empty store.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, workflows: make(map[string]Workflow)}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Load replaces the in-memory contents with the file's.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.mu.Lock()
		s.workflows = make(map[string]Workflow)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading workflow store: %w", err)
	}
	var f storeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing workflow store %s: %w", s.path, err)
	}
	m := make(map[string]Workflow, len(f.Workflows))
	for _, w := range f.Workflows {
		if w.ID == "" {
			return fmt.Errorf("parsing workflow store %s: workflow %q has no id", s.path, w.Name)
		}
		m[w.ID] = w
	}
	s.mu.Lock()
	s.workflows = m
	s.mu.Unlock()
	return nil
}

// Save writes every workflow, ordered by name then ID.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := yaml.Marshal(storeFile{Workflows: s.listLocked()})
	if err != nil {
		return fmt.Errorf("marshaling workflow store: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating workflow store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary workflow store: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temporary workflow store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temporary workflow store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temporary workflow store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming workflow store into place: %w", err)
	}
	return nil
}

func (s *Store) Get(id string) (Workflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return Workflow{}, false
	}
	return w.Clone(), true
}

func (s *Store) List() []Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Store) listLocked() []Workflow {
	out := make([]Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Put inserts or replaces w and persists the store. An empty ID is assigned.
func (s *Store) Put(w Workflow) (Workflow, error) {
	if w.ID == "" {
		w.ID = New(w.Name).ID
	}
	w = w.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.workflows[w.ID]
	s.workflows[w.ID] = w
	if err := s.saveLocked(); err != nil {
		if existed {
			s.workflows[w.ID] = prev
		} else {
			delete(s.workflows, w.ID)
		}
		return Workflow{}, err
	}
	return w.Clone(), nil
}

// Update applies fn to a copy of workflow id and persists the result, all
// under the store lock. The store is unchanged when fn or the write fails.
func (s *Store) Update(id string, fn func(*Workflow) error) (Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.workflows[id]
	if !ok {
		return Workflow{}, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	w := prev.Clone()
	if err := fn(&w); err != nil {
		return Workflow{}, err
	}
	w.ID = id
	s.workflows[id] = w
	if err := s.saveLocked(); err != nil {
		s.workflows[id] = prev
		return Workflow{}, err
	}
	return w.Clone(), nil
}

// Delete removes a workflow and persists the store.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.workflows[id]
	if !ok {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	delete(s.workflows, id)
	if err := s.saveLocked(); err != nil {
		s.workflows[id] = prev
		return err
	}
	return nil
}
