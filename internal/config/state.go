package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

// State is data the application persists on its own behalf.
type State struct {
	IgnoredPluginVersion int `yaml:"ignored_plugin_version"`
}

// StateStore guards a State file. Reads happen once at open; every update
// is written through.
type StateStore struct {
	mu    sync.Mutex
	path  string
	state State
}

func OpenState(path string) (*StateStore, error) {
	s := &StateStore{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.state); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return s, nil
}

func (s *StateStore) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *StateStore) Update(fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	fn(&next)
	if err := ensureDir(filepath.Dir(s.path)); err != nil {
		return err
	}
	raw, err := yaml.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	s.state = next
	return nil
}
