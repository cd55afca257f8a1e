// Package jobstate carries the restore phase's decisions to the save phase of
// the same job. It is the only channel between the two phases.
package jobstate

import (
	"fmt"
	"sync"
)

// State names, as exposed to the job.
const (
	PrimaryKeyName = "CACHE_KEY"
	MatchedKeyName = "CACHE_RESULT"
)

// Store persists named values for the lifetime of one job execution.
type Store interface {
	Save(name, value string) error
	// Get returns the value for name and whether it was set.
	Get(name string) (string, bool, error)
}

// State is the record written by the restore phase and read by the save phase.
type State struct {
	// PrimaryKey is the primary key as resolved at restore time.
	PrimaryKey string
	// MatchedKey is the key found by the fast lookup, or "" when nothing matched.
	MatchedKey string
}

// Record writes st. The primary key is always written; the matched key only
// when the fast lookup found something.
func Record(s Store, st State) error {
	if err := s.Save(PrimaryKeyName, st.PrimaryKey); err != nil {
		return fmt.Errorf("failed to save %s: %w", PrimaryKeyName, err)
	}
	if st.MatchedKey == "" {
		return nil
	}
	if err := s.Save(MatchedKeyName, st.MatchedKey); err != nil {
		return fmt.Errorf("failed to save %s: %w", MatchedKeyName, err)
	}
	return nil
}

// Load reads the record written by Record. Unset names load as "".
func Load(s Store) (State, error) {
	var st State
	var err error
	if st.PrimaryKey, _, err = s.Get(PrimaryKeyName); err != nil {
		return State{}, fmt.Errorf("failed to read %s: %w", PrimaryKeyName, err)
	}
	if st.MatchedKey, _, err = s.Get(MatchedKeyName); err != nil {
		return State{}, fmt.Errorf("failed to read %s: %w", MatchedKeyName, err)
	}
	return st, nil
}

// Memory is an in-process Store, for tests and for running both phases in one
// process.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Save(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	return nil
}

func (m *Memory) Get(name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	return v, ok, nil
}
