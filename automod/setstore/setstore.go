package setstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
)

// Name of the set holding blocked phrases for the content filter.
const BlocklistSet = "blocklist"

// Named sets of strings, loaded from configuration.
type SetStore interface {
	Members(ctx context.Context, name string) ([]string, error)
}

type MemSetStore struct {
	mu   sync.RWMutex
	Sets map[string]map[string]bool
}

func NewMemSetStore() *MemSetStore {
	return &MemSetStore{
		Sets: make(map[string]map[string]bool),
	}
}

// Returns the members of a set, sorted. Unknown sets return nil with no error.
func (s *MemSetStore) Members(ctx context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.Sets[name]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for val := range set {
		out = append(out, val)
	}
	slices.Sort(out)
	return out, nil
}

func (s *MemSetStore) LoadFromFileJSON(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := s.LoadJSON(f); err != nil {
		return fmt.Errorf("loading sets from %s: %w", p, err)
	}
	return nil
}

// Loads a JSON object mapping set names to lists of values. Sets present in the input replace any existing set of the same name.
func (s *MemSetStore) LoadJSON(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var sets map[string][]string
	if err := json.Unmarshal(raw, &sets); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, l := range sets {
		m := make(map[string]bool, len(l))
		for _, val := range l {
			m[val] = true
		}
		s.Sets[name] = m
	}
	return nil
}
