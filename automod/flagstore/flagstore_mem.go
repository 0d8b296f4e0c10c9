package flagstore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/horizon-devs/warden/automod/event"
)

type MemFlagStore struct {
	mu   sync.Mutex
	Data map[event.ActorKey]map[string]bool
}

var _ FlagStore = (*MemFlagStore)(nil)

func NewMemFlagStore() *MemFlagStore {
	return &MemFlagStore{
		Data: make(map[event.ActorKey]map[string]bool),
	}
}

func (s *MemFlagStore) Get(ctx context.Context, actor event.ActorKey) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for f := range s.Data[actor] {
		out = append(out, f)
	}
	slices.Sort(out)
	return out, nil
}

func (s *MemFlagStore) Add(ctx context.Context, actor event.ActorKey, flags ...string) ([]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Data[actor]
	if !ok {
		m = make(map[string]bool, len(flags))
		s.Data[actor] = m
	}
	var added []string
	for _, f := range flags {
		if m[f] {
			continue
		}
		m[f] = true
		added = append(added, f)
	}
	return added, nil
}

func (s *MemFlagStore) Remove(ctx context.Context, actor event.ActorKey, flags ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Data[actor]
	if !ok {
		return nil
	}
	for _, f := range flags {
		delete(m, f)
	}
	if len(m) == 0 {
		delete(s.Data, actor)
	}
	return nil
}

func (s *MemFlagStore) Flagged(ctx context.Context, community string) ([]event.ActorKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []event.ActorKey{}
	for actor := range s.Data {
		if actor.Community == community {
			out = append(out, actor)
		}
	}
	slices.SortFunc(out, func(a, b event.ActorKey) int {
		return strings.Compare(a.User, b.User)
	})
	return out, nil
}
