package cachestore

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// In-process store. Entries also fall out early once capacity is reached (least recently used first).
type MemCacheStore struct {
	Data *expirable.LRU[string, string]

	// serializes Claim's check-and-add
	claimMu sync.Mutex
}

var _ CacheStore = (*MemCacheStore)(nil)

func NewMemCacheStore(capacity int, ttl time.Duration) *MemCacheStore {
	return &MemCacheStore{
		Data: expirable.NewLRU[string, string](capacity, nil, ttl),
	}
}

func memCacheKey(name, key string) string {
	return name + "/" + key
}

func memClaimKey(name, key string) string {
	return memCacheKey(name, key) + "/claim"
}

func (s *MemCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	v, ok := s.Data.Get(memCacheKey(name, key))
	if !ok {
		return "", nil
	}
	return v, nil
}

func (s *MemCacheStore) Set(ctx context.Context, name, key string, val string) error {
	s.Data.Add(memCacheKey(name, key), val)
	return nil
}

func (s *MemCacheStore) Purge(ctx context.Context, name, key string) error {
	s.Data.Remove(memCacheKey(name, key))
	s.Data.Remove(memClaimKey(name, key))
	return nil
}

func (s *MemCacheStore) Claim(ctx context.Context, name, key string) (bool, error) {
	k := memClaimKey(name, key)
	s.claimMu.Lock()
	defer s.claimMu.Unlock()
	if _, ok := s.Data.Get(k); ok {
		return false, nil
	}
	s.Data.Add(k, "1")
	return true, nil
}
