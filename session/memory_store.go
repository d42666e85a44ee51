package session

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/rasterlab/edlgate/domain"
)

// MemoryStore implements domain.SessionStore using ttlcache. Suitable for
// development and tests; production deployments use the redis store.
type MemoryStore struct {
	cache *ttlcache.Cache[string, *domain.Session]
}

// NewMemoryStore creates an in-memory session store with automatic expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.Session](ttl),
	)

	go cache.Start()

	return &MemoryStore{cache: cache}
}

// Get implements domain.SessionStore.
func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Session, error) {
	item := s.cache.Get(id)
	if item == nil {
		return nil, nil
	}
	return item.Value(), nil
}

// Put implements domain.SessionStore.
func (s *MemoryStore) Put(_ context.Context, sess *domain.Session) error {
	s.cache.Set(sess.ID, sess, ttlcache.DefaultTTL)
	return nil
}

// Remove implements domain.SessionStore.
func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

var _ domain.SessionStore = (*MemoryStore)(nil)
