package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rasterlab/edlgate/domain"
)

// Store implements domain.SessionStore using Redis. Sessions are stored as
// JSON under a prefixed key with the session TTL as the key expiry. The
// cached user handle inside a user reference is not serialized; it is
// re-resolved lazily after a round trip through here.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore creates a new redis session store.
func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Store) redisKey(id string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}

// Get implements domain.SessionStore.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, s.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// Put implements domain.SessionStore. Last write wins.
func (s *Store) Put(ctx context.Context, sess *domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.redisKey(sess.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in redis: %w", err)
	}
	return nil
}

// Remove implements domain.SessionStore.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.redisKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

var _ domain.SessionStore = (*Store)(nil)
