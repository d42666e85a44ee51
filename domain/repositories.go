package domain

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository is the identity store consumed by bootstrap and resolution.
// FindByUsername and FindByID return (nil, nil) when no row matches; Save
// performs an insert for new ids and a replace for known ones and must
// surface uniqueness violations on username as ErrDuplicateUsername so the
// caller can fall back to the find path.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	Save(ctx context.Context, user *User) (*User, error)
}

// SessionStore is the opaque per-client key/value store addressed by the
// session cookie. Writes are last-write-wins.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Remove(ctx context.Context, id string) error
}
