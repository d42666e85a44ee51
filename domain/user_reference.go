package domain

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rasterlab/edlgate/errors"
)

// UserReference is a weak handle to a User, stored in the session so that
// downstream request handling can reach the local identity without a
// repository round trip on every call. It never owns the user's lifecycle:
// it only remembers how to fetch it again.
type UserReference struct {
	UserID uuid.UUID `json:"user_id"`

	mu   sync.Mutex
	user *User
}

// NewUserReference wraps an already persisted user.
func NewUserReference(user *User) *UserReference {
	return &UserReference{
		UserID: user.ID,
		user:   user,
	}
}

// Resolve returns the referenced user, fetching it from the repository on
// first use and caching the result for the reference's lifetime. The row may
// have been deleted since the reference was bound; in that case Resolve
// returns errors.ErrIdentityNotFound and never creates a replacement, since
// the id is the authoritative key here, not the username.
func (r *UserReference) Resolve(ctx context.Context, users UserRepository) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.user != nil {
		return r.user, nil
	}

	user, err := users.FindByID(ctx, r.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.ErrIdentityNotFound
	}

	r.user = user
	return user, nil
}
