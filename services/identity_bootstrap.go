package services

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/rasterlab/edlgate/domain"
	"github.com/rasterlab/edlgate/edl"
	"github.com/rasterlab/edlgate/errors"
)

// IdentityBootstrap lazily materializes a local user record for an
// authenticated session and binds a user reference to it. It runs once per
// session; subsequent calls are no-ops.
type IdentityBootstrap struct {
	users     domain.UserRepository
	sessions  domain.SessionStore
	edlClient *edl.Client
}

// NewIdentityBootstrap creates a new bootstrap service.
func NewIdentityBootstrap(users domain.UserRepository, sessions domain.SessionStore, edlClient *edl.Client) *IdentityBootstrap {
	return &IdentityBootstrap{
		users:     users,
		sessions:  sessions,
		edlClient: edlClient,
	}
}

// EnsureUser bootstraps the session from a validated bearer principal. The
// profile is taken from the token claims when the IdP embedded it there and
// fetched from the user info endpoint otherwise.
func (b *IdentityBootstrap) EnsureUser(ctx context.Context, sess *domain.Session, principal *domain.Principal) error {
	if sess.UserRef != nil {
		return nil
	}

	profile, err := b.resolveProfile(ctx, principal)
	if err != nil {
		return err
	}

	return b.EnsureUserFromProfile(ctx, sess, profile)
}

// EnsureUserFromProfile bootstraps the session from an already resolved
// profile, the entry point used after an interactive login where the
// principal carries the attributes directly.
//
// The upsert keys on the unique username: a known user gets its profile
// fields refreshed, an unknown one is created with a fresh id. Two
// concurrent first requests may both take the create path; the unique index
// is the serialization point and the insert loser falls back to find.
func (b *IdentityBootstrap) EnsureUserFromProfile(ctx context.Context, sess *domain.Session, profile *domain.Profile) error {
	if sess.UserRef != nil {
		return nil
	}

	user, err := b.upsertUser(ctx, profile)
	if err != nil {
		return err
	}

	sess.UserRef = domain.NewUserReference(user)
	if err := b.sessions.Put(ctx, sess); err != nil {
		return fmt.Errorf("failed to bind user reference to session: %w", err)
	}

	return nil
}

func (b *IdentityBootstrap) resolveProfile(ctx context.Context, principal *domain.Principal) (*domain.Profile, error) {
	uid, _ := principal.Claims["uid"].(string)
	if uid == "" {
		return nil, fmt.Errorf("%w: missing uid claim", errors.ErrInvalidToken)
	}

	if first, ok := principal.Claims["first_name"].(string); ok {
		last, _ := principal.Claims["last_name"].(string)
		email, _ := principal.Claims["email_address"].(string)
		return &domain.Profile{
			Username:  uid,
			FirstName: first,
			LastName:  last,
			Email:     email,
		}, nil
	}

	return b.edlClient.UserInfo(ctx, uid, principal.RawToken)
}

func (b *IdentityBootstrap) upsertUser(ctx context.Context, profile *domain.Profile) (*domain.User, error) {
	user, err := b.users.FindByUsername(ctx, profile.Username)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user = domain.NewUser(profile.Username, profile.Email, profile.FirstName, profile.LastName)
		saved, err := b.users.Save(ctx, user)
		if err == nil {
			return saved, nil
		}
		if !stderrors.Is(err, errors.ErrDuplicateUsername) {
			return nil, err
		}

		// Lost the insert race; another request created the row first.
		log.Debug().Str("username", profile.Username).Msg("duplicate insert, falling back to find")
		user, err = b.users.FindByUsername(ctx, profile.Username)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, errors.ErrUserNotFound
		}
	}

	user.FirstName = profile.FirstName
	user.LastName = profile.LastName
	user.Email = profile.Email

	return b.users.Save(ctx, user)
}
