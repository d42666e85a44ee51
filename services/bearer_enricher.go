package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/rasterlab/edlgate/domain"
	"github.com/rasterlab/edlgate/edl"
	"github.com/rasterlab/edlgate/errors"
)

// BearerEnricher validates bearer tokens and augments the resulting
// principal with roles derived from the IdP's group membership service.
//
// Enrichment fails closed: when the group service is unreachable or errors,
// the whole authentication fails rather than proceeding with fewer roles.
type BearerEnricher struct {
	verifier  *edl.TokenVerifier
	edlClient *edl.Client
}

// NewBearerEnricher creates a new enricher.
func NewBearerEnricher(verifier *edl.TokenVerifier, edlClient *edl.Client) *BearerEnricher {
	return &BearerEnricher{
		verifier:  verifier,
		edlClient: edlClient,
	}
}

// Authenticate validates the token and returns the enriched principal. Only
// groups registered under this application's client id are translated into
// roles; memberships belonging to other tenants are dropped.
func (e *BearerEnricher) Authenticate(ctx context.Context, rawToken string) (*domain.Principal, error) {
	principal, err := e.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	username, _ := principal.Claims["uid"].(string)
	if username == "" {
		return nil, fmt.Errorf("%w: missing uid claim", errors.ErrInvalidToken)
	}

	groups, err := e.edlClient.UserGroups(ctx, username, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrGroupLookupFailed, err)
	}

	var roles []domain.Role
	for _, group := range groups {
		if group.ClientID != e.edlClient.ClientID() {
			log.Debug().
				Str("group_client_id", group.ClientID).
				Str("app_client_id", e.edlClient.ClientID()).
				Msg("group client id does not match application client id")
			continue
		}
		log.Debug().Str("group", group.Name).Msg("adding user role")
		roles = append(roles, domain.NewRole(group.Name))
	}

	return principal.WithAuthorities(roles), nil
}
