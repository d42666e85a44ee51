package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rasterlab/edlgate/domain"
	"github.com/rasterlab/edlgate/edl"
	"github.com/rasterlab/edlgate/errors"
)

// challengeLength is the length of a hex encoded SHA-256 digest, the only
// challenge shape the broker accepts.
const challengeLength = 64

// Grant types handled by the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// PkceBroker converts standards-compliant PKCE authorization code requests
// into requests the upstream IdP (which lacks native PKCE) can serve. The
// challenge lives in the session between the authorize redirect and the
// token exchange and is removed once a verifier has matched it.
type PkceBroker struct {
	edlClient *edl.Client
	sessions  domain.SessionStore
}

// NewPkceBroker creates a new PKCE broker.
func NewPkceBroker(edlClient *edl.Client, sessions domain.SessionStore) *PkceBroker {
	return &PkceBroker{
		edlClient: edlClient,
		sessions:  sessions,
	}
}

// AuthorizeRequest carries the client's authorize-endpoint parameters.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ValidateAuthorize runs the authorize-endpoint checks in their fixed order
// and returns nil when the request is acceptable. It has no side effects, so
// callers can reject a request before any session is touched.
func (b *PkceBroker) ValidateAuthorize(req AuthorizeRequest) *errors.OAuth2Error {
	if req.CodeChallengeMethod != "S256" {
		return errors.NewInvalidRequest("code_challenge_method can only be 'S256'")
	}
	if req.ResponseType != "code" {
		return errors.NewInvalidRequest("response_type can only be 'code'")
	}
	if req.ClientID != b.edlClient.ClientID() {
		return errors.NewInvalidRequest("client_id does not match")
	}
	if len(req.CodeChallenge) != challengeLength {
		return errors.NewInvalidRequest("code_challenge must be 64 characters")
	}
	return nil
}

// BeginAuthorization validates an authorize request, parks the challenge in
// the session and returns the upstream authorize URL to redirect to. The
// session is persisted before the redirect URL is handed back.
func (b *PkceBroker) BeginAuthorization(ctx context.Context, sess *domain.Session, req AuthorizeRequest) (string, error) {
	if oerr := b.ValidateAuthorize(req); oerr != nil {
		return "", oerr
	}

	sess.Pending = &domain.PendingAuthorization{
		CodeChallenge: req.CodeChallenge,
		CreatedAt:     time.Now().UTC(),
	}
	if err := b.sessions.Put(ctx, sess); err != nil {
		return "", fmt.Errorf("failed to persist pending authorization: %w", err)
	}

	return b.edlClient.AuthorizeURL(req.ResponseType, req.ClientID, req.RedirectURI), nil
}

// TokenRequest carries the client's token-endpoint parameters.
type TokenRequest struct {
	GrantType    string
	RedirectURI  string
	CodeVerifier string
	Code         string
	RefreshToken string
}

// ExchangeToken verifies the PKCE proof for authorization_code grants and
// forwards the exchange upstream, relaying the upstream response verbatim.
//
// A failed verification leaves the stored challenge in place, so a
// legitimate retry with the correct verifier within the same session still
// works. On success the challenge is removed before the upstream call is
// made (single use). refresh_token grants skip verification entirely.
func (b *PkceBroker) ExchangeToken(ctx context.Context, sess *domain.Session, req TokenRequest) (*edl.TokenResponse, error) {
	switch req.GrantType {
	case GrantAuthorizationCode:
		var challenge string
		if sess.Pending != nil {
			challenge = sess.Pending.CodeChallenge
		}

		hash := sha256Hex(req.CodeVerifier)
		if challenge == "" || hash != challenge {
			log.Debug().
				Str("hash", hash).
				Msg("code verification failed")
			return nil, errors.ErrPkceVerificationFailed
		}

		log.Debug().Msg("PKCE check passed")
		sess.Pending = nil
		if err := b.sessions.Put(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to clear pending authorization: %w", err)
		}

	case GrantRefreshToken:
		// No PKCE proof involved, forward directly.

	default:
		return nil, errors.ErrUnsupportedGrantType
	}

	return b.edlClient.ExchangeToken(ctx, req.GrantType, req.RedirectURI, req.Code, req.RefreshToken)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
