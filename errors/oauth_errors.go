package errors

import (
	"errors"
	"fmt"
)

// OAuth2Error represents a standardized OAuth 2.0 error response body.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	// Details mirrors the upstream IdP's non-standard "error_details" field
	// used on token exchange failures.
	Details string `json:"error_details,omitempty"`
	URI     string `json:"error_uri,omitempty"`
}

func (e *OAuth2Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Details)
}

// Standard OAuth2 error codes
const (
	InvalidRequest       = "invalid_request"
	UnauthorizedClient   = "unauthorized_client"
	AccessDenied         = "access_denied"
	UnsupportedGrantType = "unsupported_grant_type"
	InvalidClient        = "invalid_client"
	InvalidGrant         = "invalid_grant"
	ServerError          = "server_error"
)

// NewInvalidRequest builds an invalid_request error with a human readable
// description, used by authorize-endpoint validation.
func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: description,
	}
}

// NewInvalidRequestDetails builds an invalid_request error carrying the
// "error_details" field instead of "error_description". The token endpoint
// reports PKCE and grant_type failures in this shape.
func NewInvalidRequestDetails(details string) *OAuth2Error {
	return &OAuth2Error{
		Code:    InvalidRequest,
		Details: details,
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        ServerError,
		Description: description,
	}
}

// Sentinel errors surfaced by the gateway's collaborator interfaces.
var (
	// ErrUserNotFound is returned by user repository lookups.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUsername is returned by the user repository when an insert
	// loses the race on the unique username index. Callers fall back to the
	// find path instead of reporting it.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrIdentityNotFound is returned when a session's user reference points
	// at a user row that no longer exists. The message is user-facing and
	// actionable on purpose: the only recovery is a fresh login.
	ErrIdentityNotFound = errors.New(
		"user cannot be found, try clearing your cookies and try again")

	// ErrPkceVerificationFailed is returned when the sha256 of the submitted
	// code_verifier does not match the challenge stored at authorize time.
	ErrPkceVerificationFailed = errors.New("code verification failed")

	// ErrUnsupportedGrantType is returned for grant types other than
	// authorization_code and refresh_token.
	ErrUnsupportedGrantType = errors.New("specified grant_type not supported")

	// ErrGroupLookupFailed is returned when the group membership service is
	// unreachable or errors. Authentication fails closed on it.
	ErrGroupLookupFailed = errors.New("user group lookup failed")

	// ErrInvalidToken covers signature, expiry and claim validation failures.
	ErrInvalidToken = errors.New("invalid bearer token")
)
