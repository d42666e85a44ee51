package domain

import "time"

// PendingAuthorization is the PKCE challenge parked in the session between
// the authorize redirect and the token exchange. At most one exists per
// session; it is removed once the verifier has been checked.
type PendingAuthorization struct {
	CodeChallenge string    `json:"code_challenge"`
	CreatedAt     time.Time `json:"created_at"`
}

// Session is the per-client server side state addressed by the session
// cookie. The pending authorization and the bound user reference are
// mutually exclusive phases: the former only exists during the
// authorize-to-token window, the latter only after a user was bootstrapped.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Pending *PendingAuthorization `json:"pending,omitempty"`
	UserRef *UserReference        `json:"user_ref,omitempty"`
}
