package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rasterlab/edlgate/domain"
	"github.com/rasterlab/edlgate/edl"
	"github.com/rasterlab/edlgate/errors"
	"github.com/rasterlab/edlgate/session"
)

const testClientID = "test-client-id"

func testChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return hex.EncodeToString(sum[:])
}

func newTestBroker(t *testing.T, upstream http.Handler) (*PkceBroker, *session.MemoryStore) {
	t.Helper()

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	store := session.NewMemoryStore(time.Hour)
	edlClient := edl.NewClientWithHTTP(srv.URL, testClientID, "test-secret", srv.Client())
	return NewPkceBroker(edlClient, store), store
}

func newTestSession() *domain.Session {
	return &domain.Session{ID: "sess-1", CreatedAt: time.Now().UTC()}
}

func TestValidateAuthorize(t *testing.T) {
	broker, _ := newTestBroker(t, http.NotFoundHandler())

	valid := AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            testClientID,
		RedirectURI:         "https://app.example.com/callback",
		CodeChallenge:       testChallenge("verifier"),
		CodeChallengeMethod: "S256",
	}

	testCases := []struct {
		name        string
		mutate      func(req *AuthorizeRequest)
		wantDesc    string
	}{
		{
			name:   "valid request",
			mutate: func(*AuthorizeRequest) {},
		},
		{
			name:     "plain method rejected",
			mutate:   func(req *AuthorizeRequest) { req.CodeChallengeMethod = "plain" },
			wantDesc: "code_challenge_method can only be 'S256'",
		},
		{
			name:     "token response type rejected",
			mutate:   func(req *AuthorizeRequest) { req.ResponseType = "token" },
			wantDesc: "response_type can only be 'code'",
		},
		{
			name:     "foreign client id rejected",
			mutate:   func(req *AuthorizeRequest) { req.ClientID = "someone-else" },
			wantDesc: "client_id does not match",
		},
		{
			name:     "short challenge rejected",
			mutate:   func(req *AuthorizeRequest) { req.CodeChallenge = "abc123" },
			wantDesc: "code_challenge must be 64 characters",
		},
		{
			name: "method checked before response type",
			mutate: func(req *AuthorizeRequest) {
				req.CodeChallengeMethod = "plain"
				req.ResponseType = "token"
			},
			wantDesc: "code_challenge_method can only be 'S256'",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)

			oerr := broker.ValidateAuthorize(req)
			if tc.wantDesc == "" {
				assert.Nil(t, oerr)
				return
			}
			require.NotNil(t, oerr)
			assert.Equal(t, errors.InvalidRequest, oerr.Code)
			assert.Equal(t, tc.wantDesc, oerr.Description)
		})
	}
}

func TestBeginAuthorization(t *testing.T) {
	broker, store := newTestBroker(t, http.NotFoundHandler())
	sess := newTestSession()

	challenge := testChallenge("verifier")
	redirect, err := broker.BeginAuthorization(context.Background(), sess, AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            testClientID,
		RedirectURI:         "https://app.example.com/callback",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	})
	require.NoError(t, err)

	// Challenge persisted before the redirect is handed back.
	stored, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Pending)
	assert.Equal(t, challenge, stored.Pending.CodeChallenge)

	// PKCE parameters never reach the upstream authorize URL.
	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "/oauth/authorize", parsed.Path)
	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
	assert.Empty(t, q.Get("code_challenge"))
	assert.Empty(t, q.Get("code_challenge_method"))
}

func TestBeginAuthorizationRejectedNoSessionWrite(t *testing.T) {
	broker, store := newTestBroker(t, http.NotFoundHandler())
	sess := newTestSession()

	_, err := broker.BeginAuthorization(context.Background(), sess, AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "someone-else",
		RedirectURI:         "https://app.example.com/callback",
		CodeChallenge:       testChallenge("verifier"),
		CodeChallengeMethod: "S256",
	})
	require.Error(t, err)

	stored, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestExchangeTokenAuthorizationCode(t *testing.T) {
	upstreamCalls := 0
	broker, store := newTestBroker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls++
		assert.Equal(t, "/oauth/token", r.URL.Path)
		assert.Equal(t, "authorization_code", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "auth-code-1", r.URL.Query().Get("code"))
		assert.Empty(t, r.URL.Query().Get("code_verifier"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, testClientID, user)
		assert.Equal(t, "test-secret", pass)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	}))

	sess := newTestSession()
	sess.Pending = &domain.PendingAuthorization{
		CodeChallenge: testChallenge("good-verifier"),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.Put(context.Background(), sess))

	resp, err := broker.ExchangeToken(context.Background(), sess, TokenRequest{
		GrantType:    GrantAuthorizationCode,
		RedirectURI:  "https://app.example.com/callback",
		CodeVerifier: "good-verifier",
		Code:         "auth-code-1",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"access_token":"tok"}`, string(resp.Body))
	assert.Equal(t, 1, upstreamCalls)

	// Challenge removed: single use.
	stored, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Nil(t, stored.Pending)
}

func TestExchangeTokenVerifierMismatch(t *testing.T) {
	upstreamCalls := 0
	broker, store := newTestBroker(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		upstreamCalls++
		w.WriteHeader(http.StatusOK)
	}))

	challenge := testChallenge("good-verifier")
	sess := newTestSession()
	sess.Pending = &domain.PendingAuthorization{CodeChallenge: challenge, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Put(context.Background(), sess))

	_, err := broker.ExchangeToken(context.Background(), sess, TokenRequest{
		GrantType:    GrantAuthorizationCode,
		RedirectURI:  "https://app.example.com/callback",
		CodeVerifier: "wrong-verifier",
		Code:         "auth-code-1",
	})
	require.ErrorIs(t, err, errors.ErrPkceVerificationFailed)
	assert.Equal(t, 0, upstreamCalls, "upstream must not be called on a failed verification")

	// The challenge stays put, so a retry with the right verifier in the
	// same session still works.
	require.NotNil(t, sess.Pending)
	assert.Equal(t, challenge, sess.Pending.CodeChallenge)

	resp, err := broker.ExchangeToken(context.Background(), sess, TokenRequest{
		GrantType:    GrantAuthorizationCode,
		RedirectURI:  "https://app.example.com/callback",
		CodeVerifier: "good-verifier",
		Code:         "auth-code-1",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, 1, upstreamCalls)
}

func TestExchangeTokenNoPendingChallenge(t *testing.T) {
	upstreamCalls := 0
	broker, _ := newTestBroker(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		upstreamCalls++
		w.WriteHeader(http.StatusOK)
	}))

	_, err := broker.ExchangeToken(context.Background(), newTestSession(), TokenRequest{
		GrantType:    GrantAuthorizationCode,
		RedirectURI:  "https://app.example.com/callback",
		CodeVerifier: "any-verifier",
		Code:         "auth-code-1",
	})
	require.ErrorIs(t, err, errors.ErrPkceVerificationFailed)
	assert.Equal(t, 0, upstreamCalls)
}

func TestExchangeTokenRefreshSkipsVerification(t *testing.T) {
	broker, _ := newTestBroker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "refresh-1", r.URL.Query().Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok2"}`))
	}))

	// No pending challenge anywhere; refresh still goes through.
	resp, err := broker.ExchangeToken(context.Background(), newTestSession(), TokenRequest{
		GrantType:    GrantRefreshToken,
		RedirectURI:  "https://app.example.com/callback",
		RefreshToken: "refresh-1",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestExchangeTokenUnsupportedGrant(t *testing.T) {
	broker, _ := newTestBroker(t, http.NotFoundHandler())

	_, err := broker.ExchangeToken(context.Background(), newTestSession(), TokenRequest{
		GrantType:   "client_credentials",
		RedirectURI: "https://app.example.com/callback",
	})
	require.ErrorIs(t, err, errors.ErrUnsupportedGrantType)
}

func TestExchangeTokenUpstreamErrorPassthrough(t *testing.T) {
	broker, store := newTestBroker(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))

	sess := newTestSession()
	sess.Pending = &domain.PendingAuthorization{
		CodeChallenge: testChallenge("good-verifier"),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.Put(context.Background(), sess))

	resp, err := broker.ExchangeToken(context.Background(), sess, TokenRequest{
		GrantType:    GrantAuthorizationCode,
		RedirectURI:  "https://app.example.com/callback",
		CodeVerifier: "good-verifier",
		Code:         "expired-code",
	})
	require.NoError(t, err, "upstream error statuses are relayed, not surfaced as errors")
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.True(t, strings.Contains(string(resp.Body), "invalid_grant"))
}
