package edl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeURLCarriesOnlyUpstreamParams(t *testing.T) {
	c := NewClient("https://idp.example.com", "client-1", "secret")

	raw := c.AuthorizeURL("code", "client-1", "https://app.example.com/callback")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "/oauth/authorize", parsed.Path)
	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
	assert.NotContains(t, q, "code_challenge")
	assert.NotContains(t, q, "code_challenge_method")
}

func TestExchangeTokenSendsClientCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-1", user)
		assert.Equal(t, "secret", pass)

		q := r.URL.Query()
		assert.Equal(t, "authorization_code", q.Get("grant_type"))
		assert.Equal(t, "auth-code-1", q.Get("code"))
		assert.Empty(t, q.Get("refresh_token"))
		assert.Empty(t, q.Get("code_verifier"))

		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	}))
	defer srv.Close()

	c := NewClientWithHTTP(srv.URL, "client-1", "secret", srv.Client())
	resp, err := c.ExchangeToken(context.Background(), "authorization_code", "https://app.example.com/callback", "auth-code-1", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"access_token":"tok"}`, string(resp.Body))
}

func TestExchangeTokenPassesThroughUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer srv.Close()

	c := NewClientWithHTTP(srv.URL, "client-1", "secret", srv.Client())
	resp, err := c.ExchangeToken(context.Background(), "authorization_code", "https://app.example.com/callback", "stale", "")
	require.NoError(t, err, "upstream error statuses are relayed, not raised")
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.JSONEq(t, `{"error":"invalid_grant","error_description":"code expired"}`, string(resp.Body))
}

func TestUserGroupsScopedByClientID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user_groups/groups_for_user/ada", r.URL.Path)
		assert.Equal(t, "client-1", r.URL.Query().Get("client_id"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{"user_groups":[{"name":"Administrator","client_id":"client-1"}]}`))
	}))
	defer srv.Close()

	c := NewClientWithHTTP(srv.URL, "client-1", "secret", srv.Client())
	groups, err := c.UserGroups(context.Background(), "ada", "user-token")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Administrator", groups[0].Name)
}

func TestUserInfoErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClientWithHTTP(srv.URL, "client-1", "secret", srv.Client())
	_, err := c.UserInfo(context.Background(), "ghost", "user-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
