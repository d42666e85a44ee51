package edl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/rasterlab/edlgate/domain"
)

// Client talks to the upstream IdP (EDL). The token exchange authenticates
// with HTTP Basic using the application's client credentials; the user info
// and user groups endpoints authenticate with the caller's bearer token.
//
// No call retries internally; a failed upstream call surfaces immediately
// and is cancellable with the originating request context.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewClient creates an EDL client for the given base URL and credentials.
func NewClient(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   http.DefaultClient,
	}
}

// NewClientWithHTTP is like NewClient with an explicit http.Client, used by
// tests and by deployments that need custom transports.
func NewClientWithHTTP(baseURL, clientID, clientSecret string, httpClient *http.Client) *Client {
	c := NewClient(baseURL, clientID, clientSecret)
	c.httpClient = httpClient
	return c
}

// ClientID returns the application client id registered with the IdP.
func (c *Client) ClientID() string {
	return c.clientID
}

// AuthorizeURL reconstructs the IdP's real authorize URL carrying only the
// parameters the IdP understands. The PKCE parameters are deliberately
// dropped: the upstream never sees them.
func (c *Client) AuthorizeURL(responseType, clientID, redirectURI string) string {
	q := url.Values{}
	q.Set("response_type", responseType)
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	return fmt.Sprintf("%s/oauth/authorize?%s", c.baseURL, q.Encode())
}

// TokenResponse is the raw upstream token endpoint response. Status and body
// are relayed to the caller byte-for-byte, error statuses included, so
// clients keep the ability to interpret IdP specific error codes.
type TokenResponse struct {
	Status int
	Body   []byte
}

// ExchangeToken forwards a token request upstream. code and refreshToken are
// optional; the PKCE verifier is never forwarded. Non-2xx statuses are not
// an error here: the response is passed through as-is.
func (c *Client) ExchangeToken(ctx context.Context, grantType, redirectURI, code, refreshToken string) (*TokenResponse, error) {
	q := url.Values{}
	q.Set("grant_type", grantType)
	q.Set("redirect_uri", redirectURI)
	if code != "" {
		q.Set("code", code)
	}
	if refreshToken != "" {
		q.Set("refresh_token", refreshToken)
	}

	tokenURL := fmt.Sprintf("%s/oauth/token?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request to upstream failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream token response: %w", err)
	}

	return &TokenResponse{Status: resp.StatusCode, Body: body}, nil
}

// UserInfo fetches the profile for the given uid from the IdP's user info
// endpoint using the caller's bearer token.
func (c *Client) UserInfo(ctx context.Context, uid, bearerToken string) (*domain.Profile, error) {
	infoURL := fmt.Sprintf("%s/api/users/%s?client_id=%s",
		c.baseURL, url.PathEscape(uid), url.QueryEscape(c.clientID))

	var profile domain.Profile
	if err := c.getJSON(ctx, infoURL, bearerToken, &profile); err != nil {
		return nil, fmt.Errorf("user info lookup for %q failed: %w", uid, err)
	}
	return &profile, nil
}

// UserGroups fetches the group memberships for the given username, scoped by
// the application client id.
func (c *Client) UserGroups(ctx context.Context, username, bearerToken string) ([]domain.ExternalGroup, error) {
	groupsURL := fmt.Sprintf("%s/api/user_groups/groups_for_user/%s?client_id=%s",
		c.baseURL, url.PathEscape(username), url.QueryEscape(c.clientID))

	log.Debug().Str("url", groupsURL).Msg("constructed user groups uri")

	var groups domain.UserGroups
	if err := c.getJSON(ctx, groupsURL, bearerToken, &groups); err != nil {
		return nil, fmt.Errorf("user groups lookup for %q failed: %w", username, err)
	}
	return groups.UserGroups, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL, bearerToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
