//nolint:varnamelen
package echo

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/rasterlab/edlgate/errors"
	"github.com/rasterlab/edlgate/services"
	"github.com/rasterlab/edlgate/session"
)

// authClientsCookie is set by the browser frontend during login and cleared
// together with the session cookie on logout.
const authClientsCookie = "auth_clients"

// HealthCheck is a named liveness probe for a backing service.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// GatewayAPI holds the HTTP handlers of the auth gateway.
type GatewayAPI struct {
	broker   *services.PkceBroker
	sessions *session.Manager
	checks   []HealthCheck
}

// NewGatewayAPI initializes the gateway API.
func NewGatewayAPI(broker *services.PkceBroker, sessions *session.Manager, checks []HealthCheck) *GatewayAPI {
	return &GatewayAPI{
		broker:   broker,
		sessions: sessions,
		checks:   checks,
	}
}

// RegisterRoutes registers the gateway routes.
func (a *GatewayAPI) RegisterRoutes(e *echo.Echo) {
	e.GET("/edl/oauth/authorize", a.AuthorizeHandler)
	e.POST("/edl/oauth/token", a.TokenHandler)
	e.GET("/logout", a.LogoutHandler)
	e.GET("/healthz", a.HealthHandler)
}

// AuthorizeHandler brokers the PKCE authorize request: after validation the
// challenge is parked in the session and the caller is redirected to the
// upstream authorize endpoint, which never sees the PKCE parameters.
func (a *GatewayAPI) AuthorizeHandler(c echo.Context) error {
	req := services.AuthorizeRequest{
		ResponseType:        c.QueryParam("response_type"),
		ClientID:            c.QueryParam("client_id"),
		RedirectURI:         c.QueryParam("redirect_uri"),
		CodeChallenge:       c.QueryParam("code_challenge"),
		CodeChallengeMethod: c.QueryParam("code_challenge_method"),
	}

	// Validate before touching the session so rejected requests leave no
	// trace, not even a fresh cookie.
	if oerr := a.broker.ValidateAuthorize(req); oerr != nil {
		return c.JSON(http.StatusBadRequest, oerr)
	}

	sess, err := a.sessions.Load(c)
	if err != nil {
		log.Error().Err(err).Msg("failed to load session")
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("session unavailable"))
	}

	redirectURL, err := a.broker.BeginAuthorization(c.Request().Context(), sess, req)
	if err != nil {
		var oerr *errors.OAuth2Error
		if stderrors.As(err, &oerr) {
			return c.JSON(http.StatusBadRequest, oerr)
		}
		log.Error().Err(err).Msg("failed to begin authorization")
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("failed to store authorization state"))
	}

	return c.Redirect(http.StatusFound, redirectURL)
}

// TokenHandler verifies the PKCE proof and forwards the exchange upstream.
// The upstream response is relayed verbatim, error statuses included.
func (a *GatewayAPI) TokenHandler(c echo.Context) error {
	req := services.TokenRequest{
		GrantType:    param(c, "grant_type"),
		RedirectURI:  param(c, "redirect_uri"),
		CodeVerifier: param(c, "code_verifier"),
		Code:         param(c, "code"),
		RefreshToken: param(c, "refresh_token"),
	}

	sess, err := a.sessions.Load(c)
	if err != nil {
		log.Error().Err(err).Msg("failed to load session")
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("session unavailable"))
	}

	resp, err := a.broker.ExchangeToken(c.Request().Context(), sess, req)
	if err != nil {
		switch {
		case stderrors.Is(err, errors.ErrPkceVerificationFailed):
			return c.JSON(http.StatusBadRequest, errors.NewInvalidRequestDetails("code verification failed"))
		case stderrors.Is(err, errors.ErrUnsupportedGrantType):
			return c.JSON(http.StatusBadRequest, errors.NewInvalidRequestDetails("specified grant_type not supported"))
		default:
			log.Error().Err(err).Msg("token exchange failed")
			return c.JSON(http.StatusBadGateway, errors.NewServerError("upstream token endpoint unreachable"))
		}
	}

	return c.Blob(resp.Status, echo.MIMEApplicationJSON, resp.Body)
}

// LogoutHandler drops the server side session when one exists and expires
// both auth cookies. Idempotent: it succeeds regardless of prior state.
func (a *GatewayAPI) LogoutHandler(c echo.Context) error {
	if sess, err := a.sessions.Peek(c); err == nil && sess != nil {
		if err := a.sessions.Remove(c.Request().Context(), sess); err != nil {
			log.Warn().Err(err).Msg("failed to remove session on logout")
		}
	}

	expire := func(name string) {
		c.SetCookie(&http.Cookie{
			Name:   name,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
	}
	expire(a.sessions.CookieName())
	expire(authClientsCookie)

	return c.JSON(http.StatusOK, true)
}

// HealthHandler reports liveness of the backing services.
func (a *GatewayAPI) HealthHandler(c echo.Context) error {
	for _, hc := range a.checks {
		if err := hc.Check(c.Request().Context()); err != nil {
			log.Warn().Err(err).Str("check", hc.Name).Msg("health check failed")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"failed": hc.Name,
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// param reads a request parameter from the form body with a query string
// fallback, matching the upstream IdP's lenient parameter binding.
func param(c echo.Context, name string) string {
	if v := c.FormValue(name); v != "" {
		return v
	}
	return c.QueryParam(name)
}
