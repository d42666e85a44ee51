package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/rasterlab/edlgate/domain"
	"github.com/rasterlab/edlgate/services"
)

// principalContextKey stores the enriched principal on the echo context.
// This is the request-lifetime cache: the group lookup runs once per request
// no matter how many handlers consult the authorities.
const principalContextKey = "edlgate.principal"

// BearerAuth validates the Authorization header's bearer token and attaches
// the enriched principal to the request context. Requests without a valid
// token are rejected with 401.
func BearerAuth(enricher *services.BearerEnricher) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format: expected Bearer token")
			}

			principal, err := enricher.Authenticate(c.Request().Context(), parts[1])
			if err != nil {
				log.Debug().Err(err).Msg("bearer authentication failed")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(principalContextKey, principal)
			return next(c)
		}
	}
}

// PrincipalFromContext retrieves the enriched principal attached by
// BearerAuth.
func PrincipalFromContext(c echo.Context) (*domain.Principal, bool) {
	principal, ok := c.Get(principalContextKey).(*domain.Principal)
	return principal, ok
}
