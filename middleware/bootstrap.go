package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/rasterlab/edlgate/domain"
	"github.com/rasterlab/edlgate/services"
	"github.com/rasterlab/edlgate/session"
)

// sessionContextKey stores the loaded session on the echo context.
const sessionContextKey = "edlgate.session"

// UserBootstrap ensures an authenticated request's session carries a user
// reference, creating or refreshing the local identity on the way. Runs
// after BearerAuth; requests without a principal pass through untouched.
func UserBootstrap(sessions *session.Manager, bootstrap *services.IdentityBootstrap) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, ok := PrincipalFromContext(c)
			if !ok {
				return next(c)
			}

			sess, err := sessions.Load(c)
			if err != nil {
				log.Error().Err(err).Msg("failed to load session for bootstrap")
				return echo.NewHTTPError(http.StatusInternalServerError, "session unavailable")
			}

			if err := bootstrap.EnsureUser(c.Request().Context(), sess, principal); err != nil {
				log.Error().Err(err).Msg("user bootstrap failed")
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to initialize user")
			}

			c.Set(sessionContextKey, sess)
			return next(c)
		}
	}
}

// SessionFromContext retrieves the session attached by UserBootstrap.
func SessionFromContext(c echo.Context) (*domain.Session, bool) {
	sess, ok := c.Get(sessionContextKey).(*domain.Session)
	return sess, ok
}

// CurrentUser resolves the session's user reference against the repository.
// Returns errors.ErrIdentityNotFound when the referenced row is gone.
func CurrentUser(c echo.Context, users domain.UserRepository) (*domain.User, error) {
	sess, ok := SessionFromContext(c)
	if !ok || sess.UserRef == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "no user bound to session")
	}
	return sess.UserRef.Resolve(c.Request().Context(), users)
}
