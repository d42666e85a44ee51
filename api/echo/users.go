package echo

import (
	stderrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rasterlab/edlgate/domain"
	"github.com/rasterlab/edlgate/errors"
	"github.com/rasterlab/edlgate/middleware"
)

// administratorRole gates the user lookup endpoint.
var administratorRole = domain.NewRole("Administrator")

// userResponse is the JSON shape of a local identity.
type userResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func newUserResponse(user *domain.User) userResponse {
	return userResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

// UserAPI exposes the identity endpoints consumed by the frontend.
type UserAPI struct {
	users domain.UserRepository
}

// NewUserAPI initializes the user API.
func NewUserAPI(users domain.UserRepository) *UserAPI {
	return &UserAPI{users: users}
}

// RegisterRoutes registers the user routes on an authenticated group.
func (u *UserAPI) RegisterRoutes(g *echo.Group) {
	g.GET("/users/me", u.CurrentUserHandler)
	g.GET("/users/:username", u.UserHandler)
}

// CurrentUserHandler resolves the session's user reference. A dangling
// reference (the row was deleted since binding) is reported with the
// actionable identity-missing message rather than recreating the user.
func (u *UserAPI) CurrentUserHandler(c echo.Context) error {
	user, err := middleware.CurrentUser(c, u.users)
	if err != nil {
		if stderrors.Is(err, errors.ErrIdentityNotFound) {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"message": errors.ErrIdentityNotFound.Error(),
			})
		}
		return err
	}
	return c.JSON(http.StatusOK, newUserResponse(user))
}

// UserHandler looks up a user by username. Restricted to administrators.
func (u *UserAPI) UserHandler(c echo.Context) error {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok || !principal.HasAuthority(administratorRole) {
		return echo.NewHTTPError(http.StatusForbidden, "administrator role required")
	}

	user, err := u.users.FindByUsername(c.Request().Context(), c.Param("username"))
	if err != nil {
		return err
	}
	if user == nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return c.JSON(http.StatusOK, newUserResponse(user))
}
