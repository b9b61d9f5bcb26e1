package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/market-permanences/internal/model"
	"github.com/iliyamo/market-permanences/internal/service"
)

// UserFinder loads the stored account behind a session.
type UserFinder interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// ReloadActor replaces the identity carried by the session token with the
// stored account, so a demoted or deactivated user loses rights on the
// next request rather than when the token expires.  Unknown or inactive
// accounts continue as anonymous.  A nil finder trusts the token.
func ReloadActor(users UserFinder) echo.MiddlewareFunc {
	if users == nil {
		return passthrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a := ActorFrom(c)
			if !a.Authenticated() {
				return next(c)
			}
			u, err := users.GetByID(c.Request().Context(), a.UserID)
			switch {
			case errors.Is(err, model.ErrNotFound):
				SetActor(c, service.Actor{})
			case err != nil:
				return err
			case !u.Active:
				SetActor(c, service.Actor{})
			default:
				SetActor(c, service.Actor{UserID: u.ID, Username: u.Username, Superuser: u.Superuser})
			}
			return next(c)
		}
	}
}

// RequireLogin sends anonymous browsers to loginPath, remembering the page
// they asked for.  API requests receive 401 instead.
func RequireLogin(loginPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if ActorFrom(c).Authenticated() {
				return next(c)
			}
			if wantsJSON(c.Request()) {
				return echo.NewHTTPError(http.StatusUnauthorized, "login required")
			}
			target := loginPath
			if c.Request().Method == http.MethodGet {
				target += "?next=" + url.QueryEscape(c.Request().URL.RequestURI())
			}
			return c.Redirect(http.StatusSeeOther, target)
		}
	}
}

// RequireSuperuser rejects authenticated non-superusers with 403.  It must
// run after RequireLogin.
func RequireSuperuser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !ActorFrom(c).Superuser {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get(echo.HeaderAccept)
	return accept == echo.MIMEApplicationJSON || r.Header.Get(echo.HeaderContentType) == echo.MIMEApplicationJSON
}
