package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/market-permanences/internal/service"
	"github.com/iliyamo/market-permanences/internal/utils"
)

// SessionCookie is the cookie holding the signed session token.
const SessionCookie = "session"

// Session parses the session token from the Authorization header or the
// session cookie and stores the resulting Actor in the context.  A missing
// or invalid token is not an error: the request proceeds anonymously and a
// stale cookie is cleared.  Routes that need a user add RequireLogin.
func Session(secret string, secureCookie bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, fromCookie := sessionToken(c.Request())
			if raw == "" {
				return next(c)
			}
			claims, err := utils.ParseSessionToken(secret, raw)
			if err != nil {
				if fromCookie {
					ClearSessionCookie(c, secureCookie)
				}
				return next(c)
			}
			SetActor(c, service.Actor{
				UserID:    claims.UserID,
				Username:  claims.Username,
				Superuser: claims.Superuser,
			})
			return next(c)
		}
	}
}

func sessionToken(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")), false
	}
	if ck, err := r.Cookie(SessionCookie); err == nil {
		return ck.Value, true
	}
	return "", false
}

// SetSessionCookie stores a freshly issued token.
func SetSessionCookie(c echo.Context, tok utils.SessionToken, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    tok.Token,
		Path:     "/",
		Expires:  tok.Exp,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(c echo.Context, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
