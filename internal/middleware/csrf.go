package middleware

import (
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/labstack/echo/v4"
)

// CSRFField is the form field carrying the token in templates.
const CSRFField = "csrf_token"

// CSRF protects form posts with gorilla/csrf.  authKey must be 32 bytes.
// Bearer-authenticated API calls carry no ambient credentials and are
// exempt.  When secure is false the request is marked plaintext so local
// HTTP deployments pass the origin checks.
func CSRF(authKey []byte, secure bool) echo.MiddlewareFunc {
	protect := csrf.Protect(authKey,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.FieldName(CSRFField),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid or missing form token, reload the page and try again", http.StatusForbidden)
		})),
	)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		protected := echo.WrapMiddleware(protect)(next)
		return func(c echo.Context) error {
			if _, fromCookie := sessionToken(c.Request()); !fromCookie && c.Request().Header.Get("Authorization") != "" {
				return next(c)
			}
			if !secure {
				c.SetRequest(csrf.PlaintextHTTPRequest(c.Request()))
			}
			return protected(c)
		}
	}
}

// CSRFToken returns the token to embed in forms, or "" when CSRF is off.
func CSRFToken(c echo.Context) string { return csrf.Token(c.Request()) }
