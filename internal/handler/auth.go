package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/market-permanences/internal/middleware"
	"github.com/iliyamo/market-permanences/internal/service"
	"github.com/iliyamo/market-permanences/internal/web"
)

// AuthHandler issues and clears the session cookie.
type AuthHandler struct {
	Base
	Auth         *service.AuthService
	SecureCookie bool
}

func NewAuthHandler(b Base, auth *service.AuthService, secureCookie bool) *AuthHandler {
	return &AuthHandler{Base: b, Auth: auth, SecureCookie: secureCookie}
}

type loginReq struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Next     string `json:"next" form:"next"`
}

// LoginForm renders GET /login.
func (h *AuthHandler) LoginForm(c echo.Context) error {
	if middleware.ActorFrom(c).Authenticated() {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	data := web.LoginData{Next: safeNext(c.QueryParam("next"), "")}
	return c.Render(http.StatusOK, web.PageLogin, h.page(c, "Log in", data))
}

// Login handles POST /login.  Form posts get the session cookie and a
// redirect; JSON clients get the token in the body.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.Username = strings.TrimSpace(req.Username)
	isJSON := strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON)

	ctx, cancel := h.ctx(c)
	defer cancel()

	tok, u, err := h.Auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, service.ErrBadCredentials) {
			h.Log.WithError(err).Error("login failed")
		}
		if isJSON {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		h.Flash.Set(c, web.FlashError, "Invalid username or password.")
		target := "/login"
		if next := safeNext(req.Next, ""); next != "" {
			target += "?next=" + url.QueryEscape(next)
		}
		return c.Redirect(http.StatusSeeOther, target)
	}

	h.Log.WithFields(logrus.Fields{"user_id": u.ID, "username": u.Username}).Info("user logged in")
	if isJSON {
		return c.JSON(http.StatusOK, echo.Map{"token": tok.Token, "expires": tok.Exp})
	}
	middleware.SetSessionCookie(c, tok, h.SecureCookie)
	h.Flash.Set(c, web.FlashSuccess, "Welcome, "+u.DisplayName()+".")
	return c.Redirect(http.StatusSeeOther, safeNext(req.Next, "/"))
}

// Logout handles POST /logout.
func (h *AuthHandler) Logout(c echo.Context) error {
	middleware.ClearSessionCookie(c, h.SecureCookie)
	return c.Redirect(http.StatusSeeOther, "/")
}
