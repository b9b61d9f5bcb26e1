package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/market-permanences/internal/handler"
	"github.com/iliyamo/market-permanences/internal/middleware"
)

// Handlers bundles everything the route table needs.
type Handlers struct {
	Calendar      *handler.CalendarHandler
	Registrations *handler.RegistrationHandler
	Admin         *handler.AdminHandler
	Auth          *handler.AuthHandler
	Health        echo.HandlerFunc
	Metrics       http.Handler

	// RateLimit guards the mutation routes; Cache wraps the availability
	// API.  Nil means pass-through.
	RateLimit echo.MiddlewareFunc
	Cache     *middleware.ResponseCache

	// Users re-reads the account on user and admin routes; nil trusts
	// the session token until it expires.
	Users middleware.UserFinder
}

const loginPath = "/login"

// Register mounts every route.  The session middleware must already be
// installed on e.
func Register(e *echo.Echo, h Handlers) {
	limit := h.RateLimit
	if limit == nil {
		limit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	e.GET("/healthz", h.Health)
	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics))
	}

	registerAuth(e, h.Auth, limit)
	registerPublic(e, h)
	reload := middleware.ReloadActor(h.Users)
	registerUser(e, h, reload, limit)
	registerAdmin(e, h.Admin, reload, limit)
}

func registerAuth(e *echo.Echo, a *handler.AuthHandler, limit echo.MiddlewareFunc) {
	e.GET(loginPath, a.LoginForm)
	e.POST(loginPath, a.Login, limit)
	e.POST("/logout", a.Logout)
}

func registerPublic(e *echo.Echo, h Handlers) {
	e.GET("/", h.Calendar.Week)
	e.GET("/api/slots/:id/availability", h.Registrations.Availability, h.Cache.Middleware(middleware.SlotScope("id")))
}

// registerUser mounts the self-service routes.  Ownership is checked by the
// registration service.  No group here: a root group would also catch
// unknown paths behind the login redirect.
func registerUser(e *echo.Echo, h Handlers, reload, limit echo.MiddlewareFunc) {
	login := middleware.RequireLogin(loginPath)
	e.GET("/me/registrations", h.Calendar.Mine, reload, login)
	e.POST("/slots/:id/signup", h.Registrations.SignUp, reload, login, limit)
	e.POST("/registrations/:id/withdraw", h.Registrations.Withdraw, reload, login, limit)
}

func registerAdmin(e *echo.Echo, a *handler.AdminHandler, reload, limit echo.MiddlewareFunc) {
	g := e.Group("/admin", reload, middleware.RequireLogin(loginPath), middleware.RequireSuperuser())
	g.GET("/registrations", a.RegistrationsPage)
	g.POST("/registrations/:id/cancel", a.Cancel, limit)
	g.GET("/slots", a.SlotsPage)
	g.POST("/slots/generate", a.Generate, limit)
	g.POST("/slots/generate-week", a.GenerateWeek, limit)
	g.POST("/slots/:id/register", a.Register, limit)
	g.POST("/slots/:id", a.UpdateSlot, limit)
	g.POST("/opening-hours", a.SetOpeningHours, limit)
}
