package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/market-permanences/internal/middleware"
	"github.com/iliyamo/market-permanences/internal/model"
	"github.com/iliyamo/market-permanences/internal/web"
)

// requestTimeout bounds the database work of one request.
const requestTimeout = 5 * time.Second

// Base carries what every page handler needs: the flash store and a logger.
type Base struct {
	Flash *web.Flashes
	Log   logrus.FieldLogger
}

func (b Base) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// page assembles the common template value.
func (b Base) page(c echo.Context, title string, data any) web.Page {
	return web.Page{
		Title: title,
		Actor: middleware.ActorFrom(c),
		Flash: b.Flash.Pop(c),
		CSRF:  middleware.CSRFToken(c),
		Data:  data,
	}
}

// done finishes a mutation.  Success and user-fixable failures become a
// flash message and a 303 to target; lookups answer 404, policy refusals
// 403; anything else is logged and reported generically.
func (b Base) done(c echo.Context, target, success string, err error) error {
	switch {
	case err == nil:
		b.Flash.Set(c, web.FlashSuccess, success)
	case errors.Is(err, model.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, sentence(model.Reason(err)))
	case errors.Is(err, model.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, sentence(model.Reason(err)))
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrDuplicate):
		b.Flash.Set(c, web.FlashError, sentence(model.Reason(err)))
	default:
		b.Log.WithError(err).WithFields(logrus.Fields{
			"path":    c.Request().URL.Path,
			"user_id": middleware.ActorFrom(c).UserID,
		}).Error("mutation failed")
		b.Flash.Set(c, web.FlashError, sentence(model.Reason(err)))
	}
	return c.Redirect(http.StatusSeeOther, target)
}

// sentence capitalises the first letter and adds a full stop.
func sentence(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	out := string(r)
	if !strings.HasSuffix(out, ".") {
		out += "."
	}
	return out
}

// pathID parses a positive numeric path parameter.  A malformed id is
// reported as not found.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, "Not found.")
	}
	return id, nil
}

// calendarURL returns base with the week query preserved when it is a
// valid date.
func calendarURL(base, week string) string {
	if _, err := model.ParseDate(week); err == nil {
		return base + "?week=" + url.QueryEscape(week)
	}
	return base
}

// safeNext keeps only local absolute paths.
func safeNext(next, fallback string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.HasPrefix(next, "/\\") {
		return next
	}
	return fallback
}

func formBool(c echo.Context, name string) bool {
	switch strings.ToLower(c.FormValue(name)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
