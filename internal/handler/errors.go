package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/market-permanences/internal/middleware"
	"github.com/iliyamo/market-permanences/internal/model"
	"github.com/iliyamo/market-permanences/internal/web"
)

// ErrorHandler replaces echo's default.  Domain lookups become 404 and
// policy refusals 403; everything unexpected is logged and shown as a
// generic 500.  Routes under /api and JSON clients receive
// {"error": message}, browsers the error page.
func ErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, msg := classify(err)
		if status >= http.StatusInternalServerError {
			log.WithError(err).WithField("path", c.Request().URL.Path).Error("unhandled error")
		}

		var werr error
		switch {
		case c.Request().Method == http.MethodHead:
			werr = c.NoContent(status)
		case strings.HasPrefix(c.Request().URL.Path, "/api/") ||
			strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON):
			werr = c.JSON(status, echo.Map{"error": msg})
		default:
			werr = c.Render(status, web.PageError, web.Page{
				Title: http.StatusText(status),
				Actor: middleware.ActorFrom(c),
				Data:  web.ErrorData{Status: status, Message: msg},
			})
		}
		if werr != nil {
			log.WithError(werr).Warn("write error response")
		}
	}
}

func classify(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		if m, ok := he.Message.(string); ok {
			return he.Code, m
		}
		return he.Code, http.StatusText(he.Code)
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, sentence(model.Reason(err))
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, sentence(model.Reason(err))
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrDuplicate):
		return http.StatusUnprocessableEntity, sentence(model.Reason(err))
	}
	return http.StatusInternalServerError, sentence(model.Reason(err))
}
