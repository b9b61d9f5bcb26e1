package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/market-permanences/internal/middleware"
	"github.com/iliyamo/market-permanences/internal/service"
	"github.com/iliyamo/market-permanences/internal/web"
)

// CalendarHandler serves the public week calendar and the viewer's own
// registrations.
type CalendarHandler struct {
	Base
	Calendar *service.CalendarService
}

func NewCalendarHandler(b Base, cal *service.CalendarService) *CalendarHandler {
	return &CalendarHandler{Base: b, Calendar: cal}
}

// Week renders GET /?week=YYYY-MM-DD.
func (h *CalendarHandler) Week(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	start := service.ParseWeek(c.QueryParam("week"), h.Calendar.Today())
	view, err := h.Calendar.Week(ctx, middleware.ActorFrom(c), start)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, web.PageCalendar, h.page(c, "Calendar", view))
}

// Mine renders GET /me/registrations.
func (h *CalendarHandler) Mine(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	mine, err := h.Calendar.MyRegistrations(ctx, middleware.ActorFrom(c))
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, web.PageMyRegistrations, h.page(c, "My registrations", mine))
}
