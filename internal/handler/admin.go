package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/market-permanences/internal/middleware"
	"github.com/iliyamo/market-permanences/internal/model"
	"github.com/iliyamo/market-permanences/internal/service"
	"github.com/iliyamo/market-permanences/internal/web"
)

// AdminHandler serves the superuser pages: the registrations week view,
// registering and cancelling on behalf of users, slot generation and
// opening hours.
type AdminHandler struct {
	Base
	Calendar      *service.CalendarService
	Registrations *service.RegistrationService
	Slots         *service.SlotService
}

func NewAdminHandler(b Base, cal *service.CalendarService, regs *service.RegistrationService, slots *service.SlotService) *AdminHandler {
	return &AdminHandler{Base: b, Calendar: cal, Registrations: regs, Slots: slots}
}

// RegistrationsPage handles GET /admin/registrations?week=.
func (h *AdminHandler) RegistrationsPage(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	start := service.ParseWeek(c.QueryParam("week"), h.Calendar.Today())
	view, err := h.Calendar.AdminWeek(ctx, middleware.ActorFrom(c), start)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, web.PageAdminRegistrations, h.page(c, "Registrations", view))
}

// Register handles POST /admin/slots/:id/register with form fields user_id
// and comment.
func (h *AdminHandler) Register(c echo.Context) error {
	slotID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	target := calendarURL("/admin/registrations", c.QueryParam("week"))
	userID, err := strconv.ParseUint(c.FormValue("user_id"), 10, 64)
	if err != nil || userID == 0 {
		return h.done(c, target, "", model.Invalid("choose a user to register"))
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	_, err = h.Registrations.RegisterUser(ctx, middleware.ActorFrom(c), userID, slotID, strings.TrimSpace(c.FormValue("comment")))
	return h.done(c, target, "The user is registered.", err)
}

// Cancel handles POST /admin/registrations/:id/cancel.
func (h *AdminHandler) Cancel(c echo.Context) error {
	regID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	_, err = h.Registrations.CancelRegistration(ctx, middleware.ActorFrom(c), regID)
	return h.done(c, calendarURL("/admin/registrations", c.QueryParam("week")), "The registration was cancelled.", err)
}

// SlotsPage handles GET /admin/slots.
func (h *AdminHandler) SlotsPage(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	hours, err := h.Slots.OpeningHours(ctx)
	if err != nil {
		return err
	}
	data := web.AdminSlotsData{
		WeekStart:       service.MondayOf(h.Calendar.Today()),
		DefaultCapacity: h.Slots.DefaultCapacity(),
		Rows:            weekRows(hours),
	}
	return c.Render(http.StatusOK, web.PageAdminSlots, h.page(c, "Slots", data))
}

// weekRows returns one row per weekday, filling days without stored hours
// with a closed placeholder.
func weekRows(hours []model.OpeningHours) []model.OpeningHours {
	rows := make([]model.OpeningHours, 7)
	for i := range rows {
		rows[i] = model.OpeningHours{Weekday: i, Opens: model.NewTimeOfDay(9, 0), Closes: model.NewTimeOfDay(12, 0)}
	}
	for _, oh := range hours {
		if oh.Weekday >= 0 && oh.Weekday < 7 {
			rows[oh.Weekday] = oh
		}
	}
	return rows
}

// Generate handles POST /admin/slots/generate.
func (h *AdminHandler) Generate(c echo.Context) error {
	req, err := parseGenerateForm(c, h.Slots.DefaultCapacity())
	if err != nil {
		return h.done(c, "/admin/slots", "", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Slots.Generate(ctx, middleware.ActorFrom(c), req)
	target := calendarURL("/admin/registrations", c.FormValue("start_date"))
	if err != nil {
		target = "/admin/slots"
	}
	return h.done(c, target, generated(res), err)
}

func parseGenerateForm(c echo.Context, defaultCapacity int) (service.GenerateRequest, error) {
	date, err := model.ParseDate(c.FormValue("start_date"))
	if err != nil {
		return service.GenerateRequest{}, model.Invalid("enter a valid start date")
	}
	start, err := model.ParseTimeOfDay(c.FormValue("start_time"))
	if err != nil {
		return service.GenerateRequest{}, model.Invalid("enter a valid start time")
	}
	end, err := model.ParseTimeOfDay(c.FormValue("end_time"))
	if err != nil {
		return service.GenerateRequest{}, model.Invalid("enter a valid end time")
	}
	capacity := defaultCapacity
	if v := c.FormValue("max_occupancy"); v != "" {
		if capacity, err = strconv.Atoi(v); err != nil {
			return service.GenerateRequest{}, model.ErrInvalidCapacity
		}
	}
	req := service.GenerateRequest{
		StartDate: date,
		Start:     start,
		End:       end,
		Capacity:  capacity,
		Active:    formBool(c, "is_active"),
	}
	if v := c.FormValue("repeat_until"); v != "" {
		until, err := model.ParseDate(v)
		if err != nil {
			return service.GenerateRequest{}, model.Invalid("enter a valid repeat end date")
		}
		req.RepeatWeeks, req.RepeatUntil = true, until
	} else if v := c.FormValue("repeat_weeks"); v != "" && v != "0" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return service.GenerateRequest{}, model.Invalid("enter a valid number of weeks")
		}
		req.RepeatWeeks, req.RepeatUntil = true, date.AddDate(0, 0, 7*n)
	}
	return req, nil
}

// GenerateWeek handles POST /admin/slots/generate-week.
func (h *AdminHandler) GenerateWeek(c echo.Context) error {
	start, err := model.ParseDate(c.FormValue("week_start"))
	if err != nil {
		return h.done(c, "/admin/slots", "", model.Invalid("enter a valid week start"))
	}
	weeks := 1
	if v := c.FormValue("weeks"); v != "" {
		if weeks, err = strconv.Atoi(v); err != nil || weeks < 1 {
			return h.done(c, "/admin/slots", "", model.Invalid("enter a valid number of weeks"))
		}
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Slots.GenerateFromOpeningHours(ctx, middleware.ActorFrom(c), start, weeks)
	target := calendarURL("/admin/registrations", service.MondayOf(start).Format(model.DateLayout))
	if err != nil {
		target = "/admin/slots"
	}
	return h.done(c, target, generated(res), err)
}

func generated(res service.GenerateResult) string {
	return fmt.Sprintf("%d slot(s) created, %d already existed.", res.Created, res.Skipped)
}

// UpdateSlot handles POST /admin/slots/:id with max_occupancy and is_active.
func (h *AdminHandler) UpdateSlot(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	target := calendarURL("/admin/registrations", c.QueryParam("week"))
	capacity, err := strconv.Atoi(c.FormValue("max_occupancy"))
	if err != nil {
		return h.done(c, target, "", model.ErrInvalidCapacity)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	_, err = h.Slots.UpdateSlot(ctx, middleware.ActorFrom(c), id, capacity, formBool(c, "is_active"))
	return h.done(c, target, "The slot was updated.", err)
}

// SetOpeningHours handles POST /admin/opening-hours.
func (h *AdminHandler) SetOpeningHours(c echo.Context) error {
	weekday, err := strconv.Atoi(c.FormValue("weekday"))
	if err != nil {
		return h.done(c, "/admin/slots", "", model.ErrInvalidWeekday)
	}
	opens, err := model.ParseTimeOfDay(c.FormValue("opens_at"))
	if err != nil {
		return h.done(c, "/admin/slots", "", model.Invalid("enter a valid opening time"))
	}
	closes, err := model.ParseTimeOfDay(c.FormValue("closes_at"))
	if err != nil {
		return h.done(c, "/admin/slots", "", model.Invalid("enter a valid closing time"))
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	err = h.Slots.SetOpeningHours(ctx, middleware.ActorFrom(c), model.OpeningHours{
		Weekday: weekday,
		Opens:   opens,
		Closes:  closes,
		Active:  formBool(c, "is_active"),
	})
	return h.done(c, "/admin/slots", "Opening hours saved.", err)
}
