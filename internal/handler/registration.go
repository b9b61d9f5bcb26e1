package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/market-permanences/internal/availability"
	"github.com/iliyamo/market-permanences/internal/middleware"
	"github.com/iliyamo/market-permanences/internal/model"
	"github.com/iliyamo/market-permanences/internal/service"
)

// RegistrationHandler serves the self-service sign up and withdraw forms
// and the availability API.
type RegistrationHandler struct {
	Base
	Registrations *service.RegistrationService
}

func NewRegistrationHandler(b Base, regs *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{Base: b, Registrations: regs}
}

// SignUp handles POST /slots/:id/signup.
func (h *RegistrationHandler) SignUp(c echo.Context) error {
	slotID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	_, err = h.Registrations.SignUp(ctx, middleware.ActorFrom(c), slotID)
	return h.done(c, calendarURL("/", c.QueryParam("week")), "You are registered for this slot.", err)
}

// Withdraw handles POST /registrations/:id/withdraw.  With next=mine the
// user returns to their registrations page.
func (h *RegistrationHandler) Withdraw(c echo.Context) error {
	regID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	target := calendarURL("/", c.QueryParam("week"))
	if c.QueryParam("next") == "mine" {
		target = "/me/registrations"
	}
	_, err = h.Registrations.Withdraw(ctx, middleware.ActorFrom(c), regID)
	return h.done(c, target, "Your registration was cancelled.", err)
}

type availabilityResp struct {
	SlotID uint64 `json:"slot_id"`
	Date   string `json:"date"`
	Start  string `json:"start"`
	End    string `json:"end"`
	availability.Status
}

// Availability handles GET /api/slots/:id/availability.
func (h *RegistrationHandler) Availability(c echo.Context) error {
	slotID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	slot, st, err := h.Registrations.Availability(ctx, slotID)
	if err != nil {
		return err
	}
	if !st.Past {
		// past flips at the slot's end without any write to invalidate on
		secs := int(h.Registrations.EndsIn(slot) / time.Second)
		if secs > 0 {
			c.Response().Header().Set("Cache-Control", "max-age="+strconv.Itoa(secs))
		} else {
			c.Response().Header().Set("Cache-Control", "no-store")
		}
	}
	return c.JSON(http.StatusOK, availabilityResp{
		SlotID: slot.ID,
		Date:   slot.Date.Format(model.DateLayout),
		Start:  slot.Start.String(),
		End:    slot.End.String(),
		Status: st,
	})
}
