package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campaign-links/internal/model"
	"github.com/iliyamo/campaign-links/internal/service"
)

type slotView struct {
	ID         uint64    `json:"id"`
	EventID    uint64    `json:"eventId"`
	Label      string    `json:"label"`
	Capacity   uint32    `json:"capacity"`
	SeatsTaken uint32    `json:"seatsTaken"`
	Remaining  uint32    `json:"remaining"`
	State      string    `json:"state"`
	StartTime  time.Time `json:"startTime"`
}

func toSlotView(s model.Slot) slotView {
	return slotView{
		ID:         s.ID,
		EventID:    s.EventID,
		Label:      s.Label,
		Capacity:   s.Capacity,
		SeatsTaken: s.SeatsTaken,
		Remaining:  s.Remaining(),
		State:      string(s.State()),
		StartTime:  s.StartTime,
	}
}

func invalidID(c echo.Context, field string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "reason": "invalid", "field": field, "error": "invalid " + field})
}

type createSlotRequest struct {
	Label     string    `json:"label"     validate:"required,max=255"`
	Capacity  int       `json:"capacity"  validate:"required,min=1"`
	StartTime time.Time `json:"startTime" validate:"required"`
}

// CreateSlot handles POST /v1/events/:id/slots.
func (h *ReservationHandler) CreateSlot(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "eventId")
	}
	var req createSlotRequest
	if err := bindStrict(c, &req); err != nil {
		return badRequest(c, err)
	}
	s, err := h.Engine.CreateSlot(c.Request().Context(), service.CreateSlotInput{
		EventID: eventID, Label: req.Label, Capacity: req.Capacity, StartTime: req.StartTime,
	})
	if err != nil {
		return writeError(c, h.Log, err, nil)
	}
	return c.JSON(http.StatusCreated, toSlotView(*s))
}

// ListSlots handles GET /v1/events/:id/slots.
func (h *ReservationHandler) ListSlots(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "eventId")
	}
	slots, err := h.Engine.ListSlots(c.Request().Context(), eventID)
	if err != nil {
		return writeError(c, h.Log, err, nil)
	}
	out := make([]slotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotView(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"eventId": eventID, "slots": out})
}

// GetSlot handles GET /v1/slots/:id, the advisory remaining-seats quote.
func (h *ReservationHandler) GetSlot(c echo.Context) error {
	slotID, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "slotId")
	}
	s, err := h.Engine.Slot(c.Request().Context(), slotID)
	if err != nil {
		return writeError(c, h.Log, err, nil)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, toSlotView(*s))
}

type reservationView struct {
	ID          string     `json:"id"`
	PartySize   uint32     `json:"partySize"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	Address     string     `json:"address,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// ListReservations handles GET /v1/slots/:id/reservations.
func (h *ReservationHandler) ListReservations(c echo.Context) error {
	slotID, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "slotId")
	}
	includeCancelled, _ := strconv.ParseBool(c.QueryParam("includeCancelled"))
	list, err := h.Engine.ListReservations(c.Request().Context(), slotID, includeCancelled)
	if err != nil {
		return writeError(c, h.Log, err, nil)
	}
	out := make([]reservationView, 0, len(list))
	for _, r := range list {
		out = append(out, reservationView{
			ID: r.ID, PartySize: r.PartySize, Name: r.Name, Email: r.Email,
			Phone: r.Phone, Address: r.Address, SubmittedAt: r.SubmittedAt, CancelledAt: r.CancelledAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"slotId": slotID, "count": len(out), "reservations": out})
}
