package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/campaign-links/internal/model"
	"github.com/iliyamo/campaign-links/internal/service"
)

// ReservationHandler serves the RSVP surface.
type ReservationHandler struct {
	Engine *service.Engine
	Log    *zap.Logger
}

// NewReservationHandler panics on a nil engine.
func NewReservationHandler(engine *service.Engine, log *zap.Logger) *ReservationHandler {
	if engine == nil {
		panic("nil engine passed to NewReservationHandler")
	}
	return &ReservationHandler{Engine: engine, Log: nopIfNil(log)}
}

type reserveRequest struct {
	EventID           uint64 `json:"eventId"           validate:"required"`
	SlotID            uint64 `json:"slotId"            validate:"required"`
	PartySize         *int   `json:"partySize"         validate:"omitempty,min=1"`
	Name              string `json:"name"              validate:"required,max=255"`
	Email             string `json:"email"             validate:"required,email,max=320"`
	Phone             string `json:"phone"             validate:"max=64"`
	Address           string `json:"address"           validate:"max=512"`
	VerificationToken string `json:"verificationToken" validate:"required"`
	IdempotencyKey    string `json:"idempotencyKey"    validate:"max=64"`
}

// Reserve handles POST /reserve.
//
//	200 {ok:true, reservationId, remaining, replayed}
//	400 validation or verification failure
//	409 {ok:false, reason:"sold_out", remaining}
//	503 transient backend failure
func (h *ReservationHandler) Reserve(c echo.Context) error {
	var req reserveRequest
	if err := bindStrict(c, &req); err != nil {
		return badRequest(c, err)
	}
	party := 1
	if req.PartySize != nil {
		party = *req.PartySize
	}
	key := req.IdempotencyKey
	if key == "" {
		key = c.Request().Header.Get("Idempotency-Key")
	}

	out, err := h.Engine.Reserve(c.Request().Context(), service.ReserveInput{
		EventID:   req.EventID,
		SlotID:    req.SlotID,
		PartySize: party,
		Contact: model.Contact{
			Name:    req.Name,
			Email:   req.Email,
			Phone:   req.Phone,
			Address: req.Address,
		},
		VerificationToken: req.VerificationToken,
		IdempotencyKey:    key,
		RemoteIP:          c.RealIP(),
	})
	if errors.Is(err, service.ErrSoldOut) {
		return writeError(c, h.Log, err, echo.Map{"error": "not enough seats left in this slot", "remaining": out.Remaining})
	}
	if errors.Is(err, service.ErrVerificationFailed) {
		return writeError(c, h.Log, err, echo.Map{"error": "verification failed, please retry the challenge"})
	}
	if err != nil {
		return writeError(c, h.Log, err, nil)
	}

	body := echo.Map{"ok": true, "reservationId": out.Reservation.ID}
	if out.Replayed {
		body["replayed"] = true
	} else {
		body["remaining"] = out.Remaining
	}
	return c.JSON(http.StatusOK, body)
}
