package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/boardgame-meetup/internal/service"
)

// ReservationHandler exposes the capacity ledger over HTTP.
type ReservationHandler struct {
	Ledger *service.Ledger
}

// NewReservationHandler panics when ledger is nil.
func NewReservationHandler(ledger *service.Ledger) *ReservationHandler {
	if ledger == nil {
		panic("nil ledger passed to NewReservationHandler")
	}
	return &ReservationHandler{Ledger: ledger}
}

type reserveReq struct {
	Message *string `json:"message" validate:"omitempty,max=500"`
}

type statusReq struct {
	Status string `json:"status" validate:"required,oneof=CONFIRMED CANCELLED"`
}

// Reserve takes a seat at the session in the path for the caller.
// POST /v1/sessions/:id/reservations
func (h *ReservationHandler) Reserve(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	sessionID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	var req reserveReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if ok, err := validateBody(c, &req); !ok {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	d, err := h.Ledger.Reserve(ctx, sessionID, uid, req.Message)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}

// ListMine returns the caller's reservations, newest first.
// GET /v1/reservations
func (h *ReservationHandler) ListMine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	items, err := h.Ledger.List(ctx, &uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ListAll returns every reservation.  Admin only.
// GET /v1/admin/reservations
func (h *ReservationHandler) ListAll(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	items, err := h.Ledger.List(ctx, nil)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get returns one reservation to its guest or the session host.
// GET /v1/reservations/:id
func (h *ReservationHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	d, err := h.Ledger.Get(ctx, id, uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Cancel removes a reservation and frees its seat.  The guest or the
// session host may cancel.
// DELETE /v1/reservations/:id
func (h *ReservationHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if _, err := h.Ledger.CancelFor(ctx, id, uid); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetStatus lets the host mark a reservation CANCELLED without deleting it.
// PATCH /v1/reservations/:id/status
func (h *ReservationHandler) SetStatus(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	if ok, err := validateBody(c, &req); !ok {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	res, err := h.Ledger.SetStatus(ctx, id, uid, req.Status)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
