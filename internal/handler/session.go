package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/boardgame-meetup/internal/model"
	"github.com/iliyamo/boardgame-meetup/internal/repository"
)

// SessionHandler serves play sessions: hosting, browsing and the
// host's view of who is coming.
type SessionHandler struct {
	Sessions     *repository.SessionRepo
	Locations    *repository.LocationRepo
	Reservations *repository.ReservationRepo
	Logger       *slog.Logger
}

// NewSessionHandler panics if any repository is nil.
func NewSessionHandler(s *repository.SessionRepo, l *repository.LocationRepo, r *repository.ReservationRepo, logger *slog.Logger) *SessionHandler {
	if s == nil || l == nil || r == nil {
		panic("nil repository passed to NewSessionHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{Sessions: s, Locations: l, Reservations: r, Logger: logger}
}

type createSessionReq struct {
	LocationID uint64    `json:"location_id" validate:"required"`
	Title      string    `json:"title" validate:"required,max=150"`
	GameName   string    `json:"game_name" validate:"required,max=150"`
	StartsAt   time.Time `json:"starts_at" validate:"required"`
	SeatsMax   int       `json:"seats_max" validate:"min=2,max=12"`
}

type sessionResp struct {
	model.Session
	SeatsLeft int `json:"seats_left"`
}

func toSessionResp(s model.Session) sessionResp {
	return sessionResp{Session: s, SeatsLeft: s.SeatsLeft()}
}

// Create hosts a new session for the caller.
// POST /v1/sessions
func (h *SessionHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req createSessionReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.GameName = strings.TrimSpace(req.GameName)
	if ok, err := validateBody(c, &req); !ok {
		return err
	}
	if !req.StartsAt.After(time.Now()) {
		return badRequest(c, "starts_at must be in the future")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	if _, err := h.Locations.GetByID(ctx, req.LocationID); err != nil {
		if errors.Is(err, repository.ErrLocationNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "location not found"})
		}
		h.Logger.Error("load location", "location_id", req.LocationID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	s := model.Session{
		HostID:     uid,
		LocationID: req.LocationID,
		Title:      req.Title,
		GameName:   req.GameName,
		StartsAt:   req.StartsAt.UTC(),
		SeatsMax:   req.SeatsMax,
	}
	if err := h.Sessions.Create(ctx, &s); err != nil {
		h.Logger.Error("create session", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	h.Logger.Info("session created", "session_id", s.ID, "host_id", uid, "seats_max", s.SeatsMax)
	return c.JSON(http.StatusCreated, toSessionResp(s))
}

// ListUpcoming lists sessions that have not started yet, soonest first.
// GET /v1/sessions
func (h *SessionHandler) ListUpcoming(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	items, err := h.Sessions.ListUpcoming(ctx, time.Now())
	if err != nil {
		h.Logger.Error("list sessions", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	out := make([]sessionResp, 0, len(items))
	for _, s := range items {
		out = append(out, toSessionResp(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// Get returns one session with its remaining seats.
// GET /v1/sessions/:id
func (h *SessionHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	s, err := h.Sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		h.Logger.Error("load session", "session_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, toSessionResp(*s))
}

// Delete removes a session the caller hosts, with its reservations.
// DELETE /v1/sessions/:id
func (h *SessionHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	switch err := h.Sessions.DeleteByIDAndHost(ctx, id, uid); {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, repository.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the host can delete this session"})
	default:
		h.Logger.Error("delete session", "session_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// ListReservations shows the host who reserved a seat at their session.
// GET /v1/sessions/:id/reservations
func (h *SessionHandler) ListReservations(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	s, err := h.Sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		h.Logger.Error("load session", "session_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if s.HostID != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the host can list reservations"})
	}
	items, err := h.Reservations.ListBySession(ctx, id)
	if err != nil {
		h.Logger.Error("list session reservations", "session_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"session": toSessionResp(*s), "items": items})
}
