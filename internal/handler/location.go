package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/boardgame-meetup/internal/model"
	"github.com/iliyamo/boardgame-meetup/internal/repository"
)

// LocationHandler serves the venues sessions are held at.
type LocationHandler struct {
	Locations *repository.LocationRepo
	Logger    *slog.Logger
}

func NewLocationHandler(l *repository.LocationRepo, logger *slog.Logger) *LocationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationHandler{Locations: l, Logger: logger}
}

type createLocationReq struct {
	Name    string `json:"name" validate:"required,max=150"`
	Address string `json:"address" validate:"required,max=255"`
}

// Create adds a location.
// POST /v1/locations
func (h *LocationHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req createLocationReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	if ok, err := validateBody(c, &req); !ok {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	l := model.Location{Name: req.Name, Address: req.Address, CreatedBy: uid}
	if err := h.Locations.Create(ctx, &l); err != nil {
		h.Logger.Error("create location", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusCreated, l)
}

// List returns all locations by name.
// GET /v1/locations
func (h *LocationHandler) List(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	items, err := h.Locations.List(ctx)
	if err != nil {
		h.Logger.Error("list locations", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get returns one location.
// GET /v1/locations/:id
func (h *LocationHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid location id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	l, err := h.Locations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrLocationNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "location not found"})
		}
		h.Logger.Error("load location", "location_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, l)
}
