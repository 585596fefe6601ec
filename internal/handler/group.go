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

// GroupHandler serves groups and their membership.
type GroupHandler struct {
	Groups *repository.GroupRepo
	Logger *slog.Logger
}

func NewGroupHandler(g *repository.GroupRepo, logger *slog.Logger) *GroupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupHandler{Groups: g, Logger: logger}
}

type createGroupReq struct {
	Name        string  `json:"name" validate:"required,max=150"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

func (h *GroupHandler) internal(c echo.Context, op string, err error) error {
	h.Logger.Error(op, "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// loadGroup writes 404 and returns nil when the group does not exist.
func (h *GroupHandler) loadGroup(c echo.Context, id uint64) (*model.Group, error) {
	ctx, cancel := dbCtx(c)
	defer cancel()
	g, err := h.Groups.GetByID(ctx, id)
	if errors.Is(err, repository.ErrGroupNotFound) {
		return nil, c.JSON(http.StatusNotFound, echo.Map{"error": "group not found"})
	}
	if err != nil {
		return nil, h.internal(c, "load group", err)
	}
	return g, nil
}

// Create makes a group with the caller as its first ADMIN.
// POST /v1/groups
func (h *GroupHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req createGroupReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		if d == "" {
			req.Description = nil
		} else {
			req.Description = &d
		}
	}
	if ok, err := validateBody(c, &req); !ok {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	g := model.Group{Name: req.Name, Description: req.Description, CreatedBy: uid}
	if err := h.Groups.Create(ctx, &g); err != nil {
		return h.internal(c, "create group", err)
	}
	h.Logger.Info("group created", "group_id", g.ID, "created_by", uid)
	return c.JSON(http.StatusCreated, g)
}

// Get returns one group.
// GET /v1/groups/:id
func (h *GroupHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid group id")
	}
	g, err := h.loadGroup(c, id)
	if g == nil {
		return err
	}
	return c.JSON(http.StatusOK, g)
}

// Mine lists the groups the caller belongs to.
// GET /v1/groups
func (h *GroupHandler) Mine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	items, err := h.Groups.ListByUser(ctx, uid)
	if err != nil {
		return h.internal(c, "list groups", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Join enrols the caller as a MEMBER.
// POST /v1/groups/:id/join
func (h *GroupHandler) Join(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid group id")
	}
	if g, err := h.loadGroup(c, id); g == nil {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	switch err := h.Groups.AddMember(ctx, id, uid, model.GroupRoleMember); {
	case err == nil:
		return c.JSON(http.StatusCreated, echo.Map{"group_id": id, "user_id": uid, "role": model.GroupRoleMember})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already a member"})
	default:
		return h.internal(c, "join group", err)
	}
}

// Leave removes the caller from the group.  The last ADMIN cannot leave
// while other members remain.
// POST /v1/groups/:id/leave
func (h *GroupHandler) Leave(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid group id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	role, member, err := h.Groups.MemberRole(ctx, id, uid)
	if err != nil {
		return h.internal(c, "leave group", err)
	}
	if !member {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "you are not a member of this group"})
	}
	if role == model.GroupRoleAdmin {
		admins, err := h.Groups.CountAdmins(ctx, id)
		if err != nil {
			return h.internal(c, "leave group", err)
		}
		members, err := h.Groups.Members(ctx, id)
		if err != nil {
			return h.internal(c, "leave group", err)
		}
		if admins == 1 && len(members) > 1 {
			return c.JSON(http.StatusConflict, echo.Map{"error": "the last admin cannot leave while other members remain"})
		}
	}
	if err := h.Groups.RemoveMember(ctx, id, uid); err != nil {
		return h.internal(c, "leave group", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Members lists the roster.  Members only.
// GET /v1/groups/:id/members
func (h *GroupHandler) Members(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid group id")
	}
	if g, err := h.loadGroup(c, id); g == nil {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if _, member, err := h.Groups.MemberRole(ctx, id, uid); err != nil {
		return h.internal(c, "group members", err)
	} else if !member {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "you are not a member of this group"})
	}
	items, err := h.Groups.Members(ctx, id)
	if err != nil {
		return h.internal(c, "group members", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
