package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/boardgame-meetup/internal/service"
)

// PollHandler exposes the poll tally engine.
type PollHandler struct {
	Polls *service.Polls
}

func NewPollHandler(p *service.Polls) *PollHandler {
	if p == nil {
		panic("nil poll service passed to NewPollHandler")
	}
	return &PollHandler{Polls: p}
}

type createPollReq struct {
	Title string   `json:"title" validate:"required,max=150"`
	Dates []string `json:"dates" validate:"min=2,max=20,dive,required,max=64"`
}

// voteReq carries the date and, optionally, whose vote it is.  UserID
// defaults to the caller; anything else is rejected by the service.
type voteReq struct {
	UserID *uint64 `json:"user_id"`
	Date   string  `json:"date" validate:"required,max=64"`
}

type removeVoteReq struct {
	UserID *uint64 `json:"user_id"`
}

// Create opens a poll in the group.
// POST /v1/groups/:id/polls
func (h *PollHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	groupID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid group id")
	}
	var req createPollReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if ok, err := validateBody(c, &req); !ok {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	p, err := h.Polls.CreatePoll(ctx, groupID, req.Title, req.Dates, uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// List returns the group's polls, newest first.
// GET /v1/groups/:id/polls
func (h *PollHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	groupID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid group id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	items, err := h.Polls.ListPolls(ctx, groupID, uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get returns a poll with its tally.
// GET /v1/polls/:id
func (h *PollHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid poll id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	t, err := h.Polls.GetPollWithTally(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// Vote casts or replaces a vote.
// PUT /v1/polls/:id/vote
func (h *PollHandler) Vote(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid poll id")
	}
	var req voteReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Date = strings.TrimSpace(req.Date)
	if ok, err := validateBody(c, &req); !ok {
		return err
	}
	actor := uid
	if req.UserID != nil {
		actor = *req.UserID
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	p, err := h.Polls.Vote(ctx, id, actor, req.Date, uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// RemoveVote withdraws a vote; removing a vote that does not exist is
// not an error.
// DELETE /v1/polls/:id/vote
func (h *PollHandler) RemoveVote(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid poll id")
	}
	var req removeVoteReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	actor := uid
	if req.UserID != nil {
		actor = *req.UserID
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	p, err := h.Polls.RemoveVote(ctx, id, actor, uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Delete removes a poll.  Group admins only.
// DELETE /v1/polls/:id
func (h *PollHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid poll id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Polls.DeletePoll(ctx, id, uid); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
