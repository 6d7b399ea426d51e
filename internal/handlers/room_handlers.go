// Package handlers adapts the HTTP surface to the chat core. Routing is
// wired in cmd/server; every handler resolves its room through the injected
// registry so nothing here is ambient state.
package handlers

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"dotchat/internal/chat"
)

// Handler carries the registry and the cap on client-requested wait times.
type Handler struct {
	registry *chat.Registry
	maxWait  time.Duration
}

func New(registry *chat.Registry, maxWait time.Duration) *Handler {
	if maxWait <= 0 {
		maxWait = 600 * time.Second
	}
	return &Handler{registry: registry, maxWait: maxWait}
}

// CreateRoom POST /rooms/:id
func (h *Handler) CreateRoom(c *fiber.Ctx) error {
	if err := h.registry.CreateRoom(c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

// Ping GET /rooms/:id/ping — wakes every parked request in the room.
func (h *Handler) Ping(c *fiber.Ctx) error {
	room, err := h.registry.Room(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	room.Ping()
	return c.SendStatus(fiber.StatusOK)
}

// Join POST /rooms/:id/players — body is the raw player name.
func (h *Handler) Join(c *fiber.Ctx) error {
	room, err := h.registry.Room(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if err := room.AddPlayer(strings.TrimSpace(string(c.Body()))); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

// Leave DELETE /rooms/:id/players — body is the raw player name.
func (h *Handler) Leave(c *fiber.Ctx) error {
	room, err := h.registry.Room(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if err := room.RemovePlayer(strings.TrimSpace(string(c.Body()))); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

// Poll GET /rooms/:id?from=&channels=c1:p1,c2:p2 with "Prefer: wait=N".
// Responds 200 with a typed payload, or 204 when a parked request times
// out. A disconnecting client abandons its parked request.
func (h *Handler) Poll(c *fiber.Ctx) error {
	room, err := h.registry.Room(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	cursors, err := chat.ParseCursors(c.Query("channels"))
	if err != nil {
		return fail(c, err)
	}

	payload, parked := room.Poll(c.Query("from"), cursors, h.parseWait(c.Get("Prefer")))
	if parked == nil {
		return respond(c, payload)
	}

	select {
	case p := <-parked.Done():
		return respond(c, p)
	case <-c.Context().Done():
		room.Abandon(parked)
		return nil
	}
}

// PostMessage POST /rooms/:id/messages — JSON {text, from, to, kind}.
func (h *Handler) PostMessage(c *fiber.Ctx) error {
	room, err := h.registry.Room(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	var msg chat.Message
	// The browser client posts without a JSON content type, so decode the
	// raw body instead of content-type negotiation.
	if err := json.Unmarshal(c.Body(), &msg); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("malformed message body")
	}
	if msg.Kind == "" {
		msg.Kind = chat.KindHuman
	}
	if err := room.PostMessage(msg); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

// OpenChannel POST /rooms/:id/channels?from=&to=
func (h *Handler) OpenChannel(c *fiber.Ctx) error {
	room, err := h.registry.Room(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if err := room.OpenPrivateChannel(c.Query("from"), c.Query("to")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

// CloseChannel DELETE /rooms/:id/channels?from=&to=. Responds 201 like the
// open side; the client treats the two symmetrically.
func (h *Handler) CloseChannel(c *fiber.Ctx) error {
	room, err := h.registry.Room(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if err := room.ClosePrivateChannel(c.Query("from"), c.Query("to")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

// Snoop GET /rooms/:id/channels/:channelId?from= — grants read access.
func (h *Handler) Snoop(c *fiber.Ctx) error {
	room, err := h.registry.Room(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if err := room.SnoopChannel(c.Query("from"), c.Params("channelId")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

var waitPattern = regexp.MustCompile(`wait=(\d+)`)

// parseWait extracts the wait duration in seconds from a Prefer header.
// Zero means the poll never parks.
func (h *Handler) parseWait(header string) time.Duration {
	m := waitPattern.FindStringSubmatch(header)
	if m == nil {
		return 0
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > h.maxWait {
		d = h.maxWait
	}
	return d
}

func respond(c *fiber.Ctx, p chat.PollPayload) error {
	if p.Empty() {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(p)
}

// fail renders a core error: conflicts and absences as 409 with the reason
// text, malformed identifiers as 400, anything unexpected as 500.
func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).SendString(err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrInvalidIdent):
		return fiber.StatusBadRequest
	case errors.Is(err, chat.ErrRoomNotFound),
		errors.Is(err, chat.ErrRoomExists),
		errors.Is(err, chat.ErrPlayerNotFound),
		errors.Is(err, chat.ErrPlayerExists),
		errors.Is(err, chat.ErrChannelNotFound),
		errors.Is(err, chat.ErrChannelExists),
		errors.Is(err, chat.ErrChannelCapacity):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
