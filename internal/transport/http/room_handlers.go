package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/core"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

// RoomHandlers provides read-only HTTP endpoints over rooms.
type RoomHandlers struct {
	dispatcher *core.Dispatcher
	log        *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(dispatcher *core.Dispatcher, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		dispatcher: dispatcher,
		log:        logger,
	}
}

// ListActive lists rooms that currently have connected sessions.
// GET /api/rooms
func (h *RoomHandlers) ListActive(c *gin.Context) {
	c.JSON(http.StatusOK, roomStatuses(h.dispatcher.ActiveRooms()))
}

// History returns a page of a room's persisted messages.
// GET /api/rooms/:room/history?after=<seq>&limit=<n>
func (h *RoomHandlers) History(c *gin.Context) {
	room := c.Param("room")

	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid after"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		return
	}
	limit = min(limit, maxHistoryLimit)

	events, err := h.dispatcher.History(c.Request.Context(), room, after, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to read history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Debug().Str("room", room).Int("count", len(events)).Msg("history listed")
	c.JSON(http.StatusOK, historyFromEvents(room, events, limit))
}
