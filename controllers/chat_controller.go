package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/CUknot/lostfound_backend/chat"
	"github.com/CUknot/lostfound_backend/logger"
	"github.com/CUknot/lostfound_backend/middleware"
)

// ChatController serves the HTTP side of the chat relay.
type ChatController struct {
	Service *chat.Service
}

// GetChats godoc
// @Summary List the caller's conversations
// @Description One entry per room the caller took part in, most recent first
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "chats"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /chats [get]
func (cc *ChatController) GetChats(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uint)

	chats, err := cc.Service.ListConversations(c.Request.Context(), strconv.FormatUint(uint64(userID), 10))
	if err != nil {
		log := logger.Ctx(c.Request.Context())
		log.Error().Err(err).Msg("list conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch chats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetRoomMessages godoc
// @Summary Get the stored messages of a room
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Param room path string true "Room ID"
// @Param limit query int false "Only the newest N messages"
// @Success 200 {object} map[string]interface{} "messages"
// @Failure 400 {object} map[string]string "Invalid limit"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/{room}/messages [get]
func (cc *ChatController) GetRoomMessages(c *gin.Context) {
	room := c.Param("room")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	msgs, err := cc.Service.History(c.Request.Context(), room, limit)
	if err != nil {
		var verr *chat.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log := logger.Ctx(c.Request.Context())
		log.Error().Err(err).Str(logger.FieldRoom, room).Msg("load history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room, "messages": chat.HistoryEntries(msgs)})
}

// GetRoomOnline godoc
// @Summary Count the connections currently in a room
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Param room path string true "Room ID"
// @Success 200 {object} map[string]interface{} "online count"
// @Router /api/rooms/{room}/online [get]
func (cc *ChatController) GetRoomOnline(c *gin.Context) {
	room := c.Param("room")
	c.JSON(http.StatusOK, gin.H{"room": room, "online": cc.Service.Online(room)})
}
