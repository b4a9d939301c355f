package websocket

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/CUknot/lostfound_backend/chat"
	"github.com/CUknot/lostfound_backend/config"
	"github.com/CUknot/lostfound_backend/logger"
	"github.com/CUknot/lostfound_backend/middleware"
	"github.com/CUknot/lostfound_backend/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// Handler upgrades authenticated requests to chat connections.
type Handler struct {
	service *chat.Service
	tokens  *utils.TokenManager
	hub     *Hub
	cfg     config.WebSocketConfig
}

func NewHandler(service *chat.Service, tokens *utils.TokenManager, hub *Hub, cfg config.WebSocketConfig) *Handler {
	return &Handler{service: service, tokens: tokens, hub: hub, cfg: cfg}
}

// HandleConnection godoc
// @Summary Open a chat connection
// @Description Upgrades to a websocket carrying join, leave, message, history and error events
// @Tags chat
// @Param token query string false "JWT when the Authorization header cannot be set"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /ws [get]
func (h *Handler) HandleConnection(c *gin.Context) {
	claims, err := h.tokens.ParseToken(middleware.BearerToken(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	identity := chat.Identity{
		UserID: strconv.FormatUint(uint64(claims.UserID), 10),
		Name:   claims.Username,
	}
	session, err := h.service.Connect(identity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reqLog := logger.Ctx(c.Request.Context())
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.service.Disconnect(session)
		reqLog.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	log := reqLog.With().
		Str(logger.FieldSessionID, session.ID()).
		Str(logger.FieldUserID, identity.UserID).
		Logger()

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		session: session,
		service: h.service,
		cfg:     h.cfg,
		ctx:     logger.WithLogger(context.WithoutCancel(c.Request.Context()), log),
		log:     log,
	}
	h.hub.register(client)
	log.Info().Msg("websocket connected")

	go client.writePump()
	go client.readPump()
}
