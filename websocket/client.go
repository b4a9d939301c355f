package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/CUknot/lostfound_backend/chat"
	"github.com/CUknot/lostfound_backend/config"
)

// Client bridges one websocket connection to a chat session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *chat.Session
	service *chat.Service
	cfg     config.WebSocketConfig
	ctx     context.Context
	log     zerolog.Logger
}

// readPump decodes client events until the connection fails, then
// disconnects the session.
func (c *Client) readPump() {
	defer func() {
		c.service.Disconnect(c.session)
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read")
			}
			return
		}
		HandleIncomingMessage(c, message)
	}
}

// writePump drains the session queue to the connection and keeps it alive
// with pings. It is the only writer of data frames.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.session.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.log.Debug().Err(err).Msg("websocket write")
				return
			}
		case <-c.session.Done():
			code, reason := websocket.CloseNormalClosure, ""
			if errors.Is(c.session.Err(), chat.ErrDeliveryTimeout) {
				code, reason = websocket.CloseTryAgainLater, "delivery timeout"
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reject sends an error event to this client only.
func (c *Client) reject(code, message string) {
	ev := chat.Event{Type: chat.EventError, Payload: chat.ErrorPayload{Code: code, Message: message}}
	if err := c.session.Deliver(ev); err != nil {
		c.log.Debug().Err(err).Msg("error event not delivered")
	}
}
