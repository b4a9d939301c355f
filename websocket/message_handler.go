package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/CUknot/lostfound_backend/chat"
	"github.com/CUknot/lostfound_backend/logger"
)

// Message is the envelope of every client event.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// JoinPayload selects a room. Older clients send the listing id as item_id.
type JoinPayload struct {
	Room     FlexibleID `json:"room"`
	ItemID   FlexibleID `json:"item_id"`
	Username string     `json:"username"`
}

// MessagePayload is an outgoing chat line as sent by the client.
type MessagePayload struct {
	Room      FlexibleID `json:"room"`
	SenderID  FlexibleID `json:"sender_id"`
	User      string     `json:"user"`
	Text      string     `json:"text"`
	Timestamp string     `json:"timestamp"`
}

// FlexibleID accepts a JSON string or number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

// HandleIncomingMessage processes an incoming WebSocket message
func HandleIncomingMessage(c *Client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reject(chat.CodeBadRequest, "malformed event")
		return
	}

	switch msg.Type {
	case chat.EventJoin:
		var payload JoinPayload
		if err := decodePayload(msg.Payload, &payload); err != nil {
			c.reject(chat.CodeBadRequest, err.Error())
			return
		}
		room := string(payload.Room)
		if room == "" {
			room = string(payload.ItemID)
		}
		if err := c.service.Join(c.ctx, c.session, room); err != nil {
			c.service.Reject(c.session, err)
			return
		}
	case chat.EventLeave:
		c.service.Leave(c.session)
	case chat.EventPing:
		if err := c.session.Deliver(chat.Event{Type: chat.EventPong, Payload: msg.Payload}); err != nil {
			c.log.Debug().Err(err).Msg("pong not delivered")
		}
	case chat.EventMessage:
		var payload MessagePayload
		if err := decodePayload(msg.Payload, &payload); err != nil {
			c.reject(chat.CodeBadRequest, err.Error())
			return
		}
		_, err := c.service.Send(c.ctx, c.session, chat.Inbound{
			Room:      string(payload.Room),
			SenderID:  string(payload.SenderID),
			User:      payload.User,
			Text:      payload.Text,
			Timestamp: payload.Timestamp,
		})
		if err != nil {
			log := logger.Ctx(c.ctx)
			log.Debug().Err(err).Str(logger.FieldRoom, string(payload.Room)).Msg("message rejected")
			c.service.Reject(c.session, err)
			return
		}
	default:
		c.reject(chat.CodeBadRequest, fmt.Sprintf("unknown event type %q", msg.Type))
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}
