package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 50
)

// binaryMarker prefixes queued frames that WritePump must send as binary
const binaryMarker = 0xFF

// Client represents a WebSocket connection bound to one player in one room
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	playerID   string
	roomID     string
	format     string
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr, roomID, playerID, format string) *Client {
	if format != FormatMsgpack {
		format = FormatJSON
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		playerID:   playerID,
		roomID:     roomID,
		format:     format,
		remoteAddr: remoteAddr,
	}
}

// PlayerID returns the player this connection is bound to
func (c *Client) PlayerID() string { return c.playerID }

// Format returns the game-state encoding chosen on connect
func (c *Client) Format() string { return c.format }

// ReadPump reads messages from the WebSocket connection. On exit the client
// is unregistered; the hub closes the send channel and WritePump flushes
// anything still queued before closing the socket.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Info("ws read error", zap.String("player", c.playerID), zap.Error(err))
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			logger.Warn("rate limit exceeded, disconnecting", zap.String("addr", c.remoteAddr))
			break
		}

		if err := c.handleMessage(message); err != nil {
			c.sendError(err)
			if !errors.Is(err, ErrInvalidMessage) {
				// Lookup failures end the session
				break
			}
		}
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			var err error
			if len(message) > 0 && message[0] == binaryMarker {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("marshal error", zap.Error(err))
		return false
	}
	return c.SendRaw(data)
}

// SendRaw queues pre-marshaled bytes as a text message. Returns false if the
// client is too slow or already closed.
func (c *Client) SendRaw(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendBinary queues pre-marshaled bytes as a binary WebSocket message
func (c *Client) SendBinary(data []byte) bool {
	msg := make([]byte, len(data)+1)
	msg[0] = binaryMarker
	copy(msg[1:], data)
	return c.SendRaw(msg)
}

func (c *Client) sendError(err error) {
	c.SendJSON(ErrorMsg{Error: err.Error(), Code: errorCode(err)})
}

// sendState pushes the current snapshot to this client only
func (c *Client) sendState(room *Room) {
	snap := room.Game.Serialize()
	env := Envelope{Type: MsgGameState, Data: snap}
	if c.format == FormatMsgpack {
		data, err := msgpack.Marshal(env)
		if err == nil {
			c.SendBinary(data)
		}
		return
	}
	c.SendJSON(env)
}

// handleMessage routes one inbound message. An ErrInvalidMessage result is
// reported to the client and the connection stays open; any other error
// closes it.
func (c *Client) handleMessage(raw []byte) error {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", ErrInvalidMessage)
	}

	room, err := c.hub.rooms.Get(c.roomID)
	if err != nil {
		return err
	}

	switch env.Type {
	case MsgUpdateMovement:
		err = c.handleUpdateMovement(room, env.Data)
	case MsgUpdatePosition:
		err = c.handleUpdatePosition(room, env.Data)
	case MsgFire:
		err = c.handleFire(room, env.Data)
	case MsgLeaveRoom:
		err = room.Game.MarkPlayerDeleted(c.playerID)
	case MsgSendChat:
		err = c.handleSendChat(room, env.Data)
	default:
		err = fmt.Errorf("unknown message type %q: %w", env.Type, ErrInvalidMessage)
	}
	room.flushEvents(c.hub.analytics)
	return err
}

func decodePayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", ErrInvalidMessage)
	}
	return nil
}

// bearingOr returns the bearing or the default direction when absent
func bearingOr(b *float64) float64 {
	if b == nil {
		return DefaultBearing
	}
	return *b
}

func (c *Client) handleUpdateMovement(room *Room, data json.RawMessage) error {
	var msg UpdateMovementMsg
	if err := decodePayload(data, &msg); err != nil {
		return err
	}
	return room.Game.MovePlayer(c.playerID, bearingOr(msg.Bearing))
}

func (c *Client) handleUpdatePosition(room *Room, data json.RawMessage) error {
	var msg UpdatePositionMsg
	if err := decodePayload(data, &msg); err != nil {
		return err
	}
	if msg.X == nil || msg.Y == nil {
		return fmt.Errorf("position requires x and y: %w", ErrInvalidMessage)
	}
	_, err := room.Game.SetPlayerPosition(c.playerID, *msg.X, *msg.Y, bearingOr(msg.Bearing))
	return err
}

func (c *Client) handleFire(room *Room, data json.RawMessage) error {
	var msg FireMsg
	if err := decodePayload(data, &msg); err != nil {
		return err
	}
	_, err := room.Game.Fire(c.playerID, bearingOr(msg.Bearing))
	return err
}

func (c *Client) handleSendChat(room *Room, data json.RawMessage) error {
	var msg SendChatMsg
	if err := decodePayload(data, &msg); err != nil {
		return err
	}
	_, err := room.PostChat(c.playerID, msg.ChatContent)
	return err
}
