package main

import "encoding/json"

// Client -> Server message types
const (
	MsgUpdatePosition = "update-position"
	MsgUpdateMovement = "update-movement"
	MsgFire           = "fire"
	MsgLeaveRoom      = "leave-room"
	MsgSendChat       = "send-chat"
)

// Server -> Client message types
const (
	MsgGameState = "game-state"
	MsgNewChat   = "new-chat"
)

// Wire formats for the game-state broadcast
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	Type string      `json:"type" msgpack:"type"`
	Data interface{} `json:"data,omitempty" msgpack:"data,omitempty"`
}

// InEnvelope is used for incoming messages; Data is decoded once the type is known
type InEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UpdateMovementMsg asks the server to step the player along bearing
type UpdateMovementMsg struct {
	Bearing *float64 `json:"bearing"`
}

// UpdatePositionMsg reports a client-side position
type UpdatePositionMsg struct {
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Bearing *float64 `json:"bearing"`
}

// FireMsg asks the server to fire along bearing
type FireMsg struct {
	Bearing *float64 `json:"bearing"`
}

// SendChatMsg carries a player chat line
type SendChatMsg struct {
	ChatContent string `json:"chatContent"`
}

// PlayerState is broadcast per non-deleted player
type PlayerState struct {
	ID           string  `json:"id" msgpack:"id"`
	DeviceID     string  `json:"deviceId" msgpack:"deviceId"`
	Name         string  `json:"name" msgpack:"name"`
	Colour       Colour  `json:"colour" msgpack:"colour"`
	X            float64 `json:"x" msgpack:"x"`
	Y            float64 `json:"y" msgpack:"y"`
	Health       int     `json:"health" msgpack:"health"`
	Speed        float64 `json:"speed" msgpack:"speed"`
	Bearing      float64 `json:"bearing" msgpack:"bearing"`
	TopLeft      Corner  `json:"topLeft" msgpack:"topLeft"`
	TopRight     Corner  `json:"topRight" msgpack:"topRight"`
	BottomLeft   Corner  `json:"bottomLeft" msgpack:"bottomLeft"`
	BottomRight  Corner  `json:"bottomRight" msgpack:"bottomRight"`
	KillCount    int     `json:"killCount" msgpack:"killCount"`
	DeathCount   int     `json:"deathCount" msgpack:"deathCount"`
	IsDestroyed  bool    `json:"isDestroyed" msgpack:"isDestroyed"`
	IsSpawning   bool    `json:"isSpawning" msgpack:"isSpawning"`
	IsInvincible bool    `json:"isInvincible" msgpack:"isInvincible"`
	IsDeleted    bool    `json:"isDeleted" msgpack:"isDeleted"`
}

// BulletState is broadcast per bullet
type BulletState struct {
	ID       string  `json:"id" msgpack:"id"`
	PlayerID string  `json:"playerId" msgpack:"playerId"`
	X        float64 `json:"x" msgpack:"x"`
	Y        float64 `json:"y" msgpack:"y"`
	Bearing  float64 `json:"bearing" msgpack:"bearing"`
}

// ItemState is broadcast per item
type ItemState struct {
	ID   string  `json:"id" msgpack:"id"`
	Name string  `json:"name" msgpack:"name"`
	X    float64 `json:"x" msgpack:"x"`
	Y    float64 `json:"y" msgpack:"y"`
}

// GameSnapshot is the full state broadcast. The level is sent once on join, never here.
type GameSnapshot struct {
	RoomID  string        `json:"roomId" msgpack:"roomId"`
	Players []PlayerState `json:"players" msgpack:"players"`
	Bullets []BulletState `json:"bullets" msgpack:"bullets"`
	Items   []ItemState   `json:"items" msgpack:"items"`
}

// ChatEntry is one line of a room's chat log
type ChatEntry struct {
	ChatID       string `json:"chatId"`
	PlayerID     string `json:"playerId"`
	PlayerName   string `json:"playerName"`
	PlayerColour Colour `json:"playerColour"`
	Content      string `json:"content"`
	Timestamp    int64  `json:"timestamp"` // unix millis
	IsSystem     bool   `json:"isSystem"`
}

// ErrorMsg is sent to a client on a rejected message or failed lookup
type ErrorMsg struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JoinRequest is the body of POST /pew/rooms/join
type JoinRequest struct {
	RoomName     string `json:"roomName"`
	RoomCode     string `json:"roomCode"`
	PlayerName   string `json:"playerName"`
	PlayerColour Colour `json:"playerColour"`
	PlayerID     string `json:"playerId,omitempty"`
	DeviceID     string `json:"playerDeviceId"`
}

// JoinResponse tells the client where to connect
type JoinResponse struct {
	RoomID   string   `json:"roomId"`
	PlayerID string   `json:"playerId"`
	Token    string   `json:"token,omitempty"`
	Level    [][]Tile `json:"level"`
}

// RoomInfo is used in the room list
type RoomInfo struct {
	RoomID      string `json:"roomId"`
	RoomName    string `json:"roomName"`
	PlayerCount int    `json:"playerCount"`
}

// PostChatRequest is the body of POST /pew/rooms/{roomId}/chats
type PostChatRequest struct {
	PlayerID string `json:"playerId"`
	Content  string `json:"content"`
}
