package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const (
	DefaultMaxRooms        = 100
	DefaultRoomIdleTimeout = 60 * time.Second

	minRoomNameLen   = 3
	maxRoomNameLen   = 20
	roomCodeLen      = 4
	minPlayerNameLen = 3
	maxPlayerNameLen = 12

	// maxJoinTries bounds retries when a room is torn down mid-join
	maxJoinTries = 3
)

// Conn is a connection attached to a room that can receive broadcasts
type Conn interface {
	PlayerID() string
	Format() string
	SendRaw(data []byte) bool
	SendBinary(data []byte) bool
}

// Room is one match: its game state, chat log, attached connections and engine
type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Game      *Game
	Chats     *ChatLog

	codeHash []byte
	engine   *Engine

	connMu    sync.RWMutex
	conns     map[Conn]struct{}
	idleSince time.Time
}

func newRoom(id, name string, codeHash []byte, level *Level, now time.Time) *Room {
	return &Room{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		Game:      NewGame(id, level),
		Chats:     NewChatLog(ChatLogCap),
		codeHash:  codeHash,
		conns:     make(map[Conn]struct{}),
		idleSince: now,
	}
}

// AddConn attaches a connection to the room
func (r *Room) AddConn(c Conn) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	r.conns[c] = struct{}{}
}

// RemoveConn detaches a connection. Returns true if another connection for
// the same player is still attached.
func (r *Room) RemoveConn(c Conn) bool {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	delete(r.conns, c)
	if len(r.conns) == 0 {
		r.idleSince = time.Now()
	}
	for other := range r.conns {
		if other.PlayerID() == c.PlayerID() {
			return true
		}
	}
	return false
}

// ConnCount returns the number of attached connections
func (r *Room) ConnCount() int {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	return len(r.conns)
}

// idleFor returns how long the room has had no connections, or 0 if it has some
func (r *Room) idleFor(now time.Time) time.Duration {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	if len(r.conns) > 0 {
		return 0
	}
	return now.Sub(r.idleSince)
}

// shouldTearDown reports whether the room has been abandoned
func (r *Room) shouldTearDown(now time.Time, idleTimeout time.Duration) bool {
	if r.ConnCount() > 0 {
		return false
	}
	return r.Game.TotalPlayers() == 0 || r.idleFor(now) >= idleTimeout
}

func (r *Room) snapshotConns() []Conn {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// BroadcastJSON sends a JSON text frame to every connection. A full send
// buffer on one connection is logged and does not affect the others.
func (r *Room) BroadcastJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("broadcast marshal failed", zap.String("room", r.ID), zap.Error(err))
		return
	}
	for _, c := range r.snapshotConns() {
		if !c.SendRaw(data) {
			logger.Warn("dropped message for slow client",
				zap.String("room", r.ID), zap.String("player", c.PlayerID()))
		}
	}
}

// BroadcastState sends a game-state snapshot, JSON or msgpack per connection
func (r *Room) BroadcastState(snap GameSnapshot) {
	env := Envelope{Type: MsgGameState, Data: snap}
	var jsonData, packData []byte
	for _, c := range r.snapshotConns() {
		var ok bool
		if c.Format() == FormatMsgpack {
			if packData == nil {
				var err error
				if packData, err = msgpack.Marshal(env); err != nil {
					logger.Error("state msgpack failed", zap.String("room", r.ID), zap.Error(err))
					continue
				}
			}
			ok = c.SendBinary(packData)
		} else {
			if jsonData == nil {
				var err error
				if jsonData, err = json.Marshal(env); err != nil {
					logger.Error("state marshal failed", zap.String("room", r.ID), zap.Error(err))
					continue
				}
			}
			ok = c.SendRaw(jsonData)
		}
		if !ok {
			logger.Warn("dropped state for slow client",
				zap.String("room", r.ID), zap.String("player", c.PlayerID()))
		}
	}
}

// PostChat adds a player chat line and pushes it to the room
func (r *Room) PostChat(playerID, content string) (ChatEntry, error) {
	content, err := SanitizeChat(content)
	if err != nil {
		return ChatEntry{}, err
	}
	p, err := r.Game.Player(playerID)
	if err != nil {
		return ChatEntry{}, err
	}
	if p.IsDeleted {
		return ChatEntry{}, fmt.Errorf("player %s has left: %w", playerID, ErrPlayerNotFound)
	}
	entry := r.Chats.Add(p.ID, p.Name, p.Colour, content, false, time.Now())
	r.BroadcastJSON(Envelope{Type: MsgNewChat, Data: entry})
	return entry, nil
}

// RoomManager is the registry of live rooms
type RoomManager struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	byName map[string]string

	maxRooms    int
	idleTimeout time.Duration
	analytics   *Analytics
	newLevel    func() *Level
}

// NewRoomManager creates an empty registry. analytics may be nil.
func NewRoomManager(maxRooms int, idleTimeout time.Duration, analytics *Analytics) *RoomManager {
	if maxRooms <= 0 {
		maxRooms = DefaultMaxRooms
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultRoomIdleTimeout
	}
	return &RoomManager{
		rooms:       make(map[string]*Room),
		byName:      make(map[string]string),
		maxRooms:    maxRooms,
		idleTimeout: idleTimeout,
		analytics:   analytics,
		newLevel:    NewLevel1,
	}
}

// Get returns a room by id
func (m *RoomManager) Get(id string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, ErrRoomNotFound)
	}
	return r, nil
}

// Count returns the number of live rooms
func (m *RoomManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// List returns info about all rooms, sorted by name
func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	list := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		list = append(list, RoomInfo{
			RoomID:      r.ID,
			RoomName:    r.Name,
			PlayerCount: r.Game.PlayerCount(),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].RoomName < list[j].RoomName })
	return list
}

// Remove deletes a room from the registry and stops its engine
func (m *RoomManager) Remove(id string) {
	m.mu.Lock()
	r, ok := m.rooms[id]
	if ok {
		m.removeLocked(r)
	}
	m.mu.Unlock()
	if ok {
		m.stopRoom(r)
	}
}

// removeIfAbandoned tears the room down if it is still registered and has
// been abandoned. The check and the removal happen under the registry lock,
// so a concurrent Join either sees the room gone or has already added its
// player.
func (m *RoomManager) removeIfAbandoned(r *Room, now time.Time) bool {
	m.mu.Lock()
	if m.rooms[r.ID] != r || !r.shouldTearDown(now, m.idleTimeout) {
		m.mu.Unlock()
		return false
	}
	m.removeLocked(r)
	m.mu.Unlock()
	m.stopRoom(r)
	return true
}

func (m *RoomManager) removeLocked(r *Room) {
	delete(m.rooms, r.ID)
	if m.byName[r.Name] == r.ID {
		delete(m.byName, r.Name)
	}
}

func (m *RoomManager) stopRoom(r *Room) {
	if r.engine != nil {
		r.engine.Stop()
	}
	logger.Info("room removed", zap.String("room", r.ID), zap.String("name", r.Name))
}

// StopAll removes every room
func (m *RoomManager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.Remove(id)
	}
}

// JoinResult is the outcome of a lobby join
type JoinResult struct {
	Room     *Room
	PlayerID string
	Created  bool
}

// ValidateJoin normalizes and checks a join request
func ValidateJoin(req *JoinRequest) error {
	req.RoomName = strings.TrimSpace(req.RoomName)
	req.PlayerName = strings.TrimSpace(req.PlayerName)
	req.DeviceID = strings.TrimSpace(req.DeviceID)

	if n := utf8.RuneCountInString(req.RoomName); n < minRoomNameLen || n > maxRoomNameLen {
		return fmt.Errorf("room name must be %d-%d characters: %w", minRoomNameLen, maxRoomNameLen, ErrInvalidMessage)
	}
	if utf8.RuneCountInString(req.RoomCode) != roomCodeLen {
		return fmt.Errorf("room code must be %d characters: %w", roomCodeLen, ErrInvalidMessage)
	}
	if n := utf8.RuneCountInString(req.PlayerName); n < minPlayerNameLen || n > maxPlayerNameLen {
		return fmt.Errorf("player name must be %d-%d characters: %w", minPlayerNameLen, maxPlayerNameLen, ErrInvalidMessage)
	}
	if !req.PlayerColour.Valid() {
		return fmt.Errorf("unknown colour %q: %w", req.PlayerColour, ErrInvalidMessage)
	}
	if req.DeviceID == "" {
		return fmt.Errorf("device id required: %w", ErrInvalidMessage)
	}
	return nil
}

// Join finds or creates the named room and resolves the caller's player.
// A returning device keeps its player id unless its name or colour changed,
// in which case the old identity is purged and a new player spawned.
func (m *RoomManager) Join(req JoinRequest) (JoinResult, error) {
	if err := ValidateJoin(&req); err != nil {
		return JoinResult{}, err
	}

	for attempt := 0; attempt < maxJoinTries; attempt++ {
		room, created, err := m.findOrCreate(req.RoomName, req.RoomCode)
		if err != nil {
			return JoinResult{}, err
		}

		// Hold the registry read lock so the room cannot be torn down
		// between the liveness check and the player being added
		m.mu.RLock()
		live := m.rooms[room.ID] == room
		var playerID string
		if live {
			playerID, err = m.resolvePlayer(room.Game, req)
		}
		m.mu.RUnlock()
		if !live {
			logger.Debug("room torn down during join, retrying", zap.String("room", room.ID))
			continue
		}

		if created {
			// Start only once the first player exists so the engine never sees an empty new room
			room.engine.Start()
		}
		if err != nil {
			return JoinResult{}, err
		}
		room.flushEvents(m.analytics)
		return JoinResult{Room: room, PlayerID: playerID, Created: created}, nil
	}
	return JoinResult{}, fmt.Errorf("room %s kept closing: %w", req.RoomName, ErrRoomNotFound)
}

func (m *RoomManager) resolvePlayer(g *Game, req JoinRequest) (string, error) {
	spawn := func() (string, error) {
		p, err := g.SpawnNewPlayer(req.DeviceID, req.PlayerName, req.PlayerColour)
		return p.ID, err
	}
	if req.PlayerID == "" {
		return spawn()
	}
	existing, err := g.PlayerByDevice(req.DeviceID)
	if err != nil {
		return spawn()
	}
	if existing.Name != req.PlayerName || existing.Colour != req.PlayerColour {
		if err := g.HardDeletePlayer(existing.ID); err != nil {
			return "", err
		}
		return spawn()
	}
	if existing.IsDeleted {
		if _, err := g.RestorePlayer(existing.ID); err != nil {
			return "", err
		}
	}
	return existing.ID, nil
}

func (m *RoomManager) findOrCreate(name, code string) (*Room, bool, error) {
	if r := m.lookupName(name); r != nil {
		return r, false, CheckRoomCode(r.codeHash, code)
	}

	hash, err := HashRoomCode(code)
	if err != nil {
		return nil, false, fmt.Errorf("hash room code: %w", err)
	}

	m.mu.Lock()
	if id, ok := m.byName[name]; ok {
		// Lost a race with another creator
		r := m.rooms[id]
		m.mu.Unlock()
		return r, false, CheckRoomCode(r.codeHash, code)
	}
	if len(m.rooms) >= m.maxRooms {
		m.mu.Unlock()
		return nil, false, fmt.Errorf("%d rooms active: %w", m.maxRooms, ErrRoomLimit)
	}
	r := newRoom(GenerateUUID(), name, hash, m.newLevel(), time.Now())
	r.engine = NewEngine(r.ID, m)
	m.rooms[r.ID] = r
	m.byName[name] = r.ID
	m.mu.Unlock()

	logger.Info("room created", zap.String("room", r.ID), zap.String("name", name))
	return r, true, nil
}

func (m *RoomManager) lookupName(name string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.byName[name]; ok {
		return m.rooms[id]
	}
	return nil
}
