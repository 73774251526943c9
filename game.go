package main

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"
)

const (
	TickRate          = 60 // simulation ticks per second
	BroadcastRate     = 10 // state broadcasts per second
	TickDuration      = time.Second / TickRate
	BroadcastInterval = time.Second / BroadcastRate
)

const maxPlayersPerRoom = 20

// fallbackSpawn is used when a level has no player spawn tiles
var fallbackSpawn = Point{X: 128, Y: 128}

// Game holds the authoritative state for one room. All exported methods are
// safe for concurrent use; the tick loop and message handlers share g.mu.
type Game struct {
	mu      sync.Mutex
	roomID  string
	level   *Level
	players []*Player // join order, used for deterministic hit resolution
	bullets []*Bullet
	items   []*Item

	contacts        *ContactTracker
	itemEntered     []itemContact
	grid            *SpatialGrid
	lastItemSpawnAt time.Time
	events          []SystemEvent

	clock func() time.Time
	rng   *rand.Rand
}

// NewGame creates the game state for a room
func NewGame(roomID string, level *Level) *Game {
	now := time.Now()
	return &Game{
		roomID:          roomID,
		level:           level,
		contacts:        NewContactTracker(),
		grid:            NewSpatialGrid(level.Width(), level.Height()),
		lastItemSpawnAt: now,
		clock:           time.Now,
		rng:             rand.New(rand.NewPCG(uint64(now.UnixNano()), rand.Uint64())),
	}
}

// RoomID returns the id of the owning room
func (g *Game) RoomID() string {
	return g.roomID
}

// Level returns the immutable level the room is played on
func (g *Game) Level() *Level {
	return g.level
}

/*
	PLAYER MANAGEMENT
*/

// SpawnNewPlayer creates a player at a random spawn point and queues a join event
func (g *Game) SpawnNewPlayer(deviceID, name string, colour Colour) (PlayerState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.activePlayers() >= maxPlayersPerRoom {
		return PlayerState{}, fmt.Errorf("room %s is full: %w", g.roomID, ErrRoomLimit)
	}
	p := NewPlayer("player-"+GenerateID(6), deviceID, name, colour, g.pickSpawn())
	g.players = append(g.players, p)
	g.emit(SystemEvent{Kind: EventPlayerJoin, Player: p.ref()})
	return p.ToState(), nil
}

// MarkPlayerDeleted soft-deletes a player, strips their bullets and queues a leave event.
// Deleting an already deleted player is a no-op.
func (g *Game) MarkPlayerDeleted(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.findPlayer(playerID)
	if p == nil {
		return fmt.Errorf("mark deleted %s: %w", playerID, ErrPlayerNotFound)
	}
	if p.IsDeleted {
		return nil
	}
	p.MarkDeleted(g.clock())
	g.removeBulletsOf(playerID)
	g.contacts.Forget(playerID)
	g.emit(SystemEvent{Kind: EventPlayerLeave, Player: p.ref()})
	return nil
}

// RestorePlayer reverses a soft delete. Returns false without side effects if
// the player is not currently deleted.
func (g *Game) RestorePlayer(playerID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.findPlayer(playerID)
	if p == nil {
		return false, fmt.Errorf("restore %s: %w", playerID, ErrPlayerNotFound)
	}
	if !p.IsDeleted {
		return false, nil
	}
	p.Restore()
	g.emit(SystemEvent{Kind: EventPlayerRejoin, Player: p.ref()})
	return true, nil
}

// HardDeletePlayer removes a player and their bullets unconditionally
func (g *Game) HardDeletePlayer(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.findPlayer(playerID) == nil {
		return fmt.Errorf("hard delete %s: %w", playerID, ErrPlayerNotFound)
	}
	g.deletePlayer(playerID)
	return nil
}

// PlayerByDevice returns the player registered for a device, deleted or not
func (g *Game) PlayerByDevice(deviceID string) (PlayerState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, p := range g.players {
		if p.DeviceID == deviceID {
			return p.ToState(), nil
		}
	}
	return PlayerState{}, fmt.Errorf("device %s: %w", deviceID, ErrPlayerNotFound)
}

// Player returns the current state of a player, deleted or not
func (g *Game) Player(playerID string) (PlayerState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.findPlayer(playerID)
	if p == nil {
		return PlayerState{}, fmt.Errorf("player %s: %w", playerID, ErrPlayerNotFound)
	}
	return p.ToState(), nil
}

// PlayerCount returns the number of players that are not soft-deleted
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activePlayers()
}

// TotalPlayers counts every player still held in state, including soft-deleted ones
func (g *Game) TotalPlayers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

/*
	MOVEMENT & FIRE
*/

// MovePlayer applies one movement step. Spawning and deleted players are ignored.
func (g *Game) MovePlayer(playerID string, bearing float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.findPlayer(playerID)
	if p == nil {
		return fmt.Errorf("move %s: %w", playerID, ErrPlayerNotFound)
	}
	if p.IsSpawning || p.IsDeleted {
		return nil
	}
	p.Move(bearing, g.level)
	return nil
}

// SetPlayerPosition accepts a client-reported position after a wall check.
// Returns false if the position was rejected.
func (g *Game) SetPlayerPosition(playerID string, x, y, bearing float64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.findPlayer(playerID)
	if p == nil {
		return false, fmt.Errorf("set position %s: %w", playerID, ErrPlayerNotFound)
	}
	if p.IsSpawning || p.IsDeleted {
		return false, nil
	}
	return p.SetPosition(x, y, bearing, g.level), nil
}

// Fire spawns a bullet at the edge of the player's box if the cooldown has elapsed.
// A shot whose spawn point is inside a wall consumes the cooldown but creates no bullet.
func (g *Game) Fire(playerID string, bearing float64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.findPlayer(playerID)
	if p == nil {
		return false, fmt.Errorf("fire %s: %w", playerID, ErrPlayerNotFound)
	}
	now := g.clock()
	if !p.CanFire(now) {
		return false, nil
	}
	p.LastFireAt = now
	bearing = NormalizeBearing(bearing)
	at := BulletSpawnPoint(p, bearing)
	b := NewBullet(p.ID, at.X, at.Y, bearing, now)
	if b.Box.HitsWall(g.level, true) {
		return false, nil
	}
	g.bullets = append(g.bullets, b)
	return true, nil
}

// AddBullet appends an externally created bullet
func (g *Game) AddBullet(b *Bullet) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bullets = append(g.bullets, b)
}

/*
	TICK
*/

// Tick advances the simulation one fixed step
func (g *Game) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	g.tickCollisionTracking()
	g.tickRespawnPlayers(now)
	g.tickCleanupDeletedPlayers(now)
	g.tickBullets(now)
	g.tickItems(now)
}

// itemContact is a player that started overlapping an item this tick
type itemContact struct {
	player *Player
	item   *Item
}

// tickCollisionTracking drops contacts that ended and records new
// player-player and player-item contacts. Player-item pairs that began this
// tick are queued for tickItems.
func (g *Game) tickCollisionTracking() {
	g.contacts.Sweep(func(a, b string) bool {
		ba, okA := g.boxOf(a)
		bb, okB := g.boxOf(b)
		return okA && okB && ba.Overlaps(bb)
	})
	for i := 0; i < len(g.players); i++ {
		a := g.players[i]
		if a.IsDeleted {
			continue
		}
		for j := i + 1; j < len(g.players); j++ {
			b := g.players[j]
			if b.IsDeleted {
				continue
			}
			if a.Box.Overlaps(b.Box) {
				g.contacts.Touch(a.ID, b.ID)
			}
		}
	}

	g.itemEntered = g.itemEntered[:0]
	for _, it := range g.items {
		for _, p := range g.players {
			if p.IsDeleted || !p.Box.Overlaps(it.Box) {
				continue
			}
			if g.contacts.Touch(p.ID, it.ID) {
				g.itemEntered = append(g.itemEntered, itemContact{player: p, item: it})
			}
		}
	}
}

func (g *Game) tickRespawnPlayers(now time.Time) {
	for _, p := range g.players {
		p.AdvanceLifecycle(now, g.pickSpawn)
	}
}

func (g *Game) tickCleanupDeletedPlayers(now time.Time) {
	var expired []string
	for _, p := range g.players {
		if p.ShouldBeRemoved(now) {
			expired = append(expired, p.ID)
		}
	}
	for _, id := range expired {
		g.deletePlayer(id)
	}
}

func (g *Game) tickBullets(now time.Time) {
	for _, b := range g.bullets {
		b.Update(now, g.level)
	}
	g.resolveBulletHits(now)

	alive := g.bullets[:0]
	for _, b := range g.bullets {
		if !b.IsDestroyed {
			alive = append(alive, b)
		}
	}
	clear(g.bullets[len(alive):])
	g.bullets = alive
}

func (g *Game) tickItems(now time.Time) {
	lvl := g.level
	if len(g.items) < lvl.MaxItems && len(lvl.ItemSpawnPoints) > 0 &&
		now.Sub(g.lastItemSpawnAt) >= lvl.ItemSpawnInterval {
		if at, ok := g.pickItemSpawn(); ok {
			it := NewItem(ItemRapidFire, at)
			g.items = append(g.items, it)
			g.lastItemSpawnAt = now
			g.emit(SystemEvent{Kind: EventItemSpawn, Item: it.ref()})
		}
	}

	// Items are only picked up on the tick a player starts touching them
	for _, c := range g.itemEntered {
		p, it := c.player, c.item
		if p.IsDestroyed || p.IsDeleted {
			continue
		}
		i := slices.Index(g.items, it)
		if i < 0 {
			continue
		}
		it.Apply(p)
		g.items = slices.Delete(g.items, i, i+1)
		g.contacts.Forget(it.ID)
		g.lastItemSpawnAt = now
		g.emit(SystemEvent{Kind: EventItemPickup, Player: p.ref(), Item: it.ref()})
	}
	g.itemEntered = g.itemEntered[:0]
}

/*
	SERIALIZATION
*/

// Serialize returns the externally visible view: non-deleted players, all
// bullets and items. The level is never included.
func (g *Game) Serialize() GameSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := GameSnapshot{
		RoomID:  g.roomID,
		Players: make([]PlayerState, 0, len(g.players)),
		Bullets: make([]BulletState, 0, len(g.bullets)),
		Items:   make([]ItemState, 0, len(g.items)),
	}
	for _, p := range g.players {
		if p.IsDeleted {
			continue
		}
		snap.Players = append(snap.Players, p.ToState())
	}
	for _, b := range g.bullets {
		snap.Bullets = append(snap.Bullets, b.ToState())
	}
	for _, it := range g.items {
		snap.Items = append(snap.Items, it.ToState())
	}
	return snap
}

// DrainEvents returns and clears the queued system events
func (g *Game) DrainEvents() []SystemEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	events := g.events
	g.events = nil
	return events
}

/*
	HELPERS (caller holds g.mu)
*/

func (g *Game) emit(ev SystemEvent) {
	ev.RoomID = g.roomID
	ev.At = g.clock()
	g.events = append(g.events, ev)
}

func (g *Game) findPlayer(id string) *Player {
	for _, p := range g.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (g *Game) activePlayers() int {
	n := 0
	for _, p := range g.players {
		if !p.IsDeleted {
			n++
		}
	}
	return n
}

func (g *Game) deletePlayer(id string) {
	kept := g.players[:0]
	for _, p := range g.players {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	clear(g.players[len(kept):])
	g.players = kept
	g.removeBulletsOf(id)
	g.contacts.Forget(id)
}

func (g *Game) removeBulletsOf(playerID string) {
	kept := g.bullets[:0]
	for _, b := range g.bullets {
		if b.PlayerID != playerID {
			kept = append(kept, b)
		}
	}
	clear(g.bullets[len(kept):])
	g.bullets = kept
}

func (g *Game) boxOf(id string) (Box, bool) {
	if p := g.findPlayer(id); p != nil && !p.IsDeleted {
		return p.Box, true
	}
	for _, it := range g.items {
		if it.ID == id {
			return it.Box, true
		}
	}
	return Box{}, false
}

func (g *Game) pickSpawn() Point {
	pts := g.level.PlayerSpawnPoints
	if len(pts) == 0 {
		return fallbackSpawn
	}
	return pts[g.rng.IntN(len(pts))]
}

// pickItemSpawn chooses a random item spawn point not already holding an item
func (g *Game) pickItemSpawn() (Point, bool) {
	var free []Point
	for _, pt := range g.level.ItemSpawnPoints {
		taken := false
		for _, it := range g.items {
			if it.Box.X == pt.X && it.Box.Y == pt.Y {
				taken = true
				break
			}
		}
		if !taken {
			free = append(free, pt)
		}
	}
	if len(free) == 0 {
		return Point{}, false
	}
	return free[g.rng.IntN(len(free))], true
}
