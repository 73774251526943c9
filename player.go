package main

import (
	"math"
	"time"
)

const (
	PlayerSize          = 16.0
	PlayerBaseSpeed     = 2.0 // pixels per movement message
	PlayerMaxHealth     = 100
	PlayerBaseFireDelay = 200 * time.Millisecond
	PlayerMinFireDelay  = 50 * time.Millisecond

	PlayerDeathTime         = 2000 * time.Millisecond
	PlayerSpawnTime         = 1200 * time.Millisecond
	PlayerInvincibilityTime = 1600 * time.Millisecond
	PlayerDeletionGrace     = 30 * time.Second
)

// Colour is one of the fixed player colours
type Colour string

const (
	ColourRed    Colour = "RED"
	ColourBlue   Colour = "BLUE"
	ColourGreen  Colour = "GREEN"
	ColourYellow Colour = "YELLOW"
	ColourPurple Colour = "PURPLE"
	ColourOrange Colour = "ORANGE"
	ColourBrown  Colour = "BROWN"
)

// Valid reports whether c is a known colour
func (c Colour) Valid() bool {
	switch c {
	case ColourRed, ColourBlue, ColourGreen, ColourYellow, ColourPurple, ColourOrange, ColourBrown:
		return true
	}
	return false
}

// Player is a participant in a room. The lifecycle flags follow
// Alive -> Destroyed -> Spawning+Invincible -> Invincible -> Alive, with
// IsDeleted layered on top for soft removal.
type Player struct {
	ID       string
	DeviceID string
	Name     string
	Colour   Colour

	Box     Box
	Bearing float64
	Speed   float64

	Health     int
	FireDelay  time.Duration
	LastFireAt time.Time

	KillCount  int
	DeathCount int

	IsDestroyed  bool
	IsSpawning   bool
	IsInvincible bool
	InDeathCycle bool
	IsDeleted    bool

	DestroyedAt  time.Time
	SpawningAt   time.Time
	InvincibleAt time.Time
	DeletedAt    time.Time
}

// NewPlayer creates an alive player at the given spawn point
func NewPlayer(id, deviceID, name string, colour Colour, spawn Point) *Player {
	return &Player{
		ID:        id,
		DeviceID:  deviceID,
		Name:      name,
		Colour:    colour,
		Box:       Box{X: spawn.X, Y: spawn.Y, Size: PlayerSize},
		Speed:     PlayerBaseSpeed,
		Health:    PlayerMaxHealth,
		FireDelay: PlayerBaseFireDelay,
	}
}

// Move applies one movement step along bearing. A blocked step is resolved
// per axis, X then Y: each blocked axis stops flush against the wall face, so
// the player slides along walls and never leaves a gap in front of them.
func (p *Player) Move(bearing float64, l *Level) {
	bearing = NormalizeBearing(bearing)
	dx, dy := BearingVector(bearing)
	dx *= p.Speed
	dy *= p.Speed

	x, y := p.Box.X, p.Box.Y
	if !p.Box.At(x+dx, y+dy).HitsWall(l, true) {
		x, y = x+dx, y+dy
	} else {
		x = p.moveAxis(x, dx, func(v float64) Box { return p.Box.At(v, y) }, l)
		y = p.moveAxis(y, dy, func(v float64) Box { return p.Box.At(x, v) }, l)
	}
	p.Box.X, p.Box.Y = x, y
	p.Bearing = bearing
}

// moveAxis advances one coordinate by d, or up to the face of the wall tile
// that blocks it. at builds the player box for a coordinate on that axis.
func (p *Player) moveAxis(v, d float64, at func(float64) Box, l *Level) float64 {
	if d == 0 || !at(v+d).HitsWall(l, true) {
		return v + d
	}
	var face float64
	if d > 0 {
		face = math.Floor((v+d+p.Box.Size)/TileSize)*TileSize - p.Box.Size
		if face < v {
			return v
		}
	} else {
		face = (math.Floor((v+d)/TileSize) + 1) * TileSize
		if face > v {
			return v
		}
	}
	if at(face).HitsWall(l, true) {
		return v
	}
	return face
}

// SetPosition moves the player to a client-reported position if it is wall free
func (p *Player) SetPosition(x, y, bearing float64, l *Level) bool {
	p.Bearing = NormalizeBearing(bearing)
	if p.Box.At(x, y).HitsWall(l, true) {
		return false
	}
	p.Box.X, p.Box.Y = x, y
	return true
}

// CanBeHit reports whether bullets can damage the player
func (p *Player) CanBeHit() bool {
	return !p.IsDestroyed && !p.IsSpawning && !p.IsInvincible && !p.IsDeleted
}

// TakeDamage reduces health and returns true if the player died
func (p *Player) TakeDamage(dmg int, now time.Time) bool {
	if !p.CanBeHit() {
		return false
	}
	p.Health -= dmg
	if p.Health <= 0 {
		p.Health = 0
		p.destroy(now)
		return true
	}
	return false
}

func (p *Player) destroy(now time.Time) {
	p.IsDestroyed = true
	p.InDeathCycle = true
	p.DestroyedAt = now
	p.DeathCount++
	p.FireDelay = PlayerBaseFireDelay
}

// CanFire returns true if the fire cooldown has elapsed
func (p *Player) CanFire(now time.Time) bool {
	if p.IsDestroyed || p.IsSpawning || p.IsDeleted {
		return false
	}
	return now.Sub(p.LastFireAt) >= p.FireDelay
}

// beginRespawn moves a destroyed player to a spawn point with full health
func (p *Player) beginRespawn(spawn Point, now time.Time) {
	p.IsDestroyed = false
	p.Health = PlayerMaxHealth
	p.Box.X, p.Box.Y = spawn.X, spawn.Y
	p.IsSpawning = true
	p.SpawningAt = now
	p.IsInvincible = true
	p.InvincibleAt = now
	p.FireDelay = PlayerBaseFireDelay
}

// AdvanceLifecycle runs the timed transitions of the death cycle. Checks run
// spawning, then invincibility, then destroyed, so a player moves at most one
// stage per call.
func (p *Player) AdvanceLifecycle(now time.Time, pickSpawn func() Point) {
	if !p.InDeathCycle {
		return
	}
	if p.IsSpawning && now.Sub(p.SpawningAt) >= PlayerSpawnTime {
		p.IsSpawning = false
		p.InvincibleAt = now
		return
	}
	if p.IsInvincible && !p.IsSpawning && now.Sub(p.InvincibleAt) >= PlayerInvincibilityTime {
		p.IsInvincible = false
		p.InDeathCycle = false
		return
	}
	if p.IsDestroyed && now.Sub(p.DestroyedAt) >= PlayerDeathTime {
		p.beginRespawn(pickSpawn(), now)
	}
}

// MarkDeleted soft-removes the player
func (p *Player) MarkDeleted(now time.Time) {
	p.IsDeleted = true
	p.DeletedAt = now
}

// Restore reverses a soft delete
func (p *Player) Restore() {
	p.IsDeleted = false
	p.DeletedAt = time.Time{}
}

// ShouldBeRemoved reports whether the deletion grace period has passed
func (p *Player) ShouldBeRemoved(now time.Time) bool {
	return p.IsDeleted && now.Sub(p.DeletedAt) >= PlayerDeletionGrace
}

// ApplyFireRateBoost shortens the fire delay down to PlayerMinFireDelay
func (p *Player) ApplyFireRateBoost(by time.Duration) {
	p.FireDelay -= by
	if p.FireDelay < PlayerMinFireDelay {
		p.FireDelay = PlayerMinFireDelay
	}
}

// ToState converts to protocol state
func (p *Player) ToState() PlayerState {
	return PlayerState{
		ID:           p.ID,
		DeviceID:     p.DeviceID,
		Name:         p.Name,
		Colour:       p.Colour,
		X:            p.Box.X,
		Y:            p.Box.Y,
		Health:       p.Health,
		Speed:        p.Speed,
		Bearing:      p.Bearing,
		TopLeft:      p.Box.TopLeft(),
		TopRight:     p.Box.TopRight(),
		BottomLeft:   p.Box.BottomLeft(),
		BottomRight:  p.Box.BottomRight(),
		KillCount:    p.KillCount,
		DeathCount:   p.DeathCount,
		IsDestroyed:  p.IsDestroyed,
		IsSpawning:   p.IsSpawning,
		IsInvincible: p.IsInvincible,
		IsDeleted:    p.IsDeleted,
	}
}
