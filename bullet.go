package main

import "time"

const (
	BulletSize       = 1.0
	BulletSpeed      = 10.0 // pixels per tick
	BulletDamage     = 100
	BulletDecayTime  = 4000 * time.Millisecond
	bulletSpawnInset = 1.0 // gap between the player's edge and the bullet
)

// Bullet is a shot travelling in a straight line
type Bullet struct {
	ID          string
	PlayerID    string
	Box         Box
	Bearing     float64
	Speed       float64
	Damage      int
	SpawnedAt   time.Time
	IsDestroyed bool
}

// NewBullet creates a bullet owned by playerID at (x, y)
func NewBullet(playerID string, x, y, bearing float64, now time.Time) *Bullet {
	return &Bullet{
		ID:        GenerateID(4),
		PlayerID:  playerID,
		Box:       Box{X: x, Y: y, Size: BulletSize},
		Bearing:   NormalizeBearing(bearing),
		Speed:     BulletSpeed,
		Damage:    BulletDamage,
		SpawnedAt: now,
	}
}

// BulletSpawnPoint returns the point just outside the player's box along bearing
func BulletSpawnPoint(p *Player, bearing float64) Point {
	cx, cy := p.Box.Center()
	dist := p.Box.Size/2 + bulletSpawnInset
	dx, dy := BearingVector(NormalizeBearing(bearing))
	return Point{X: cx + dx*dist, Y: cy + dy*dist}
}

// Expired reports whether the bullet has outlived its decay time
func (b *Bullet) Expired(now time.Time) bool {
	return now.Sub(b.SpawnedAt) > BulletDecayTime
}

// Update moves the bullet one tick. Expired bullets and bullets that would
// enter a wall or leave the level are destroyed in place.
func (b *Bullet) Update(now time.Time, l *Level) {
	if b.IsDestroyed {
		return
	}
	if b.Expired(now) {
		b.IsDestroyed = true
		return
	}
	dx, dy := BearingVector(b.Bearing)
	next := b.Box.At(b.Box.X+dx*b.Speed, b.Box.Y+dy*b.Speed)
	if next.HitsWall(l, true) {
		b.IsDestroyed = true
		return
	}
	b.Box = next
}

// ToState converts to protocol state
func (b *Bullet) ToState() BulletState {
	return BulletState{
		ID:       b.ID,
		PlayerID: b.PlayerID,
		X:        b.Box.X,
		Y:        b.Box.Y,
		Bearing:  b.Bearing,
	}
}
