package main

import "time"

// resolveBulletHits checks every live bullet against players in join order.
// The first player a bullet overlaps takes its damage and the bullet is
// destroyed whether or not the hit was lethal. Caller holds g.mu.
func (g *Game) resolveBulletHits(now time.Time) {
	g.grid.Clear()
	for i, p := range g.players {
		if p.CanBeHit() {
			g.grid.Insert(p.Box, i)
		}
	}

	var candidates []int
	for _, b := range g.bullets {
		if b.IsDestroyed {
			continue
		}
		candidates = g.grid.Query(b.Box, candidates[:0])
		for _, i := range candidates {
			p := g.players[i]
			if p.ID == b.PlayerID || !p.CanBeHit() {
				continue
			}
			if !b.Box.Overlaps(p.Box) {
				continue
			}
			b.IsDestroyed = true
			if p.TakeDamage(b.Damage, now) {
				g.recordKill(b.PlayerID, p)
			}
			break
		}
	}
}

// recordKill credits the shooter, who may have left since firing, and queues a death event
func (g *Game) recordKill(shooterID string, victim *Player) {
	ev := SystemEvent{Kind: EventPlayerDeath, Player: victim.ref()}
	if shooter := g.findPlayer(shooterID); shooter != nil {
		if shooter.ID != victim.ID {
			shooter.KillCount++
		}
		ref := shooter.ref()
		ev.Killer = &ref
	}
	g.emit(ev)
}
