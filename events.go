package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// EventKind identifies a game happening that is announced in chat
type EventKind string

const (
	EventPlayerJoin   EventKind = "player_join"
	EventPlayerRejoin EventKind = "player_rejoin"
	EventPlayerLeave  EventKind = "player_leave"
	EventPlayerDeath  EventKind = "player_death"
	EventItemSpawn    EventKind = "item_spawn"
	EventItemPickup   EventKind = "item_pickup"
)

const systemPlayerID = "system"
const systemPlayerName = "System"

// EntityRef is a snapshot of the identity of a player or item at event time
type EntityRef struct {
	ID       string
	DeviceID string
	Name     string
	Colour   Colour
}

func (p *Player) ref() EntityRef {
	return EntityRef{ID: p.ID, DeviceID: p.DeviceID, Name: p.Name, Colour: p.Colour}
}

func (it *Item) ref() EntityRef {
	return EntityRef{ID: it.ID, Name: it.Name}
}

// SystemEvent is queued by the game during mutations and ticks and drained
// by the room, which turns each one into a chat entry.
type SystemEvent struct {
	Kind   EventKind
	RoomID string
	At     time.Time

	Player EntityRef // subject: joiner, leaver, victim or picker
	Killer *EntityRef
	Item   EntityRef
}

// ChatText renders the announcement for the event
func (ev SystemEvent) ChatText() string {
	switch ev.Kind {
	case EventPlayerJoin:
		return fmt.Sprintf("%s joined the game", ev.Player.Name)
	case EventPlayerRejoin:
		return fmt.Sprintf("%s re-joined the game!", ev.Player.Name)
	case EventPlayerLeave:
		return fmt.Sprintf("%s left the game", ev.Player.Name)
	case EventPlayerDeath:
		if ev.Killer == nil {
			return fmt.Sprintf("%s died", ev.Player.Name)
		}
		return fmt.Sprintf("%s killed %s", ev.Killer.Name, ev.Player.Name)
	case EventItemSpawn:
		return fmt.Sprintf("%s spawned", ev.Item.Name)
	case EventItemPickup:
		return fmt.Sprintf("%s picked up %s", ev.Player.Name, ev.Item.Name)
	}
	return string(ev.Kind)
}

// ChatAuthor returns the player the chat entry is attributed to. Item events
// are attributed to the system.
func (ev SystemEvent) ChatAuthor() (id, name string, colour Colour) {
	switch ev.Kind {
	case EventItemSpawn, EventItemPickup:
		return systemPlayerID, systemPlayerName, ColourYellow
	case EventPlayerDeath:
		if ev.Killer != nil {
			return ev.Killer.ID, ev.Killer.Name, ev.Killer.Colour
		}
	}
	return ev.Player.ID, ev.Player.Name, ev.Player.Colour
}

// flushEvents drains the game's event queue into the room's chat log,
// broadcasts each new entry and records it for analytics.
func (r *Room) flushEvents(a *Analytics) {
	for _, ev := range r.Game.DrainEvents() {
		id, name, colour := ev.ChatAuthor()
		entry := r.Chats.Add(id, name, colour, ev.ChatText(), true, ev.At)
		r.BroadcastJSON(Envelope{Type: MsgNewChat, Data: entry})
		a.TrackEvent(ev)
		logger.Debug("system event",
			zap.String("room", r.ID),
			zap.String("kind", string(ev.Kind)),
			zap.String("text", entry.Content))
	}
}
