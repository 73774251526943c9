package main

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine drives one room: a fixed-rate simulation tick and a throttled
// state broadcast. It looks the room up on every tick and stops itself once
// the room is gone.
type Engine struct {
	roomID string
	rooms  *RoomManager

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	lastBroadcast time.Time
	now           func() time.Time
}

// NewEngine creates a stopped engine for roomID
func NewEngine(roomID string, rooms *RoomManager) *Engine {
	return &Engine{
		roomID: roomID,
		rooms:  rooms,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Start launches the tick loop. Calling it again has no effect.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		logger.Debug("engine started", zap.String("room", e.roomID))
		go e.run()
	})
}

// Stop cancels the tick loop. Stopping an already stopped engine is a no-op.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
}

// Done is closed once the tick loop has exited
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) run() {
	defer close(e.done)
	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			logger.Debug("engine stopped", zap.String("room", e.roomID))
			return
		case <-ticker.C:
			if !e.step(e.now()) {
				e.Stop()
				logger.Debug("engine stopped itself", zap.String("room", e.roomID))
				return
			}
		}
	}
}

// step runs one tick. Returns false when the engine should stop.
func (e *Engine) step(now time.Time) bool {
	room, err := e.rooms.Get(e.roomID)
	if err != nil {
		return false
	}

	room.Game.Tick()
	room.flushEvents(e.rooms.analytics)

	if e.rooms.removeIfAbandoned(room, now) {
		return false
	}

	if now.Sub(e.lastBroadcast) >= BroadcastInterval {
		e.lastBroadcast = now
		room.BroadcastState(room.Game.Serialize())
	}
	return true
}
