package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// EventRow is one journaled system event
type EventRow struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"roomId"`
	Kind      string    `json:"kind"`
	PlayerID  string    `json:"playerId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// LeaderboardEntry represents one row in the leaderboard
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	DeviceID string `json:"-"`
	Name     string `json:"name"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS player_stats (
		device_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		kills INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		player_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_room ON events(room_id, id);
	CREATE INDEX IF NOT EXISTS idx_player_stats_kills ON player_stats(kills);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		logger.Error("db migration failed", zap.Error(err))
	}
	return err
}

// GetSetting returns a setting value, or "" if unset
func (db *DB) GetSetting(key string) string {
	var v string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Warn("get setting failed", zap.String("key", key), zap.Error(err))
		}
		return ""
	}
	return v
}

// SetSetting stores a setting value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// RecordEvents journals a batch of system events and folds deaths into the
// lifetime per-device stats, all in one transaction.
func (db *DB) RecordEvents(events []SystemEvent) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ins, err := tx.Prepare(`INSERT INTO events (room_id, kind, player_id, content, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()

	stat, err := tx.Prepare(`INSERT INTO player_stats (device_id, name, kills, deaths, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name = excluded.name,
			kills = kills + excluded.kills,
			deaths = deaths + excluded.deaths,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare stats: %w", err)
	}
	defer stat.Close()

	for _, ev := range events {
		at := ev.At.UTC().Format(time.RFC3339Nano)
		if _, err := ins.Exec(ev.RoomID, string(ev.Kind), ev.Player.ID, ev.ChatText(), at); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if ev.Kind != EventPlayerDeath {
			continue
		}
		if ev.Player.DeviceID != "" {
			if _, err := stat.Exec(ev.Player.DeviceID, ev.Player.Name, 0, 1, at); err != nil {
				return fmt.Errorf("update victim stats: %w", err)
			}
		}
		if k := ev.Killer; k != nil && k.DeviceID != "" && k.ID != ev.Player.ID {
			if _, err := stat.Exec(k.DeviceID, k.Name, 1, 0, at); err != nil {
				return fmt.Errorf("update killer stats: %w", err)
			}
		}
	}
	return tx.Commit()
}

// GetLeaderboard returns the devices with the most lifetime kills
func (db *DB) GetLeaderboard(limit int) ([]LeaderboardEntry, error) {
	rows, err := db.conn.Query(
		`SELECT device_id, name, kills, deaths FROM player_stats
		ORDER BY kills DESC, deaths ASC, name ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []LeaderboardEntry{}
	rank := 1
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.DeviceID, &e.Name, &e.Kills, &e.Deaths); err != nil {
			return nil, err
		}
		e.Rank = rank
		rank++
		result = append(result, e)
	}
	return result, rows.Err()
}

// RecentEvents returns the newest journaled events of a room, newest first
func (db *DB) RecentEvents(roomID string, limit int) ([]EventRow, error) {
	rows, err := db.conn.Query(
		`SELECT id, room_id, kind, player_id, content, created_at FROM events
		WHERE room_id = ? ORDER BY id DESC LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []EventRow{}
	for rows.Next() {
		var e EventRow
		var created string
		if err := rows.Scan(&e.ID, &e.RoomID, &e.Kind, &e.PlayerID, &e.Content, &created); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		result = append(result, e)
	}
	return result, rows.Err()
}
