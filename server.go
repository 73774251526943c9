package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxBodyBytes        = 4096
	defaultLeaderboard  = 10
	maxLeaderboardLimit = 100
	defaultEventLimit   = 50
	maxEventLimit       = 500
)

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // Non-browser clients don't send Origin
			}
			if slices.Contains(allowed, origin) {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return u.Host == r.Host
		},
	}
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, ErrorMsg{Error: err.Error(), Code: errorCode(err)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", ErrInvalidMessage)
	}
	return nil
}

// queryLimit parses the optional ?limit= parameter, capped at max
func queryLimit(r *http.Request, def, limitMax int) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad limit %q: %w", s, ErrInvalidMessage)
	}
	return min(n, limitMax), nil
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	upgrader := newUpgrader(hub.origins)

	mux.HandleFunc("GET /pew/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"rooms":       hub.rooms.Count(),
			"connections": hub.TotalConns(),
		})
	})

	mux.HandleFunc("GET /pew/rooms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.rooms.List())
	})

	mux.HandleFunc("POST /pew/rooms/join", func(w http.ResponseWriter, r *http.Request) {
		if !hub.auth.checkRate(extractIP(r)) {
			writeError(w, ErrRateLimited)
			return
		}
		var req JoinRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		res, err := hub.rooms.Join(req)
		if err != nil {
			writeError(w, err)
			return
		}
		token, err := hub.auth.IssueTicket(res.Room.ID, res.PlayerID)
		if err != nil {
			writeError(w, fmt.Errorf("issue ticket: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, JoinResponse{
			RoomID:   res.Room.ID,
			PlayerID: res.PlayerID,
			Token:    token,
			Level:    res.Room.Game.Level().Grid(),
		})
	})

	mux.HandleFunc("GET /pew/rooms/{roomId}/chats", func(w http.ResponseWriter, r *http.Request) {
		room, err := hub.rooms.Get(r.PathValue("roomId"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, room.Chats.List())
	})

	mux.HandleFunc("POST /pew/rooms/{roomId}/chats", func(w http.ResponseWriter, r *http.Request) {
		room, err := hub.rooms.Get(r.PathValue("roomId"))
		if err != nil {
			writeError(w, err)
			return
		}
		var req PostChatRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		entry, err := room.PostChat(req.PlayerID, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	})

	mux.HandleFunc("GET /pew/rooms/{roomId}/qr", func(w http.ResponseWriter, r *http.Request) {
		room, err := hub.rooms.Get(r.PathValue("roomId"))
		if err != nil {
			writeError(w, err)
			return
		}
		png, err := roomQRCode(hub.publicURL, room)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	mux.HandleFunc("GET /pew/rooms/{roomId}/events", func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryLimit(r, defaultEventLimit, maxEventLimit)
		if err != nil {
			writeError(w, err)
			return
		}
		if hub.db == nil {
			writeJSON(w, http.StatusOK, []EventRow{})
			return
		}
		events, err := hub.db.RecentEvents(r.PathValue("roomId"), limit)
		if err != nil {
			writeError(w, fmt.Errorf("recent events: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, events)
	})

	mux.HandleFunc("GET /pew/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryLimit(r, defaultLeaderboard, maxLeaderboardLimit)
		if err != nil {
			writeError(w, err)
			return
		}
		if hub.db == nil {
			writeJSON(w, http.StatusOK, []LeaderboardEntry{})
			return
		}
		entries, err := hub.db.GetLeaderboard(limit)
		if err != nil {
			writeError(w, fmt.Errorf("leaderboard: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	// WebSocket endpoint
	mux.HandleFunc("GET /pew/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("upgrade error", zap.String("addr", ip), zap.Error(err))
			return
		}

		q := r.URL.Query()
		room, playerID, err := hub.resolveConnect(q.Get("token"), q.Get("roomId"), q.Get("playerId"))
		if err != nil {
			rejectConn(conn, err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip, room.ID, playerID, q.Get("format"))
		room.AddConn(client)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
		client.sendState(room)
	})

	return mux
}

// resolveConnect identifies the room and player a new connection belongs to,
// either from a join ticket or from explicit ids.
func (h *Hub) resolveConnect(token, roomID, playerID string) (*Room, string, error) {
	if token != "" {
		tRoom, tPlayer, err := h.auth.ValidateTicket(token)
		if err != nil {
			return nil, "", err
		}
		if (roomID != "" && roomID != tRoom) || (playerID != "" && playerID != tPlayer) {
			return nil, "", fmt.Errorf("ticket does not match connection: %w", ErrInvalidToken)
		}
		roomID, playerID = tRoom, tPlayer
	}
	if roomID == "" || playerID == "" {
		return nil, "", fmt.Errorf("roomId and playerId required: %w", ErrInvalidMessage)
	}
	room, err := h.rooms.Get(roomID)
	if err != nil {
		return nil, "", err
	}
	p, err := room.Game.Player(playerID)
	if err != nil {
		return nil, "", err
	}
	if p.IsDeleted {
		return nil, "", fmt.Errorf("player %s has left: %w", playerID, ErrPlayerNotFound)
	}
	return room, playerID, nil
}

// rejectConn sends an error payload on a connection that has no pumps yet and closes it
func rejectConn(conn *websocket.Conn, err error) {
	defer conn.Close()
	deadline := time.Now().Add(writeWait)
	conn.SetWriteDeadline(deadline)
	if werr := conn.WriteJSON(ErrorMsg{Error: err.Error(), Code: errorCode(err)}); werr != nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, errorCode(err)), deadline)
}
