package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------- helpers ----------

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// startTestServer spins up an httptest.Server with a Hub and no database
func startTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	return startTestServerWithDB(t, nil)
}

func startTestServerWithDB(t *testing.T, db *DB) (*httptest.Server, *Hub) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.RoomIdleTimeout = 2 * time.Second
	hub := NewHub(cfg, db)
	go hub.Run()

	srv := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
	})
	return srv, hub
}

func postJSON(t *testing.T, u string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(u, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", u, err)
	}
	return resp
}

func decodeResp(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func joinRoom(t *testing.T, srv *httptest.Server, req JoinRequest) JoinResponse {
	t.Helper()
	resp := postJSON(t, srv.URL+"/pew/rooms/join", req)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("join: status %d: %s", resp.StatusCode, body)
	}
	var jr JoinResponse
	decodeResp(t, resp, &jr)
	return jr
}

// dialWS opens a WebSocket connection with the given query parameters
func dialWS(t *testing.T, srv *httptest.Server, params url.Values) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/pew/ws?" + params.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func dialTicket(t *testing.T, srv *httptest.Server, jr JoinResponse, format string) *websocket.Conn {
	params := url.Values{"token": {jr.Token}}
	if format != "" {
		params.Set("format", format)
	}
	return dialWS(t, srv, params)
}

// frame is any text message the server sends: an envelope or an error
type frame struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

// readFrame reads the next text frame, skipping binary ones
func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	for {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS: %v", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("unmarshal frame: %v (raw: %s)", err, data)
		}
		return f
	}
}

// readUntil reads frames until one of msgType arrives
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) frame {
	t.Helper()
	for i := 0; i < 100; i++ {
		if f := readFrame(t, conn); f.Type == msgType {
			return f
		}
	}
	t.Fatalf("no %s message received", msgType)
	return frame{}
}

// readErrorFrame reads frames until an error payload arrives
func readErrorFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	for i := 0; i < 100; i++ {
		if f := readFrame(t, conn); f.Code != "" {
			return f
		}
	}
	t.Fatal("no error message received")
	return frame{}
}

// readState reads the next JSON game-state snapshot
func readState(t *testing.T, conn *websocket.Conn) GameSnapshot {
	t.Helper()
	f := readUntil(t, conn, MsgGameState)
	var snap GameSnapshot
	if err := json.Unmarshal(f.Data, &snap); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	return snap
}

func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	if err := conn.WriteJSON(Envelope{Type: msgType, Data: data}); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

func findPlayerState(snap GameSnapshot, id string) (PlayerState, bool) {
	for _, p := range snap.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerState{}, false
}

// ---------- UUID generation tests ----------

func TestGenerateUUIDFormat(t *testing.T) {
	for i := 0; i < 20; i++ {
		id := GenerateUUID()
		if !uuidRegex.MatchString(id) {
			t.Errorf("GenerateUUID() = %q, does not match UUID v4 format", id)
		}
	}
}

func TestGenerateUUIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateUUID()
		if seen[id] {
			t.Fatalf("duplicate UUID generated: %s", id)
		}
		seen[id] = true
	}
}

// ---------- REST ----------

func TestHealth(t *testing.T) {
	srv, _ := startTestServer(t)

	resp, err := http.Get(srv.URL + "/pew/health")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]interface{}
	decodeResp(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("unexpected health %v", body)
	}
}

func TestJoinRejectsInvalidRequest(t *testing.T) {
	srv, _ := startTestServer(t)

	resp := postJSON(t, srv.URL+"/pew/rooms/join", joinReq("ab", "abcd", "Alice", "dev-1"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	var e ErrorMsg
	decodeResp(t, resp, &e)
	if e.Code != "INVALID_MESSAGE" {
		t.Errorf("expected INVALID_MESSAGE, got %q", e.Code)
	}

	resp, err := http.Post(srv.URL+"/pew/rooms/join", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", resp.StatusCode)
	}
}

func TestJoinWrongRoomCode(t *testing.T) {
	srv, _ := startTestServer(t)
	joinRoom(t, srv, joinReq("arena", "abcd", "Alice", "dev-1"))

	resp := postJSON(t, srv.URL+"/pew/rooms/join", joinReq("arena", "dcba", "Bobby", "dev-2"))
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
	var e ErrorMsg
	decodeResp(t, resp, &e)
	if e.Code != "INVALID_ROOM_CODE" {
		t.Errorf("expected INVALID_ROOM_CODE, got %q", e.Code)
	}
}

func TestJoinAndRejoin(t *testing.T) {
	srv, _ := startTestServer(t)

	first := joinRoom(t, srv, joinReq("arena", "abcd", "Alice", "dev-1"))
	if first.RoomID == "" || first.PlayerID == "" || first.Token == "" {
		t.Fatalf("incomplete join response %+v", first)
	}
	if len(first.Level) != 24 || len(first.Level[0]) != 32 {
		t.Errorf("expected a 32x24 level, got %dx%d", len(first.Level[0]), len(first.Level))
	}

	req := joinReq("arena", "abcd", "Alice", "dev-1")
	req.PlayerID = first.PlayerID
	again := joinRoom(t, srv, req)
	if again.PlayerID != first.PlayerID || again.RoomID != first.RoomID {
		t.Errorf("rejoin should keep ids, got %+v", again)
	}

	req.PlayerName = "Alicia"
	renamed := joinRoom(t, srv, req)
	if renamed.PlayerID == first.PlayerID {
		t.Error("a new name should produce a new player")
	}
}

func TestListRooms(t *testing.T) {
	srv, _ := startTestServer(t)
	jr := joinRoom(t, srv, joinReq("arena", "abcd", "Alice", "dev-1"))

	resp, err := http.Get(srv.URL + "/pew/rooms")
	if err != nil {
		t.Fatal(err)
	}
	var rooms []RoomInfo
	decodeResp(t, resp, &rooms)
	if len(rooms) != 1 || rooms[0].RoomID != jr.RoomID || rooms[0].PlayerCount != 1 {
		t.Errorf("unexpected rooms %+v", rooms)
	}
}

func TestLeaderboardWithoutDB(t *testing.T) {
	srv, _ := startTestServer(t)

	resp, err := http.Get(srv.URL + "/pew/leaderboard")
	if err != nil {
		t.Fatal(err)
	}
	var entries []LeaderboardEntry
	decodeResp(t, resp, &entries)
	if entries == nil || len(entries) != 0 {
		t.Errorf("expected empty list, got %v", entries)
	}

	resp, err = http.Get(srv.URL + "/pew/leaderboard?limit=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", resp.StatusCode)
	}
}

func TestRoomQRCode(t *testing.T) {
	srv, _ := startTestServer(t)
	jr := joinRoom(t, srv, joinReq("arena", "abcd", "Alice", "dev-1"))

	resp, err := http.Get(srv.URL + "/pew/rooms/" + jr.RoomID + "/qr")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	resp, err = http.Get(srv.URL + "/pew/rooms/nope/qr")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown room: expected 404, got %d", resp.StatusCode)
	}
}

// ---------- WebSocket ----------

func TestWSReceivesGameState(t *testing.T) {
	srv, hub := startTestServer(t)
	jr := joinRoom(t, srv, joinReq("arena", "abcd", "Alice", "dev-1"))
	conn := dialTicket(t, srv, jr, "")

	snap := readState(t, conn)
	if snap.RoomID != jr.RoomID {
		t.Errorf("expected room %s, got %s", jr.RoomID, snap.RoomID)
	}
	p, ok := findPlayerState(snap, jr.PlayerID)
	if !ok {
		t.Fatal("joined player missing from state")
	}
	if p.Name != "Alice" || p.Health != PlayerMaxHealth {
		t.Errorf("unexpected player %+v", p)
	}
	if snap.Bullets == nil || snap.Items == nil {
		t.Error("bullets and items should encode as arrays")
	}

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 registered client, got %d", hub.ClientCount())
	}
}

func TestWSConnectWithIDs(t *testing.T) {
	srv, _ := startTestServer(t)
	jr := joinRoom(t, srv, joinReq("arena", "abcd", "Alice", "dev-1"))
	conn := dialWS(t, srv, url.Values{"roomId": {jr.RoomID}, "playerId": {jr.PlayerID}})

	if _, ok := findPlayerState(readState(t, conn), jr.PlayerID); !ok {
		t.Error("player missing from state")
	}
}

func TestWSMsgpackState(t *testing.T) {
	srv, _ := startTestServer(t)
	jr := joinRoom(t, srv, joinReq("arena", "abcd", "Alice", "dev-1"))
	conn := dialTicket(t, srv, jr, FormatMsgpack)

	for i := 0; i < 50; i++ {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS: %v", err)
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		var env struct {
			Type string       `msgpack:"type"`
			Data GameSnapshot `msgpack:"data"`
		}
		if err := msgpack.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal msgpack: %v", err)
		}
		if env.Type != MsgGameState {
			t.Errorf("expected game-state, got %q", env.Type)
		}
		if _, ok := findPlayerState(env.Data, jr.PlayerID); !ok {
			t.Error("player missing from msgpack state")
		}
		return
	}
	t.Fatal("no binary state received")
}

func TestWSFireProducesBullet(t *testing.T) {
	srv, _ := startTestServer(t)
	jr := joinRoom(t, srv, joinReq("arena", "abcd", "Alice", "dev-1"))
	conn := dialTicket(t, srv, jr, "")

	p, ok := findPlayerState(readState(t, conn), jr.PlayerID)
	if !ok {
		t.Fatal("player missing from state")
	}
	// aim toward the middle of the map
	bearing := 0.0
	if p.X > 256 {
		bearing = 180
	}
	sendMsg(t, conn, MsgFire, map[string]float64{"bearing": bearing})

	for i := 0; i < 20; i++ {
		snap := readState(t, conn)
		if len(snap.Bullets) > 0 {
			if snap.Bullets[0].PlayerID != jr.PlayerID {
				t.Errorf("bullet owned by %s", snap.Bullets[0].PlayerID)
			}
			return
		}
	}
	t.Error("fired bullet never appeared in state")
}

func TestWSMalformedMessageKeepsConnection(t *testing.T) {
	srv, _ := startTestServer(t)
	jr := joinRoom(t, srv, joinReq("arena", "abcd", "Alice", "dev-1"))
	conn := dialTicket(t, srv, jr, "")
	readState(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if f := readErrorFrame(t, conn); f.Code != "INVALID_MESSAGE" {
		t.Errorf("expected INVALID_MESSAGE, got %q", f.Code)
	}

	sendMsg(t, conn, "dance", nil)
	if f := readErrorFrame(t, conn); f.Code != "INVALID_MESSAGE" {
		t.Errorf("unknown type: expected INVALID_MESSAGE, got %q", f.Code)
	}

	sendMsg(t, conn, MsgUpdatePosition, map[string]float64{"x": 10})
	if f := readErrorFrame(t, conn); f.Code != "INVALID_MESSAGE" {
		t.Errorf("missing y: expected INVALID_MESSAGE, got %q", f.Code)
	}

	// still connected
	sendMsg(t, conn, MsgUpdateMovement, map[string]float64{"bearing": 90})
	readState(t, conn)
}

func TestWSUnknownRoomRejected(t *testing.T) {
	srv, _ := startTestServer(t)
	conn := dialWS(t, srv, url.Values{"roomId": {"nope"}, "playerId": {"player-x"}})

	if f := readErrorFrame(t, conn); f.Code != "ROOM_NOT_FOUND" {
		t.Errorf("expected ROOM_NOT_FOUND, got %q", f.Code)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection should be closed after the error")
	}
}

func TestWSBadTicketRejected(t *testing.T) {
	srv, _ := startTestServer(t)
	conn := dialWS(t, srv, url.Values{"token": {"garbage"}})

	if f := readErrorFrame(t, conn); f.Code != "INVALID_TOKEN" {
		t.Errorf("expected INVALID_TOKEN, got %q", f.Code)
	}
}

func TestChatRoundTrip(t *testing.T) {
	srv, _ := startTestServer(t)
	jr := joinRoom(t, srv, joinReq("arena", "abcd", "Alice", "dev-1"))
	conn := dialTicket(t, srv, jr, "")
	readState(t, conn)

	resp := postJSON(t, srv.URL+"/pew/rooms/"+jr.RoomID+"/chats",
		PostChatRequest{PlayerID: jr.PlayerID, Content: "hello"})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	var pushed ChatEntry
	if err := json.Unmarshal(readUntil(t, conn, MsgNewChat).Data, &pushed); err != nil {
		t.Fatal(err)
	}
	if pushed.Content != "hello" || pushed.PlayerName != "Alice" || pushed.IsSystem {
		t.Errorf("unexpected pushed chat %+v", pushed)
	}

	sendMsg(t, conn, MsgSendChat, map[string]string{"chatContent": "over ws"})
	if err := json.Unmarshal(readUntil(t, conn, MsgNewChat).Data, &pushed); err != nil {
		t.Fatal(err)
	}
	if pushed.Content != "over ws" {
		t.Errorf("unexpected ws chat %q", pushed.Content)
	}

	resp, err := http.Get(srv.URL + "/pew/rooms/" + jr.RoomID + "/chats")
	if err != nil {
		t.Fatal(err)
	}
	var chats []ChatEntry
	decodeResp(t, resp, &chats)
	if len(chats) != 3 {
		t.Fatalf("expected join + 2 chats, got %d", len(chats))
	}
	if chats[0].Content != "Alice joined the game" || !chats[0].IsSystem {
		t.Errorf("unexpected first chat %+v", chats[0])
	}

	resp = postJSON(t, srv.URL+"/pew/rooms/"+jr.RoomID+"/chats",
		PostChatRequest{PlayerID: jr.PlayerID, Content: "   "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank chat: expected 400, got %d", resp.StatusCode)
	}
}

func TestWSLeaveRoomExcludesPlayer(t *testing.T) {
	srv, _ := startTestServer(t)
	alice := joinRoom(t, srv, joinReq("arena", "abcd", "Alice", "dev-1"))
	bob := joinRoom(t, srv, joinReq("arena", "abcd", "Bobby", "dev-2"))
	ca := dialTicket(t, srv, alice, "")
	cb := dialTicket(t, srv, bob, "")
	readState(t, ca)
	readState(t, cb)

	sendMsg(t, ca, MsgLeaveRoom, nil)

	for i := 0; i < 20; i++ {
		snap := readState(t, cb)
		if _, ok := findPlayerState(snap, alice.PlayerID); !ok {
			if _, ok := findPlayerState(snap, bob.PlayerID); !ok {
				t.Error("remaining player missing from state")
			}
			return
		}
	}
	t.Error("player who left still in state")
}

func TestWSDisconnectSoftDeletes(t *testing.T) {
	srv, hub := startTestServer(t)
	jr := joinRoom(t, srv, joinReq("arena", "abcd", "Alice", "dev-1"))
	conn := dialTicket(t, srv, jr, "")
	readState(t, conn)
	conn.Close()

	room, err := hub.rooms.Get(jr.RoomID)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if room.Game.PlayerCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("disconnected player should be soft-deleted")
}

func TestRoomEventsJournal(t *testing.T) {
	db := openTestDB(t)
	srv, _ := startTestServerWithDB(t, db)

	alice := EntityRef{ID: "p1", DeviceID: "dev-a", Name: "Alice"}
	now := time.Now()
	err := db.RecordEvents([]SystemEvent{
		{Kind: EventPlayerJoin, RoomID: "room-1", Player: alice, At: now},
		{Kind: EventPlayerLeave, RoomID: "room-1", Player: alice, At: now},
		{Kind: EventPlayerJoin, RoomID: "room-2", Player: alice, At: now},
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/pew/rooms/room-1/events?limit=10")
	if err != nil {
		t.Fatal(err)
	}
	var rows []EventRow
	decodeResp(t, resp, &rows)
	if len(rows) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rows))
	}
	if rows[0].Kind != string(EventPlayerLeave) || rows[0].Content != "Alice left the game" {
		t.Errorf("newest event first, got %+v", rows[0])
	}

	resp, err = http.Get(srv.URL + "/pew/rooms/empty/events")
	if err != nil {
		t.Fatal(err)
	}
	decodeResp(t, resp, &rows)
	if rows == nil || len(rows) != 0 {
		t.Errorf("expected empty list, got %v", rows)
	}
}
