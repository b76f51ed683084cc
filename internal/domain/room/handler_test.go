package room

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func newTestServer(t *testing.T, rateLimit int, rateWindow time.Duration) (*httptest.Server, *Service) {
	t.Helper()

	registry := NewRegistry(DefaultMaxVariables, CloudValidator{}, time.Hour)
	svc := NewService(registry)
	h := NewHandler(svc, nil, rateLimit, rateWindow)

	r := chi.NewRouter()
	r.Get("/ws", h.WSRoute())
	r.Mount("/api", h.Routes(nil))

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, svc
}

func dialAndJoin(t *testing.T, ts *httptest.Server, roomID, username string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL)+"/ws", nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("dial status = %d, want 101", resp.StatusCode)
	}

	join := map[string]string{"method": "handshake", "room_id": roomID, "username": username}
	if err := conn.WriteJSON(join); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	return conn
}

func readVarEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var event wsEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		t.Fatalf("unmarshal ws event: %v (%s)", err, string(msg))
	}
	return event
}

func waitForClients(t *testing.T, svc *Service, roomID string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r, err := svc.Registry().Get(roomID); err == nil && r.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room %s never reached %d clients", roomID, want)
}

func TestWebSocketRelayE2E(t *testing.T) {
	ts, svc := newTestServer(t, 100, time.Second)

	alice := dialAndJoin(t, ts, "project-1", "alice")
	bob := dialAndJoin(t, ts, "project-1", "bob")
	waitForClients(t, svc, "project-1", 2)

	create := map[string]string{"method": "create", "name": "☁ score", "value": "0"}
	if err := alice.WriteJSON(create); err != nil {
		t.Fatalf("write create: %v", err)
	}

	event := readVarEvent(t, bob)
	if event.Method != "create" || event.Name != "☁ score" || event.Value != "0" {
		t.Errorf("bob got %+v, want create ☁ score=0", event)
	}

	// Numeric values may arrive unquoted from clients.
	if err := alice.WriteMessage(websocket.TextMessage,
		[]byte(`{"method":"set","name":"☁ score","value":42}`)); err != nil {
		t.Fatalf("write set: %v", err)
	}

	event = readVarEvent(t, bob)
	if event.Method != "set" || event.Value != "42" {
		t.Errorf("bob got %+v, want set ☁ score=42", event)
	}

	// A late joiner is synced with the current state as set events.
	carol := dialAndJoin(t, ts, "project-1", "carol")
	event = readVarEvent(t, carol)
	if event.Method != "set" || event.Name != "☁ score" || event.Value != "42" {
		t.Errorf("carol sync got %+v, want set ☁ score=42", event)
	}
}

func TestWebSocketRejectsTakenUsername(t *testing.T) {
	ts, svc := newTestServer(t, 100, time.Second)

	dialAndJoin(t, ts, "project-1", "alice")
	waitForClients(t, svc, "project-1", 1)

	dup := dialAndJoin(t, ts, "project-1", "ALICE")
	dup.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := dup.ReadMessage()
	if !websocket.IsCloseError(err, closeUsernameError) {
		t.Errorf("duplicate username read err = %v, want close %d", err, closeUsernameError)
	}
}

func TestWebSocketRejectsInvalidUsername(t *testing.T) {
	ts, _ := newTestServer(t, 100, time.Second)

	conn := dialAndJoin(t, ts, "project-1", "not a valid name!")
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, closeUsernameError) {
		t.Errorf("invalid username read err = %v, want close %d", err, closeUsernameError)
	}
}

func TestWebSocketDisconnectsFlooders(t *testing.T) {
	// 2 ops allowed, then every further op in the window is a violation.
	ts, svc := newTestServer(t, 2, time.Minute)

	conn := dialAndJoin(t, ts, "project-1", "flooder")
	waitForClients(t, svc, "project-1", 1)

	set := map[string]string{"method": "create", "name": "☁ x", "value": "1"}
	if err := conn.WriteJSON(set); err != nil {
		t.Fatalf("write create: %v", err)
	}
	for i := 0; i < maxRateViolations+5; i++ {
		msg := map[string]string{"method": "set", "name": "☁ x", "value": "2"}
		if err := conn.WriteJSON(msg); err != nil {
			break // server already hung up
		}
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("flooding read err = %v, want close %d", err, websocket.ClosePolicyViolation)
	}
}

func TestRoomAPI(t *testing.T) {
	ts, svc := newTestServer(t, 100, time.Second)

	alice := dialAndJoin(t, ts, "project-1", "alice")
	waitForClients(t, svc, "project-1", 1)

	if err := alice.WriteJSON(map[string]string{"method": "create", "name": "☁ score", "value": "7"}); err != nil {
		t.Fatalf("write create: %v", err)
	}

	// Wait for the op to land before inspecting over HTTP.
	deadline := time.Now().Add(3 * time.Second)
	for {
		if r, err := svc.Registry().Get("project-1"); err == nil && r.Has("☁ score") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("create never landed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(ts.URL + "/api/rooms/project-1")
	if err != nil {
		t.Fatalf("GET room: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET room status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Success bool         `json:"success"`
		Data    RoomResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode room response: %v", err)
	}
	if !body.Success {
		t.Error("success = false, want true")
	}
	if body.Data.ID != "project-1" {
		t.Errorf("room id = %q, want project-1", body.Data.ID)
	}
	if got := body.Data.Variables["☁ score"]; got != "7" {
		t.Errorf(`variables["☁ score"] = %q, want "7"`, got)
	}
	if len(body.Data.Clients) != 1 || body.Data.Clients[0] != "alice" {
		t.Errorf("clients = %v, want [alice]", body.Data.Clients)
	}

	missing, err := http.Get(ts.URL + "/api/rooms/nope")
	if err != nil {
		t.Fatalf("GET missing room: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("GET missing room status = %d, want 404", missing.StatusCode)
	}

	longID := strings.Repeat("x", maxRoomIDLength+1)
	bad, err := http.Get(ts.URL + "/api/rooms/" + longID)
	if err != nil {
		t.Fatalf("GET oversized room id: %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("GET oversized room id status = %d, want 400", bad.StatusCode)
	}
}
