package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/wayplan/collab-service/internal/registry"
	"github.com/wayplan/collab-service/internal/transport/ws"

	"github.com/gorilla/websocket"
)

type registrarCall struct {
	roomKey string
	authID  string
}

type fakeRegistrar struct {
	calls chan registrarCall
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{calls: make(chan registrarCall, 8)}
}

func (f *fakeRegistrar) RegisterCollaborator(_ context.Context, roomKey, authID string) error {
	f.calls <- registrarCall{roomKey: roomKey, authID: authID}
	return nil
}

type fixture struct {
	reg       *registry.Registry
	registrar *fakeRegistrar
	ts        *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New()
	registrar := newFakeRegistrar()
	srv := ws.NewServer(reg, registrar)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	t.Cleanup(ts.Close)

	return &fixture{reg: reg, registrar: registrar, ts: ts}
}

func (f *fixture) dial(t *testing.T, room, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/collab"
	q := url.Values{}
	if room != "" {
		q.Set("room", room)
	}
	if userID != "" {
		q.Set("userId", userID)
	}
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMsg(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := c.ReadJSON(&m); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return m
}

func sendMsg(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := c.WriteJSON(v); err != nil {
		t.Fatalf("write message: %v", err)
	}
}

func waitRoomGone(t *testing.T, reg *registry.Registry, roomKey string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, exists := reg.RoomInfo(roomKey); !exists {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room %s still present after last disconnect", roomKey)
}

func TestMissingRoomClosesWithPolicyViolation(t *testing.T) {
	f := newFixture(t)

	conn := f.dial(t, "", "abc")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v, want close code %d", err, websocket.ClosePolicyViolation)
	}

	if _, exists := f.reg.RoomInfo(""); exists {
		t.Fatal("no registry mutation expected on protocol violation")
	}
}

// Сквозной сценарий: анонимный u1, профилированный вход в presence, выход u2,
// удаление опустевшей комнаты.
func TestJoinProfileLeaveScenario(t *testing.T) {
	f := newFixture(t)

	u1 := f.dial(t, "trip_42", "")
	state1 := readMsg(t, u1)
	if state1["type"] != "room_state" {
		t.Fatalf("first message to u1 = %v, want room_state", state1["type"])
	}
	if users := state1["users"].([]any); len(users) != 0 {
		t.Fatalf("u1 room_state users = %v, want empty", users)
	}
	if state1["roomSize"].(float64) != 1 {
		t.Fatalf("u1 roomSize = %v, want 1", state1["roomSize"])
	}

	u2 := f.dial(t, "trip_42", "abc")
	state2 := readMsg(t, u2)
	// u1 ещё без профиля — невидим
	if users := state2["users"].([]any); len(users) != 0 {
		t.Fatalf("u2 room_state users = %v, want empty (u1 unprofiled)", users)
	}
	if state2["roomSize"].(float64) != 2 {
		t.Fatalf("u2 roomSize = %v, want 2", state2["roomSize"])
	}

	sendMsg(t, u1, map[string]any{"type": "user_profile", "displayName": "Nguyen"})

	for _, conn := range []*websocket.Conn{u1, u2} {
		joined := readMsg(t, conn)
		if joined["type"] != "user_joined" {
			t.Fatalf("got %v, want user_joined", joined["type"])
		}
		if joined["displayName"] != "Nguyen" {
			t.Fatalf("user_joined displayName = %v", joined["displayName"])
		}
		if joined["roomSize"].(float64) != 2 {
			t.Fatalf("user_joined roomSize = %v, want 2", joined["roomSize"])
		}
	}

	_ = u2.Close()
	left := readMsg(t, u1)
	if left["type"] != "user_left" || left["userId"] != "abc" {
		t.Fatalf("user_left = %v", left)
	}
	if left["roomSize"].(float64) != 1 {
		t.Fatalf("user_left roomSize = %v, want 1", left["roomSize"])
	}
	if size, exists := f.reg.RoomInfo("trip_42"); !exists || size != 1 {
		t.Fatalf("room after one leave: size=%d exists=%v", size, exists)
	}

	_ = u1.Close()
	waitRoomGone(t, f.reg, "trip_42")
}

func TestLateJoinerSeesProfiledPeers(t *testing.T) {
	f := newFixture(t)

	u1 := f.dial(t, "trip_42", "u1")
	readMsg(t, u1) // room_state
	sendMsg(t, u1, map[string]any{"type": "user_profile", "displayName": "Ada", "avatar": "https://cdn/a.png"})
	readMsg(t, u1) // собственный user_joined

	u2 := f.dial(t, "trip_42", "u2")
	state := readMsg(t, u2)
	users := state["users"].([]any)
	if len(users) != 1 {
		t.Fatalf("late joiner sees %d users, want 1", len(users))
	}
	entry := users[0].(map[string]any)
	if entry["userId"] != "u1" || entry["displayName"] != "Ada" || entry["avatar"] != "https://cdn/a.png" {
		t.Fatalf("snapshot entry = %v", entry)
	}
}

// Повторный user_profile перезаписывает presence: выигрывает последнее имя —
// и в рассылке, и в снапшоте для опоздавших.
func TestReprofileUpdatesDisplayName(t *testing.T) {
	f := newFixture(t)

	u1 := f.dial(t, "trip_42", "u1")
	readMsg(t, u1) // room_state
	u2 := f.dial(t, "trip_42", "u2")
	readMsg(t, u2) // room_state

	sendMsg(t, u1, map[string]any{"type": "user_profile", "displayName": "Ada"})
	for _, conn := range []*websocket.Conn{u1, u2} {
		joined := readMsg(t, conn)
		if joined["displayName"] != "Ada" {
			t.Fatalf("first user_joined displayName = %v, want Ada", joined["displayName"])
		}
	}

	sendMsg(t, u1, map[string]any{"type": "user_profile", "displayName": "Grace"})
	for _, conn := range []*websocket.Conn{u1, u2} {
		joined := readMsg(t, conn)
		if joined["type"] != "user_joined" {
			t.Fatalf("got %v, want user_joined", joined["type"])
		}
		if joined["displayName"] != "Grace" {
			t.Fatalf("re-profile displayName = %v, want Grace", joined["displayName"])
		}
	}

	u3 := f.dial(t, "trip_42", "u3")
	state := readMsg(t, u3)
	users := state["users"].([]any)
	if len(users) != 1 {
		t.Fatalf("late joiner sees %d users, want 1 (u2 unprofiled)", len(users))
	}
	entry := users[0].(map[string]any)
	if entry["userId"] != "u1" || entry["displayName"] != "Grace" {
		t.Fatalf("snapshot entry = %v, want u1/Grace", entry)
	}
}

func TestRelayStampsAndPreservesPayload(t *testing.T) {
	f := newFixture(t)

	u1 := f.dial(t, "trip_42", "alpha")
	readMsg(t, u1)
	u2 := f.dial(t, "trip_42", "beta")
	readMsg(t, u2)

	sendMsg(t, u1, map[string]any{
		"type":   "cursor_move",
		"cursor": map[string]any{"x": 10.5, "y": 20.0},
	})

	// ретранслируется всем, включая отправителя
	for _, conn := range []*websocket.Conn{u1, u2} {
		got := readMsg(t, conn)
		if got["type"] != "cursor_move" {
			t.Fatalf("relayed type = %v", got["type"])
		}
		if got["userId"] != "alpha" {
			t.Fatalf("relayed userId = %v, want alpha", got["userId"])
		}
		cursor := got["cursor"].(map[string]any)
		if cursor["x"].(float64) != 10.5 || cursor["y"].(float64) != 20.0 {
			t.Fatalf("cursor payload mutated: %v", cursor)
		}
		ts, ok := got["timestamp"].(string)
		if !ok {
			t.Fatalf("timestamp missing: %v", got)
		}
		if _, err := time.Parse(time.RFC3339, ts); err != nil {
			t.Fatalf("timestamp %q not ISO-8601: %v", ts, err)
		}
	}
}

func TestUnknownTypePassthrough(t *testing.T) {
	f := newFixture(t)

	u1 := f.dial(t, "trip_42", "alpha")
	readMsg(t, u1)
	u2 := f.dial(t, "trip_42", "beta")
	readMsg(t, u2)

	sendMsg(t, u1, map[string]any{
		"type":   "activity_added",
		"tripId": "42",
		"detail": map[string]any{"note": "coffee stop"},
	})

	got := readMsg(t, u2)
	if got["type"] != "activity_added" || got["tripId"] != "42" {
		t.Fatalf("passthrough payload = %v", got)
	}
	if got["detail"].(map[string]any)["note"] != "coffee stop" {
		t.Fatalf("nested payload mutated: %v", got["detail"])
	}
}

func TestMalformedMessageDoesNotCloseConnection(t *testing.T) {
	f := newFixture(t)

	u1 := f.dial(t, "trip_42", "alpha")
	readMsg(t, u1)
	u2 := f.dial(t, "trip_42", "beta")
	readMsg(t, u2)

	_ = u1.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := u1.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write malformed: %v", err)
	}

	// соединение живо: следующее сообщение доходит
	sendMsg(t, u1, map[string]any{"type": "event_deleted", "eventId": "e9", "tripId": "42"})
	got := readMsg(t, u2)
	if got["type"] != "event_deleted" || got["eventId"] != "e9" {
		t.Fatalf("message after malformed one = %v", got)
	}
}

func TestProfileFiresCollaboratorRegistration(t *testing.T) {
	f := newFixture(t)

	u1 := f.dial(t, "trip_42", "auth0|abc")
	readMsg(t, u1)
	sendMsg(t, u1, map[string]any{"type": "user_profile", "displayName": "Nguyen"})
	readMsg(t, u1) // user_joined

	select {
	case call := <-f.registrar.calls:
		if call.roomKey != "trip_42" || call.authID != "auth0|abc" {
			t.Fatalf("registrar call = %+v", call)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("collaborator registration was not triggered")
	}
}

func TestNoCrossRoomDelivery(t *testing.T) {
	f := newFixture(t)

	u1 := f.dial(t, "trip_1", "a")
	readMsg(t, u1)
	u2 := f.dial(t, "trip_2", "b")
	readMsg(t, u2)

	sendMsg(t, u1, map[string]any{"type": "cursor_move", "x": 1.0, "y": 2.0})
	readMsg(t, u1) // своё эхо

	_ = u2.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var m map[string]any
	if err := u2.ReadJSON(&m); err == nil {
		t.Fatalf("room trip_2 received foreign message: %v", m)
	}
}
