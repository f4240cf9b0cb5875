package app

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"masthead/api/internal/presence"
)

type peersFrame struct {
	Type  string            `json:"type"`
	Peers []presence.Record `json:"peers"`
}

func wsURL(env *testEnv, token, contentType, contentID string) string {
	base := "ws" + strings.TrimPrefix(env.server.URL, "http")
	url := base + "/api/presence/ws?contentType=" + contentType + "&contentId=" + contentID
	if token != "" {
		url += "&access_token=" + token
	}
	return url
}

func dialPresence(t *testing.T, env *testEnv, token, contentType, contentID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env, token, contentType, contentID), nil)
	if err != nil {
		t.Fatalf("dial presence ws: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJoin(t *testing.T, conn *websocket.Conn, userID, name string) {
	t.Helper()
	err := conn.WriteJSON(map[string]any{
		"type": "join",
		"user": map[string]any{"id": userID, "name": name, "color": "#ef4444"},
	})
	if err != nil {
		t.Fatalf("send join: %v", err)
	}
}

// waitForPeers reads frames until the predicate matches or the deadline
// passes. Full-snapshot frames make skipping intermediate states safe.
func waitForPeers(t *testing.T, conn *websocket.Conn, match func([]presence.Record) bool) []presence.Record {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(time.Until(deadline)))
		var frame peersFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read peers frame: %v", err)
		}
		if frame.Type != "peers" {
			t.Fatalf("unexpected frame type %q", frame.Type)
		}
		if match(frame.Peers) {
			return frame.Peers
		}
	}
	t.Fatalf("no matching peers frame before deadline")
	return nil
}

func TestPresenceWSRejectsMissingOrBadToken(t *testing.T) {
	env := newTestEnv(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(env, "", "stock", "aapl"), nil)
	if err == nil {
		t.Fatal("expected handshake failure without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(env, "not-a-token", "stock", "aapl"), nil)
	if err == nil {
		t.Fatal("expected handshake failure with bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestPresenceWSRequiresRoomCoordinates(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "editor@masthead.dev", "editor-password", "editor")
	token, _ := env.signIn(t, "editor@masthead.dev", "editor-password")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(env, token, "stock", ""), nil)
	if err == nil {
		t.Fatal("expected handshake failure without contentId")
	}
	if resp == nil || resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", resp)
	}
}

func TestPresenceWSJoinFocusAndLeave(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ana@masthead.dev", "ana-password", "editor")
	env.seedUser(t, "ben@masthead.dev", "ben-password", "editor")
	anaToken, _ := env.signIn(t, "ana@masthead.dev", "ana-password")
	benToken, _ := env.signIn(t, "ben@masthead.dev", "ben-password")

	ana := dialPresence(t, env, anaToken, "stock", "aapl")
	sendJoin(t, ana, "u-ana", "Ana")
	waitForPeers(t, ana, func(peers []presence.Record) bool { return len(peers) == 0 })

	ben := dialPresence(t, env, benToken, "stock", "aapl")
	sendJoin(t, ben, "u-ben", "Ben")

	// Ana sees Ben arrive; the list excludes Ana herself.
	peers := waitForPeers(t, ana, func(peers []presence.Record) bool { return len(peers) == 1 })
	if peers[0].UserID != "u-ben" {
		t.Fatalf("expected u-ben, got %+v", peers[0])
	}
	if peers[0].FocusedField != nil {
		t.Fatalf("unexpected focus on join: %+v", peers[0])
	}

	// Ben focuses a field; Ana sees the hint.
	if err := ben.WriteJSON(map[string]any{"type": "update", "focusedField": "summary"}); err != nil {
		t.Fatalf("send update: %v", err)
	}
	waitForPeers(t, ana, func(peers []presence.Record) bool {
		return len(peers) == 1 && peers[0].FocusedField != nil && *peers[0].FocusedField == "summary"
	})

	// Ben blurs.
	if err := ben.WriteJSON(map[string]any{"type": "update", "focusedField": nil}); err != nil {
		t.Fatalf("send blur: %v", err)
	}
	waitForPeers(t, ana, func(peers []presence.Record) bool {
		return len(peers) == 1 && peers[0].FocusedField == nil
	})

	// Ben leaves; Ana's list empties before the server forgets the socket.
	ben.Close()
	waitForPeers(t, ana, func(peers []presence.Record) bool { return len(peers) == 0 })
}

func TestPresenceWSMalformedFrameIsDropped(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ana@masthead.dev", "ana-password", "editor")
	env.seedUser(t, "ben@masthead.dev", "ben-password", "editor")
	anaToken, _ := env.signIn(t, "ana@masthead.dev", "ana-password")
	benToken, _ := env.signIn(t, "ben@masthead.dev", "ben-password")

	ana := dialPresence(t, env, anaToken, "newsletter", "weekly-42")
	sendJoin(t, ana, "u-ana", "Ana")
	waitForPeers(t, ana, func(peers []presence.Record) bool { return len(peers) == 0 })

	ben := dialPresence(t, env, benToken, "newsletter", "weekly-42")
	sendJoin(t, ben, "u-ben", "Ben")
	waitForPeers(t, ana, func(peers []presence.Record) bool { return len(peers) == 1 })

	// Garbage does not tear down Ben's connection.
	if err := ben.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("send garbage: %v", err)
	}
	if err := ben.WriteJSON(map[string]any{"type": "update", "focusedField": "subject"}); err != nil {
		t.Fatalf("send update after garbage: %v", err)
	}
	waitForPeers(t, ana, func(peers []presence.Record) bool {
		return len(peers) == 1 && peers[0].FocusedField != nil && *peers[0].FocusedField == "subject"
	})
}

func TestPresenceWSMultiTabIndependentRecords(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ana@masthead.dev", "ana-password", "editor")
	anaToken, _ := env.signIn(t, "ana@masthead.dev", "ana-password")
	env.seedUser(t, "watch@masthead.dev", "watch-password", "viewer")
	watchToken, _ := env.signIn(t, "watch@masthead.dev", "watch-password")

	watcher := dialPresence(t, env, watchToken, "landingPage", "lp-1")
	sendJoin(t, watcher, "u-watch", "Watcher")
	waitForPeers(t, watcher, func(peers []presence.Record) bool { return len(peers) == 0 })

	tab1 := dialPresence(t, env, anaToken, "landingPage", "lp-1")
	sendJoin(t, tab1, "u-ana", "Ana")
	tab2 := dialPresence(t, env, anaToken, "landingPage", "lp-1")
	sendJoin(t, tab2, "u-ana", "Ana")

	// Two tabs for one user are two presence records.
	waitForPeers(t, watcher, func(peers []presence.Record) bool { return len(peers) == 2 })

	tab1.Close()
	peers := waitForPeers(t, watcher, func(peers []presence.Record) bool { return len(peers) == 1 })
	if peers[0].UserID != "u-ana" {
		t.Fatalf("surviving tab should still be Ana, got %+v", peers[0])
	}
}

// A client whose record is swept while its socket stays healthy (stalled
// heartbeats, live pongs) must be disconnected, not left as a connected
// ghost that no peer list will ever include again.
func TestPresenceWSSweptConnectionIsClosed(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ana@masthead.dev", "ana-password", "editor")
	anaToken, _ := env.signIn(t, "ana@masthead.dev", "ana-password")

	ana := dialPresence(t, env, anaToken, "stock", "aapl")
	sendJoin(t, ana, "u-ana", "Ana")
	waitForPeers(t, ana, func(peers []presence.Record) bool { return len(peers) == 0 })

	// Evict Ana's record as if her heartbeats stalled past the liveness
	// window while the transport stayed up.
	env.registry.SweepExpired(time.Now().Add(26 * time.Second))

	if err := ana.WriteJSON(map[string]any{"type": "heartbeat"}); err != nil {
		t.Fatalf("send heartbeat: %v", err)
	}

	// The rejected heartbeat must close the connection so the client side
	// can reconnect and re-announce.
	_ = ana.SetReadDeadline(time.Now().Add(3 * time.Second))
	var readErr error
	for readErr == nil {
		_, _, readErr = ana.ReadMessage()
	}
	var netErr net.Error
	if errors.As(readErr, &netErr) && netErr.Timeout() {
		t.Fatalf("connection still alive after eviction: %v", readErr)
	}

	// A fresh join lands in a clean room.
	again := dialPresence(t, env, anaToken, "stock", "aapl")
	sendJoin(t, again, "u-ana", "Ana")
	waitForPeers(t, again, func(peers []presence.Record) bool { return len(peers) == 0 })
}
