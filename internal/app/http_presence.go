package app

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"masthead/api/internal/presence"
	"masthead/api/internal/util"
)

const presenceWriteTimeout = 10 * time.Second

type presenceIdentity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	AvatarURL string `json:"avatarUrl"`
}

// presenceClientFrame is every frame a client may send. FocusedField is a
// pointer so an explicit null clears the focus hint.
type presenceClientFrame struct {
	Type         string            `json:"type"`
	User         *presenceIdentity `json:"user"`
	FocusedField *string           `json:"focusedField"`
}

type presenceServerFrame struct {
	Type  string            `json:"type"`
	Peers []presence.Record `json:"peers"`
}

// handlePresenceWS owns one websocket connection for its whole lifetime.
// The session token may arrive as a Bearer header or, for browser clients
// that cannot set headers on websockets, an access_token query param.
func (s *HTTPServer) handlePresenceWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	if _, err := s.service.SessionFromToken(r.Context(), token); err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	contentType := strings.TrimSpace(r.URL.Query().Get("contentType"))
	contentID := strings.TrimSpace(r.URL.Query().Get("contentId"))
	if contentType == "" || contentID == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "contentType and contentId are required", nil)
		return
	}

	reg := s.service.Presence()
	if reg == nil {
		writeError(w, http.StatusServiceUnavailable, "PRESENCE_UNAVAILABLE", "Presence not configured", nil)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if s.corsOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == s.corsOrigin
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		return
	}

	room := presence.Room{ContentType: contentType, ContentID: contentID}
	connID := util.NewID("con")
	window := reg.Window()

	updates := reg.Subscribe(connID, room)
	done := make(chan struct{})

	// Single writer goroutine: peer snapshots and pings never interleave.
	go func() {
		ping := time.NewTicker(window / 2)
		defer ping.Stop()
		for {
			select {
			case peers := <-updates:
				_ = conn.SetWriteDeadline(time.Now().Add(presenceWriteTimeout))
				if err := conn.WriteJSON(presenceServerFrame{Type: "peers", Peers: peers}); err != nil {
					conn.Close()
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(presenceWriteTimeout)); err != nil {
					conn.Close()
					return
				}
			case <-done:
				return
			}
		}
	}()

	conn.SetReadLimit(4096)
	resetDeadline := func() {
		_ = conn.SetReadDeadline(time.Now().Add(window))
	}
	resetDeadline()
	conn.SetPongHandler(func(string) error {
		resetDeadline()
		return nil
	})

readLoop:
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		resetDeadline()

		var frame presenceClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("presence: %s dropped malformed frame in %s: %v", connID, room, err)
			continue
		}

		switch frame.Type {
		case "join":
			if frame.User == nil {
				log.Printf("presence: %s join without identity in %s", connID, room)
				continue
			}
			fields := presence.Fields{
				Identity: &presence.Identity{
					UserID:    frame.User.ID,
					UserName:  frame.User.Name,
					UserColor: frame.User.Color,
					AvatarURL: frame.User.AvatarURL,
				},
			}
			if frame.FocusedField != nil {
				fields.Focus = &presence.Focus{Field: frame.FocusedField}
			}
			if _, err := reg.Upsert(connID, room, fields, time.Now()); err != nil {
				log.Printf("presence: %s join rejected in %s: %v", connID, room, err)
			}
		case "update":
			if _, err := reg.Upsert(connID, room, presence.Fields{Focus: &presence.Focus{Field: frame.FocusedField}}, time.Now()); err != nil {
				if errors.Is(err, presence.ErrUnknownConnection) {
					// Swept while the socket stayed healthy (pongs kept the
					// read deadline fresh with no heartbeats). Close so the
					// client reconnects and re-announces its identity.
					log.Printf("presence: %s evicted mid-session in %s, closing", connID, room)
					break readLoop
				}
				log.Printf("presence: %s update rejected in %s: %v", connID, room, err)
			}
		case "heartbeat":
			if _, err := reg.Upsert(connID, room, presence.Fields{}, time.Now()); err != nil {
				if errors.Is(err, presence.ErrUnknownConnection) {
					log.Printf("presence: %s evicted mid-session in %s, closing", connID, room)
					break readLoop
				}
				log.Printf("presence: %s heartbeat rejected in %s: %v", connID, room, err)
			}
		default:
			log.Printf("presence: %s dropped frame type %q in %s", connID, room, frame.Type)
		}
	}

	// Remove and fan out before the handler returns so a reconnecting tab
	// can never observe its own ghost.
	reg.Remove(connID, room, time.Now())
	reg.Unsubscribe(connID, room)
	close(done)
	conn.Close()
}
