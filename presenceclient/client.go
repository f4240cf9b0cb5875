// Package presenceclient is the Go agent for the editorial presence
// endpoint. One Membership owns one room membership for one lifetime:
// it dials, announces, heartbeats, and reconnects on its own, and never
// surfaces transport failures as errors to the caller.
package presenceclient

import (
	"errors"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"masthead/api/internal/presence"
)

const (
	defaultHeartbeat = 10 * time.Second
	initialBackoff   = 500 * time.Millisecond
	maxBackoff       = 30 * time.Second
	changesBuffer    = 16
)

type Options struct {
	// ServerURL is the API base, e.g. "http://localhost:8790".
	ServerURL   string
	ContentType string
	ContentID   string
	Identity    presence.Identity
	Token       string
	// Heartbeat defaults to 10s. The server's liveness window must
	// exceed it with margin for one missed beat.
	Heartbeat time.Duration
}

// Snapshot is one observed presence state. Connected false means the
// peer list is the last known state from before the transport dropped.
type Snapshot struct {
	Peers     []presence.Record
	Connected bool
}

type Membership struct {
	opts Options

	mu        sync.Mutex
	peers     []presence.Record
	connected bool
	focus     *string

	writeMu sync.Mutex
	conn    *websocket.Conn

	changes   chan Snapshot
	closed    chan struct{}
	closeOnce sync.Once
}

// Open validates the options and starts the connection loop. It returns
// immediately; use Connected or Changes to observe the link coming up.
func Open(opts Options) (*Membership, error) {
	if strings.TrimSpace(opts.ServerURL) == "" {
		return nil, errors.New("presenceclient: server URL is required")
	}
	if opts.ContentType == "" || opts.ContentID == "" {
		return nil, errors.New("presenceclient: content type and id are required")
	}
	if opts.Token == "" {
		return nil, errors.New("presenceclient: token is required")
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	if _, err := url.Parse(opts.ServerURL); err != nil {
		return nil, errors.New("presenceclient: invalid server URL")
	}

	m := &Membership{
		opts:    opts,
		changes: make(chan Snapshot, changesBuffer),
		closed:  make(chan struct{}),
	}
	go m.run()
	return m, nil
}

// Peers returns the last known peer list. Stale while disconnected.
func (m *Membership) Peers() []presence.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]presence.Record, len(m.peers))
	copy(out, m.peers)
	return out
}

func (m *Membership) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Changes delivers presence snapshots. When the consumer lags, older
// snapshots are dropped in favor of the newest.
func (m *Membership) Changes() <-chan Snapshot {
	return m.changes
}

// SetFocus announces the field this client is editing. Remembered across
// reconnects and re-announced with the join frame.
func (m *Membership) SetFocus(field string) {
	m.mu.Lock()
	m.focus = &field
	m.mu.Unlock()
	m.sendUpdate(&field)
}

func (m *Membership) ClearFocus() {
	m.mu.Lock()
	m.focus = nil
	m.mu.Unlock()
	m.sendUpdate(nil)
}

// Close ends the membership. The server removes the record and fans out
// the departure; abrupt exits are covered by the server sweep.
func (m *Membership) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
		m.writeMu.Lock()
		if m.conn != nil {
			_ = m.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			m.conn.Close()
		}
		m.writeMu.Unlock()
	})
}

func (m *Membership) run() {
	defer close(m.changes)
	backoff := initialBackoff
	for {
		select {
		case <-m.closed:
			return
		default:
		}

		conn, err := m.dial()
		if err != nil {
			m.setConnected(false)
			if !m.sleep(withJitter(backoff)) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = initialBackoff

		m.serve(conn)
		m.setConnected(false)

		select {
		case <-m.closed:
			return
		default:
		}
		if !m.sleep(withJitter(initialBackoff)) {
			return
		}
	}
}

func (m *Membership) dial() (*websocket.Conn, error) {
	wsBase := m.opts.ServerURL
	if strings.HasPrefix(wsBase, "https") {
		wsBase = "wss" + strings.TrimPrefix(wsBase, "https")
	} else {
		wsBase = "ws" + strings.TrimPrefix(wsBase, "http")
	}
	endpoint := wsBase + "/api/presence/ws?contentType=" + url.QueryEscape(m.opts.ContentType) +
		"&contentId=" + url.QueryEscape(m.opts.ContentID) +
		"&access_token=" + url.QueryEscape(m.opts.Token)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(endpoint, nil)
	return conn, err
}

// serve owns one connection: full re-announce, heartbeats, read loop.
// Returns when the transport fails or the membership closes.
func (m *Membership) serve(conn *websocket.Conn) {
	m.writeMu.Lock()
	m.conn = conn
	m.writeMu.Unlock()

	m.mu.Lock()
	focus := m.focus
	m.mu.Unlock()

	join := map[string]any{
		"type": "join",
		"user": map[string]any{
			"id":        m.opts.Identity.UserID,
			"name":      m.opts.Identity.UserName,
			"color":     m.opts.Identity.UserColor,
			"avatarUrl": m.opts.Identity.AvatarURL,
		},
	}
	if focus != nil {
		join["focusedField"] = *focus
	}
	if err := m.write(join); err != nil {
		m.dropConn(conn)
		return
	}
	m.setConnected(true)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(m.opts.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.write(map[string]any{"type": "heartbeat"}); err != nil {
					conn.Close()
					return
				}
			case <-done:
				return
			case <-m.closed:
				return
			}
		}
	}()

	// Server pings keep the link alive between peer updates; receiving
	// one must extend the deadline or an idle room looks like a dead
	// transport.
	readTimeout := 3 * m.opts.Heartbeat
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		var frame struct {
			Type  string            `json:"type"`
			Peers []presence.Record `json:"peers"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			m.dropConn(conn)
			return
		}
		if frame.Type != "peers" {
			continue
		}
		m.mu.Lock()
		m.peers = frame.Peers
		m.mu.Unlock()
		m.emit(Snapshot{Peers: frame.Peers, Connected: true})
	}
}

func (m *Membership) write(frame any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if m.conn == nil {
		return errors.New("not connected")
	}
	_ = m.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return m.conn.WriteJSON(frame)
}

func (m *Membership) sendUpdate(field *string) {
	if !m.Connected() {
		return
	}
	_ = m.write(map[string]any{"type": "update", "focusedField": field})
}

func (m *Membership) dropConn(conn *websocket.Conn) {
	conn.Close()
	m.writeMu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.writeMu.Unlock()
}

func (m *Membership) setConnected(connected bool) {
	m.mu.Lock()
	changed := m.connected != connected
	m.connected = connected
	peers := make([]presence.Record, len(m.peers))
	copy(peers, m.peers)
	m.mu.Unlock()
	if changed {
		m.emit(Snapshot{Peers: peers, Connected: connected})
	}
}

// emit delivers a snapshot without blocking, dropping the oldest entry
// when the consumer lags.
func (m *Membership) emit(snap Snapshot) {
	for {
		select {
		case m.changes <- snap:
			return
		default:
		}
		select {
		case <-m.changes:
		default:
		}
	}
}

func (m *Membership) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-m.closed:
		return false
	}
}

func withJitter(d time.Duration) time.Duration {
	// 75%..125% of the base, so reconnecting tabs spread out.
	return time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
