package presence

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrRoomMismatch is returned when a connection tries to act on a room
	// other than the one it first joined.
	ErrRoomMismatch = errors.New("connection bound to a different room")
	// ErrUnknownConnection is returned for an update or heartbeat that
	// arrives before the connection has joined.
	ErrUnknownConnection = errors.New("unknown connection")
)

// subscriberBuffer bounds each subscriber channel. When a slow consumer
// fills it, the oldest snapshot is dropped in favor of the newest; frames
// are full peer lists so skipping intermediates loses nothing.
const subscriberBuffer = 16

type roomState struct {
	mu      sync.Mutex
	records map[string]*Record
	subs    map[string]chan []Record
}

func newRoomState() *roomState {
	return &roomState{
		records: make(map[string]*Record),
		subs:    make(map[string]chan []Record),
	}
}

// Registry is the authoritative in-memory map of rooms to presence records.
// Visible state is records seen within the liveness window; anything older is
// logically absent even before the sweeper gets to it.
type Registry struct {
	window time.Duration

	mu    sync.RWMutex
	rooms map[Room]*roomState
	conns map[string]Room
}

// NewRegistry creates a registry with the given liveness window.
func NewRegistry(window time.Duration) *Registry {
	return &Registry{
		window: window,
		rooms:  make(map[Room]*roomState),
		conns:  make(map[string]Room),
	}
}

// Window returns the liveness window.
func (r *Registry) Window() time.Duration {
	return r.window
}

// Upsert inserts or merges the record for connID in room and fans the room
// out. Identity is set only on the first upsert for a connection; later
// upserts merge Focus and refresh LastSeenAt. Returns the caller's peer list
// (everyone else in the room, liveness-filtered).
func (r *Registry) Upsert(connID string, room Room, f Fields, now time.Time) ([]Record, error) {
	r.mu.Lock()
	if bound, ok := r.conns[connID]; ok && bound != room {
		r.mu.Unlock()
		return nil, ErrRoomMismatch
	}
	st := r.rooms[room]
	if st == nil {
		st = newRoomState()
		r.rooms[room] = st
	}

	st.mu.Lock()
	rec, ok := st.records[connID]
	if !ok {
		if f.Identity == nil {
			st.mu.Unlock()
			r.mu.Unlock()
			return nil, ErrUnknownConnection
		}
		rec = &Record{
			ConnectionID: connID,
			UserID:       f.Identity.UserID,
			UserName:     f.Identity.UserName,
			UserColor:    f.Identity.UserColor,
			AvatarURL:    f.Identity.AvatarURL,
		}
		st.records[connID] = rec
		r.conns[connID] = room
	}
	r.mu.Unlock()

	if f.Focus != nil {
		rec.FocusedField = f.Focus.Field
	}
	rec.LastSeenAt = now

	st.broadcastLocked(now, r.window)
	peers := st.peersLocked(connID, now, r.window)
	st.mu.Unlock()
	return peers, nil
}

// Remove deletes connID's record from room and fans the room out. Removing a
// connection that never joined is a no-op. The registry lock is released
// before the room critical section so rooms do not contend with each other.
func (r *Registry) Remove(connID string, room Room, now time.Time) {
	r.mu.Lock()
	delete(r.conns, connID)
	st := r.rooms[room]
	r.mu.Unlock()
	if st == nil {
		return
	}

	st.mu.Lock()
	if _, ok := st.records[connID]; ok {
		delete(st.records, connID)
		st.broadcastLocked(now, r.window)
	}
	empty := len(st.records) == 0 && len(st.subs) == 0
	st.mu.Unlock()

	if empty {
		r.releaseRoom(room, st)
	}
}

// releaseRoom drops room from the map if st is still its current state and
// still empty. A Subscribe or Upsert that raced the emptiness check keeps
// the room alive.
func (r *Registry) releaseRoom(room Room, st *roomState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] != st {
		return
	}
	st.mu.Lock()
	if len(st.records) == 0 && len(st.subs) == 0 {
		delete(r.rooms, room)
	}
	st.mu.Unlock()
}

// ListPeers returns everyone in room except excludingConnID, filtered to
// records seen within the liveness window, ordered by connection ID.
func (r *Registry) ListPeers(room Room, excludingConnID string, now time.Time) []Record {
	r.mu.RLock()
	st := r.rooms[room]
	r.mu.RUnlock()
	if st == nil {
		return []Record{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.peersLocked(excludingConnID, now, r.window)
}

// Subscribe registers a snapshot channel for connID in room. Every room
// mutation delivers the subscriber's personalized peer list. Pair with
// Unsubscribe.
func (r *Registry) Subscribe(connID string, room Room) <-chan []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.rooms[room]
	if st == nil {
		st = newRoomState()
		r.rooms[room] = st
	}
	ch := make(chan []Record, subscriberBuffer)
	st.mu.Lock()
	st.subs[connID] = ch
	st.mu.Unlock()
	return ch
}

// Unsubscribe removes connID's snapshot channel from room.
func (r *Registry) Unsubscribe(connID string, room Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.rooms[room]
	if st == nil {
		return
	}
	st.mu.Lock()
	delete(st.subs, connID)
	if len(st.records) == 0 && len(st.subs) == 0 {
		delete(r.rooms, room)
	}
	st.mu.Unlock()
}

// SweepExpired evicts records not seen within the liveness window, fans out
// each changed room exactly once, and returns the changed rooms. Rooms are
// swept one at a time without the registry lock held, so a sweep never
// stalls mutations in unrelated rooms.
func (r *Registry) SweepExpired(now time.Time) []Room {
	r.mu.RLock()
	snapshot := make(map[Room]*roomState, len(r.rooms))
	for room, st := range r.rooms {
		snapshot[room] = st
	}
	r.mu.RUnlock()

	var changed []Room
	for room, st := range snapshot {
		var expired []string
		st.mu.Lock()
		for id, rec := range st.records {
			if now.Sub(rec.LastSeenAt) > r.window {
				delete(st.records, id)
				expired = append(expired, id)
			}
		}
		if len(expired) > 0 {
			changed = append(changed, room)
			st.broadcastLocked(now, r.window)
		}
		empty := len(st.records) == 0 && len(st.subs) == 0
		st.mu.Unlock()

		if len(expired) > 0 {
			// Drop the connection bindings, unless a join re-created the
			// record in the meantime.
			r.mu.Lock()
			st.mu.Lock()
			for _, id := range expired {
				if _, ok := st.records[id]; !ok {
					delete(r.conns, id)
				}
			}
			st.mu.Unlock()
			r.mu.Unlock()
		}
		if empty {
			r.releaseRoom(room, st)
		}
	}
	return changed
}

// Stats returns the current room and connection counts.
func (r *Registry) Stats() (rooms, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.conns)
}

func (st *roomState) peersLocked(excluding string, now time.Time, window time.Duration) []Record {
	peers := make([]Record, 0, len(st.records))
	for id, rec := range st.records {
		if id == excluding {
			continue
		}
		if now.Sub(rec.LastSeenAt) > window {
			continue
		}
		peers = append(peers, *rec)
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ConnectionID < peers[j].ConnectionID
	})
	return peers
}

func (st *roomState) broadcastLocked(now time.Time, window time.Duration) {
	for connID, ch := range st.subs {
		deliver(ch, st.peersLocked(connID, now, window))
	}
}

// deliver sends without blocking the room's critical section. If the channel
// is full, the oldest snapshot is dropped to make space for the newest.
func deliver(ch chan []Record, peers []Record) {
	for {
		select {
		case ch <- peers:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
