// Package presence tracks who is editing what, live. Rooms are keyed by the
// content item being edited; records are ephemeral and die with their
// connection or the liveness window, whichever comes first.
package presence

import "time"

// Room identifies one presence room, one per content item.
type Room struct {
	ContentType string `json:"contentType"`
	ContentID   string `json:"contentId"`
}

func (r Room) String() string {
	return r.ContentType + "/" + r.ContentID
}

// Record is one live editing session in a room. Identity fields are display
// data supplied by the client at join; they are never used for authorization.
type Record struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	UserColor    string    `json:"userColor"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	FocusedField *string   `json:"focusedField"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

// Identity is the display data a client announces when joining.
type Identity struct {
	UserID    string
	UserName  string
	UserColor string
	AvatarURL string
}

// Focus wraps a focused-field change. A nil Field clears focus.
type Focus struct {
	Field *string
}

// Fields carries the mutable parts of an Upsert. A join sets Identity and
// optionally Focus; an update sets Focus only; a heartbeat sets neither and
// just refreshes LastSeenAt.
type Fields struct {
	Identity *Identity
	Focus    *Focus
}
