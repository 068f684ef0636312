package term

import "time"

// EventType distinguishes the kind of event produced by a Session.
type EventType int

const (
	// EventOutput indicates that new data was read from the PTY.
	EventOutput EventType = iota
	// EventClosed indicates that the child process has exited.
	EventClosed
	// EventCreated indicates that a new session was registered. It is
	// delivered to the backend's event sink only, not on session channels.
	EventCreated
)

// Event is a single notification emitted by a Session. Output data is the
// raw chunk read from the PTY, with no guarantee of alignment to line or
// character boundaries.
type Event struct {
	Type EventType
	ID   string
	Data []byte
}

// SessionInfo is a read-only snapshot of session metadata returned by Manager.List.
type SessionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
