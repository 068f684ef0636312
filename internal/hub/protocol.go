package hub

// OutputMessage carries a chunk of terminal output to subscribed clients.
// Data is verbatim session output; any escape-sequence interpretation is the
// client renderer's business.
type OutputMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Data      string `json:"data"`
	Ts        int64  `json:"ts"`
}

// SessionsMessage announces the current session list.
type SessionsMessage struct {
	Type string        `json:"type"`
	List []SessionInfo `json:"list"`
}

// SessionInfo is the hub's wire-level view of a session.
type SessionInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// StatusMessage announces a session status change (e.g. "running", "closed").
type StatusMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// ErrorMessage is sent to a single client on a malformed or rejected request.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is what clients send to the hub.
type ClientMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Data      string `json:"data,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`
}
