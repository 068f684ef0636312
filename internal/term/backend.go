package term

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"

	"github.com/user/scrollterm/internal/scrollback"
)

// Backend binds a Manager to a scrollback.Registry. For every session it
// starts a fan-out goroutine that appends PTY output chunks to the session's
// scrollback buffer in arrival order (one writer per buffer) and re-broadcasts
// session events so that external consumers (e.g. the hub) can read them
// without competing with the capture loop.
type Backend struct {
	manager  *Manager
	registry *scrollback.Registry

	mu         sync.RWMutex
	eventChans map[string]chan Event
	onEvent    func(Event)
}

// SetEventSink registers a callback invoked for every session event after the
// scrollback buffer has been updated. Set it before creating sessions.
func (b *Backend) SetEventSink(fn func(Event)) {
	b.mu.Lock()
	b.onEvent = fn
	b.mu.Unlock()
}

// NewBackend creates a Backend with a fresh Manager feeding the given registry.
func NewBackend(registry *scrollback.Registry) *Backend {
	return &Backend{
		manager:    NewManager(),
		registry:   registry,
		eventChans: make(map[string]chan Event),
	}
}

// CreateSession spawns a new PTY session running command (split into argv
// shell-style) and wires its output into the session's scrollback buffer.
// Returns the new session's id.
func (b *Backend) CreateSession(_ context.Context, name, command, workDir string) (string, error) {
	argv, err := parseCommand(command)
	if err != nil {
		return "", fmt.Errorf("term backend: parse command: %w", err)
	}
	if len(argv) == 0 {
		return "", fmt.Errorf("term backend: empty command")
	}

	sess, err := b.manager.Create(name, argv, workDir, nil)
	if err != nil {
		return "", err
	}
	id := sess.ID()

	buf := b.registry.GetOrCreate(id)
	broadcast := make(chan Event, 1024)

	b.mu.Lock()
	b.eventChans[id] = broadcast
	b.mu.Unlock()

	b.notifySink(Event{Type: EventCreated, ID: id})

	// Fan-out: single writer per buffer, chunks applied in arrival order.
	go func() {
		for evt := range sess.Events() {
			if evt.Type == EventOutput {
				buf.AppendBytes(evt.Data)
			}
			b.notifySink(evt)
			// Non-blocking send to broadcast channel.
			select {
			case broadcast <- evt:
			default:
				// Drop if consumer is slow; scrollback still has the data.
			}
		}
		// Session events are drained; drop the broadcast entry so a
		// naturally exited session does not pin a closed channel.
		b.mu.Lock()
		if b.eventChans[id] == broadcast {
			delete(b.eventChans, id)
		}
		b.mu.Unlock()
		close(broadcast)
	}()

	return id, nil
}

func (b *Backend) notifySink(evt Event) {
	b.mu.RLock()
	sink := b.onEvent
	b.mu.RUnlock()
	if sink != nil {
		sink(evt)
	}
}

// Events returns the broadcast event channel for a session, or nil when the
// session is unknown.
func (b *Backend) Events(id string) <-chan Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.eventChans[id]
}

// DestroySession tears the session down: the PTY is closed, the broadcast
// channel is dropped, and the session's scrollback buffer is removed from the
// registry. The history is not recoverable afterwards.
func (b *Backend) DestroySession(_ context.Context, id string) error {
	b.mu.Lock()
	delete(b.eventChans, id)
	b.mu.Unlock()

	b.registry.Remove(id)
	return b.manager.Destroy(id)
}

// SendInput writes raw bytes (user keystrokes) to the terminal.
func (b *Backend) SendInput(_ context.Context, id, data string) error {
	sess, err := b.manager.Get(id)
	if err != nil {
		return err
	}
	_, err = sess.Write([]byte(data))
	return err
}

// SendKey translates a named key (e.g. "Enter", "C-c") to its escape
// sequence and writes it to the terminal.
func (b *Backend) SendKey(_ context.Context, id, key string) error {
	sess, err := b.manager.Get(id)
	if err != nil {
		return err
	}
	mapped := mapNamedKey(key)
	_, err = sess.Write([]byte(mapped))
	return err
}

// Resize changes the PTY dimensions.
func (b *Backend) Resize(_ context.Context, id string, cols, rows int) error {
	sess, err := b.manager.Get(id)
	if err != nil {
		return err
	}
	return sess.Resize(uint16(cols), uint16(rows))
}

// Scrollback returns the scrollback buffer for a session, or an error when no
// buffer exists. The buffer stays readable after the child process exits and
// disappears only on DestroySession.
func (b *Backend) Scrollback(id string) (*scrollback.Buffer, error) {
	buf := b.registry.Get(id)
	if buf == nil {
		return nil, fmt.Errorf("term backend: session %q not found", id)
	}
	return buf, nil
}

// SessionExists returns true if the session is still alive.
func (b *Backend) SessionExists(_ context.Context, id string) bool {
	sess, err := b.manager.Get(id)
	if err != nil {
		return false
	}
	return !sess.IsClosed()
}

// HasSession reports whether the session id is tracked by the manager,
// whether or not the child process is still running. Exited sessions stay
// tracked (and their scrollback stays readable) until DestroySession.
func (b *Backend) HasSession(id string) bool {
	_, err := b.manager.Get(id)
	return err == nil
}

// List returns metadata for every tracked session.
func (b *Backend) List() []SessionInfo {
	return b.manager.List()
}

// Manager returns the underlying PTY Manager for direct access if needed.
func (b *Backend) Manager() *Manager {
	return b.manager
}

// Close terminates all sessions managed by this backend.
func (b *Backend) Close() {
	b.manager.Close()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// mapNamedKey translates a human-readable key name to its terminal byte
// sequence. Unknown names are returned as-is.
func mapNamedKey(key string) string {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "enter":
		return "\r"
	case "c-c":
		return "\x03"
	case "c-d":
		return "\x04"
	case "c-z":
		return "\x1a"
	case "c-l":
		return "\x0c"
	case "escape", "esc":
		return "\x1b"
	case "tab":
		return "\t"
	case "backspace":
		return "\x7f"
	case "up":
		return "\x1b[A"
	case "down":
		return "\x1b[B"
	case "right":
		return "\x1b[C"
	case "left":
		return "\x1b[D"
	default:
		return key
	}
}

// parseCommand splits a shell command string into argv. Commands with shell
// metacharacters keep working because they are wrapped with "sh -c".
func parseCommand(command string) ([]string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, nil
	}
	if strings.ContainsAny(command, "\n|&;$`><") {
		return []string{"sh", "-c", command}, nil
	}
	return shellquote.Split(command)
}
