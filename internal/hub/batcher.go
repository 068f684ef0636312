package hub

import (
	"strings"
	"sync"
	"time"
)

// OutputBatcher coalesces bursts of per-session output into one message per
// flush interval so that fast producers do not flood slow WebSocket clients.
type OutputBatcher struct {
	mu       sync.Mutex
	pending  map[string]*pendingOutput
	interval time.Duration
	onFlush  func(msg OutputMessage)
}

type pendingOutput struct {
	chunks []string
	ts     int64
	timer  *time.Timer
}

func NewOutputBatcher(interval time.Duration, onFlush func(OutputMessage)) *OutputBatcher {
	return &OutputBatcher{
		pending:  make(map[string]*pendingOutput),
		interval: interval,
		onFlush:  onFlush,
	}
}

// Add queues msg for its session. The first chunk after a flush arms a timer;
// everything arriving before it fires is concatenated in arrival order.
func (b *OutputBatcher) Add(msg OutputMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sessionID := msg.SessionID
	p, exists := b.pending[sessionID]
	if !exists {
		p = &pendingOutput{}
		b.pending[sessionID] = p
	}

	p.chunks = append(p.chunks, msg.Data)
	if msg.Ts > p.ts {
		p.ts = msg.Ts
	}

	if p.timer == nil {
		p.timer = time.AfterFunc(b.interval, func() {
			b.flushSession(sessionID)
		})
	}
}

func (b *OutputBatcher) flushSession(sessionID string) {
	b.mu.Lock()
	p, exists := b.pending[sessionID]
	if !exists {
		b.mu.Unlock()
		return
	}
	delete(b.pending, sessionID)
	b.mu.Unlock()

	if b.onFlush != nil && len(p.chunks) > 0 {
		b.onFlush(OutputMessage{
			Type:      "output",
			SessionID: sessionID,
			Data:      strings.Join(p.chunks, ""),
			Ts:        p.ts,
		})
	}
}

// FlushAll flushes every session's pending output immediately.
func (b *OutputBatcher) FlushAll() {
	b.mu.Lock()
	sessions := make([]string, 0, len(b.pending))
	for id := range b.pending {
		sessions = append(sessions, id)
	}
	b.mu.Unlock()

	for _, id := range sessions {
		b.flushSession(id)
	}
}
