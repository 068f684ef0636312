// Package scrollback accumulates terminal output into bounded, line-addressed
// history. A Buffer turns arbitrarily chunked byte/text data into completed
// lines plus a trailing partial fragment, evicting the oldest lines once a
// fixed capacity is exceeded. A Registry owns one Buffer per session id.
//
// The package stores and returns text verbatim; escape sequences are opaque
// bytes as far as it is concerned.
package scrollback

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// DefaultCapacity is the default maximum number of completed lines a Buffer
// retains.
const DefaultCapacity = 300

// Buffer is a bounded scrollback store for exactly one terminal session.
//
// Completed lines are kept oldest first. The trailing fragment of output that
// has not yet been terminated by a newline is held separately as the partial
// line and is never counted against capacity. Indices into the line sequence
// are only stable between mutations: an append that triggers eviction shifts
// every surviving index down by the number of evicted lines.
type Buffer struct {
	mu       sync.Mutex
	lines    []string
	partial  string
	pending  []byte // carried tail of an incomplete UTF-8 sequence
	capacity int
}

// Stats is a diagnostic snapshot of a Buffer. EstimatedBytes approximates
// memory use at 2 bytes per UTF-16 code unit of stored content; it carries no
// exactness guarantee.
type Stats struct {
	LineCount      int `json:"line_count"`
	EstimatedBytes int `json:"estimated_bytes"`
}

// New creates a Buffer that retains at most capacity completed lines.
// A non-positive capacity is a configuration error.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("scrollback: capacity must be positive, got %d", capacity)
	}
	return &Buffer{capacity: capacity}, nil
}

// AppendBytes decodes chunk as UTF-8 and appends the result. Decoding is
// stateful: a multi-byte code point split at the chunk boundary is held back
// and completed by the next call. Malformed sequences decode to U+FFFD rather
// than failing; scrollback is best-effort diagnostic text.
func (b *Buffer) AppendBytes(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(chunk) == 0 {
		return
	}
	data := append(b.pending, chunk...)
	b.pending = nil

	if tail := incompleteTailLen(data); tail > 0 {
		b.pending = append([]byte(nil), data[len(data)-tail:]...)
		data = data[:len(data)-tail]
	}
	b.appendLocked(strings.ToValidUTF8(string(data), string(utf8.RuneError)))
}

// AppendText appends already-decoded text. The previous partial line is
// prefixed to chunk, every newline-terminated segment becomes a completed
// line, and the last segment becomes the new partial. Eviction to capacity
// happens here and nowhere else.
func (b *Buffer) AppendText(chunk string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(chunk)
}

func (b *Buffer) appendLocked(chunk string) {
	if chunk == "" {
		return
	}
	segs := strings.Split(b.partial+chunk, "\n")
	b.partial = segs[len(segs)-1]
	b.lines = append(b.lines, segs[:len(segs)-1]...)
	if len(b.lines) > b.capacity {
		b.lines = b.lines[len(b.lines)-b.capacity:]
	}
}

// LastLines returns the most recent min(n, LineCount) completed lines,
// oldest of the selected window first. The partial line is not included.
func (b *Buffer) LastLines(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > len(b.lines) {
		n = len(b.lines)
	}
	return b.window(len(b.lines)-n, n)
}

// Lines returns the completed lines in [start, start+count), with both ends
// clamped to the valid range. Out-of-range requests yield an empty slice,
// never an error.
func (b *Buffer) Lines(start, count int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if start < 0 {
		count += start
		start = 0
	}
	return b.window(start, count)
}

// LinesBefore returns up to count lines immediately preceding before, plus
// the absolute index of the first returned line. Callers page backward
// through history by passing the returned index as the next before value;
// the index is only valid until the next mutation of the buffer.
func (b *Buffer) LinesBefore(before, count int) ([]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if before < 0 {
		before = 0
	}
	if before > len(b.lines) {
		before = len(b.lines)
	}
	if count < 0 {
		count = 0
	}
	start := before - count
	if start < 0 {
		start = 0
	}
	return b.window(start, before-start), start
}

// window copies lines[start : start+count] with clamping. Lock must be held.
func (b *Buffer) window(start, count int) []string {
	n := len(b.lines)
	if start > n {
		start = n
	}
	if count < 0 {
		count = 0
	}
	if count > n-start {
		count = n - start
	}
	out := make([]string, count)
	copy(out, b.lines[start:start+count])
	return out
}

// LineCount returns the number of completed lines currently stored.
func (b *Buffer) LineCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Partial returns the trailing, not-yet-terminated line fragment.
func (b *Buffer) Partial() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.partial
}

// IsEmpty reports whether the buffer holds no completed lines and no partial
// content.
func (b *Buffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines) == 0 && b.partial == "" && len(b.pending) == 0
}

// Clear resets the buffer to its initial empty state. Capacity is unchanged.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
	b.partial = ""
	b.pending = nil
}

// Capacity returns the fixed maximum number of completed lines.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Stats returns a diagnostic snapshot of the buffer.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	units := 0
	for _, line := range b.lines {
		units += utf16Units(line) + 1 // terminating newline
	}
	units += utf16Units(b.partial)
	return Stats{
		LineCount:      len(b.lines),
		EstimatedBytes: 2 * units,
	}
}

func utf16Units(s string) int {
	n := 0
	for _, r := range s {
		n++
		if r > 0xFFFF {
			n++ // surrogate pair
		}
	}
	return n
}

// incompleteTailLen returns the number of trailing bytes in p that form the
// prefix of a UTF-8 sequence whose remaining bytes have not arrived yet.
// Returns 0 when the tail is complete or malformed beyond repair (malformed
// bytes are decoded to U+FFFD immediately rather than held back).
func incompleteTailLen(p []byte) int {
	n := len(p)
	for i := 1; i <= utf8.UTFMax && i <= n; i++ {
		c := p[n-i]
		if c < 0x80 {
			return 0 // ASCII, tail is complete
		}
		if c >= 0xC0 {
			// Leading byte: compare seen bytes against the declared length.
			var want int
			switch {
			case c < 0xC2:
				return 0 // overlong/invalid lead
			case c < 0xE0:
				want = 2
			case c < 0xF0:
				want = 3
			case c < 0xF5:
				want = 4
			default:
				return 0 // invalid lead
			}
			if i < want {
				return i
			}
			return 0
		}
		// Continuation byte, keep scanning backward for the lead.
	}
	return 0
}
