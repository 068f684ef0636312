package term

import (
	"strings"
	"testing"
	"time"
)

// drainSession collects output until the session's event channel reports the
// child exited, then returns everything that was read.
func drainSession(t *testing.T, s *Session) string {
	t.Helper()
	var out strings.Builder
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out.String()
			}
			if ev.Type == EventOutput {
				out.Write(ev.Data)
			}
			if ev.Type == EventClosed {
				return out.String()
			}
		case <-timeout:
			t.Fatal("timed out draining session events")
		}
	}
}

func TestSessionOutputDelivery(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{"single line", []string{"echo", "hello-pty"}, "hello-pty"},
		{"multiple lines", []string{"printf", "first\\nsecond\\n"}, "second"},
		{"shell pipeline", []string{"sh", "-c", "echo piped | tr a-z A-Z"}, "PIPED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newSession("t-"+tt.name, tt.name, tt.argv, "", nil)
			if err != nil {
				t.Fatalf("newSession: %v", err)
			}
			defer s.Close()

			got := drainSession(t, s)
			if !strings.Contains(got, tt.want) {
				t.Errorf("output = %q, want it to contain %q", got, tt.want)
			}
			if !s.IsClosed() {
				t.Error("session should report closed after its events drain")
			}
		})
	}
}

func TestSessionRejectsEmptyArgv(t *testing.T) {
	if _, err := newSession("t-empty", "empty", nil, "", nil); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestSessionWriteRoundTrip(t *testing.T) {
	s, err := newSession("t-cat", "cat", []string{"cat"}, "", nil)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	defer s.Close()

	if _, err := s.Write([]byte("echoed-back\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var out strings.Builder
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "echoed-back") && time.Now().Before(deadline) {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatalf("events closed early, output = %q", out.String())
			}
			if ev.Type == EventOutput {
				out.Write(ev.Data)
			}
		case <-time.After(100 * time.Millisecond):
		}
	}
	if !strings.Contains(out.String(), "echoed-back") {
		t.Errorf("output = %q, want it to contain echoed-back", out.String())
	}
}

func TestSessionClosedOperations(t *testing.T) {
	s, err := newSession("t-closed", "closed", []string{"sleep", "30"}, "", nil)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}

	if err := s.Resize(200, 50); err != nil {
		t.Fatalf("Resize on live session: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v, want nil", err)
	}

	if _, err := s.Write([]byte("x")); err == nil {
		t.Error("Write after Close should fail")
	}
	if err := s.Resize(80, 24); err == nil {
		t.Error("Resize after Close should fail")
	}
}
