package scrollback

import "testing"

func TestRegistryRejectsNonPositiveCapacity(t *testing.T) {
	if _, err := NewRegistry(0); err == nil {
		t.Fatal("NewRegistry(0): expected error, got nil")
	}
}

func TestRegistryGetOrCreateIsIdempotent(t *testing.T) {
	r, err := NewRegistry(DefaultCapacity)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	a := r.GetOrCreate("s1")
	b := r.GetOrCreate("s1")
	if a != b {
		t.Error("GetOrCreate returned different instances for the same id")
	}
	if a == r.GetOrCreate("s2") {
		t.Error("distinct session ids must get distinct buffers")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRegistryRemoveDiscardsHistory(t *testing.T) {
	r, err := NewRegistry(DefaultCapacity)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	buf := r.GetOrCreate("s1")
	buf.AppendText("some output\nmore\n")

	r.Remove("s1")
	r.Remove("s1") // no-op on absent id

	fresh := r.GetOrCreate("s1")
	if fresh == buf {
		t.Error("GetOrCreate after Remove returned the removed buffer")
	}
	if !fresh.IsEmpty() {
		t.Error("buffer recreated after Remove should be empty")
	}
}

func TestRegistrySessionIsolation(t *testing.T) {
	r, err := NewRegistry(DefaultCapacity)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	r.GetOrCreate("a").AppendText("for a\n")
	r.GetOrCreate("b").AppendText("for b\n")

	if got := r.Get("a").LastLines(1)[0]; got != "for a" {
		t.Errorf("session a saw %q", got)
	}
	if got := r.Get("b").LastLines(1)[0]; got != "for b" {
		t.Errorf("session b saw %q", got)
	}
	if r.Get("missing") != nil {
		t.Error("Get on absent id should return nil")
	}

	all := r.All()
	if len(all) != 2 {
		t.Errorf("All() has %d entries, want 2", len(all))
	}
	// Mutating the snapshot must not touch the registry.
	delete(all, "a")
	if r.Get("a") == nil {
		t.Error("All() snapshot deletion leaked into the registry")
	}
}
