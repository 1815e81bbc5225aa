package listquery

import (
	"testing"
	"time"
)

func TestSessionStoreGetOrCreate(t *testing.T) {
	store := NewSessionStore(10, time.Minute)

	first := store.GetOrCreate("user-1", "candidates", "candidates", 25)
	second := store.GetOrCreate("user-1", "candidates", "candidates", 25)
	if first != second {
		t.Error("same subject and screen returned different sessions")
	}

	other := store.GetOrCreate("user-2", "candidates", "candidates", 25)
	if other == first {
		t.Error("different subjects share a session")
	}

	if got := store.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestSessionStoreDrop(t *testing.T) {
	store := NewSessionStore(10, time.Minute)

	first := store.GetOrCreate("user-1", "candidates", "candidates", 25)
	first.SetPage(3)
	store.Drop("user-1", "candidates")

	fresh := store.GetOrCreate("user-1", "candidates", "candidates", 25)
	if fresh == first {
		t.Error("Drop did not remove the session")
	}
	if got := fresh.Params().Pagination.Page; got != 0 {
		t.Errorf("fresh session page = %d, want 0", got)
	}
}

func TestSessionStoreEvictsIdleAtCapacity(t *testing.T) {
	store := NewSessionStore(2, 10*time.Millisecond)

	store.GetOrCreate("user-1", "candidates", "candidates", 25)
	store.GetOrCreate("user-2", "candidates", "candidates", 25)
	time.Sleep(20 * time.Millisecond)

	store.GetOrCreate("user-3", "candidates", "candidates", 25)
	if got := store.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 after idle sweep", got)
	}
}
