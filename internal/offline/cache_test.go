package offline_test

import (
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"pickline/internal/offline"
	"pickline/internal/picking"
)

func TestCachePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cache, err := offline.OpenCache(dir, nil)
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	view := picking.SessionView{Session: picking.SessionHeader{ID: "s1", PickerID: "p1", Status: picking.StatusActive}}
	if err := cache.Put("p1", view); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	_ = cache.Close()

	reopened, err := offline.OpenCache(dir, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get("p1")
	if err != nil || got == nil || got.Session.ID != "s1" {
		t.Fatalf("expected cached view, got %#v %v", got, err)
	}
	if missing, err := reopened.Get("p2"); err != nil || missing != nil {
		t.Fatalf("expected nil for unknown picker, got %#v %v", missing, err)
	}

	if err := reopened.Wipe(); err != nil {
		t.Fatalf("Wipe failed: %v", err)
	}
	if got, _ := reopened.Get("p1"); got != nil {
		t.Fatal("expected wipe to drop cached view")
	}
	if err := reopened.Put("", view); err == nil {
		t.Fatal("expected empty picker id to be rejected")
	}
}

func TestCacheSharesDirectoryBetweenHandles(t *testing.T) {
	dir := t.TempDir()
	agentSide, err := offline.OpenCache(dir, nil)
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	defer agentSide.Close()
	commandSide, err := offline.OpenCache(dir, nil)
	if err != nil {
		t.Fatalf("second OpenCache failed: %v", err)
	}
	defer commandSide.Close()

	view := picking.SessionView{Session: picking.SessionHeader{ID: "s1", PickerID: "p1", Status: picking.StatusActive}}
	if err := agentSide.Put("p1", view); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := commandSide.Get("p1")
	if err != nil || got == nil || got.Session.ID != "s1" {
		t.Fatalf("expected view through second handle, got %#v %v", got, err)
	}

	// A holder that keeps the directory briefly only delays the operation.
	held, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		t.Fatalf("hold directory: %v", err)
	}
	released := make(chan struct{})
	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = held.Close()
		close(released)
	}()
	if err := commandSide.Delete("p1"); err != nil {
		t.Fatalf("Delete while directory held failed: %v", err)
	}
	<-released
	if got, _ := agentSide.Get("p1"); got != nil {
		t.Fatalf("expected delete to be visible, got %#v", got)
	}
}
