package session

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_CreateExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("session should not exist yet")
	}
	if err := store.Create(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	ok, err = store.Exists(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("session should exist after create")
	}
}

func TestStore_ListAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Errorf("List: got %d ids", len(ids))
	}
	n, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Count=%d", n)
	}
}

func TestStore_History(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendHistory(ctx, "s1", "hello", "hi there"); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendHistory(ctx, "s1", "bye", "see you"); err != nil {
		t.Fatal(err)
	}

	entries, err := store.History(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].User != "hello" || entries[0].Assistant != "hi there" {
		t.Errorf("first entry: %+v", entries[0])
	}
	if entries[1].User != "bye" {
		t.Errorf("second entry: %+v", entries[1])
	}
	if entries[0].Timestamp == "" {
		t.Error("timestamp should be set")
	}

	// Unknown session yields an empty list, not an error.
	entries, err = store.History(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("unknown session history: %+v", entries)
	}
}
