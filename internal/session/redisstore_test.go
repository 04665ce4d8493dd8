package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"voxd-server/internal/dialog"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisStoreConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("failed to build redis store: %v", err)
	}
	return store
}

func TestRedisStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	rec := FromTurns("sess-1", []dialog.Turn{
		{Role: dialog.RoleUser, Text: "ping"},
		{Role: dialog.RoleAssistant, Text: "pong"},
	})

	ctx := context.Background()
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a loaded record")
	}
	if len(loaded.Turns) != 2 || loaded.Turns[0].Text != "ping" {
		t.Fatalf("unexpected turns: %+v", loaded.Turns)
	}
}

func TestRedisStore_LoadMissingReturnsNilNil(t *testing.T) {
	store := newTestRedisStore(t)

	rec, err := store.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}
