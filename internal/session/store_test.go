package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	sess := New()
	sess.Set("k", "v")
	sess.ExpiresAt = time.Now().Add(time.Hour)
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	sess.Set("k", "changed")
	loaded, err := store.Load(context.Background(), sess.Key)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if v, _ := loaded.Get("k"); v != "v" {
		t.Fatalf("expected stored copy to be isolated, got %q", v)
	}
	if loaded.IsNew() || loaded.Modified() {
		t.Fatalf("expected loaded session to be clean")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	sess := New()
	sess.Set("k", "v")
	sess.ExpiresAt = now
	_ = store.Save(context.Background(), sess)

	if _, err := store.Load(context.Background(), sess.Key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be missing, got %v", err)
	}
}

func TestSessionDeleteMarksModified(t *testing.T) {
	sess := &Session{Values: map[string]string{"a": "1"}}
	sess.Delete("missing")
	if sess.Modified() {
		t.Fatalf("deleting a missing key must not mark the session modified")
	}
	sess.Delete("a")
	if !sess.Modified() || !sess.Empty() {
		t.Fatalf("expected modified empty session")
	}
}

func TestValuesCodec(t *testing.T) {
	raw, err := encodeValues(nil)
	if err != nil || raw != "{}" {
		t.Fatalf("unexpected encoding %q, %v", raw, err)
	}
	if _, err := decodeValues("not json"); err == nil {
		t.Fatalf("expected decode error")
	}
}
