package session

import (
	"testing"

	"github.com/dmendiola/wagate/internal/domain"
)

func TestStorePutGetRemove(t *testing.T) {
	store := NewStore()
	uid := domain.UID("15551234567")

	if store.Has(uid) {
		t.Fatalf("empty store reports uid present")
	}

	sess := &Session{UID: uid}
	store.Put(uid, sess)

	got, ok := store.Get(uid)
	if !ok || got != sess {
		t.Fatalf("Get returned %v, %v; want the stored session", got, ok)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", store.Len())
	}

	store.Remove(uid)
	if store.Has(uid) {
		t.Fatalf("uid still present after Remove")
	}
}

func TestStoreRemoveAbsentIsNoop(t *testing.T) {
	store := NewStore()
	// must not panic or error
	store.Remove(domain.UID("nobody"))
	if store.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestStorePutReplacesEntry(t *testing.T) {
	store := NewStore()
	uid := domain.UID("15551234567")

	first := &Session{UID: uid}
	second := &Session{UID: uid}
	store.Put(uid, first)
	store.Put(uid, second)

	if store.Len() != 1 {
		t.Fatalf("expected a single entry per uid, got %d", store.Len())
	}
	got, _ := store.Get(uid)
	if got != second {
		t.Fatalf("expected the later session to win")
	}
}
