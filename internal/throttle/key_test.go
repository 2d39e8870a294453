package throttle

import (
	"errors"
	"strings"
	"testing"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	t.Parallel()

	id := Identity{UserID: "user-1", TenantID: "tenant-a", IP: "203.0.113.5"}
	first, err := DeriveKey("search", id, KeyByIdentity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := DeriveKey("search", id, KeyByIdentity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("keys differ: %q vs %q", first, second)
	}
}

func TestDeriveKey_UserAxisPreferred(t *testing.T) {
	t.Parallel()

	key, err := DeriveKey("search", Identity{UserID: "user-1", IP: "203.0.113.5"}, KeyByIdentity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "search:user:user-1" {
		t.Fatalf("unexpected key: %q", key)
	}

	key, err = DeriveKey("search", Identity{IP: "203.0.113.5"}, KeyByIdentity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "search:ip:203.0.113.5" {
		t.Fatalf("unexpected key: %q", key)
	}
}

func TestDeriveKey_TenantFoldedIn(t *testing.T) {
	t.Parallel()

	with, err := DeriveKey("search", Identity{UserID: "user-1", TenantID: "tenant-a"}, KeyByIdentity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	without, err := DeriveKey("search", Identity{UserID: "user-1"}, KeyByIdentity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if with == without {
		t.Fatalf("tenant id did not change the key: %q", with)
	}
}

func TestDeriveKey_DistinctUsersDistinctKeys(t *testing.T) {
	t.Parallel()

	a, _ := DeriveKey("search", Identity{UserID: "user-a"}, KeyByIdentity)
	b, _ := DeriveKey("search", Identity{UserID: "user-b"}, KeyByIdentity)
	if a == b {
		t.Fatalf("distinct users share key %q", a)
	}
}

func TestDeriveKey_IPModeIgnoresUser(t *testing.T) {
	t.Parallel()

	anon, err := DeriveKey("authentication", Identity{IP: "203.0.113.5"}, KeyByIP)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	authed, err := DeriveKey("authentication", Identity{UserID: "user-1", IP: "203.0.113.5"}, KeyByIP)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if anon != authed {
		t.Fatalf("IP mode keys differ: %q vs %q", anon, authed)
	}
}

func TestDeriveKey_LongKeyHashed(t *testing.T) {
	t.Parallel()

	id := Identity{UserID: strings.Repeat("u", 300)}
	key, err := DeriveKey("search", id, KeyByIdentity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) > maxKeyLen {
		t.Fatalf("hashed key length %d exceeds threshold", len(key))
	}
	if !strings.HasPrefix(key, "search:") {
		t.Fatalf("hashed key lost scope prefix: %q", key)
	}

	again, err := DeriveKey("search", id, KeyByIdentity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != again {
		t.Fatalf("hashed key not stable: %q vs %q", key, again)
	}
}

func TestDeriveKey_NoIdentity(t *testing.T) {
	t.Parallel()

	if _, err := DeriveKey("search", Identity{}, KeyByIdentity); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("want ErrNoIdentity, got %v", err)
	}
	if _, err := DeriveKey("tenant-wide", Identity{UserID: "user-1"}, KeyByTenant); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("want ErrNoIdentity for missing tenant, got %v", err)
	}
	if _, err := DeriveKey("authentication", Identity{UserID: "user-1"}, KeyByIP); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("want ErrNoIdentity for missing ip, got %v", err)
	}
}
