package grant

import (
	"testing"
	"time"
)

func TestGrantLifecycle(t *testing.T) {
	c := NewCache(120 * time.Second)
	now := time.Now()
	c.now = func() time.Time { return now }

	if c.IsVerified(1) {
		t.Fatal("fresh cache should report unverified")
	}

	c.SetVerified(1)
	if !c.IsVerified(1) {
		t.Fatal("expected verified immediately after SetVerified")
	}

	now = now.Add(119 * time.Second)
	if !c.IsVerified(1) {
		t.Fatal("grant should survive inside the TTL")
	}

	now = now.Add(2 * time.Second)
	if c.IsVerified(1) {
		t.Fatal("grant should expire past the TTL")
	}
	// lazy eviction removed the entry
	if c.IsVerified(1) {
		t.Fatal("expired grant must stay absent")
	}
}

func TestSetVerifiedRestartsWindow(t *testing.T) {
	c := NewCache(120 * time.Second)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.SetVerified(9)
	now = now.Add(100 * time.Second)
	c.SetVerified(9)
	now = now.Add(100 * time.Second)
	if !c.IsVerified(9) {
		t.Fatal("replacing a grant should restart its window")
	}
}

func TestRevokeAndSweep(t *testing.T) {
	c := NewCache(time.Second)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.SetVerified(1)
	c.SetVerified(2)
	c.Revoke(1)
	if c.IsVerified(1) {
		t.Fatal("revoked grant should be absent")
	}

	now = now.Add(2 * time.Second)
	if got := c.Sweep(); got != 1 {
		t.Fatalf("sweep removed %d, want 1", got)
	}
}
