package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := NewLRU[string](10, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache returned a value")
	}

	c.Set("a", "alpha")
	if v, ok := c.Get("a"); !ok || v != "alpha" {
		t.Errorf("Get(a) = %q, %v", v, ok)
	}

	c.Set("a", "updated")
	if v, _ := c.Get("a"); v != "updated" {
		t.Errorf("Get(a) after update = %q", v)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewLRU[int](10, 10*time.Millisecond)
	c.Set("k", 42)

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry still returned")
	}
	if c.Len() != 0 {
		t.Errorf("Len() after expiry access = %d, want 0", c.Len())
	}
}

func TestCapacityEviction(t *testing.T) {
	c := NewLRU[int](3, time.Minute)
	for i := 0; i < 4; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	if _, ok := c.Get("k0"); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, ok := c.Get("k3"); !ok {
		t.Error("newest entry missing")
	}
}

func TestRecentUseProtectsFromEviction(t *testing.T) {
	c := NewLRU[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a becomes most recently used
	c.Set("c", 3)

	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry was evicted")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry survived")
	}
}

func TestPurge(t *testing.T) {
	c := NewLRU[int](10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() after Purge = %d, want 0", c.Len())
	}
	c.Set("a", 3)
	if v, _ := c.Get("a"); v != 3 {
		t.Errorf("Get(a) after repopulate = %d", v)
	}
}
