package cache

import (
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *Scoped[string] {
	t.Helper()
	c, err := NewScoped[string](100, ttl)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestScopedSetGetDelete(t *testing.T) {
	c := newTestCache(t, 0)

	c.Set("k", "v")
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit, got %q ok=%v", v, ok)
	}

	c.Delete("k")
	c.store.Wait()
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestScopedInvalidateOnlyTouchesScope(t *testing.T) {
	c := newTestCache(t, time.Minute)

	c.SetScoped("user:1", "summary:1", "a")
	c.SetScoped("user:1", "trend:1", "b")
	c.SetScoped("user:2", "summary:2", "c")

	if n := c.Invalidate("user:1"); n != 2 {
		t.Fatalf("expected 2 keys invalidated, got %d", n)
	}
	if _, ok := c.Get("summary:1"); ok {
		t.Fatalf("summary:1 should be gone")
	}
	if _, ok := c.Get("trend:1"); ok {
		t.Fatalf("trend:1 should be gone")
	}
	if v, ok := c.Get("summary:2"); !ok || v != "c" {
		t.Fatalf("other scope must survive, got %q ok=%v", v, ok)
	}
	if n := c.Invalidate("user:1"); n != 0 {
		t.Fatalf("second invalidate should be a no-op, got %d", n)
	}
}

func TestNewScopedRejectsZeroSize(t *testing.T) {
	if _, err := NewScoped[int](0, 0); err == nil {
		t.Fatalf("expected error for zero size")
	}
}
