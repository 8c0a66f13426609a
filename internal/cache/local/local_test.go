package local

import (
	"context"
	"testing"
	"time"

	"github.com/oprina-ai/memcore/pkg/cache"
)

func TestCache_SetGet(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "inbox", cache.NamespaceEmail, []byte(`["a","b"]`), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	val, err := c.Get(ctx, "inbox", cache.NamespaceEmail)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(val) != `["a","b"]` {
		t.Errorf("Get() = %q", val)
	}

	// Same key in another namespace must not collide.
	val, err = c.Get(ctx, "inbox", cache.NamespaceTemp)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != nil {
		t.Error("expected miss for same key in different namespace")
	}
}

func TestCache_MissReturnsNilNil(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	val, err := c.Get(context.Background(), "absent", cache.NamespaceUser)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != nil {
		t.Errorf("Get() = %v, want nil", val)
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute, CleanupInterval: time.Minute})
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "blip", cache.NamespaceTemp, []byte("x"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	val, err := c.Get(ctx, "blip", cache.NamespaceTemp)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != nil {
		t.Error("expected entry to expire")
	}
}

func TestCache_DeleteAndExists(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "k", cache.NamespaceAgent, []byte("v"), 0)

	found, err := c.Exists(ctx, "k", cache.NamespaceAgent)
	if err != nil || !found {
		t.Fatalf("Exists() = %v, %v, want true, nil", found, err)
	}

	if err := c.Delete(ctx, "k", cache.NamespaceAgent); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	found, _ = c.Exists(ctx, "k", cache.NamespaceAgent)
	if found {
		t.Error("Exists() after delete = true")
	}
}

func TestCache_FlushNamespace(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "a", cache.NamespaceEmail, []byte("1"), 0)
	_ = c.Set(ctx, "b", cache.NamespaceEmail, []byte("2"), 0)
	_ = c.Set(ctx, "a", cache.NamespaceUser, []byte("3"), 0)

	if err := c.FlushNamespace(ctx, cache.NamespaceEmail); err != nil {
		t.Fatalf("FlushNamespace() error = %v", err)
	}

	if val, _ := c.Get(ctx, "a", cache.NamespaceEmail); val != nil {
		t.Error("email namespace entry survived flush")
	}
	if val, _ := c.Get(ctx, "a", cache.NamespaceUser); val == nil {
		t.Error("user namespace entry was flushed")
	}
}

func TestCache_Stats(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "k", cache.NamespaceTemp, []byte("v"), 0)
	_, _ = c.Get(ctx, "k", cache.NamespaceTemp)
	_, _ = c.Get(ctx, "absent", cache.NamespaceTemp)

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Sets != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", stats.HitRate)
	}
}
