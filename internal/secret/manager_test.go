package secret

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManagerStaticValue(t *testing.T) {
	m := NewManager()

	got, err := m.Get(context.Background(), "plain-password")
	if err != nil {
		t.Fatalf("static get: %v", err)
	}
	if got != "plain-password" {
		t.Errorf("got %q", got)
	}
}

func TestManagerEnvScheme(t *testing.T) {
	t.Setenv("MEMCORE_TEST_SECRET", "s3cr3t")

	m, err := NewManagerFromConfig(DefaultConfig())
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	defer m.Close()

	got, err := m.Get(context.Background(), "env://MEMCORE_TEST_SECRET")
	if err != nil {
		t.Fatalf("env get: %v", err)
	}
	if got != "s3cr3t" {
		t.Errorf("got %q", got)
	}
}

func TestManagerUnknownScheme(t *testing.T) {
	m := NewManager()

	if _, err := m.Get(context.Background(), "etcd://foo"); err == nil {
		t.Fatal("unknown scheme accepted")
	}
}

func TestCachedProviderAvoidsRepeatLookups(t *testing.T) {
	inner := &countingProvider{value: "v1"}
	p := NewCachedProvider(inner, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := p.Get(ctx, "path")
		if err != nil || got != "v1" {
			t.Fatalf("get %d: %q %v", i, got, err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner provider called %d times, want 1", inner.calls)
	}
}

func TestCachedProviderErrorNotCached(t *testing.T) {
	inner := &countingProvider{err: errors.New("unavailable")}
	p := NewCachedProvider(inner, time.Minute)

	ctx := context.Background()
	if _, err := p.Get(ctx, "path"); err == nil {
		t.Fatal("expected error")
	}

	inner.err = nil
	inner.value = "recovered"
	got, err := p.Get(ctx, "path")
	if err != nil || got != "recovered" {
		t.Fatalf("after recovery: %q %v", got, err)
	}
}

type countingProvider struct {
	value string
	err   error
	calls int
}

func (p *countingProvider) Get(context.Context, string) (string, error) {
	p.calls++
	return p.value, p.err
}

func (p *countingProvider) Close() error { return nil }
