package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestKeyIsStable(t *testing.T) {
	type req struct {
		Name  string
		Lines map[int]bool
	}
	a, err := Key(req{Name: "roo", Lines: map[int]bool{3: true, 1: true, 2: true}})
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	b, _ := Key(req{Name: "roo", Lines: map[int]bool{2: true, 1: true, 3: true}})
	c, _ := Key(req{Name: "bob", Lines: map[int]bool{1: true}})
	if a != b {
		t.Fatalf("equal values hashed differently: %s %s", a, b)
	}
	if a == c {
		t.Fatalf("different values collided")
	}
	if len(a) != 16 {
		t.Fatalf("key %q should be 16 hex digits", a)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, time.Minute)
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Fatalf("empty cache reported a hit")
	}
	for _, k := range []string{"a", "b", "c"} {
		if err := m.Set(ctx, k, Entry{Data: []byte(k), ContentType: "image/png"}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if m.Len() != 2 {
		t.Fatalf("size bound not enforced: %d", m.Len())
	}
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Fatalf("oldest entry should be evicted")
	}
	e, ok, _ := m.Get(ctx, "c")
	if !ok || string(e.Data) != "c" {
		t.Fatalf("Get(c) = %+v, %v", e, ok)
	}
}

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4, 20*time.Millisecond)
	_ = m.Set(ctx, "k", Entry{Data: []byte("x")})
	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("entry outlived its TTL")
	}
}

func TestNewSelectsImplementation(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.(Nop); !ok {
		t.Fatalf("disabled cache should be Nop, got %T", c)
	}
	c, _ = New(ctx, Config{Enabled: true, Size: 8, TTL: time.Minute})
	if _, ok := c.(*Memory); !ok {
		t.Fatalf("expected memory cache, got %T", c)
	}
	if _, err := New(ctx, Config{Enabled: true, RedisAddr: "127.0.0.1:1"}); err == nil {
		t.Fatalf("unreachable redis should fail")
	}
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("CHAT2PNG_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHAT2PNG_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, Config{RedisAddr: addr, TTL: time.Minute, Prefix: "chat2png-test:"})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer r.Close()
	want := Entry{Data: []byte{0x89, 'P', 'N', 'G'}, ContentType: "image/png", Ext: "png", Width: 800, Height: 94}
	if err := r.Set(ctx, "k", want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := r.Get(ctx, "k")
	if err != nil || !ok || string(got.Data) != string(want.Data) || got.Height != 94 {
		t.Fatalf("Get = %+v, %v, %v", got, ok, err)
	}
}
