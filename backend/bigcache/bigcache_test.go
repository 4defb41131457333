package bigcache

import (
	"context"
	"sort"
	"testing"
	"time"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{Shards: 16, LifeWindow: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	if _, ok, err := b.Get(ctx, "ns:1"); ok || err != nil {
		t.Fatalf("miss expected: ok=%v err=%v", ok, err)
	}
	if ok, err := b.Set(ctx, "ns:1", []byte("v1"), 0, 0); !ok || err != nil {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	v, ok, err := b.Get(ctx, "ns:1")
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}
	if err := b.Del(ctx, "ns:1"); err != nil {
		t.Fatal(err)
	}
	// deleting a missing key is not an error
	if err := b.Del(ctx, "ns:1"); err != nil {
		t.Fatalf("second Del: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "ns:1"); ok {
		t.Fatal("key survived Del")
	}
}

func TestKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	for _, k := range []string{"ns:1", "ns:2", "other:1", "nsx:1"} {
		if _, err := b.Set(ctx, k, []byte(k), 0, 0); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := b.Keys(ctx, "ns:")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "ns:1" || keys[1] != "ns:2" {
		t.Fatalf("keys = %v", keys)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := b.Keys(canceled, "ns:"); err == nil {
		t.Fatal("expected context error")
	}
}
