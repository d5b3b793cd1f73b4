package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	idemp := NewIdempotency(NewMemoryStore(), time.Hour)

	if resp, err := idemp.Get(ctx, "key-1"); err != nil || resp != nil {
		t.Fatalf("expected miss, got %v %v", resp, err)
	}
	if err := idemp.Set(ctx, "key-1", Response{Status: 200, Result: []byte(`{"ok":true}`)}); err != nil {
		t.Fatal(err)
	}
	resp, err := idemp.Get(ctx, "key-1")
	if err != nil || resp == nil {
		t.Fatalf("expected hit, got %v %v", resp, err)
	}
	if resp.Status != 200 || string(resp.Result) != `{"ok":true}` {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestEmptyKeyIsIgnored(t *testing.T) {
	ctx := context.Background()
	idemp := NewIdempotency(NewMemoryStore(), time.Hour)
	if err := idemp.Set(ctx, "", Response{Status: 200}); err != nil {
		t.Fatal(err)
	}
	if resp, _ := idemp.Get(ctx, ""); resp != nil {
		t.Errorf("empty key must never replay, got %+v", resp)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	store.Set(ctx, "k", Response{Status: 409}, time.Minute)
	now = now.Add(30 * time.Second)
	if resp, _ := store.Get(ctx, "k"); resp == nil {
		t.Fatal("entry expired too early")
	}
	now = now.Add(time.Minute)
	if resp, _ := store.Get(ctx, "k"); resp != nil {
		t.Errorf("expected expired entry, got %+v", resp)
	}
}
