package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type sample struct {
	Ticker string  `json:"ticker"`
	Score  float64 `json:"score"`
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "eval:ABC", sample{Ticker: "ABC", Score: 42.5}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got sample
	if err := mc.Get(ctx, "eval:ABC", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Ticker != "ABC" || got.Score != 42.5 {
		t.Fatalf("got %+v", got)
	}

	typed, err := MGetTyped[sample](ctx, mc, "eval:ABC", "eval:MISSING")
	if err != nil {
		t.Fatalf("mget: %v", err)
	}
	if len(typed) != 1 || typed["eval:ABC"].Score != 42.5 {
		t.Fatalf("typed = %+v", typed)
	}
}

func TestMemoryCacheMissAndExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	var s string
	if err := mc.Get(ctx, "nope", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("err = %v, want ErrCacheMiss", err)
	}

	_ = mc.Set(ctx, "short", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if err := mc.Get(ctx, "short", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expired key: err = %v", err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", "1", time.Minute)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", "2", time.Minute)
	time.Sleep(time.Millisecond)
	var s string
	_ = mc.Get(ctx, "a", &s) // a is now the most recent
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "c", "3", time.Minute)

	if err := mc.Get(ctx, "b", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("b should have been evicted, err = %v", err)
	}
	for _, k := range []string{"a", "c"} {
		if err := mc.Get(ctx, k, &s); err != nil {
			t.Fatalf("%s: %v", k, err)
		}
	}
}

func TestMemoryCacheSets(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	_ = mc.AddMembers(ctx, "tickers", "MSFT", "AAPL")
	_ = mc.AddMembers(ctx, "tickers", "AAPL")
	got, _ := mc.Members(ctx, "tickers")
	if len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Fatalf("members = %v", got)
	}
	if err := mc.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
