package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name              string
		requestsPerSecond uint
		burst             uint
	}{
		{name: "standard rate", requestsPerSecond: 100, burst: 200},
		{name: "low rate", requestsPerSecond: 1, burst: 2},
		{name: "zero burst", requestsPerSecond: 5, burst: 0},
		{name: "unlimited (zero rate)", requestsPerSecond: 0, burst: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.requestsPerSecond, tt.burst)
			if limiter == nil || limiter.limiter == nil {
				t.Fatal("New() returned an unusable limiter")
			}
			if !limiter.Allow() {
				t.Fatal("first request should always be allowed")
			}
		})
	}
}

func TestAllowEnforcesBurst(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		if !limiter.Allow() {
			t.Fatalf("request %d should be allowed (within burst)", i)
		}
	}
	if limiter.Allow() {
		t.Fatal("request beyond burst should be rejected")
	}
}

func TestWaitContextCancellation(t *testing.T) {
	limiter := New(1, 1)
	limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatal("Wait should fail when the context expires before a token is available")
	}
}

func TestUnlimitedRate(t *testing.T) {
	limiter := New(0, 0)
	for i := 0; i < 10000; i++ {
		if !limiter.Allow() {
			t.Fatalf("unlimited limiter rejected request %d", i)
		}
	}
}

func TestPeerLimiterIsolatesPeers(t *testing.T) {
	limiter, err := NewPeerLimiter(1, 1, 8)
	if err != nil {
		t.Fatalf("NewPeerLimiter: %v", err)
	}

	if !limiter.Allow("10.0.0.1") {
		t.Fatal("first request from peer A should be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("second immediate request from peer A should be throttled")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatal("peer B must not be affected by peer A's bucket")
	}
	if got := limiter.Len(); got != 2 {
		t.Fatalf("expected 2 tracked peers, got %d", got)
	}
}

func TestPeerLimiterEvictsLeastRecentlyUsed(t *testing.T) {
	limiter, err := NewPeerLimiter(1, 1, 2)
	if err != nil {
		t.Fatalf("NewPeerLimiter: %v", err)
	}

	limiter.Allow("a")
	limiter.Allow("b")
	limiter.Allow("c")

	if got := limiter.Len(); got != 2 {
		t.Fatalf("expected LRU to cap tracked peers at 2, got %d", got)
	}
	// "a" was evicted, so it starts again with a full bucket.
	if !limiter.Allow("a") {
		t.Fatal("evicted peer should get a fresh bucket")
	}
}

func TestNilPeerLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewPeerLimiter(0, 0, 0)
	if err != nil {
		t.Fatalf("NewPeerLimiter: %v", err)
	}
	if limiter != nil {
		t.Fatal("zero rate should disable per-peer limiting")
	}
	if !limiter.Allow("x") {
		t.Fatal("nil limiter must allow")
	}
	if err := limiter.Wait(context.Background(), "x"); err != nil {
		t.Fatalf("nil limiter Wait: %v", err)
	}
}

func BenchmarkPeerAllow(b *testing.B) {
	limiter, _ := NewPeerLimiter(0, 0, 0)
	for i := 0; i < b.N; i++ {
		limiter.Allow("127.0.0.1")
	}
}
