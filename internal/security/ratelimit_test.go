package security

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestLimiterStore_BurstThenDeny(t *testing.T) {
	s := NewLimiterStore(rate.Limit(0.001), 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !s.Allow("10.0.0.1") {
			t.Fatalf("request %d within burst should be allowed", i)
		}
	}
	if s.Allow("10.0.0.1") {
		t.Error("request beyond burst should be denied")
	}
}

func TestLimiterStore_PerClientIsolation(t *testing.T) {
	s := NewLimiterStore(rate.Limit(0.001), 1, time.Minute)

	if !s.Allow("10.0.0.1") {
		t.Fatal("first client first request should pass")
	}
	if s.Allow("10.0.0.1") {
		t.Error("first client second request should be denied")
	}
	if !s.Allow("10.0.0.2") {
		t.Error("second client must have its own budget")
	}
}

func TestLimiterStore_EmptyIPBucketsTogether(t *testing.T) {
	s := NewLimiterStore(rate.Limit(0.001), 1, time.Minute)

	if !s.Allow("") {
		t.Fatal("first unknown-ip request should pass")
	}
	if s.Allow("  ") {
		t.Error("blank ips share one bucket and the second must be denied")
	}
}

func TestLimiterStore_IdleEntriesExpire(t *testing.T) {
	s := NewLimiterStore(rate.Limit(0.001), 1, time.Nanosecond)

	if !s.Allow("10.0.0.1") {
		t.Fatal("first request should pass")
	}
	time.Sleep(time.Millisecond)

	// the stale entry is dropped on the next call, resetting the budget
	if !s.Allow("10.0.0.1") {
		t.Error("expected fresh budget after ttl expiry")
	}
}
