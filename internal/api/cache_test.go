package api

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"vidstream/internal/redis"
)

// cacheRedis connects to the instance named by TEST_REDIS_DSN. Skipped when
// the variable is unset.
func cacheRedis(t *testing.T) *redis.Client {
	t.Helper()
	dsn := os.Getenv("TEST_REDIS_DSN")
	if dsn == "" {
		t.Skip("TEST_REDIS_DSN not set")
	}

	client, err := redis.New(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// A subscription change touches two profiles: the channel gains or loses a
// subscriber, and the viewer's subscribed-to count moves. Both cached
// profiles must go, for every viewer, while unrelated channels stay cached.
func TestInvalidateChannelProfiles_BothSides(t *testing.T) {
	client := cacheRedis(t)
	ctx := context.Background()

	s := &Server{
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		redis: client,
	}

	keys := map[string]string{
		"channel_profile:channel:viewer-a":   "stale",
		"channel_profile:channel:viewer-b":   "stale",
		"channel_profile:viewer-a:someone":   "stale",
		"channel_profile:bystander:viewer-a": "fresh",
	}
	for k, v := range keys {
		if err := client.Set(ctx, k, v, time.Minute); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	s.invalidateChannelProfiles(ctx, "channel", "viewer-a")

	for _, k := range []string{
		"channel_profile:channel:viewer-a",
		"channel_profile:channel:viewer-b",
		"channel_profile:viewer-a:someone",
	} {
		if v, err := client.Get(ctx, k); err == nil {
			t.Errorf("expected %s invalidated, still cached %q", k, v)
		}
	}

	if v, err := client.Get(ctx, "channel_profile:bystander:viewer-a"); err != nil || v != "fresh" {
		t.Errorf("unrelated channel evicted: %q %v", v, err)
	}
}
