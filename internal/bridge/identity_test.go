package bridge

import (
	"context"
	"testing"
)

func TestIdentityCache_CachesHits(t *testing.T) {
	dir := newFakeDirectory()
	c := NewIdentityCache(dir, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if got := c.UserName(ctx, "U1"); got != "Alice Smith" {
			t.Fatalf("UserName = %q", got)
		}
		if got := c.ChannelName(ctx, "C1"); got != "blitz-socal-deals" {
			t.Fatalf("ChannelName = %q", got)
		}
	}
	if dir.calls != 2 {
		t.Errorf("directory calls = %d, want 2", dir.calls)
	}
}

func TestIdentityCache_FallsBackToID(t *testing.T) {
	dir := newFakeDirectory()
	c := NewIdentityCache(dir, nil)
	ctx := context.Background()

	if got := c.UserName(ctx, "U404"); got != "U404" {
		t.Errorf("UserName = %q, want raw ID", got)
	}
	// Failures are retried rather than cached.
	dir.users["U404"] = "Late Arrival"
	if got := c.UserName(ctx, "U404"); got != "Late Arrival" {
		t.Errorf("UserName after directory fix = %q", got)
	}
	if got := c.ChannelName(ctx, ""); got != "" {
		t.Errorf("ChannelName(\"\") = %q", got)
	}
}

func TestIdentityCache_Clear(t *testing.T) {
	dir := newFakeDirectory()
	c := NewIdentityCache(dir, nil)
	ctx := context.Background()

	c.UserName(ctx, "U1")
	dir.users["U1"] = "Alice Renamed"
	if got := c.UserName(ctx, "U1"); got != "Alice Smith" {
		t.Errorf("cached UserName = %q", got)
	}
	c.Clear()
	if got := c.UserName(ctx, "U1"); got != "Alice Renamed" {
		t.Errorf("UserName after Clear = %q", got)
	}
}
