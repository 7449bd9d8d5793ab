package bridge

import (
	"context"
	"log/slog"
	"sync"
)

// Directory looks up display names for Slack IDs.
type Directory interface {
	UserName(ctx context.Context, userID string) (string, error)
	ChannelName(ctx context.Context, channelID string) (string, error)
}

// IdentityCache memoizes Directory lookups for the life of the process.
// Failed lookups are not cached and fall back to the raw ID.
type IdentityCache struct {
	dir    Directory
	logger *slog.Logger

	mu       sync.RWMutex
	users    map[string]string // user ID → display name
	channels map[string]string // channel ID → channel name
}

// NewIdentityCache creates a cache in front of dir.
func NewIdentityCache(dir Directory, logger *slog.Logger) *IdentityCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityCache{
		dir:      dir,
		logger:   logger,
		users:    make(map[string]string),
		channels: make(map[string]string),
	}
}

// UserName returns the display name for userID, or userID itself when the
// lookup fails.
func (c *IdentityCache) UserName(ctx context.Context, userID string) string {
	return c.lookup(ctx, c.users, userID, "user", c.dir.UserName)
}

// ChannelName returns the name of channelID, or channelID itself when the
// lookup fails.
func (c *IdentityCache) ChannelName(ctx context.Context, channelID string) string {
	return c.lookup(ctx, c.channels, channelID, "channel", c.dir.ChannelName)
}

// Clear drops every cached name.
func (c *IdentityCache) Clear() {
	c.mu.Lock()
	clear(c.users)
	clear(c.channels)
	c.mu.Unlock()
}

func (c *IdentityCache) lookup(ctx context.Context, cache map[string]string, id, kind string,
	fetch func(context.Context, string) (string, error)) string {
	if id == "" {
		return ""
	}
	c.mu.RLock()
	name, ok := cache[id]
	c.mu.RUnlock()
	if ok {
		return name
	}

	name, err := fetch(ctx, id)
	if err != nil || name == "" {
		c.logger.Warn("identity lookup failed, using raw ID", "kind", kind, "id", id, "error", err)
		return id
	}
	c.mu.Lock()
	cache[id] = name
	c.mu.Unlock()
	return name
}
