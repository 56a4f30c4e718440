package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// OnlinePrefix is the Redis key prefix for mirrored presence entries.
	OnlinePrefix = "online:"

	// OnlineTTL bounds how long a mirrored entry survives a crashed server
	// that never cleared it.
	OnlineTTL = 2 * time.Hour
)

// Mirror writes best-effort presence entries to Redis so that tooling outside
// this process (dashboards, the notifier) can see who is online without a
// round trip to the relay. The in-memory Tracker remains authoritative; a
// mirror write failing never blocks a connection lifecycle transition.
type Mirror struct {
	client *redis.Client
}

// NewMirror creates a Mirror using the provided Redis client.
func NewMirror(client *redis.Client) *Mirror {
	return &Mirror{client: client}
}

// Set records the identity as online, keyed by identity id.
func (m *Mirror) Set(ctx context.Context, identityID, displayName string) error {
	return m.client.Set(ctx, OnlinePrefix+identityID, displayName, OnlineTTL).Err()
}

// Clear removes the identity's mirrored entry.
func (m *Mirror) Clear(ctx context.Context, identityID string) error {
	return m.client.Del(ctx, OnlinePrefix+identityID).Err()
}
