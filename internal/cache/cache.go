package cache

import (
	"context"
	"sync"
	"time"

	"poultryledger/backend/internal/domain"
)

// SnapshotCache holds the last computed dashboard of each user. Every
// mutation invalidates the owner's entry and starts a new generation; a
// snapshot built from reads of an older generation is never stored.
type SnapshotCache interface {
	Version(ctx context.Context, userID string) (int64, error)
	Get(ctx context.Context, userID string) (*domain.DashboardResponse, bool, error)
	// Set stores value only while the user's generation is still version.
	Set(ctx context.Context, userID string, version int64, value *domain.DashboardResponse, ttl time.Duration) error
	Invalidate(ctx context.Context, userID string) error
}

type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Version(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopSnapshotCache) Get(_ context.Context, _ string) (*domain.DashboardResponse, bool, error) {
	return nil, false, nil
}

func (NoopSnapshotCache) Set(_ context.Context, _ string, _ int64, _ *domain.DashboardResponse, _ time.Duration) error {
	return nil
}

func (NoopSnapshotCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

type memoryEntry struct {
	value     *domain.DashboardResponse
	expiresAt time.Time
}

// MemorySnapshotCache is the single-instance cache used when Redis is not
// configured.
type MemorySnapshotCache struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	versions map[string]int64
	now      func() time.Time
}

func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{
		entries:  make(map[string]memoryEntry),
		versions: make(map[string]int64),
		now:      time.Now,
	}
}

func (c *MemorySnapshotCache) Version(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[userID], nil
}

func (c *MemorySnapshotCache) Get(_ context.Context, userID string) (*domain.DashboardResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[userID]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, userID)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *MemorySnapshotCache) Set(_ context.Context, userID string, version int64, value *domain.DashboardResponse, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.versions[userID] != version {
		return nil
	}
	c.entries[userID] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemorySnapshotCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.versions[userID]++
	delete(c.entries, userID)
	return nil
}

func snapshotKey(userID string) string {
	return "poultryledger:snapshot:" + userID
}

func versionKey(userID string) string {
	return "poultryledger:snapshot-version:" + userID
}
