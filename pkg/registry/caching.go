package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
)

// listCacheKey is the fixed identifier listings are cached under. The group filter
// is appended so filtered and unfiltered listings do not shadow each other.
const listCacheKey = "registry-artifacts"

// CachingClient caches artifact listings in front of an ArtifactSource. Content
// fetches are passed through uncached.
type CachingClient struct {
	next     core.ArtifactSource
	cache    *Cache[string, []core.ArtifactDescriptor]
	snapshot string
	logger   *slog.Logger
}

// NewCachingClient wraps next. When snapshotPath is set, live entries are loaded from
// it and every successful listing is written back, so the cache survives restarts.
// An unreadable snapshot is logged and ignored.
func NewCachingClient(next core.ArtifactSource, ttl time.Duration, snapshotPath string, logger *slog.Logger) *CachingClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CachingClient{
		next:     next,
		cache:    NewCache[string, []core.ArtifactDescriptor](ttl),
		snapshot: strings.TrimSpace(snapshotPath),
		logger:   logger,
	}
	if c.snapshot != "" && ttl > 0 {
		if err := c.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("registry cache snapshot ignored", "path", c.snapshot, "err", err)
		}
	}
	return c
}

func cacheKey(groupFilter string) string {
	return listCacheKey + ":" + strings.TrimSpace(groupFilter)
}

func (c *CachingClient) ListArtifacts(ctx context.Context, groupFilter string) ([]core.ArtifactDescriptor, error) {
	key := cacheKey(groupFilter)
	if v, ok := c.cache.Get(key); ok {
		c.logger.Debug("registry listing served from cache", "group", groupFilter, "artifacts", len(v))
		return cloneDescriptors(v), nil
	}
	v, err := c.cache.GetOrFetch(ctx, key, func(ctx context.Context) ([]core.ArtifactDescriptor, error) {
		return c.next.ListArtifacts(ctx, groupFilter)
	})
	if err != nil {
		return nil, err
	}
	if c.snapshot != "" {
		if err := c.saveSnapshot(); err != nil {
			c.logger.Warn("registry cache snapshot not written", "path", c.snapshot, "err", err)
		}
	}
	return cloneDescriptors(v), nil
}

func (c *CachingClient) GetArtifactContent(ctx context.Context, groupID, artifactID, version string) (core.ArtifactContent, error) {
	return c.next.GetArtifactContent(ctx, groupID, artifactID, version)
}

// Clear drops every cached listing, including the snapshot file.
func (c *CachingClient) Clear() error {
	c.cache.Clear()
	if c.snapshot == "" {
		return nil
	}
	if err := os.Remove(c.snapshot); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove registry cache snapshot: %w", err)
	}
	return nil
}

type snapshotFile struct {
	SavedAt time.Time                                   `json:"savedAt"`
	Entries map[string]Entry[[]core.ArtifactDescriptor] `json:"entries"`
}

func (c *CachingClient) loadSnapshot() error {
	b, err := os.ReadFile(c.snapshot)
	if err != nil {
		return err
	}
	var snap snapshotFile
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("parse registry cache snapshot: %w", err)
	}
	for k, e := range snap.Entries {
		c.cache.SetEntry(k, e)
	}
	return nil
}

func (c *CachingClient) saveSnapshot() error {
	snap := snapshotFile{
		SavedAt: c.cache.now().UTC(),
		Entries: c.cache.Entries(),
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.snapshot); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := c.snapshot + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.snapshot)
}

func cloneDescriptors(in []core.ArtifactDescriptor) []core.ArtifactDescriptor {
	if in == nil {
		return nil
	}
	out := make([]core.ArtifactDescriptor, len(in))
	copy(out, in)
	return out
}
