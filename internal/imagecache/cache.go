// Package imagecache caches remote cover images by URL in a bounded memory
// tier backed by an optional Badger disk tier.
package imagecache

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/tellmeastory/zine-server/internal/media/images"
	"github.com/tellmeastory/zine-server/internal/metrics"
)

// Tier labels for lookups.
const (
	TierMemory = "memory"
	TierDisk   = "disk"
	TierFetch  = "fetch"
)

// Cache resolves image URLs to bytes: memory, then disk, then the fetcher.
// Concurrent misses for one URL share a single fetch.
type Cache struct {
	mem     *lru.Cache
	disk    *DiskTier
	fetcher Fetcher
	metrics *metrics.Metrics
	logger  *slog.Logger
	group   singleflight.Group
}

// New creates a cache holding up to entries images in memory. disk and m may be nil.
func New(entries int, disk *DiskTier, fetcher Fetcher, m *metrics.Metrics, logger *slog.Logger) (*Cache, error) {
	mem, err := lru.New(entries)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &Cache{mem: mem, disk: disk, fetcher: fetcher, metrics: m, logger: logger}, nil
}

// Bytes returns the image data for url.
func (c *Cache) Bytes(ctx context.Context, url string) ([]byte, error) {
	if v, ok := c.mem.Get(url); ok {
		c.count(TierMemory)
		return v.([]byte), nil
	}

	v, err, _ := c.group.Do(url, func() (any, error) {
		if v, ok := c.mem.Get(url); ok {
			return v, nil
		}
		if c.disk != nil {
			if data, ok := c.disk.Get(url); ok {
				c.count(TierDisk)
				c.mem.Add(url, data)
				return data, nil
			}
		}

		start := time.Now()
		data, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		c.count(TierFetch)
		c.logger.Debug("fetched image", "url", url, "bytes", len(data), "duration", time.Since(start))

		c.mem.Add(url, data)
		if c.disk != nil {
			if err := c.disk.Set(url, data); err != nil {
				c.logger.Warn("failed to persist image", "url", url, "error", err)
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load image %s: %w", url, err)
	}
	return v.([]byte), nil
}

// Image returns the decoded image for url.
func (c *Cache) Image(ctx context.Context, url string) (image.Image, error) {
	data, err := c.Bytes(ctx, url)
	if err != nil {
		return nil, err
	}
	img, _, err := images.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("image %s: %w", url, err)
	}
	return img, nil
}

// Len returns the number of images held in memory.
func (c *Cache) Len() int {
	return c.mem.Len()
}

// Purge empties the memory tier.
func (c *Cache) Purge() {
	c.mem.Purge()
}

func (c *Cache) count(tier string) {
	if c.metrics != nil {
		c.metrics.ImageCache.WithLabelValues(tier).Inc()
	}
}
