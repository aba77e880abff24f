package providers

import (
	"context"
	"path/filepath"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/samber/do/v2"

	"github.com/tellmeastory/zine-server/internal/config"
	"github.com/tellmeastory/zine-server/internal/imagecache"
	"github.com/tellmeastory/zine-server/internal/logger"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/objectstore"
	"github.com/tellmeastory/zine-server/internal/passport"
)

const imageCacheGCInterval = 10 * time.Minute

// ProvideObjectStore provides object storage for submitted covers and passports.
// Cloud Storage is used when a bucket is configured, local disk otherwise.
func ProvideObjectStore(i do.Injector) (objectstore.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Firebase.StorageBucket != "" {
		app := do.MustInvoke[*firebase.App](i)
		gcs, err := objectstore.NewGCS(context.Background(), app, cfg.Firebase.StorageBucket)
		if err != nil {
			return nil, err
		}
		log.Info("Object storage initialized", "backend", "gcs", "bucket", cfg.Firebase.StorageBucket)
		return gcs, nil
	}

	basePath := filepath.Join(cfg.Storage.DataPath, "objects")
	local, err := objectstore.NewLocal(basePath)
	if err != nil {
		return nil, err
	}
	log.Info("Object storage initialized", "backend", "local", "path", basePath)
	return local, nil
}

// ImageCacheHandle wraps the cover image cache and its disk tier.
type ImageCacheHandle struct {
	*imagecache.Cache
	disk   *imagecache.DiskTier
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ImageCacheHandle) Shutdown() error {
	h.cancel()
	if h.disk != nil {
		return h.disk.Close()
	}
	return nil
}

// ProvideImageCache provides the cover image cache. A zero disk TTL keeps it in memory only.
func ProvideImageCache(i do.Injector) (*ImageCacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	var disk *imagecache.DiskTier
	if cfg.Images.DiskTTL > 0 {
		var err error
		disk, err = imagecache.OpenDiskTier(filepath.Join(cfg.Storage.DataPath, "imagecache"), cfg.Images.DiskTTL, log.Logger)
		if err != nil {
			return nil, err
		}
	}

	cache, err := imagecache.New(cfg.Images.MemoryEntries, disk, imagecache.NewHTTPFetcher(), m, log.Logger)
	if err != nil {
		if disk != nil {
			_ = disk.Close()
		}
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if disk != nil {
		go func() {
			ticker := time.NewTicker(imageCacheGCInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					disk.RunGC()
				}
			}
		}()
	}

	log.Info("Image cache initialized",
		"memory_entries", cfg.Images.MemoryEntries,
		"disk_ttl", cfg.Images.DiskTTL,
	)

	return &ImageCacheHandle{Cache: cache, disk: disk, cancel: cancel}, nil
}

// ProvideCompositor provides the passport compositor, reading covers through the image cache.
func ProvideCompositor(i do.Injector) (*passport.Compositor, error) {
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	images := do.MustInvoke[*ImageCacheHandle](i)

	return passport.NewCompositor(images.Cache, m, log.Logger), nil
}
