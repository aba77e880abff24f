package imagecache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "img:"

// DiskTier persists fetched images in Badger with a TTL.
type DiskTier struct {
	db     *badger.DB
	logger *slog.Logger
	ttl    time.Duration
}

// OpenDiskTier opens (or creates) the Badger database at path.
func OpenDiskTier(path string, ttl time.Duration, logger *slog.Logger) (*DiskTier, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open image cache: %w", err)
	}
	return &DiskTier{db: db, ttl: ttl, logger: logger}, nil
}

// Get returns a cached image.
func (d *DiskTier) Get(url string) ([]byte, bool) {
	var data []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(diskKey(url))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			d.logger.Warn("image cache read failed", "url", url, "error", err)
		}
		return nil, false
	}
	return data, true
}

// Set stores an image until the TTL passes.
func (d *DiskTier) Set(url string, data []byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(diskKey(url), data)
		if d.ttl > 0 {
			e = e.WithTTL(d.ttl)
		}
		return txn.SetEntry(e)
	})
}

// RunGC reclaims value log space. Badger returns ErrNoRewrite when there was
// nothing to collect.
func (d *DiskTier) RunGC() {
	for {
		if err := d.db.RunValueLogGC(0.5); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				d.logger.Debug("image cache gc stopped", "error", err)
			}
			return
		}
	}
}

// Close closes the database.
func (d *DiskTier) Close() error {
	return d.db.Close()
}

func diskKey(url string) []byte {
	sum := sha256.Sum256([]byte(url))
	return []byte(keyPrefix + hex.EncodeToString(sum[:]))
}
