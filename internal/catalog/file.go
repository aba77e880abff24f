package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tellmeastory/zine-server/internal/domain"
)

const defaultDebounce = 250 * time.Millisecond

// FileSource reads the catalog from a local JSON file.
type FileSource struct {
	logger   *slog.Logger
	path     string
	debounce time.Duration
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a source for path.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	return &FileSource{path: filepath.Clean(path), logger: logger, debounce: defaultDebounce}
}

// Fetch reads and decodes the file.
func (f *FileSource) Fetch(_ context.Context) (*domain.Catalog, error) {
	//#nosec G304 -- path comes from configuration
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Watch calls onChange after the file is written, created or renamed into
// place, once per burst of events. It watches the parent directory so editors
// that replace the file atomically are seen. Watch blocks until ctx is done.
func (f *FileSource) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}

	timer := time.NewTimer(f.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(f.debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("catalog file watcher error", "path", f.path, "error", err)
		case <-timer.C:
			f.logger.Info("catalog file changed", "path", f.path)
			onChange()
		}
	}
}
