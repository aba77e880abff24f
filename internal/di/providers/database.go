package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	firebase "firebase.google.com/go/v4"
	"github.com/samber/do/v2"

	"github.com/tellmeastory/zine-server/internal/config"
	"github.com/tellmeastory/zine-server/internal/firebaseapp"
	"github.com/tellmeastory/zine-server/internal/logger"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/sse"
	"github.com/tellmeastory/zine-server/internal/store"
	"github.com/tellmeastory/zine-server/internal/store/firestore"
	"github.com/tellmeastory/zine-server/internal/store/sqlite"
)

// databaseFile is the SQLite file name under the data path.
const databaseFile = "zine.db"

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	manager := sse.NewManager(log.Logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// ProvideFirebaseApp provides the shared Firebase app. It is only invoked when
// a Firebase backend is configured.
func ProvideFirebaseApp(i do.Injector) (*firebase.App, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	app, err := firebaseapp.New(context.Background(), cfg.Firebase)
	if err != nil {
		return nil, err
	}

	log.Info("Firebase app initialized", "project_id", cfg.Firebase.ProjectID)
	return app, nil
}

// StoreHandle wraps the document store with shutdown capability.
type StoreHandle struct {
	store.DocumentStore
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the configured document store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	switch cfg.Storage.Backend {
	case "firestore":
		app := do.MustInvoke[*firebase.App](i)
		client, err := app.Firestore(context.Background())
		if err != nil {
			return nil, fmt.Errorf("create firestore client: %w", err)
		}
		log.Info("Document store initialized", "backend", "firestore", "project_id", cfg.Firebase.ProjectID)
		return &StoreHandle{DocumentStore: firestore.New(client, log.Logger)}, nil

	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o750); err != nil {
			return nil, fmt.Errorf("create data path: %w", err)
		}
		dbPath := filepath.Join(cfg.Storage.DataPath, databaseFile)
		db, err := sqlite.Open(dbPath, log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("Document store initialized", "backend", "sqlite", "path", dbPath)
		return &StoreHandle{DocumentStore: db}, nil
	}
}
