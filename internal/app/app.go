// Package app wires the shared resources and orchestrators of a Cairn
// instance from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/cairndb/cairn/internal/catalog"
	"github.com/cairndb/cairn/internal/commit"
	"github.com/cairndb/cairn/internal/config"
	"github.com/cairndb/cairn/internal/guard"
	"github.com/cairndb/cairn/internal/maintain"
	"github.com/cairndb/cairn/internal/statuslog"
	"github.com/cairndb/cairn/internal/storage"
)

// App holds the shared resources of a Cairn instance. All handles are
// explicit: components receive what they need as arguments and never
// look anything up from ambient global state.
type App struct {
	cfg *config.Config

	// Shared resources
	Catalog catalog.Catalog
	Storage storage.ObjectStorage
	Logs    *statuslog.Store

	// Orchestrators
	Loader    *maintain.LoadOrchestrator
	Compactor *maintain.CompactionOrchestrator
	Dropper   *maintain.PartitionDropOrchestrator
}

// New creates an App from the given configuration.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	cat, err := catalog.NewCatalog(cfg.CatalogPath())
	if err != nil {
		return nil, err
	}

	store, err := newStorage(ctx, cfg)
	if err != nil {
		cat.Close()
		return nil, err
	}

	logs := statuslog.NewStore()
	coordinator := commit.NewCoordinator(logs)
	collaborators := []guard.Collaborator{guard.New(cat)}
	pipeline := maintain.PassthroughPipeline{}

	return &App{
		cfg:     cfg,
		Catalog: cat,
		Storage: store,
		Logs:    logs,
		Loader: maintain.NewLoadOrchestrator(
			cat, logs, store, coordinator, collaborators, pipeline),
		Compactor: maintain.NewCompactionOrchestrator(
			cat, logs, store, coordinator, collaborators, pipeline,
			cfg.Compaction.MinSegments),
		Dropper: maintain.NewPartitionDropOrchestrator(
			cat, logs, coordinator, collaborators),
	}, nil
}

// newStorage builds the configured segment data storage backend.
func newStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.Storage.Type {
	case "s3":
		return storage.NewS3Storage(ctx, cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.Endpoint != "",
		})
	default:
		return storage.NewLocalStorage(cfg.Storage.Path)
	}
}

// Close releases the App's resources.
func (a *App) Close() error {
	return a.Catalog.Close()
}
