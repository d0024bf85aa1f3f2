package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/afero"

	"github.com/osamaflash/catalog/internal/adapters/repository"
	"github.com/osamaflash/catalog/internal/domain/entities"
	"github.com/osamaflash/catalog/internal/infrastructure/config"
	"github.com/osamaflash/catalog/internal/infrastructure/database"
	"github.com/osamaflash/catalog/internal/infrastructure/logger"
	"github.com/osamaflash/catalog/internal/ports"
)

// openStore builds the document store for the configured driver. The
// caller owns the returned store and must Close it.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (ports.DocumentStore, error) {
	backend, err := openBackend(ctx, cfg, afero.NewOsFs())
	if err != nil {
		return nil, err
	}

	defaults := entities.Defaults{
		SiteTitle:    cfg.Site.Title,
		AboutContent: cfg.Site.AboutContent,
	}

	store := repository.NewDocumentStore(backend, defaults, log)

	// Touch every document so missing or malformed ones are rewritten at
	// startup rather than on the first request.
	for _, key := range entities.AllDocuments {
		var raw json.RawMessage
		if err := store.Get(ctx, key, &raw); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialise %s: %w", key, err)
		}
	}

	log.Infow("Document store ready", "driver", backend.Name())

	return store, nil
}

func openBackend(ctx context.Context, cfg *config.Config, fs afero.Fs) (repository.Backend, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverFile:
		backend, err := repository.NewFileBackend(fs, cfg.Store.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open data dir %s: %w", cfg.Store.DataDir, err)
		}
		return backend, nil

	case config.StoreDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return repository.NewRedisBackend(client, cfg.Store.KeyPrefix), nil

	case config.StoreDriverPostgres:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return repository.NewPostgresBackend(db.DB), nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
