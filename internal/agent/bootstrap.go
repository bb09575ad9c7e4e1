package agent

import (
	"context"
	"fmt"

	config "github.com/mwantia/comicshelf/internal/config/server"
	"github.com/mwantia/comicshelf/internal/library"
	"github.com/mwantia/comicshelf/internal/settings"
	"github.com/mwantia/comicshelf/pkg/cover"
	"github.com/mwantia/comicshelf/pkg/db/store"
	"github.com/mwantia/comicshelf/pkg/log"
)

// Services are the long-lived components behind the library.
type Services struct {
	Store    *store.SQLiteStore
	Settings *settings.Provider
	Covers   *cover.Deriver
	Library  *library.Library
}

// Close releases the catalog store.
func (s *Services) Close() error {
	s.Library.Wait()
	return s.Store.Close()
}

// OpenStore connects to the configured catalog store without migrating it.
func OpenStore(ctx context.Context, cfg *config.BaseServerConfig) (*store.SQLiteStore, error) {
	if cfg.Metadata.Type != "" && cfg.Metadata.Type != "sqlite" {
		return nil, fmt.Errorf("unsupported metadata type '%s'", cfg.Metadata.Type)
	}

	s, err := store.NewSQLiteStore(store.SQLiteConfig{
		Path:     cfg.Metadata.SQLite.Path,
		LogLevel: store.ParseLogLevel(cfg.Metadata.SQLite.LogLevel),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to connect catalog store: %w", err)
	}
	return s, nil
}

// OpenLibrary opens and migrates the catalog store and builds the library on
// top of it. Components log below the given root logger.
func OpenLibrary(ctx context.Context, cfg *config.BaseServerConfig, logger log.LoggerService) (*Services, error) {
	s, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to migrate catalog store: %w", err)
	}

	provider := settings.NewProvider(cfg.Library.SettingsFile)
	covers := cover.NewDeriver(cfg.Library.CoversDir)
	lib := library.New(library.Options{
		Store:    s,
		Settings: provider,
		Covers:   covers,
		Logger:   logger.Named("library"),
		Workers:  cfg.Library.Workers,
	})

	return &Services{
		Store:    s,
		Settings: provider,
		Covers:   covers,
		Library:  lib,
	}, nil
}
