package agent_test

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwantia/comicshelf/internal/agent"
	config "github.com/mwantia/comicshelf/internal/config/server"
	"github.com/mwantia/comicshelf/pkg/log"
)

func testConfig(t *testing.T) *config.BaseServerConfig {
	t.Helper()

	dir := t.TempDir()
	cfg := config.GetServerDefault()
	cfg.Metadata.SQLite.Path = filepath.Join(dir, "data", "comics.db")
	cfg.Library.SettingsFile = filepath.Join(dir, "data", "settings.json")
	cfg.Library.CoversDir = filepath.Join(dir, "covers")
	return &cfg
}

func TestOpenStoreDoesNotMigrate(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	s, err := agent.OpenStore(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	statuses, err := s.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	for _, status := range statuses {
		if status.Applied() {
			t.Fatalf("migration %d applied by OpenStore", status.Version)
		}
	}
	s.Close()

	services, err := agent.OpenLibrary(ctx, cfg, log.NewNopLogger())
	if err != nil {
		t.Fatalf("OpenLibrary failed: %v", err)
	}
	defer services.Close()

	statuses, err = services.Store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	for _, status := range statuses {
		if !status.Applied() {
			t.Fatalf("migration %d not applied by OpenLibrary", status.Version)
		}
	}
}

func TestOpenLibraryNamesComponentLoggers(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	services, err := agent.OpenLibrary(ctx, testConfig(t), log.NewWriterLogger("comicshelf", "info", &buf))
	if err != nil {
		t.Fatalf("OpenLibrary failed: %v", err)
	}
	defer services.Close()

	if _, err := services.Library.Scan(ctx, ""); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "[comicshelf/library]") {
		t.Fatalf("expected library lines below the root logger, got %q", out)
	}
	if strings.Contains(out, "comicshelf/store") {
		t.Fatalf("unexpected store segment in %q", out)
	}
}

func TestOpenLibraryRejectsUnknownMetadataType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metadata.Type = "postgres"

	if _, err := agent.OpenLibrary(context.Background(), cfg, log.NewNopLogger()); err == nil {
		t.Fatal("expected an error for an unsupported metadata type")
	}
}
