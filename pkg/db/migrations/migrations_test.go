package migrations_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mwantia/comicshelf/pkg/db/migrations"
	"github.com/mwantia/comicshelf/pkg/db/models"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func applied(t *testing.T, m *migrations.Migrator) map[int]bool {
	t.Helper()

	statuses, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	out := make(map[int]bool, len(statuses))
	for _, status := range statuses {
		out[status.Version] = status.Applied()
	}
	return out
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	m := migrations.NewMigrator(db)

	if got := applied(t, m); got[1] || got[2] {
		t.Fatalf("fresh database reports applied migrations: %v", got)
	}
	for range 2 {
		if err := m.Migrate(ctx); err != nil {
			t.Fatalf("Migrate failed: %v", err)
		}
	}
	if got := applied(t, m); !got[1] || !got[2] {
		t.Fatalf("expected every migration applied, got %v", got)
	}
	if !db.Migrator().HasTable(&models.Comic{}) {
		t.Fatal("comics table missing")
	}
}

func TestRollbackRevertsNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	m := migrations.NewMigrator(db)

	if err := m.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	status, err := m.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if status.Version != 2 || status.AppliedAt == nil {
		t.Fatalf("unexpected rollback %#v", status)
	}
	if got := applied(t, m); !got[1] || got[2] {
		t.Fatalf("expected only migration 1 applied, got %v", got)
	}

	if status, err = m.Rollback(ctx); err != nil || status.Version != 1 {
		t.Fatalf("expected migration 1 rolled back, got %#v, %v", status, err)
	}
	if db.Migrator().HasTable(&models.Comic{}) {
		t.Fatal("comics table still present")
	}

	if _, err := m.Rollback(ctx); !errors.Is(err, migrations.ErrNothingApplied) {
		t.Fatalf("expected ErrNothingApplied, got %v", err)
	}

	if err := m.Migrate(ctx); err != nil {
		t.Fatalf("Migrate after rollback failed: %v", err)
	}
	if got := applied(t, m); !got[1] || !got[2] {
		t.Fatalf("expected every migration applied again, got %v", got)
	}
}
