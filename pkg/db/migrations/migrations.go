// Package migrations versions the catalog schema.
package migrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mwantia/comicshelf/pkg/db/models"
	"gorm.io/gorm"
)

// ErrNothingApplied is returned by Rollback on a schema without migrations.
var ErrNothingApplied = errors.New("migrations: nothing applied")

// Migration is one reversible schema step.
type Migration struct {
	Version     int
	Description string
	Up          func(*gorm.DB) error
	Down        func(*gorm.DB) error
}

// schemaVersion records an applied migration.
type schemaVersion struct {
	Version     int       `gorm:"primaryKey;autoIncrement:false"`
	Description string    `gorm:"type:text"`
	AppliedAt   time.Time `gorm:"autoCreateTime"`
}

func (schemaVersion) TableName() string {
	return "schema_versions"
}

// Status describes a known migration and when it was applied, if ever.
type Status struct {
	Version     int
	Description string
	AppliedAt   *time.Time
}

func (s Status) Applied() bool {
	return s.AppliedAt != nil
}

type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

func NewMigrator(db *gorm.DB) *Migrator {
	return &Migrator{
		db:         db,
		migrations: catalogMigrations(),
	}
}

// Migrate applies every pending migration in version order. Each migration
// commits together with its history row.
func (m *Migrator) Migrate(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if _, ok := applied[migration.Version]; ok {
			continue
		}
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&schemaVersion{
				Version:     migration.Version,
				Description: migration.Description,
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration and returns it.
func (m *Migrator) Rollback(ctx context.Context) (*Status, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		row, ok := applied[migration.Version]
		if !ok {
			continue
		}
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := migration.Down(tx); err != nil {
				return err
			}
			return tx.Delete(&schemaVersion{}, migration.Version).Error
		})
		if err != nil {
			return nil, fmt.Errorf("rollback of migration %d failed: %w", migration.Version, err)
		}
		return &Status{
			Version:     migration.Version,
			Description: migration.Description,
			AppliedAt:   &row.AppliedAt,
		}, nil
	}
	return nil, ErrNothingApplied
}

// Status lists every known migration in version order.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(m.migrations))
	for _, migration := range m.migrations {
		status := Status{Version: migration.Version, Description: migration.Description}
		if row, ok := applied[migration.Version]; ok {
			status.AppliedAt = &row.AppliedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]schemaVersion, error) {
	db := m.db.WithContext(ctx)
	if err := db.AutoMigrate(&schemaVersion{}); err != nil {
		return nil, fmt.Errorf("failed to create schema version table: %w", err)
	}

	var rows []schemaVersion
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query schema versions: %w", err)
	}
	applied := make(map[int]schemaVersion, len(rows))
	for _, row := range rows {
		applied[row.Version] = row
	}
	return applied, nil
}

func catalogMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Initial catalog schema",
			Up: func(db *gorm.DB) error {
				return db.AutoMigrate(
					&models.Comic{},
					&models.Tag{},
					&models.Folder{},
					&models.ComicTag{},
					&models.ComicFolder{},
				)
			},
			Down: func(db *gorm.DB) error {
				return db.Migrator().DropTable(
					&models.ComicFolder{},
					&models.ComicTag{},
					&models.Folder{},
					&models.Tag{},
					&models.Comic{},
				)
			},
		},
		{
			Version:     2,
			Description: "Composite index for local provenance lookups",
			Up: func(db *gorm.DB) error {
				return db.Exec("CREATE INDEX IF NOT EXISTS idx_comics_local_source ON comics (local_source_folder, local_path)").Error
			},
			Down: func(db *gorm.DB) error {
				return db.Exec("DROP INDEX IF EXISTS idx_comics_local_source").Error
			},
		},
	}
}
