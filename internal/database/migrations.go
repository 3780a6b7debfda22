package database

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/rmitchellscott/ditherbox/internal/logging"
)

// migrations are applied in order and recorded by ID. Never edit one that
// has shipped; append a new entry instead.
func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "202610010000_create_dither_jobs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&DitherJob{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("dither_jobs")
			},
		},
		{
			ID: "202610080000_add_dither_jobs_algorithm_created_index",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasIndex(&DitherJob{}, "idx_dither_jobs_algorithm_created") {
					return nil
				}
				return tx.Exec("CREATE INDEX idx_dither_jobs_algorithm_created ON dither_jobs (algorithm, created_at)").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropIndex(&DitherJob{}, "idx_dither_jobs_algorithm_created")
			},
		},
	}
}

// RunMigrations runs any pending database migrations using gormigrate
func RunMigrations(db *gorm.DB) error {
	logging.InfoWithComponent(logging.ComponentDatabase, "Running database migrations")

	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations())
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logging.InfoWithComponent(logging.ComponentDatabase, "Database migrations completed")
	return nil
}
