package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campus-access-backend/config"
	"campus-access-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate runs AutoMigrate for all models and applies the access-control
// DDL. Split from Init so tests can run it against an in-memory SQLite.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Person{},
		&model.AttendanceRecord{},
		&model.PresenceRecord{},
		&model.GuardSession{},
		&model.ReconcileTask{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return ApplyAccessDDL(db)
}

// ApplyAccessDDL creates the partial unique indexes that back the two
// state invariants:
//
//   - at most one active guard session per checkpoint, so concurrent
//     session starts cannot both commit;
//   - at most one open presence record per person.
//
// Partial index syntax is shared by PostgreSQL and SQLite, so the same
// DDL serves production and the test database.
func ApplyAccessDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_guard_sessions_checkpoint_active " +
			"ON guard_sessions (checkpoint) WHERE active;",

		"CREATE UNIQUE INDEX IF NOT EXISTS uq_presence_records_person_inside " +
			"ON presence_records (national_id) WHERE inside;",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
