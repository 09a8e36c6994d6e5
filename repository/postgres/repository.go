package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/safariworks/tourbooking/config"
	"github.com/safariworks/tourbooking/model"
	"github.com/safariworks/tourbooking/repository"
)

type PostgresBookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(cfg *config.Database) (*PostgresBookingRepository, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	// Auto-migrate booking engine tables
	if err := db.AutoMigrate(
		&model.AvailabilitySlot{},
		&model.Booking{},
		&model.Payment{},
		&model.OutboxEvent{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &PostgresBookingRepository{db: db}, nil
}

// InTransaction runs fn inside a database transaction. Serialization
// failures and deadlocks are reported as model.ErrConcurrencyConflict so the
// ledger can retry the whole unit of work a bounded number of times.
func (r *PostgresBookingRepository) InTransaction(ctx context.Context, fn func(tx repository.BookingRepository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PostgresBookingRepository{db: tx})
	})
	if err != nil && isLockConflict(err) {
		return fmt.Errorf("%w: %v", model.ErrConcurrencyConflict, err)
	}
	return err
}

// isLockConflict detects postgres serialization failures (40001) and
// deadlocks (40P01), which abort the transaction but are safe to retry.
func isLockConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 40001") ||
		strings.Contains(msg, "SQLSTATE 40P01") ||
		strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "deadlock detected")
}

// GetDB returns the database instance for health checks
func (r *PostgresBookingRepository) GetDB() *gorm.DB {
	return r.db
}
