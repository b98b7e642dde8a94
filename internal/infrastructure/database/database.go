// Package database owns the Postgres connection pool and schema
// migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/custody-service/custody_service/internal/infrastructure/config"
)

// Connection attempts run through a breaker so a flapping database fails
// fast instead of stacking dial attempts on top of each other.
var breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
	Name:        "postgres",
	MaxRequests: 3,
	Interval:    10 * time.Second,
	Timeout:     30 * time.Second,
	ReadyToTrip: func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures > 5
	},
})

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnLifetimeSec = 300
)

// NewConnection opens the pool, applies the configured limits and verifies
// the database is reachable before returning.
func NewConnection(cfg config.DatabaseConfig) (*sql.DB, error) {
	out, err := breaker.Execute(func() (interface{}, error) {
		db, err := sql.Open("postgres", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		maxOpen := cfg.MaxOpenConns
		if maxOpen == 0 {
			maxOpen = defaultMaxOpenConns
		}
		maxIdle := cfg.MaxIdleConns
		if maxIdle == 0 {
			maxIdle = defaultMaxIdleConns
		}
		lifetime := cfg.ConnMaxLifetime
		if lifetime == 0 {
			lifetime = defaultConnLifetimeSec
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxIdle)
		db.SetConnMaxLifetime(time.Duration(lifetime) * time.Second)
		db.SetConnMaxIdleTime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		return db, nil
	})
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}

	return out.(*sql.DB), nil
}

// RunMigrations applies every pending migration from the migrations
// directory. Already being up to date is not an error.
func RunMigrations(databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
