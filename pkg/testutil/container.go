// Package testutil provides testing utilities for the pharmacy service.
// It includes testcontainers for PostgreSQL, sqlmock factories, and
// schema setup helpers for the integration suite.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "pharmstock_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "pharmstock_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreatePharmacySchema creates the pharmacy tables used by the integration suite.
// It mirrors the production schema closely enough for repository-level tests.
func (c *PostgresContainer) CreatePharmacySchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS medicines (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			code VARCHAR(100) NOT NULL,
			name VARCHAR(255) NOT NULL,
			form VARCHAR(100) NOT NULL DEFAULT '',
			strength VARCHAR(100) NOT NULL DEFAULT '',
			reorder_threshold INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT medicines_medicine_code_unique UNIQUE (code)
		);

		CREATE TABLE IF NOT EXISTS medicine_batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			medicine_id UUID NOT NULL REFERENCES medicines(id),
			lot_number VARCHAR(100) NOT NULL,
			expiry_date DATE NOT NULL,
			quantity_received INTEGER NOT NULL,
			quantity_remaining INTEGER NOT NULL,
			unit_cost NUMERIC(12,2) NOT NULL DEFAULT 0,
			selling_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			location VARCHAR(255),
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT batches_quantity_remaining_range
				CHECK (quantity_remaining >= 0 AND quantity_remaining <= quantity_received),
			CONSTRAINT batches_status_valid
				CHECK (status IN ('active', 'depleted', 'expired', 'damaged'))
		);

		CREATE INDEX IF NOT EXISTS idx_batches_medicine_expiry
			ON medicine_batches (medicine_id, expiry_date, created_at);

		CREATE TABLE IF NOT EXISTS stock_movements (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			medicine_id UUID NOT NULL REFERENCES medicines(id),
			batch_id UUID REFERENCES medicine_batches(id),
			movement_type VARCHAR(20) NOT NULL,
			direction VARCHAR(3) NOT NULL,
			quantity INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			reference VARCHAR(255),
			performed_by VARCHAR(255) NOT NULL,
			performed_by_name VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT movements_quantity_positive CHECK (quantity > 0),
			CONSTRAINT movements_movement_type_valid
				CHECK (movement_type IN ('IN', 'OUT', 'ADJUSTMENT', 'DAMAGED', 'EXPIRED')),
			CONSTRAINT movements_direction_valid CHECK (direction IN ('in', 'out'))
		);

		CREATE INDEX IF NOT EXISTS idx_movements_medicine_created
			ON stock_movements (medicine_id, created_at DESC);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create pharmacy schema: %w", err)
	}

	return nil
}
