package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"studio-booking/config"
)

// Open connects to PostgreSQL and makes sure the schema exists.
func Open(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	conn, err := sqlx.Open("postgres", cfg.DBConnString())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := CreateTables(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return conn, nil
}

// CreateTables creates the verification ledger and dead letter tables.
func CreateTables(ctx context.Context, conn *sqlx.DB) error {
	verificationTable := `
	CREATE TABLE IF NOT EXISTS payment_verifications (
		id TEXT PRIMARY KEY,
		student_name TEXT NOT NULL,
		student_email TEXT NOT NULL,
		amount NUMERIC(12,2) NOT NULL,
		confirmation_number TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL,
		verified_at TIMESTAMPTZ,
		class_details JSONB,
		package_details JSONB
	);`

	verificationIndex := `
	CREATE INDEX IF NOT EXISTS idx_payment_verifications_pending
		ON payment_verifications (created_at DESC) WHERE status = 'pending';`

	dlqTable := `
	CREATE TABLE IF NOT EXISTS dlq_messages (
		id SERIAL PRIMARY KEY,
		message_id TEXT UNIQUE NOT NULL,
		topic TEXT NOT NULL,
		key TEXT,
		value TEXT,
		error_message TEXT,
		retry_count INTEGER DEFAULT 0,
		resolved BOOLEAN DEFAULT FALSE,
		resolution_notes TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);`

	// Order matters: the index needs its table.
	statements := []struct{ name, sql string }{
		{"payment_verifications table", verificationTable},
		{"payment_verifications index", verificationIndex},
		{"dlq_messages table", dlqTable},
	}
	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt.sql); err != nil {
			return fmt.Errorf("error creating %s: %w", stmt.name, err)
		}
	}

	return nil
}
