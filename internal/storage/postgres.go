package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/deusflow/ainews/internal/logger"
)

// PostgresRecipients reads the mailing list from a recipients table.
type PostgresRecipients struct {
	db *sql.DB
}

// NewPostgresRecipients connects, pings and makes sure the table exists.
func NewPostgresRecipients(ctx context.Context, connectionString string) (*PostgresRecipients, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresRecipients{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("recipient store connected", "database", MaskDSN(connectionString))
	return store, nil
}

func (pr *PostgresRecipients) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS recipients (
		id SERIAL PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_recipients_active ON recipients(active);
	`
	if _, err := pr.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Recipients returns every active address, cleaned and de-duplicated.
func (pr *PostgresRecipients) Recipients(ctx context.Context) ([]string, error) {
	rows, err := pr.db.QueryContext(ctx, `SELECT email FROM recipients WHERE active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return CleanAddresses(emails), nil
}

// Add inserts or reactivates an address.
func (pr *PostgresRecipients) Add(ctx context.Context, email string) error {
	_, err := pr.db.ExecContext(ctx,
		`INSERT INTO recipients (email, active) VALUES ($1, TRUE)
		 ON CONFLICT (email) DO UPDATE SET active = TRUE`, email)
	if err != nil {
		return fmt.Errorf("failed to add recipient: %w", err)
	}
	return nil
}

// Deactivate marks an address as unsubscribed.
func (pr *PostgresRecipients) Deactivate(ctx context.Context, email string) error {
	if _, err := pr.db.ExecContext(ctx, `UPDATE recipients SET active = FALSE WHERE email = $1`, email); err != nil {
		return fmt.Errorf("failed to deactivate recipient: %w", err)
	}
	return nil
}

func (pr *PostgresRecipients) Close() error {
	if pr.db != nil {
		return pr.db.Close()
	}
	return nil
}
