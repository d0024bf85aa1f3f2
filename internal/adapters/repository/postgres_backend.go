package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/osamaflash/catalog/internal/domain/entities"
)

// PostgresBackend keeps each document as one row of the documents table.
// The body column is TEXT so the stored snapshot stays byte-for-byte what
// was written, indentation included.
type PostgresBackend struct {
	db *sqlx.DB
}

// NewPostgresBackend wraps an open connection pool.
func NewPostgresBackend(db *sqlx.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) Read(ctx context.Context, key entities.DocumentKey) ([]byte, error) {
	query := `SELECT body FROM documents WHERE key = $1`

	var body string
	err := b.db.GetContext(ctx, &body, query, string(key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentMissing
		}
		return nil, fmt.Errorf("select document: %w", err)
	}

	return []byte(body), nil
}

func (b *PostgresBackend) Write(ctx context.Context, key entities.DocumentKey, data []byte) error {
	query := `
		INSERT INTO documents (key, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`

	if _, err := b.db.ExecContext(ctx, query, string(key), string(data)); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (b *PostgresBackend) HealthCheck(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}
