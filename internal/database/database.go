package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/rentals/internal/config"
)

func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())

	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection  TEXT        NOT NULL,
	id          TEXT        NOT NULL,
	seq         BIGSERIAL,
	data        JSONB       NOT NULL DEFAULT '{}',
	permissions TEXT[]      NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS documents_created_idx ON documents (collection, created_at);
CREATE INDEX IF NOT EXISTS documents_data_idx ON documents USING GIN (data jsonb_path_ops);
CREATE INDEX IF NOT EXISTS documents_permissions_idx ON documents USING GIN (permissions);
`

// Migrate creates the document table and the indexes the services rely on.
// The partial unique indexes are what actually prevent two active
// applications for the same tenant and listing, and two accounts sharing an
// email.
func Migrate(ctx context.Context, pool *pgxpool.Pool, collections config.Collections) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	apps := pgx.Identifier{collections.Applications + "_active_unique"}.Sanitize()
	index := fmt.Sprintf(`
		CREATE UNIQUE INDEX IF NOT EXISTS %s
		ON documents ((data->>'tenant_id'), (data->>'listing_id'))
		WHERE collection = %s AND data->>'status' IN ('pending', 'accepted')`,
		apps, quoteLiteral(collections.Applications))
	if _, err := pool.Exec(ctx, index); err != nil {
		return fmt.Errorf("creating active application index: %w", err)
	}

	users := pgx.Identifier{collections.Users + "_email_unique"}.Sanitize()
	index = fmt.Sprintf(`
		CREATE UNIQUE INDEX IF NOT EXISTS %s
		ON documents ((data->>'email'))
		WHERE collection = %s`,
		users, quoteLiteral(collections.Users))
	if _, err := pool.Exec(ctx, index); err != nil {
		return fmt.Errorf("creating user email index: %w", err)
	}

	return nil
}

func quoteLiteral(s string) string {
	out := []rune{'\''}
	for _, r := range s {
		if r == '\'' {
			out = append(out, '\'')
		}
		out = append(out, r)
	}
	return string(append(out, '\''))
}
