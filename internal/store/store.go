// Package store is the Postgres-backed document and object store, plus an
// in-memory twin with the same method set.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"appointment-scheduler/internal/apperr"
)

// ErrDuplicate marks a unique-key violation inside a write error.
var ErrDuplicate = errors.New("duplicate")

// ErrTokenRevoked marks an attempt to rotate an already rotated refresh token.
var ErrTokenRevoked = errors.New("refresh token revoked")

type Store struct {
	pool      *pgxpool.Pool
	publicURL string
}

// New wraps pool. publicURL prefixes the durable URLs of stored media.
func New(pool *pgxpool.Pool, publicURL string) *Store {
	return &Store{pool: pool, publicURL: strings.TrimRight(publicURL, "/")}
}

// Migrate applies the schema file at path. A missing file is not an error.
func (s *Store) Migrate(ctx context.Context, path string) (bool, error) {
	sql, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
		return false, fmt.Errorf("migrate: %w", err)
	}
	return true, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func readErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(op)
	}
	return apperr.Read(op, err)
}

func writeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Write(op, ErrDuplicate)
	}
	return apperr.Write(op, err)
}

func mediaURL(base, key string) string {
	return base + "/media/" + key
}
