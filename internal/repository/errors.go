package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/errandhub/backend/internal/apperr"
)

const pgUniqueViolation = "23505"

// notFound translates pgx.ErrNoRows into apperr.ErrNotFound for the named entity.
func notFound(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", entity, apperr.ErrNotFound)
	}
	return err
}

// duplicate translates a unique violation into apperr.ErrConflict.
func duplicate(err error, entity string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s already exists: %w", entity, apperr.ErrConflict)
	}
	return err
}
