package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrLinkNotFound  = errors.New("short link not found")
	ErrCodeExists    = errors.New("short code already exists")
	ErrKeyNotFound   = errors.New("API key not found")
	ErrDatabaseError = errors.New("database error")
)

// pgUniqueViolation is the PostgreSQL error code for a UNIQUE
// constraint violation (23505).
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
