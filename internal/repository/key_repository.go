package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Sube3494/shortlinks/internal/model"
)

const keyColumns = `id, secret, name, created_at, expires_at, revoked, last_used_at, use_count`

// KeyRepository defines storage operations for API credentials
type KeyRepository interface {
	Create(ctx context.Context, key *model.APIKey) error
	FindByID(ctx context.Context, id int64) (*model.APIKey, error)
	// List returns credentials newest first; revoked ones only when asked.
	List(ctx context.Context, includeRevoked bool) ([]model.APIKey, error)
	// ListUnrevoked returns every credential with revoked = false,
	// including expired ones; expiry is evaluated by the caller so the
	// comparison uses a single notion of "now".
	ListUnrevoked(ctx context.Context) ([]model.APIKey, error)
	Update(ctx context.Context, key *model.APIKey) error
	Revoke(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	// RecordUse atomically bumps use_count and stamps last_used_at.
	RecordUse(ctx context.Context, id int64) error
	ListExpired(ctx context.Context, now time.Time) ([]model.APIKey, error)
}

// PostgresKeyRepository implements KeyRepository using PostgreSQL
type PostgresKeyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresKeyRepository(db *pgxpool.Pool) *PostgresKeyRepository {
	return &PostgresKeyRepository{
		db:     db,
		logger: zap.L().With(zap.String("component", "PostgresKeyRepository")),
	}
}

func (r *PostgresKeyRepository) Create(ctx context.Context, key *model.APIKey) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `
		INSERT INTO api_keys (secret, name, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, key.Secret, key.Name, key.ExpiresAt).
		Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert API key", zap.Error(err), zap.String("name", key.Name))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return nil
}

func (r *PostgresKeyRepository) FindByID(ctx context.Context, id int64) (*model.APIKey, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	key := &model.APIKey{}
	err := r.db.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = $1`, id).Scan(
		&key.ID, &key.Secret, &key.Name, &key.CreatedAt,
		&key.ExpiresAt, &key.Revoked, &key.LastUsedAt, &key.UseCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		r.logger.Error("Database query error", zap.Error(err), zap.Int64("key_id", id))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return key, nil
}

func (r *PostgresKeyRepository) List(ctx context.Context, includeRevoked bool) ([]model.APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys`
	if !includeRevoked {
		query += ` WHERE revoked = FALSE`
	}
	query += ` ORDER BY created_at DESC`
	return r.queryKeys(ctx, query)
}

func (r *PostgresKeyRepository) ListUnrevoked(ctx context.Context) ([]model.APIKey, error) {
	return r.queryKeys(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE revoked = FALSE ORDER BY created_at DESC`)
}

func (r *PostgresKeyRepository) ListExpired(ctx context.Context, now time.Time) ([]model.APIKey, error) {
	return r.queryKeys(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE expires_at IS NOT NULL AND expires_at <= $1 ORDER BY created_at DESC`,
		now)
}

func (r *PostgresKeyRepository) queryKeys(ctx context.Context, query string, args ...any) ([]model.APIKey, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Database query error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	keys := []model.APIKey{}
	for rows.Next() {
		var key model.APIKey
		if err := rows.Scan(
			&key.ID, &key.Secret, &key.Name, &key.CreatedAt,
			&key.ExpiresAt, &key.Revoked, &key.LastUsedAt, &key.UseCount,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return keys, nil
}

// Update persists name and expiry changes.
func (r *PostgresKeyRepository) Update(ctx context.Context, key *model.APIKey) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET name = $1, expires_at = $2 WHERE id = $3`,
		key.Name, key.ExpiresAt, key.ID)
	if err != nil {
		r.logger.Error("Failed to update API key", zap.Error(err), zap.Int64("key_id", key.ID))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// Revoke flips the revoked flag. Revoking an already-revoked credential
// is a no-op that still succeeds.
func (r *PostgresKeyRepository) Revoke(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `UPDATE api_keys SET revoked = TRUE WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to revoke API key", zap.Error(err), zap.Int64("key_id", id))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}

	return nil
}

func (r *PostgresKeyRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete API key", zap.Error(err), zap.Int64("key_id", id))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// RecordUse bumps the usage statistics in one statement so concurrent
// authentications never lose an increment.
func (r *PostgresKeyRepository) RecordUse(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET use_count = use_count + 1, last_used_at = now() WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to record key use", zap.Error(err), zap.Int64("key_id", id))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}

	return nil
}
