package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Sube3494/shortlinks/internal/metrics"
	"github.com/Sube3494/shortlinks/internal/model"
)

const (
	cacheTimeout   = 24 * time.Hour
	dbTimeout      = 5 * time.Second
	cacheKeyPrefix = "link:"
)

// LinkRepository defines storage operations for short links
type LinkRepository interface {
	// Create inserts the link. A short-code collision is reported
	// as ErrCodeExists so the caller can redraw.
	Create(ctx context.Context, link *model.ShortLink) error
	FindByCode(ctx context.Context, code string) (*model.ShortLink, error)
	// Touch performs the redirect lookup: it atomically increments the
	// click count, stamps last_accessed and returns the target URL.
	Touch(ctx context.Context, code string) (string, error)
	List(ctx context.Context, keyID *int64, skip, limit int) ([]model.ShortLink, error)
	Delete(ctx context.Context, code string) error
	// DeleteByKeyID removes every link created by the given key and
	// returns how many rows were deleted.
	DeleteByKeyID(ctx context.Context, keyID int64) (int64, error)
}

// PostgresLinkRepository implements LinkRepository using PostgreSQL,
// with an optional Redis cache in front of redirect lookups
type PostgresLinkRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewPostgresLinkRepository creates a new PostgresLinkRepository.
// redisClient may be nil; lookups then go straight to the database.
func NewPostgresLinkRepository(db *pgxpool.Pool, redisClient *redis.Client) *PostgresLinkRepository {
	return &PostgresLinkRepository{
		db:          db,
		redisClient: redisClient,
		logger:      zap.L().With(zap.String("component", "PostgresLinkRepository")),
	}
}

// Create inserts a new short link. The uniqueness check and the insert are
// a single atomic unit: the UNIQUE constraint on short_code decides, and a
// violation comes back as ErrCodeExists.
func (r *PostgresLinkRepository) Create(ctx context.Context, link *model.ShortLink) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `
		INSERT INTO shortlinks (short_code, original_url, created_by_key_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, link.ShortCode, link.OriginalURL, link.CreatedByKeyID).
		Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		r.logger.Error("Failed to insert link", zap.Error(err), zap.String("code", link.ShortCode))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return nil
}

// FindByCode retrieves a link by its short code without touching the
// access statistics.
func (r *PostgresLinkRepository) FindByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `
		SELECT id, short_code, original_url, created_at, click_count, last_accessed, created_by_key_id
		FROM shortlinks WHERE short_code = $1`

	link := &model.ShortLink{}
	err := r.db.QueryRow(ctx, query, code).Scan(
		&link.ID, &link.ShortCode, &link.OriginalURL,
		&link.CreatedAt, &link.ClickCount, &link.LastAccessed, &link.CreatedByKeyID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		r.logger.Error("Database query error", zap.Error(err), zap.String("code", code))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return link, nil
}

// Touch serves a redirect lookup. The click increment and last_accessed
// stamp are one UPDATE statement, so concurrent redirects never lose an
// increment. The target URL is cached; a cache hit still runs the UPDATE.
func (r *PostgresLinkRepository) Touch(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	touch := `
		UPDATE shortlinks
		SET click_count = click_count + 1, last_accessed = now()
		WHERE short_code = $1`

	if r.redisClient != nil {
		cached, err := r.redisClient.Get(ctx, cacheKeyPrefix+code).Result()
		if err == nil {
			metrics.CacheHitsTotal.Inc()
			tag, err := r.db.Exec(ctx, touch, code)
			if err != nil {
				r.logger.Error("Failed to record click", zap.Error(err), zap.String("code", code))
				return "", fmt.Errorf("%w: %v", ErrDatabaseError, err)
			}
			if tag.RowsAffected() == 0 {
				// Deleted underneath the cache entry.
				r.redisClient.Del(ctx, cacheKeyPrefix+code)
				return "", ErrLinkNotFound
			}
			return cached, nil
		}
		if err != redis.Nil {
			r.logger.Warn("Cache error", zap.Error(err), zap.String("code", code))
		}
		metrics.CacheMissesTotal.Inc()
	}

	var target string
	err := r.db.QueryRow(ctx, touch+" RETURNING original_url", code).Scan(&target)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrLinkNotFound
		}
		r.logger.Error("Failed to record click", zap.Error(err), zap.String("code", code))
		return "", fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if r.redisClient != nil {
		if err := r.redisClient.Set(ctx, cacheKeyPrefix+code, target, cacheTimeout).Err(); err != nil {
			r.logger.Warn("Failed to cache link", zap.Error(err), zap.String("code", code))
		}
	}

	return target, nil
}

// List returns links ordered by creation time, newest first. When keyID is
// set only links created by that key are returned.
func (r *PostgresLinkRepository) List(ctx context.Context, keyID *int64, skip, limit int) ([]model.ShortLink, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `
		SELECT id, short_code, original_url, created_at, click_count, last_accessed, created_by_key_id
		FROM shortlinks`
	args := []any{}
	if keyID != nil {
		query += ` WHERE created_by_key_id = $1`
		args = append(args, *keyID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC OFFSET $%d LIMIT $%d`, len(args)+1, len(args)+2)
	args = append(args, skip, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Database query error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	links := []model.ShortLink{}
	for rows.Next() {
		var link model.ShortLink
		if err := rows.Scan(
			&link.ID, &link.ShortCode, &link.OriginalURL,
			&link.CreatedAt, &link.ClickCount, &link.LastAccessed, &link.CreatedByKeyID,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return links, nil
}

// Delete removes a link permanently and evicts its cache entry. The code
// becomes available for reuse.
func (r *PostgresLinkRepository) Delete(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM shortlinks WHERE short_code = $1`, code)
	if err != nil {
		r.logger.Error("Failed to delete link", zap.Error(err), zap.String("code", code))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	if r.redisClient != nil {
		if err := r.redisClient.Del(ctx, cacheKeyPrefix+code).Err(); err != nil {
			r.logger.Warn("Failed to evict cache entry", zap.Error(err), zap.String("code", code))
		}
	}

	return nil
}

// DeleteByKeyID removes all links created by the given key. Cache entries
// for those codes are evicted individually.
func (r *PostgresLinkRepository) DeleteByKeyID(ctx context.Context, keyID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx,
		`DELETE FROM shortlinks WHERE created_by_key_id = $1 RETURNING short_code`, keyID)
	if err != nil {
		r.logger.Error("Failed to delete links by key", zap.Error(err), zap.Int64("key_id", keyID))
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var deleted int64
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		deleted++
		if r.redisClient != nil {
			r.redisClient.Del(ctx, cacheKeyPrefix+code)
		}
	}
	if err := rows.Err(); err != nil {
		return deleted, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return deleted, nil
}
