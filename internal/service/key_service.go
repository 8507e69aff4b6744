package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Sube3494/shortlinks/internal/metrics"
	"github.com/Sube3494/shortlinks/internal/model"
	"github.com/Sube3494/shortlinks/internal/repository"
)

var (
	ErrUnauthorized         = errors.New("invalid API key")
	ErrKeyExpired           = errors.New("API key has expired")
	ErrConfirmationRequired = errors.New("hard delete requires explicit confirmation")
)

// secretByteLength yields a 64-character URL-safe token, long enough to
// make guessing infeasible.
const secretByteLength = 48

// KeyService owns the API credential lifecycle: creation, expiry
// evaluation, revocation, hard deletion and authentication.
type KeyService struct {
	repo   repository.KeyRepository
	links  repository.LinkRepository
	logger *zap.Logger
}

func NewKeyService(repo repository.KeyRepository, links repository.LinkRepository) *KeyService {
	return &KeyService{
		repo:   repo,
		links:  links,
		logger: zap.L().With(zap.String("component", "KeyService")),
	}
}

// Create generates a fresh credential. The returned APIKey carries the
// plaintext secret; it is shown to the caller once and is not retrievable
// afterwards. expiresInDays nil or 0 means the key never expires.
func (s *KeyService) Create(ctx context.Context, name string, expiresInDays *int) (*model.APIKey, error) {
	if name == "" {
		name = "unnamed"
	}

	key := &model.APIKey{
		Secret: generateSecret(),
		Name:   name,
	}
	if expiresInDays != nil && *expiresInDays > 0 {
		expiresAt := time.Now().AddDate(0, 0, *expiresInDays)
		key.ExpiresAt = &expiresAt
	}

	if err := s.repo.Create(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("API key created",
		zap.Int64("key_id", key.ID), zap.String("name", key.Name))
	return key, nil
}

// List returns credential records newest first; revoked ones are excluded
// unless requested.
func (s *KeyService) List(ctx context.Context, includeRevoked bool) ([]model.APIKey, error) {
	return s.repo.List(ctx, includeRevoked)
}

func (s *KeyService) Get(ctx context.Context, id int64) (*model.APIKey, error) {
	return s.repo.FindByID(ctx, id)
}

// Update applies a partial update. A nil field is left unchanged;
// expiresInDays of 0 clears the expiry, a positive value recomputes it
// relative to now.
func (s *KeyService) Update(ctx context.Context, id int64, name *string, expiresInDays *int) (*model.APIKey, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != nil && *name != "" {
		key.Name = *name
	}
	if expiresInDays != nil {
		if *expiresInDays > 0 {
			expiresAt := time.Now().AddDate(0, 0, *expiresInDays)
			key.ExpiresAt = &expiresAt
		} else {
			key.ExpiresAt = nil
		}
	}

	if err := s.repo.Update(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("API key updated", zap.Int64("key_id", id))
	return key, nil
}

// Revoke permanently disqualifies the credential from authenticating.
// Revoking twice succeeds; the record stays around for listings until a
// hard delete.
func (s *KeyService) Revoke(ctx context.Context, id int64) error {
	if err := s.repo.Revoke(ctx, id); err != nil {
		return err
	}
	s.logger.Info("API key revoked", zap.Int64("key_id", id))
	return nil
}

// Delete removes the credential record irreversibly. The confirmation
// flag is a safety gate: without it nothing is touched.
func (s *KeyService) Delete(ctx context.Context, id int64, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("API key deleted", zap.Int64("key_id", id))
	return nil
}

// Authenticate resolves a presented secret against the stored credentials.
// Comparison is constant-time. A match bumps the usage statistics
// atomically; an expired or revoked credential never authenticates.
func (s *KeyService) Authenticate(ctx context.Context, secret string) (*model.APIKey, error) {
	keys, err := s.repo.ListUnrevoked(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range keys {
		key := &keys[i]
		if subtle.ConstantTimeCompare([]byte(key.Secret), []byte(secret)) != 1 {
			continue
		}
		if key.Expired(now) {
			metrics.AuthAttemptsTotal.WithLabelValues("expired").Inc()
			return nil, ErrKeyExpired
		}
		if err := s.repo.RecordUse(ctx, key.ID); err != nil {
			s.logger.Warn("Failed to record key use", zap.Error(err), zap.Int64("key_id", key.ID))
		}
		metrics.AuthAttemptsTotal.WithLabelValues("ok").Inc()
		return key, nil
	}

	metrics.AuthAttemptsTotal.WithLabelValues("invalid").Inc()
	return nil, ErrUnauthorized
}

// HasLiveCredentials reports whether any credential can currently
// authenticate. The Authenticator uses this to pick between database
// credentials, the legacy static secret and open access.
func (s *KeyService) HasLiveCredentials(ctx context.Context) (bool, error) {
	keys, err := s.repo.ListUnrevoked(ctx)
	if err != nil {
		return false, err
	}

	now := time.Now()
	for i := range keys {
		if keys[i].Live(now) {
			return true, nil
		}
	}
	return false, nil
}

// CleanupExpired revokes every expired credential and deletes the links
// it created. Returns how many keys were revoked and links removed.
func (s *KeyService) CleanupExpired(ctx context.Context) (int, int64, error) {
	expired, err := s.repo.ListExpired(ctx, time.Now())
	if err != nil {
		return 0, 0, err
	}

	revoked := 0
	var linksDeleted int64
	for i := range expired {
		key := &expired[i]

		deleted, err := s.links.DeleteByKeyID(ctx, key.ID)
		if err != nil {
			return revoked, linksDeleted, err
		}
		linksDeleted += deleted

		if !key.Revoked {
			if err := s.repo.Revoke(ctx, key.ID); err != nil {
				return revoked, linksDeleted, err
			}
			revoked++
		}

		s.logger.Info("Expired API key cleaned up",
			zap.Int64("key_id", key.ID),
			zap.String("name", key.Name),
			zap.Int64("links_deleted", deleted))
	}

	return revoked, linksDeleted, nil
}

func generateSecret() string {
	buf := make([]byte, secretByteLength)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to generate random secret: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
