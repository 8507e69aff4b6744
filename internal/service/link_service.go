package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Sube3494/shortlinks/internal/metrics"
	"github.com/Sube3494/shortlinks/internal/model"
	"github.com/Sube3494/shortlinks/internal/repository"
)

var (
	ErrInvalidURL        = errors.New("invalid URL format")
	ErrInvalidCode       = errors.New("invalid custom code")
	ErrCodeGenerationMax = errors.New("failed to generate unique code after max attempts")
	ErrForbidden         = errors.New("link belongs to another API key")
)

const (
	codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// Generated codes are 6 symbols from a 62-symbol alphabet: ~56.8e9
	// combinations, so maxCodeAttempts redraws are effectively never
	// exhausted at realistic volumes. The cap only turns an unbounded
	// loop into an explicit failure.
	generatedCodeLength = 6
	maxCodeAttempts     = 10

	customCodeMinLength = 6
	customCodeMaxLength = 10

	defaultListLimit = 100
	maxListLimit     = 1000
)

// LinkService owns short-code allocation and every link operation
type LinkService struct {
	repo   repository.LinkRepository
	logger *zap.Logger
}

func NewLinkService(repo repository.LinkRepository) *LinkService {
	return &LinkService{
		repo:   repo,
		logger: zap.L().With(zap.String("component", "LinkService")),
	}
}

// Create validates and normalizes the target URL, allocates a short code
// (caller-supplied or generated) and persists the link. Insertion doubles
// as the uniqueness check: the repository reports a collision and
// generated codes are simply redrawn.
func (s *LinkService) Create(ctx context.Context, rawURL, customCode string, keyID *int64) (*model.ShortLink, error) {
	target := normalizeURL(rawURL)
	if !isValidURL(target) {
		return nil, ErrInvalidURL
	}

	if customCode != "" {
		if err := validateCustomCode(customCode); err != nil {
			return nil, err
		}
		link := &model.ShortLink{
			ShortCode:      customCode,
			OriginalURL:    target,
			CreatedByKeyID: keyID,
		}
		if err := s.repo.Create(ctx, link); err != nil {
			if errors.Is(err, repository.ErrCodeExists) {
				metrics.LinkCreationsTotal.WithLabelValues("conflict").Inc()
			}
			return nil, err
		}
		s.logger.Info("Short link created",
			zap.String("code", link.ShortCode), zap.Bool("custom", true))
		metrics.LinkCreationsTotal.WithLabelValues("created").Inc()
		return link, nil
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		link := &model.ShortLink{
			ShortCode:      generateCode(generatedCodeLength),
			OriginalURL:    target,
			CreatedByKeyID: keyID,
		}
		err := s.repo.Create(ctx, link)
		if err == nil {
			s.logger.Info("Short link created",
				zap.String("code", link.ShortCode), zap.Bool("custom", false))
			metrics.LinkCreationsTotal.WithLabelValues("created").Inc()
			return link, nil
		}
		if errors.Is(err, repository.ErrCodeExists) {
			s.logger.Warn("Short code collision, redrawing",
				zap.String("code", link.ShortCode), zap.Int("attempt", attempt+1))
			continue
		}
		return nil, err
	}

	metrics.LinkCreationsTotal.WithLabelValues("exhausted").Inc()
	return nil, ErrCodeGenerationMax
}

// CreateBatch shortens several URLs in one call. Failures are collected
// per URL instead of aborting the whole batch.
func (s *LinkService) CreateBatch(ctx context.Context, rawURLs []string, keyID *int64) ([]model.ShortLink, []string) {
	links := []model.ShortLink{}
	failures := []string{}

	for i, rawURL := range rawURLs {
		link, err := s.Create(ctx, strings.TrimSpace(rawURL), "", keyID)
		if err != nil {
			failures = append(failures, fmt.Sprintf("url %d: %v", i+1, err))
			continue
		}
		links = append(links, *link)
	}

	return links, failures
}

// Resolve serves a redirect lookup: it returns the target URL and, as a
// side effect, bumps the click count and last_accessed stamp.
func (s *LinkService) Resolve(ctx context.Context, code string) (string, error) {
	target, err := s.repo.Touch(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			metrics.RedirectsTotal.WithLabelValues("not_found").Inc()
		} else {
			metrics.RedirectsTotal.WithLabelValues("error").Inc()
		}
		return "", err
	}

	metrics.RedirectsTotal.WithLabelValues("ok").Inc()
	return target, nil
}

// Info is the read-only counterpart of Resolve: it never touches the
// click statistics.
func (s *LinkService) Info(ctx context.Context, code string, keyID *int64) (*model.ShortLink, error) {
	link, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(link, keyID); err != nil {
		return nil, err
	}
	return link, nil
}

// List returns links newest first. An authenticated key only sees its own.
func (s *LinkService) List(ctx context.Context, keyID *int64, skip, limit int) ([]model.ShortLink, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.List(ctx, keyID, skip, limit)
}

// Delete removes a link permanently; its code becomes reusable.
func (s *LinkService) Delete(ctx context.Context, code string, keyID *int64) error {
	link, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := checkOwnership(link, keyID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, code); err != nil {
		return err
	}

	s.logger.Info("Short link deleted", zap.String("code", code))
	return nil
}

// checkOwnership enforces that an authenticated key only operates on links
// it created. Unauthenticated (open mode) requests see everything.
func checkOwnership(link *model.ShortLink, keyID *int64) error {
	if keyID == nil {
		return nil
	}
	if link.CreatedByKeyID == nil || *link.CreatedByKeyID != *keyID {
		return ErrForbidden
	}
	return nil
}

func generateCode(length int) string {
	code := make([]byte, length)
	for i := 0; i < length; i++ {
		randomIndex, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			panic(fmt.Sprintf("failed to generate random number: %v", err))
		}
		code[i] = codeAlphabet[randomIndex.Int64()]
	}
	return string(code)
}

func validateCustomCode(code string) error {
	if len(code) < customCodeMinLength || len(code) > customCodeMaxLength {
		return ErrInvalidCode
	}
	for _, char := range code {
		if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9')) {
			return ErrInvalidCode
		}
	}
	return nil
}

// normalizeURL ensures a scheme prefix and strips escape characters that
// commonly leak in from malformed JSON payloads.
func normalizeURL(rawURL string) string {
	cleaned := strings.NewReplacer(`\?`, "?", `\=`, "=", `\&`, "&").Replace(strings.TrimSpace(rawURL))
	if cleaned == "" {
		return cleaned
	}
	if !strings.HasPrefix(cleaned, "http://") && !strings.HasPrefix(cleaned, "https://") {
		return "https://" + cleaned
	}
	return cleaned
}

func isValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	return parsed.Scheme != "" && parsed.Host != ""
}
