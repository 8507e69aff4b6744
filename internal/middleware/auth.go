package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sube3494/shortlinks/internal/metrics"
	"github.com/Sube3494/shortlinks/internal/model"
	"github.com/Sube3494/shortlinks/internal/service"
)

const (
	// HeaderAPIKey wins over the query parameter when both are present.
	HeaderAPIKey = "X-API-Key"
	QueryAPIKey  = "api_key"
	keyIDGinKey  = "api_key_id"
	keyModelKey  = "api_key"
)

// KeyAuthenticator is the slice of the credential store the Authenticator
// needs.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, secret string) (*model.APIKey, error)
	HasLiveCredentials(ctx context.Context) (bool, error)
}

// APIKeyAuth gates privileged routes. Three states:
//
//   - the store holds at least one live credential: the presented secret
//     must match the store, the static secret is never consulted;
//   - no live credentials but a legacy static secret is configured: exact
//     comparison against it;
//   - neither: every request passes (open access).
//
// Redirect lookups are wired outside this middleware entirely.
func APIKeyAuth(keys KeyAuthenticator, staticSecret string, guard *BruteforceGuard) gin.HandlerFunc {
	logger := zap.L().With(zap.String("component", "APIKeyAuth"))

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if banned, remaining := guard.Banned(clientIP); banned {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many failed authentication attempts",
				"code":        "AUTH_RATE_LIMITED",
				"retry_after": int(remaining.Seconds()),
			})
			c.Abort()
			return
		}

		secret := c.GetHeader(HeaderAPIKey)
		if secret == "" {
			secret = c.Query(QueryAPIKey)
		}

		hasLive, err := keys.HasLiveCredentials(c.Request.Context())
		if err != nil {
			logger.Error("Failed to inspect credential store", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
				"code":  "INTERNAL_ERROR",
			})
			c.Abort()
			return
		}

		switch {
		case hasLive:
			if secret == "" {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": "Missing API key: supply the X-API-Key header or the api_key query parameter",
					"code":  "MISSING_API_KEY",
				})
				c.Abort()
				return
			}

			key, err := keys.Authenticate(c.Request.Context(), secret)
			if err != nil {
				guard.RecordFailure(clientIP)
				if errors.Is(err, service.ErrKeyExpired) {
					c.JSON(http.StatusForbidden, gin.H{
						"error": "API key has expired",
						"code":  "API_KEY_EXPIRED",
					})
				} else {
					logger.Warn("Rejected API key", zap.String("ip", clientIP))
					c.JSON(http.StatusForbidden, gin.H{
						"error": "Invalid API key",
						"code":  "INVALID_API_KEY",
					})
				}
				c.Abort()
				return
			}

			c.Set(keyIDGinKey, key.ID)
			c.Set(keyModelKey, key)

		case staticSecret != "":
			if secret == "" {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": "Missing API key: supply the X-API-Key header or the api_key query parameter",
					"code":  "MISSING_API_KEY",
				})
				c.Abort()
				return
			}
			if subtle.ConstantTimeCompare([]byte(secret), []byte(staticSecret)) != 1 {
				guard.RecordFailure(clientIP)
				metrics.AuthAttemptsTotal.WithLabelValues("invalid").Inc()
				logger.Warn("Rejected static API key", zap.String("ip", clientIP))
				c.JSON(http.StatusForbidden, gin.H{
					"error": "Invalid API key",
					"code":  "INVALID_API_KEY",
				})
				c.Abort()
				return
			}
			metrics.AuthAttemptsTotal.WithLabelValues("ok").Inc()

		default:
			// No credentials anywhere: authentication is disabled.
		}

		c.Next()
	}
}

// GetKeyIDFromContext returns the id of the authenticated credential, or
// nil when the request came in through the static secret or open access.
func GetKeyIDFromContext(c *gin.Context) *int64 {
	value, exists := c.Get(keyIDGinKey)
	if !exists {
		return nil
	}
	id, ok := value.(int64)
	if !ok {
		return nil
	}
	return &id
}

// GetKeyFromContext returns the full credential record for the request,
// if one authenticated it.
func GetKeyFromContext(c *gin.Context) *model.APIKey {
	value, exists := c.Get(keyModelKey)
	if !exists {
		return nil
	}
	key, ok := value.(*model.APIKey)
	if !ok {
		return nil
	}
	return key
}
