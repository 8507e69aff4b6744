package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sube3494/shortlinks/internal/middleware"
)

// KeyHandler exposes credential self-inspection over HTTP. Credential
// management itself stays on the local admin channel (cmd/keyctl).
type KeyHandler struct {
	logger *zap.Logger
}

func NewKeyHandler() *KeyHandler {
	return &KeyHandler{
		logger: zap.L().With(zap.String("component", "KeyHandler")),
	}
}

// GetCurrentKeyInfo reports the credential that authenticated the request.
// In open mode (no credentials configured) it says so instead.
func (h *KeyHandler) GetCurrentKeyInfo(c *gin.Context) {
	key := middleware.GetKeyFromContext(c)
	if key == nil {
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
			"message":       "authentication is not enabled or a static key was used",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"id":            key.ID,
		"name":          key.Name,
		"secret_prefix": key.SecretPrefix(),
		"created_at":    key.CreatedAt,
		"expires_at":    key.ExpiresAt,
		"is_expired":    key.Expired(time.Now()),
		"use_count":     key.UseCount,
		"last_used_at":  key.LastUsedAt,
	})
}
