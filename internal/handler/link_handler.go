package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sube3494/shortlinks/internal/middleware"
	"github.com/Sube3494/shortlinks/internal/model"
	"github.com/Sube3494/shortlinks/internal/repository"
	"github.com/Sube3494/shortlinks/internal/service"
)

type CreateLinkRequest struct {
	URL        string `json:"url" binding:"required"`
	CustomCode string `json:"custom_code"`
}

type BatchCreateRequest struct {
	URLs []string `json:"urls" binding:"required"`
}

type LinkResponse struct {
	ShortCode    string     `json:"short_code"`
	ShortURL     string     `json:"short_url"`
	OriginalURL  string     `json:"original_url"`
	CreatedAt    time.Time  `json:"created_at"`
	ClickCount   int64      `json:"click_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
}

type StatsResponse struct {
	ShortCode    string     `json:"short_code"`
	OriginalURL  string     `json:"original_url"`
	ClickCount   int64      `json:"click_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type LinkHandler struct {
	service *service.LinkService
	baseURL string
	logger  *zap.Logger
}

func NewLinkHandler(service *service.LinkService, baseURL string) *LinkHandler {
	return &LinkHandler{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  zap.L().With(zap.String("component", "LinkHandler")),
	}
}

func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  "INVALID_JSON",
		})
		return
	}

	keyID := middleware.GetKeyIDFromContext(c)
	link, err := h.service.Create(c.Request.Context(), req.URL, req.CustomCode, keyID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(link))
}

func (h *LinkHandler) CreateBatch(c *gin.Context) {
	var req BatchCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  "INVALID_JSON",
		})
		return
	}

	keyID := middleware.GetKeyIDFromContext(c)
	links, failures := h.service.CreateBatch(c.Request.Context(), req.URLs, keyID)
	if len(links) == 0 && len(failures) > 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "No URL in the batch could be shortened",
			Code:    "BATCH_FAILED",
			Details: strings.Join(failures, "; "),
		})
		return
	}

	responses := make([]LinkResponse, 0, len(links))
	for i := range links {
		responses = append(responses, h.toResponse(&links[i]))
	}
	c.JSON(http.StatusCreated, gin.H{
		"links":  responses,
		"errors": failures,
	})
}

// Redirect serves the public short-code lookup. It bypasses
// authentication and bumps the click statistics.
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Short code is required",
			Code:  "MISSING_CODE",
		})
		return
	}

	target, err := h.service.Resolve(c.Request.Context(), code)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Redirect(http.StatusFound, target)
}

func (h *LinkHandler) GetInfo(c *gin.Context) {
	link, err := h.service.Info(c.Request.Context(), c.Param("code"), middleware.GetKeyIDFromContext(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(link))
}

func (h *LinkHandler) GetStats(c *gin.Context) {
	link, err := h.service.Info(c.Request.Context(), c.Param("code"), middleware.GetKeyIDFromContext(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		ShortCode:    link.ShortCode,
		OriginalURL:  link.OriginalURL,
		ClickCount:   link.ClickCount,
		CreatedAt:    link.CreatedAt,
		LastAccessed: link.LastAccessed,
	})
}

func (h *LinkHandler) ListLinks(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	links, err := h.service.List(c.Request.Context(), middleware.GetKeyIDFromContext(c), skip, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	responses := make([]LinkResponse, 0, len(links))
	for i := range links {
		responses = append(responses, h.toResponse(&links[i]))
	}
	c.JSON(http.StatusOK, responses)
}

func (h *LinkHandler) DeleteLink(c *gin.Context) {
	code := c.Param("code")
	err := h.service.Delete(c.Request.Context(), code, middleware.GetKeyIDFromContext(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Short link '" + code + "' deleted",
	})
}

func (h *LinkHandler) toResponse(link *model.ShortLink) LinkResponse {
	return LinkResponse{
		ShortCode:    link.ShortCode,
		ShortURL:     h.baseURL + "/" + link.ShortCode,
		OriginalURL:  link.OriginalURL,
		CreatedAt:    link.CreatedAt,
		ClickCount:   link.ClickCount,
		LastAccessed: link.LastAccessed,
	}
}

func (h *LinkHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid URL format",
			Code:  "INVALID_URL",
		})
	case errors.Is(err, service.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Custom code must be 6-10 alphanumeric characters",
			Code:  "INVALID_CODE",
		})
	case errors.Is(err, repository.ErrCodeExists):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "Short code already in use",
			Code:  "CODE_TAKEN",
		})
	case errors.Is(err, repository.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Short link not found",
			Code:  "LINK_NOT_FOUND",
		})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error: "This short link belongs to another API key",
			Code:  "FORBIDDEN",
		})
	case errors.Is(err, service.ErrCodeGenerationMax):
		h.logger.Error("Code generation retry budget exhausted", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Service temporarily unavailable",
			Code:  "CODE_GENERATION_FAILED",
		})
	case errors.Is(err, repository.ErrDatabaseError):
		h.logger.Error("Database error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Database error",
			Code:  "DB_ERROR",
		})
	default:
		h.logger.Error("Unexpected error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
