package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/fetchvault/internal/domain"
	"github.com/andresuchdata/fetchvault/internal/repository"
	"github.com/andresuchdata/fetchvault/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type DownloadHandler struct {
	downloadService *service.DownloadService
}

func NewDownloadHandler(downloadService *service.DownloadService) *DownloadHandler {
	return &DownloadHandler{downloadService: downloadService}
}

type createDownloadRequest struct {
	URL string `json:"url"`
}

// CreateDownload starts a new download job
func (h *DownloadHandler) CreateDownload(c *gin.Context) {
	var req createDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL is required"})
		return
	}

	d, err := h.downloadService.CreateDownload(c.Request.Context(), req.URL)
	if err != nil {
		if msg, ok := domain.InputMessage(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		log.Error().Err(err).Str("url", req.URL).Msg("failed to create download")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start download"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"downloadId": d.DownloadID,
		"message":    "Download started",
		"status":     d.Status,
	})
}

// GetDownload returns a job with a fresh link once it has completed
func (h *DownloadHandler) GetDownload(c *gin.Context) {
	id := c.Param("id")

	view, err := h.downloadService.GetDownload(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Download not found"})
			return
		}
		log.Error().Err(err).Str("download_id", id).Msg("failed to get download")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get download"})
		return
	}

	c.JSON(http.StatusOK, view)
}

// ConfirmDownload counts a user download and returns the link to use
func (h *DownloadHandler) ConfirmDownload(c *gin.Context) {
	id := c.Param("id")

	result, err := h.downloadService.ConfirmDownload(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Download not found or not completed"})
			return
		}
		log.Error().Err(err).Str("download_id", id).Msg("failed to confirm download")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate download link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"downloadUrl":   result.DownloadURL,
		"downloadCount": result.DownloadCount,
	})
}

// ListDownloads returns the most recent jobs
func (h *DownloadHandler) ListDownloads(c *gin.Context) {
	limit := parsePositiveIntWithDefault(c.Query("limit"), repository.DefaultListLimit)

	downloads, err := h.downloadService.ListDownloads(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list downloads")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list downloads"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"downloads": downloads})
}

func parsePositiveIntWithDefault(value string, fallback int) int {
	if fallback <= 0 {
		fallback = repository.DefaultListLimit
	}
	if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && v > 0 {
		return v
	}
	return fallback
}
