package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"imovel-monitor/internal/cleanup"
	"imovel-monitor/internal/models"
)

// CleanupService purges long-inactive listings
type CleanupService interface {
	PurgeInactive(ctx context.Context, cfg cleanup.Config) (*cleanup.Result, error)
	GetRecentDeleteLogs(ctx context.Context, limit int) ([]models.DeleteLog, error)
	GetDeleteStats(ctx context.Context) (*cleanup.DeleteStats, error)
}

// AdminHandler handles maintenance requests
type AdminHandler struct {
	cleanup  CleanupService
	defaults cleanup.Config
}

// NewAdminHandler creates a new admin handler. A nil service makes every
// cleanup route answer 501, since purging needs the MySQL/GORM store.
func NewAdminHandler(svc CleanupService, defaults cleanup.Config) *AdminHandler {
	return &AdminHandler{cleanup: svc, defaults: defaults}
}

func (h *AdminHandler) available(c *gin.Context) bool {
	if h.cleanup == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error": "Cleanup not available (MySQL/GORM required)",
		})
		return false
	}
	return true
}

// RunCleanup executes physical deletion of long-inactive listings
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req struct {
		RetentionDays    int   `json:"retention_days"`
		MaxDeletionCount int   `json:"max_deletion_count"`
		DryRun           *bool `json:"dry_run"`
	}
	// an empty body means "use the defaults"
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	cfg := h.defaults
	if req.RetentionDays > 0 {
		cfg.RetentionDays = req.RetentionDays
	}
	if req.MaxDeletionCount > 0 {
		cfg.MaxDeletionCount = req.MaxDeletionCount
	}
	if req.DryRun != nil {
		cfg.DryRun = *req.DryRun
	}

	logger.Infof("Running cleanup (retention: %d days, max: %d, dry-run: %v)",
		cfg.RetentionDays, cfg.MaxDeletionCount, cfg.DryRun)

	result, err := h.cleanup.PurgeInactive(c.Request.Context(), cfg)
	if err != nil {
		logger.Errorf("Cleanup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetDeleteLogs returns recent delete log entries
func (h *AdminHandler) GetDeleteLogs(c *gin.Context) {
	if !h.available(c) {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	logs, err := h.cleanup.GetRecentDeleteLogs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetDeleteStats returns purge statistics
func (h *AdminHandler) GetDeleteStats(c *gin.Context) {
	if !h.available(c) {
		return
	}

	stats, err := h.cleanup.GetDeleteStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
