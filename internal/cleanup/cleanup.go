package cleanup

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"imovel-monitor/internal/logging"
	"imovel-monitor/internal/models"
)

var logger = logging.New("Cleanup")

// SearchRemover drops purged listings from the search index
type SearchRemover interface {
	RemoveListing(id string) error
}

// Service handles physical deletion of long-inactive listings
type Service struct {
	db     *gorm.DB
	search SearchRemover
	now    func() time.Time
}

// NewService creates a new cleanup service; search may be nil
func NewService(db *gorm.DB, search SearchRemover) *Service {
	return &Service{db: db, search: search, now: time.Now}
}

// Config holds configuration for a purge
type Config struct {
	RetentionDays    int  // days a listing stays inactive before it is deleted
	MaxDeletionCount int  // the purge aborts when more listings qualify
	DryRun           bool // only report what would be deleted
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		RetentionDays:    90,
		MaxDeletionCount: 10000,
	}
}

// Result holds the result of a purge
type Result struct {
	TargetCount     int       `json:"target_count"`
	DeletedCount    int       `json:"deleted_count"`
	ErrorCount      int       `json:"error_count"`
	DryRun          bool      `json:"dry_run"`
	ExecutedAt      time.Time `json:"executed_at"`
	DeletedListings []string  `json:"deleted_listings"`
	Errors          []string  `json:"errors,omitempty"`
}

// FindExpired returns inactive listings deactivated before the retention cutoff
func (s *Service) FindExpired(ctx context.Context, retentionDays int) ([]models.Listing, error) {
	var listings []models.Listing

	cutoff := s.now().AddDate(0, 0, -retentionDays)

	err := s.db.WithContext(ctx).
		Where("active = ? AND deactivated_at IS NOT NULL AND deactivated_at < ?", false, cutoff).
		Order("deactivated_at ASC").
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired listings: %w", err)
	}

	logger.Debugf("Found %d listings inactive since before %s", len(listings), cutoff.Format("2006-01-02"))
	return listings, nil
}

// PurgeInactive physically deletes expired listings. Each deletion and its
// DeleteLog row share one transaction; a failed listing is reported and skipped.
func (s *Service) PurgeInactive(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultConfig().RetentionDays
	}
	if cfg.MaxDeletionCount <= 0 {
		cfg.MaxDeletionCount = DefaultConfig().MaxDeletionCount
	}

	result := &Result{
		DryRun:          cfg.DryRun,
		ExecutedAt:      s.now(),
		DeletedListings: []string{},
	}

	expired, err := s.FindExpired(ctx, cfg.RetentionDays)
	if err != nil {
		return nil, err
	}
	result.TargetCount = len(expired)

	if result.TargetCount == 0 {
		logger.Infof("No expired listings found for deletion")
		return result, nil
	}

	if result.TargetCount > cfg.MaxDeletionCount {
		return nil, fmt.Errorf("safety check failed: %d listings exceed max deletion limit of %d",
			result.TargetCount, cfg.MaxDeletionCount)
	}

	logger.Infof("Starting cleanup: %d listings to delete (retention: %d days, dry-run: %v)",
		result.TargetCount, cfg.RetentionDays, cfg.DryRun)

	for _, l := range expired {
		if cfg.DryRun {
			logger.Infof("[DRY-RUN] Would delete listing %s (%s)", l.ID, l.Key())
			result.DeletedListings = append(result.DeletedListings, l.ID)
			result.DeletedCount++
			continue
		}

		if err := s.deleteOne(ctx, l); err != nil {
			msg := fmt.Sprintf("listing %s: %v", l.ID, err)
			logger.Errorf("%s", msg)
			result.Errors = append(result.Errors, msg)
			result.ErrorCount++
			continue
		}

		if s.search != nil {
			if err := s.search.RemoveListing(l.ID); err != nil {
				logger.Warnf("Failed to remove listing %s from search: %v", l.ID, err)
			}
		}

		result.DeletedListings = append(result.DeletedListings, l.ID)
		result.DeletedCount++
	}

	logger.Infof("Cleanup completed: %d/%d deleted, %d errors (dry-run: %v)",
		result.DeletedCount, result.TargetCount, result.ErrorCount, cfg.DryRun)

	return result, nil
}

func (s *Service) deleteOne(ctx context.Context, l models.Listing) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := models.DeleteLog{
			ListingID:    l.ID,
			Agency:       l.Agency,
			ExternalCode: l.ExternalCode,
			Title:        l.Title,
			Reason:       models.DeleteReasonExpired,
			DeletedAt:    s.now(),
		}
		if l.DeactivatedAt != nil {
			entry.DeactivatedAt = *l.DeactivatedAt
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("create delete log: %w", err)
		}
		if err := tx.Where("id = ?", l.ID).Delete(&models.Listing{}).Error; err != nil {
			return fmt.Errorf("delete listing: %w", err)
		}
		return nil
	})
}

// DeleteStats summarises purge history and what is waiting to be purged
type DeleteStats struct {
	TotalDeleted      int64            `json:"total_deleted"`
	ByReason          map[string]int64 `json:"by_reason"`
	DeletedLast30Days int64            `json:"deleted_last_30_days"`
	CurrentlyInactive int64            `json:"currently_inactive"`
}

// GetDeleteStats returns statistics about deleted listings
func (s *Service) GetDeleteStats(ctx context.Context) (*DeleteStats, error) {
	db := s.db.WithContext(ctx)
	stats := &DeleteStats{ByReason: map[string]int64{}}

	if err := db.Model(&models.DeleteLog{}).Count(&stats.TotalDeleted).Error; err != nil {
		return nil, err
	}

	var reasonCounts []struct {
		Reason string
		Count  int64
	}
	if err := db.Model(&models.DeleteLog{}).
		Select("reason, count(*) as count").
		Group("reason").
		Scan(&reasonCounts).Error; err != nil {
		return nil, err
	}
	for _, rc := range reasonCounts {
		stats.ByReason[rc.Reason] = rc.Count
	}

	since := s.now().AddDate(0, 0, -30)
	if err := db.Model(&models.DeleteLog{}).
		Where("deleted_at >= ?", since).
		Count(&stats.DeletedLast30Days).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.Listing{}).
		Where("active = ?", false).
		Count(&stats.CurrentlyInactive).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// GetRecentDeleteLogs returns recent delete log entries
func (s *Service) GetRecentDeleteLogs(ctx context.Context, limit int) ([]models.DeleteLog, error) {
	var logs []models.DeleteLog
	err := s.db.WithContext(ctx).Order("deleted_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
