package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"imovel-monitor/internal/models"
)

type GormDB struct {
	db *gorm.DB
}

func NewGormDB(host, port, user, password, dbname string) (*GormDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	db, err := openGorm(mysql.Open(dsn), logger.Warn)
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return &GormDB{db: db}, nil
}

func openGorm(dialector gorm.Dialector, level logger.LogLevel) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(level),
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.Listing{},
		&models.RunRecord{},
		&models.DeleteLog{},
	)
}

// FindByKey looks a listing up by its natural key, active or not
func (gdb *GormDB) FindByKey(ctx context.Context, key models.ListingKey) (*models.Listing, error) {
	var l models.Listing
	err := gdb.db.WithContext(ctx).
		Where("agency = ? AND external_code = ? AND deal_type = ?", key.Agency, key.ExternalCode, key.DealType).
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Insert creates the listing; an existing key is left untouched
func (gdb *GormDB) Insert(ctx context.Context, l *models.Listing) (bool, error) {
	l.EnsureID()
	result := gdb.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(l)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// applyFilters adds the WHERE clauses for f (MySQL syntax)
func applyFilters(q *gorm.DB, f ListingFilters) *gorm.DB {
	if !f.IncludeInactive {
		q = q.Where("active = ?", true)
	}
	if f.DealType != "" {
		q = q.Where("deal_type = ?", f.DealType)
	}
	if f.PropertyType != "" {
		q = q.Where("LOWER(property_type) = LOWER(?)", f.PropertyType)
	}
	if f.Agency != "" {
		q = q.Where("LOWER(agency) = LOWER(?)", f.Agency)
	}
	if f.Neighborhood != "" {
		like := "%" + f.Neighborhood + "%"
		q = q.Where("(LOWER(neighborhood) LIKE LOWER(?) OR LOWER(address) LIKE LOWER(?))", like, like)
	}
	if f.Since != nil {
		q = q.Where("collected_at >= ?", *f.Since)
	}
	return q
}

// List returns matching listings, newest first
func (gdb *GormDB) List(ctx context.Context, f ListingFilters, limit int) ([]models.Listing, error) {
	var listings []models.Listing
	q := applyFilters(gdb.db.WithContext(ctx).Model(&models.Listing{}), f).
		Order("collected_at DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&listings).Error
	return listings, err
}

func (gdb *GormDB) Count(ctx context.Context, f ListingFilters) (int64, error) {
	var n int64
	err := applyFilters(gdb.db.WithContext(ctx).Model(&models.Listing{}), f).Count(&n).Error
	return n, err
}

// CountByAgency groups matching listings by agency
func (gdb *GormDB) CountByAgency(ctx context.Context, f ListingFilters) (map[string]int64, error) {
	var rows []struct {
		Agency string
		Total  int64
	}
	err := applyFilters(gdb.db.WithContext(ctx).Model(&models.Listing{}), f).
		Select("agency, COUNT(*) AS total").
		Group("agency").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Agency] = r.Total
	}
	return counts, nil
}

// Deactivate marks a listing inactive (logical deletion)
func (gdb *GormDB) Deactivate(ctx context.Context, id string, now time.Time) error {
	result := gdb.db.WithContext(ctx).Model(&models.Listing{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"active":         false,
			"deactivated_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (gdb *GormDB) AppendRunRecord(ctx context.Context, r *models.RunRecord) error {
	return gdb.db.WithContext(ctx).Create(r).Error
}

// UpdateRunRecord only touches records still RUNNING
func (gdb *GormDB) UpdateRunRecord(ctx context.Context, id uint, u models.RunUpdate) error {
	var rec models.RunRecord
	u.Apply(&rec)
	result := gdb.db.WithContext(ctx).Model(&models.RunRecord{}).
		Where("id = ? AND status = ?", id, models.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":           rec.Status,
			"collected_count":  rec.CollectedCount,
			"new_count":        rec.NewCount,
			"duration_seconds": rec.DurationSeconds,
			"error_message":    rec.ErrorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var n int64
		if err := gdb.db.WithContext(ctx).Model(&models.RunRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrRunFinalized
	}
	return nil
}

func (gdb *GormDB) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	var runs []models.RunRecord
	q := gdb.db.WithContext(ctx).Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&runs).Error
	return runs, err
}

func (gdb *GormDB) LastRun(ctx context.Context) (*models.RunRecord, error) {
	runs, err := gdb.ListRuns(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}
