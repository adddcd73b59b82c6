package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"imovel-monitor/internal/models"
)

var (
	// ErrNotFound is returned when an id does not exist
	ErrNotFound = errors.New("not found")
	// ErrRunFinalized is returned when a run record already left RUNNING
	ErrRunFinalized = errors.New("run already finalized")
)

// ListingFilters narrows List and Count. Zero values match everything.
type ListingFilters struct {
	DealType     models.DealType
	PropertyType string
	// Neighborhood is a case-insensitive substring of neighborhood or address
	Neighborhood    string
	Agency          string
	Since           *time.Time
	IncludeInactive bool
}

// Matches applies the filters to one listing in memory
func (f ListingFilters) Matches(l *models.Listing) bool {
	if !f.IncludeInactive && !l.Active {
		return false
	}
	if f.DealType != "" && l.DealType != f.DealType {
		return false
	}
	if f.PropertyType != "" && !strings.EqualFold(l.PropertyType, f.PropertyType) {
		return false
	}
	if f.Agency != "" && !strings.EqualFold(l.Agency, f.Agency) {
		return false
	}
	if f.Neighborhood != "" {
		needle := strings.ToLower(f.Neighborhood)
		if !strings.Contains(strings.ToLower(l.Neighborhood), needle) &&
			!strings.Contains(strings.ToLower(l.Address), needle) {
			return false
		}
	}
	if f.Since != nil && l.CollectedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Repository is the listing and run history store
type Repository interface {
	// FindByKey returns (nil, nil) when no listing has the key
	FindByKey(ctx context.Context, key models.ListingKey) (*models.Listing, error)
	// Insert stores l unless its key exists; inserted reports which happened
	Insert(ctx context.Context, l *models.Listing) (inserted bool, err error)
	// List returns matching listings, newest collected first
	List(ctx context.Context, filters ListingFilters, limit int) ([]models.Listing, error)
	Count(ctx context.Context, filters ListingFilters) (int64, error)
	CountByAgency(ctx context.Context, filters ListingFilters) (map[string]int64, error)
	// Deactivate soft-deletes a listing; ErrNotFound if the id is unknown
	Deactivate(ctx context.Context, id string, now time.Time) error

	// AppendRunRecord stores r and sets its ID
	AppendRunRecord(ctx context.Context, r *models.RunRecord) error
	// UpdateRunRecord finalizes a RUNNING record exactly once
	UpdateRunRecord(ctx context.Context, id uint, u models.RunUpdate) error
	// ListRuns returns the newest runs first
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
	// LastRun returns (nil, nil) when no run was recorded
	LastRun(ctx context.Context) (*models.RunRecord, error)

	Close() error
}
