// Package reconcile decides which scraped records are new listings.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"imovel-monitor/internal/models"
)

// KeyLookup finds a stored listing by natural key. A missing listing is
// reported as (nil, nil); any error means the store could not answer.
type KeyLookup interface {
	FindByKey(ctx context.Context, key models.ListingKey) (*models.Listing, error)
}

// Reconcile returns the records whose key is not yet stored, mapped to
// active listings collected at now. Stored listings are never updated,
// whether active or not, and the first record wins when a key repeats
// within the batch.
func Reconcile(ctx context.Context, records []models.ListingRecord, lookup KeyLookup, now time.Time) ([]models.Listing, error) {
	seen := make(map[models.ListingKey]bool, len(records))
	var fresh []models.Listing

	for _, r := range records {
		key := r.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		existing, err := lookup.FindByKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", key, err)
		}
		if existing != nil {
			continue
		}
		fresh = append(fresh, models.NewListing(r, now))
	}
	return fresh, nil
}
