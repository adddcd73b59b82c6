package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DealType is the market segment a listing belongs to
type DealType string

const (
	DealTypeRent DealType = "RENT"
	DealTypeSale DealType = "SALE"
)

// ParseDealType accepts the API spellings used by the frontend
// ("RENT", "aluguel", "locação", "SALE", "venda", ...).
func ParseDealType(s string) (DealType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rent", "aluguel", "alugar", "locação", "locacao":
		return DealTypeRent, true
	case "sale", "venda", "vendas", "comprar", "lançamento", "lancamento":
		return DealTypeSale, true
	}
	return "", false
}

// ListingRecord is what an adapter emits for one card.
// The validate tags are the acceptance gate for a card.
type ListingRecord struct {
	Agency        string   `json:"agency" validate:"required"`
	ExternalCode  string   `json:"external_code" validate:"required"`
	Title         string   `json:"title" validate:"required,min=10"`
	PropertyType  string   `json:"property_type,omitempty"`
	Price         string   `json:"price,omitempty"`
	Area          string   `json:"area,omitempty"`
	Bedrooms      string   `json:"bedrooms,omitempty"`
	Bathrooms     string   `json:"bathrooms,omitempty"`
	ParkingSpaces string   `json:"parking_spaces,omitempty"`
	Address       string   `json:"address,omitempty"`
	Neighborhood  string   `json:"neighborhood,omitempty"`
	DealType      DealType `json:"deal_type" validate:"required,oneof=RENT SALE"`
	URL           string   `json:"url,omitempty"`
}

// Key returns the natural key of the record
func (r ListingRecord) Key() ListingKey {
	return ListingKey{Agency: r.Agency, ExternalCode: r.ExternalCode, DealType: r.DealType}
}

// ListingKey identifies a listing across all runs
type ListingKey struct {
	Agency       string
	ExternalCode string
	DealType     DealType
}

func (k ListingKey) String() string {
	return k.Agency + "/" + k.ExternalCode + "/" + string(k.DealType)
}

// Listing is the persisted form of a ListingRecord
type Listing struct {
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"`

	// natural key
	Agency       string   `gorm:"type:varchar(100);not null;uniqueIndex:idx_listing_key,priority:1" json:"agency"`
	ExternalCode string   `gorm:"type:varchar(100);not null;uniqueIndex:idx_listing_key,priority:2" json:"external_code"`
	DealType     DealType `gorm:"type:varchar(10);not null;uniqueIndex:idx_listing_key,priority:3;index" json:"deal_type"`

	Title         string `gorm:"type:text;not null" json:"title"`
	PropertyType  string `gorm:"type:varchar(50);index" json:"property_type,omitempty"`
	Price         string `gorm:"type:varchar(100)" json:"price,omitempty"`
	Area          string `gorm:"type:varchar(50)" json:"area,omitempty"`
	Bedrooms      string `gorm:"type:varchar(10)" json:"bedrooms,omitempty"`
	Bathrooms     string `gorm:"type:varchar(10)" json:"bathrooms,omitempty"`
	ParkingSpaces string `gorm:"type:varchar(10)" json:"parking_spaces,omitempty"`
	Address       string `gorm:"type:text" json:"address,omitempty"`
	Neighborhood  string `gorm:"type:varchar(150);index" json:"neighborhood,omitempty"`
	URL           string `gorm:"type:text" json:"url,omitempty"`

	// soft delete
	Active        bool       `gorm:"not null;default:true;index" json:"active"`
	DeactivatedAt *time.Time `gorm:"type:datetime" json:"deactivated_at,omitempty"`

	CollectedAt time.Time `gorm:"type:datetime;not null;index:idx_collected_at,sort:desc" json:"collected_at"`
}

// TableName keeps the table name stable across drivers
func (Listing) TableName() string {
	return "listings"
}

// BeforeCreate assigns the opaque id when the caller did not
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	l.EnsureID()
	return nil
}

// EnsureID assigns a random id if none is set
func (l *Listing) EnsureID() {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
}

// Key returns the natural key of the stored listing
func (l *Listing) Key() ListingKey {
	return ListingKey{Agency: l.Agency, ExternalCode: l.ExternalCode, DealType: l.DealType}
}

// Deactivate soft-deletes the listing
func (l *Listing) Deactivate(now time.Time) {
	l.Active = false
	l.DeactivatedAt = &now
}

// NewListing maps a record to a fresh, active listing collected at now
func NewListing(r ListingRecord, now time.Time) Listing {
	return Listing{
		Agency:        r.Agency,
		ExternalCode:  r.ExternalCode,
		DealType:      r.DealType,
		Title:         r.Title,
		PropertyType:  r.PropertyType,
		Price:         r.Price,
		Area:          r.Area,
		Bedrooms:      r.Bedrooms,
		Bathrooms:     r.Bathrooms,
		ParkingSpaces: r.ParkingSpaces,
		Address:       r.Address,
		Neighborhood:  r.Neighborhood,
		URL:           r.URL,
		Active:        true,
		CollectedAt:   now,
	}
}
