package models

import "time"

// DeleteLog represents a record of physically deleted listings
type DeleteLog struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID     string    `gorm:"type:varchar(36);not null;index" json:"listing_id"`
	Agency        string    `gorm:"type:varchar(100)" json:"agency"`
	ExternalCode  string    `gorm:"type:varchar(100)" json:"external_code"`
	Title         string    `gorm:"type:text" json:"title"`
	DeactivatedAt time.Time `gorm:"type:datetime" json:"deactivated_at"`
	DeletedAt     time.Time `gorm:"type:datetime;not null;autoCreateTime;index" json:"deleted_at"`
	Reason        string    `gorm:"type:varchar(50);not null" json:"reason"`
}

// TableName specifies the table name
func (DeleteLog) TableName() string {
	return "delete_logs"
}

// DeleteReasonExpired marks listings purged after the retention period
const DeleteReasonExpired = "inactive_expired"
