package models

import "time"

// ContentType is the tag of a status' content union.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
)

// Status is an ephemeral post. Reads must filter on ExpiresAt themselves,
// the reaper only removes rows eventually.
type Status struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	UserID          uint        `gorm:"not null;index" json:"user_id"`
	ContentType     ContentType `gorm:"type:varchar(10);not null" json:"content_type"`
	Text            string      `gorm:"size:1000" json:"text"`
	MediaURL        string      `json:"media_url,omitempty"`
	MediaPublicID   string      `json:"-"`
	BackgroundColor string      `gorm:"size:20" json:"background_color"`
	FontStyle       string      `gorm:"size:40" json:"font_style,omitempty"`
	IsActive        bool        `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt       time.Time   `gorm:"not null;index" json:"expires_at"`
	CreatedAt       time.Time   `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Status) TableName() string {
	return "statuses"
}

// HasExternalMedia reports whether deleting the status must release media.
func (s *Status) HasExternalMedia() bool {
	return s.MediaPublicID != ""
}

// StatusView records that UserID has seen StatusID. The pair is unique.
type StatusView struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	StatusID uint      `gorm:"not null;uniqueIndex:idx_status_viewer" json:"status_id"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_status_viewer;index" json:"user_id"`
	ViewedAt time.Time `gorm:"not null" json:"viewed_at"`
}

func (StatusView) TableName() string {
	return "status_views"
}
