package models

import "time"

// Group 群组模型. The creator is the only admin.
type Group struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Name            string `gorm:"not null;size:100" json:"name"`
	Description     string `gorm:"size:500" json:"description"`
	PictureURL      string `json:"picture_url"`
	PicturePublicID string `json:"-"`
	AdminID         uint   `gorm:"not null;index" json:"admin_id"`

	Members []GroupMember `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Group) TableName() string {
	return "groups"
}

func (g *Group) IsAdmin(userID uint) bool {
	return g.AdminID == userID
}
