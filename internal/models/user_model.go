package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户模型
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	UserName       string     `gorm:"column:username;uniqueIndex;not null" json:"username"`
	Email          string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash   string     `gorm:"not null" json:"-"`
	Bio            string     `gorm:"size:500" json:"bio"`
	AvatarURL      string     `json:"avatar_url"`
	AvatarPublicID string     `json:"-"`
	IsOnline       bool       `gorm:"default:false" json:"is_online"`
	LastSeen       *time.Time `json:"last_seen"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// PublicUser is the shape of a user embedded in other payloads.
type PublicUser struct {
	ID        uint       `json:"id"`
	UserName  string     `json:"username"`
	Bio       string     `json:"bio,omitempty"`
	AvatarURL string     `json:"avatar_url"`
	IsOnline  bool       `json:"is_online"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		UserName:  u.UserName,
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
		IsOnline:  u.IsOnline,
		LastSeen:  u.LastSeen,
	}
}
