// Package models contains the persisted entities and the error taxonomy
// shared by the postboard services.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a registered account. Password and PreviousPasswords hold bcrypt
// hashes only and never leave the process.
type User struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	Name              string         `gorm:"not null" json:"name"`
	Email             string         `gorm:"uniqueIndex;not null" json:"email"`
	Password          string         `gorm:"not null" json:"-"`
	PreviousPasswords []string       `gorm:"type:text;serializer:json" json:"-"`
	ProfilePicture    string         `json:"profile_picture"`
	Bio               string         `json:"bio"`
	Followers         []*User        `gorm:"many2many:user_follows;joinForeignKey:FollowingID;joinReferences:FollowerID" json:"followers,omitempty"`
	Following         []*User        `gorm:"many2many:user_follows;joinForeignKey:FollowerID;joinReferences:FollowingID" json:"following,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}
