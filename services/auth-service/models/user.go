package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a platform account. The same username may exist once per role
// (citizen, authority, admin), matching how dashboards log in.
type User struct {
	ID         string         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username   string         `gorm:"uniqueIndex:idx_username_role;not null" json:"username"`
	Password   string         `gorm:"not null" json:"-"`
	Role       string         `gorm:"uniqueIndex:idx_username_role;default:'user'" json:"role"`
	Department string         `json:"department,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}
