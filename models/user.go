package models

import (
	"time"

	"gorm.io/gorm"
)

// User is created on first authenticated contact. The id comes from the identity provider and never changes.
type User struct {
	ID        string    `gorm:"primaryKey;size:128" json:"id"`
	Email     string    `gorm:"size:255" json:"email"`
	Tier      Tier      `gorm:"size:32;not null;default:standard" json:"tier"`
	JoinedAt  time.Time `gorm:"not null" json:"joined_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook ensures timestamps and tier are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.JoinedAt.IsZero() {
		u.JoinedAt = now
	}
	if u.Tier == "" {
		u.Tier = TierStandard
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
