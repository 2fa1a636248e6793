package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Submission is one timed text. A user has at most one per category per local day.
type Submission struct {
	ID                    string    `gorm:"primaryKey;size:36" json:"id"`
	UserID                string    `gorm:"size:128;not null;index:idx_submission_user_cat_day,unique;index:idx_submission_user_day,priority:1" json:"user_id"`
	Category              Category  `gorm:"size:8;not null;index:idx_submission_user_cat_day,unique" json:"category"`
	Text                  string    `gorm:"type:text;not null" json:"text"`
	ContentHash           string    `gorm:"size:64;not null" json:"content_hash"`
	LocalDayBucket        string    `gorm:"size:10;not null;index:idx_submission_user_cat_day,unique;index:idx_submission_user_day,priority:2" json:"local_day_bucket"`
	FeedbackReceivedCount int       `gorm:"not null;default:0" json:"feedback_received_count"`
	FeedbackUnlocked      bool      `gorm:"not null;default:false" json:"feedback_unlocked"`
	CreatedAt             time.Time `json:"created_at"`
}

// BeforeCreate assigns a random id.
func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
