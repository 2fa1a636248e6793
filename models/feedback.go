package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Feedback is written by one user about another user's submission. Rows are immutable.
// LocalDayBucket is the author's local day at write time.
type Feedback struct {
	ID                 string    `gorm:"primaryKey;size:36" json:"id"`
	TargetSubmissionID string    `gorm:"size:36;not null;index:idx_feedback_target_author,unique" json:"target_submission_id"`
	AuthorUserID       string    `gorm:"size:128;not null;index:idx_feedback_target_author,unique;index:idx_feedback_author_day,priority:1" json:"author_user_id"`
	Body               string    `gorm:"type:text;not null" json:"body"`
	LocalDayBucket     string    `gorm:"size:10;not null;index:idx_feedback_author_day,priority:2" json:"local_day_bucket"`
	CreatedAt          time.Time `json:"created_at"`
}

// BeforeCreate assigns a random id.
func (f *Feedback) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
