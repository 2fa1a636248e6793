package models

import "time"

// StreakRecord tracks Mon..Fri submissions for one ISO week.
type StreakRecord struct {
	UserID           string     `gorm:"primaryKey;size:128" json:"user_id"`
	IsoWeekStart     string     `gorm:"primaryKey;size:10" json:"iso_week_start"`
	Monday           bool       `gorm:"not null;default:false" json:"monday"`
	Tuesday          bool       `gorm:"not null;default:false" json:"tuesday"`
	Wednesday        bool       `gorm:"not null;default:false" json:"wednesday"`
	Thursday         bool       `gorm:"not null;default:false" json:"thursday"`
	Friday           bool       `gorm:"not null;default:false" json:"friday"`
	CelebrationShown bool       `gorm:"not null;default:false" json:"celebration_shown"`
	CompletedAt      *time.Time `json:"completed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// WeekdayColumns maps weekday slot (Mon=0..Fri=4) to its column.
var WeekdayColumns = [5]string{"monday", "tuesday", "wednesday", "thursday", "friday"}

// Slots returns the five weekday flags in order.
func (s StreakRecord) Slots() [5]bool {
	return [5]bool{s.Monday, s.Tuesday, s.Wednesday, s.Thursday, s.Friday}
}

// Complete reports whether every weekday slot is set.
func (s StreakRecord) Complete() bool {
	for _, done := range s.Slots() {
		if !done {
			return false
		}
	}
	return true
}

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &TokenLedger{}, &Submission{}, &Feedback{}, &StreakRecord{}}
}
