package store

import (
	"gorm.io/gorm"

	"github.com/cppla/dailyink/clock"
	"github.com/cppla/dailyink/models"
	"github.com/cppla/dailyink/unlock"
	"github.com/cppla/dailyink/utils"
)

// PrepareFeedback validates a feedback body and returns its stored form.
func PrepareFeedback(body string) (string, error) {
	body, n := utils.NormalizeText(body)
	if n == 0 {
		return "", models.ErrEmptyText
	}
	if n > MaxFeedbackLength {
		return "", models.ErrTextTooLong
	}
	clean := utils.Sanitize(body)
	if clean == "" {
		return "", models.ErrEmptyText
	}
	return clean, nil
}

// CreateFeedback records authorID's feedback on targetID, dated by the author's local day.
// Eligibility is the caller's job; the unique (target, author) index turns a repeat into ErrAlreadyGivenFeedback.
func (s *Store) CreateFeedback(db *gorm.DB, targetID, authorID, body string, day clock.LocalDay) (*models.Feedback, error) {
	clean, err := PrepareFeedback(body)
	if err != nil {
		return nil, err
	}
	fb := &models.Feedback{
		TargetSubmissionID: targetID,
		AuthorUserID:       authorID,
		Body:               clean,
		LocalDayBucket:     day.Bucket,
	}
	if err := db.Create(fb).Error; err != nil {
		if IsDuplicate(err) {
			return nil, models.ErrAlreadyGivenFeedback
		}
		return nil, err
	}
	return fb, nil
}

// HasFeedback reports whether authorID already gave feedback on targetID.
func (s *Store) HasFeedback(db *gorm.DB, targetID, authorID string) (bool, error) {
	var n int64
	err := db.Model(&models.Feedback{}).
		Where("target_submission_id = ? AND author_user_id = ?", targetID, authorID).
		Count(&n).Error
	return n > 0, err
}

// CountTodayByAuthor counts the feedback authorID gave on day, grouped by the target's category.
func (s *Store) CountTodayByAuthor(db *gorm.DB, authorID string, day clock.LocalDay) (unlock.Counts, error) {
	var rows []struct {
		Category models.Category
		N        int
	}
	err := db.Table("feedbacks AS f").
		Select("s.category AS category, COUNT(*) AS n").
		Joins("JOIN submissions AS s ON s.id = f.target_submission_id").
		Where("f.author_user_id = ? AND f.local_day_bucket = ?", authorID, day.Bucket).
		Group("s.category").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(unlock.Counts, len(models.Categories))
	for _, cat := range models.Categories {
		counts[cat] = 0
	}
	for _, r := range rows {
		counts[r.Category] = r.N
	}
	return counts, nil
}

// ListForSubmission returns the feedback on a submission, oldest first.
func (s *Store) ListForSubmission(db *gorm.DB, submissionID string) ([]models.Feedback, error) {
	var list []models.Feedback
	err := db.Where("target_submission_id = ?", submissionID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}
