package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/cppla/dailyink/clock"
	"github.com/cppla/dailyink/models"
	"github.com/cppla/dailyink/utils"
)

// MaxFeedbackLength bounds a feedback body in characters.
const MaxFeedbackLength = 1000

// Store reads and writes submissions and feedback. Every method takes the handle to run on,
// so the same calls serve a service transaction and a plain read.
type Store struct {
	db        *gorm.DB
	maxLength map[models.Category]int
}

// New returns a Store enforcing maxLength per category.
func New(db *gorm.DB, maxLength map[models.Category]int) *Store {
	return &Store{db: db, maxLength: maxLength}
}

// DB returns a handle bound to ctx for reads outside a transaction.
func (s *Store) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// PrepareText validates text against the category limit and returns the stored form and its hash.
func (s *Store) PrepareText(cat models.Category, text string) (string, string, error) {
	if !cat.Valid() {
		return "", "", models.ErrInvalidCategory
	}
	text, n := utils.NormalizeText(text)
	if n == 0 {
		return "", "", models.ErrEmptyText
	}
	if limit, ok := s.maxLength[cat]; ok && n > limit {
		return "", "", models.ErrTextTooLong
	}
	clean := utils.Sanitize(text)
	if clean == "" {
		return "", "", models.ErrEmptyText
	}
	return clean, utils.ContentHash(clean), nil
}

// CreateSubmission inserts a submission for day. The unique (user, category, day) index turns a
// second insert into ErrDuplicateSubmission.
func (s *Store) CreateSubmission(db *gorm.DB, userID string, cat models.Category, text string, day clock.LocalDay) (*models.Submission, error) {
	clean, hash, err := s.PrepareText(cat, text)
	if err != nil {
		return nil, err
	}
	sub := &models.Submission{
		UserID:         userID,
		Category:       cat,
		Text:           clean,
		ContentHash:    hash,
		LocalDayBucket: day.Bucket,
	}
	if err := db.Create(sub).Error; err != nil {
		if IsDuplicate(err) {
			return nil, models.ErrDuplicateSubmission
		}
		return nil, err
	}
	return sub, nil
}

// FindSubmission returns the user's submission in cat on day, or nil.
func (s *Store) FindSubmission(db *gorm.DB, userID string, cat models.Category, day clock.LocalDay) (*models.Submission, error) {
	var sub models.Submission
	err := db.Where("user_id = ? AND category = ? AND local_day_bucket = ?", userID, cat, day.Bucket).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubmission loads a submission by id.
func (s *Store) GetSubmission(db *gorm.DB, id string) (*models.Submission, error) {
	var sub models.Submission
	if err := db.Where("id = ?", id).Take(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrSubmissionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// ListForDay returns the user's submissions on day in category order.
func (s *Store) ListForDay(db *gorm.DB, userID string, day clock.LocalDay) ([]models.Submission, error) {
	var subs []models.Submission
	err := db.Where("user_id = ? AND local_day_bucket = ?", userID, day.Bucket).
		Order("category ASC").
		Find(&subs).Error
	return subs, err
}

// CategoriesForDay returns the categories the user has submitted in on day.
func (s *Store) CategoriesForDay(db *gorm.DB, userID string, day clock.LocalDay) ([]models.Category, error) {
	var cats []models.Category
	err := db.Model(&models.Submission{}).
		Where("user_id = ? AND local_day_bucket = ?", userID, day.Bucket).
		Order("category ASC").
		Pluck("category", &cats).Error
	return cats, err
}

// IncrementFeedbackCount adds one to a submission's received counter.
func (s *Store) IncrementFeedbackCount(db *gorm.DB, id string) error {
	res := db.Model(&models.Submission{}).Where("id = ?", id).
		UpdateColumn("feedback_received_count", gorm.Expr("feedback_received_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrSubmissionNotFound
	}
	return nil
}

// MarkUnlocked flips feedback_unlocked to true and reports whether this call made the change.
// There is no inverse.
func (s *Store) MarkUnlocked(db *gorm.DB, id string) (bool, error) {
	res := db.Model(&models.Submission{}).
		Where("id = ? AND feedback_unlocked = ?", id, false).
		UpdateColumn("feedback_unlocked", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
