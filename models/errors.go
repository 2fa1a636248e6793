package models

import "errors"

// Expected business outcomes. They are returned to the caller as-is and never retried.
var (
	ErrQuotaExhausted       = errors.New("quota exhausted")
	ErrDuplicateSubmission  = errors.New("already submitted in this category today")
	ErrAlreadyGivenFeedback = errors.New("feedback already given on this submission")
	ErrNotEligibleToday     = errors.New("not eligible to give feedback today")
	ErrOwnSubmission        = errors.New("cannot give feedback on own submission")
	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrFeedbackLocked       = errors.New("feedback is still locked")
	ErrInvalidCategory      = errors.New("invalid category")
	ErrInvalidTier          = errors.New("invalid tier")
	ErrEmptyText            = errors.New("text cannot be empty")
	ErrTextTooLong          = errors.New("text exceeds category length limit")
	ErrUserNotFound         = errors.New("user not found")
)

// ErrStorageUnavailable is a transient infrastructure failure; callers may retry the request.
var ErrStorageUnavailable = errors.New("storage unavailable")

// IsBusinessOutcome reports whether err is an expected outcome rather than a failure.
func IsBusinessOutcome(err error) bool {
	for _, target := range []error{
		ErrQuotaExhausted, ErrDuplicateSubmission, ErrAlreadyGivenFeedback, ErrNotEligibleToday,
		ErrOwnSubmission, ErrSubmissionNotFound, ErrFeedbackLocked, ErrInvalidCategory,
		ErrInvalidTier, ErrEmptyText, ErrTextTooLong, ErrUserNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
