// Package notify tells submission owners that their feedback became visible.
// Delivery is best effort: failures are logged and counted, never returned to the writer.
package notify

import (
	"context"
	"time"

	"github.com/cppla/dailyink/models"
)

// EventFeedbackUnlocked is the type of Event.
const EventFeedbackUnlocked = "feedback.unlocked"

// Event describes one submission whose feedback was unlocked.
type Event struct {
	Type          string          `json:"type"`
	SubmissionID  string          `json:"submission_id"`
	UserID        string          `json:"user_id"`
	Email         string          `json:"email,omitempty"`
	Category      models.Category `json:"category"`
	LocalDay      string          `json:"local_day"`
	FeedbackCount int             `json:"feedback_count"`
	UnlockedAt    time.Time       `json:"unlocked_at"`
}

// Notifier delivers unlock events.
type Notifier interface {
	FeedbackUnlocked(ctx context.Context, ev Event) error
}
