package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier only writes the event to the log.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) FeedbackUnlocked(_ context.Context, ev Event) error {
	n.log.Info("feedback unlocked",
		zap.String("submission_id", ev.SubmissionID),
		zap.String("user_id", ev.UserID),
		zap.String("category", string(ev.Category)),
		zap.String("local_day", ev.LocalDay))
	return nil
}
