package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/cppla/dailyink/ledger"
	"github.com/cppla/dailyink/models"
	"github.com/cppla/dailyink/streak"
	"github.com/cppla/dailyink/unlock"
)

// SubmissionStatus is one of today's submissions with its distance to unlocking.
type SubmissionStatus struct {
	models.Submission
	Progress int `json:"unlock_progress"`
	Required int `json:"unlock_required"`
}

// Status is the caller's state for their local day.
type Status struct {
	LocalDay        string             `json:"local_day"`
	WeekStart       string             `json:"week_start"`
	Balance         ledger.Balance     `json:"balance"`
	Submissions     []SubmissionStatus `json:"submissions"`
	FeedbackGiven   unlock.Counts      `json:"feedback_given"`
	EligibleTargets []models.Category  `json:"eligible_targets"`
	Streak          streak.Progress    `json:"streak"`
}

// Status applies any due refill and reports the caller's balance, today's submissions with their
// unlock progress, the feedback given today and the week's streak.
func (w *Writing) Status(ctx context.Context, id Identity, offset int) (*Status, error) {
	day := w.clock.Today(offset)
	ctx, cancel := w.detach(ctx)
	defer cancel()

	var st *Status
	var applied []models.Cadence
	err := w.txr.Run(ctx, "writing.status", func(tx *gorm.DB) error {
		st = &Status{LocalDay: day.Bucket, WeekStart: day.WeekStart, Submissions: []SubmissionStatus{}}
		if err := w.ledger.EnsureTx(tx, id.UserID, id.Email); err != nil {
			return err
		}
		_, tier, err := w.ledger.LockTx(tx, id.UserID)
		if err != nil {
			return err
		}
		if applied, err = w.ledger.ApplyDueRefillsTx(tx, id.UserID, tier, day); err != nil {
			return err
		}
		if st.Balance, err = w.ledger.BalanceTx(tx, id.UserID); err != nil {
			return err
		}

		subs, err := w.store.ListForDay(tx, id.UserID, day)
		if err != nil {
			return err
		}
		if st.FeedbackGiven, err = w.store.CountTodayByAuthor(tx, id.UserID, day); err != nil {
			return err
		}
		own := make([]models.Category, 0, len(subs))
		for _, s := range subs {
			own = append(own, s.Category)
			st.Submissions = append(st.Submissions, SubmissionStatus{
				Submission: s,
				Progress:   w.rules.Progress(st.FeedbackGiven, s.Category),
				Required:   w.rules.Threshold(s.Category).Required,
			})
		}
		st.EligibleTargets = w.rules.EligibleTargets(own)

		st.Streak, err = w.streak.ProgressTx(tx, id.UserID, day.WeekStart)
		return err
	})
	if err != nil {
		w.logOutcome("status", id.UserID, err)
		return nil, err
	}
	w.ledger.ObserveRefills(applied)
	return st, nil
}

// Received is a submission with the feedback it received.
type Received struct {
	Submission *models.Submission `json:"submission"`
	Feedback   []models.Feedback  `json:"feedback"`
}

// ReceivedFeedback returns the feedback on one of the caller's submissions. Other users' submissions
// read as not found, and locked ones as ErrFeedbackLocked.
func (w *Writing) ReceivedFeedback(ctx context.Context, id Identity, submissionID string) (*Received, error) {
	db := w.store.DB(ctx)
	sub, err := w.store.GetSubmission(db, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != id.UserID {
		return nil, models.ErrSubmissionNotFound
	}
	if !sub.FeedbackUnlocked {
		return nil, models.ErrFeedbackLocked
	}
	list, err := w.store.ListForSubmission(db, sub.ID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Feedback{}
	}
	return &Received{Submission: sub, Feedback: list}, nil
}
