// Package services runs the write and read flows of the service, one storage transaction per call.
package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/dailyink/clock"
	"github.com/cppla/dailyink/ledger"
	"github.com/cppla/dailyink/metrics"
	"github.com/cppla/dailyink/models"
	"github.com/cppla/dailyink/notify"
	"github.com/cppla/dailyink/store"
	"github.com/cppla/dailyink/streak"
	"github.com/cppla/dailyink/unlock"
)

// Identity is the verified caller, as supplied by the identity provider.
type Identity struct {
	UserID string
	Email  string
}

// Deps wires a Writing service.
type Deps struct {
	Transactor *store.Transactor
	Ledger     *ledger.Ledger
	Store      *store.Store
	Streak     *streak.Tracker
	Rules      unlock.Rules
	Clock      *clock.Resolver
	Dispatcher *notify.Dispatcher
	// Timeout bounds a transaction once it has been accepted. It runs detached from the request.
	Timeout time.Duration
	Log     *zap.Logger
}

// Writing is the submission and feedback service.
type Writing struct {
	txr     *store.Transactor
	ledger  *ledger.Ledger
	store   *store.Store
	streak  *streak.Tracker
	rules   unlock.Rules
	clock   *clock.Resolver
	notify  *notify.Dispatcher
	timeout time.Duration
	log     *zap.Logger
}

func NewWriting(d Deps) *Writing {
	if d.Clock == nil {
		d.Clock = clock.NewResolver(nil)
	}
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Writing{
		txr:     d.Transactor,
		ledger:  d.Ledger,
		store:   d.Store,
		streak:  d.Streak,
		rules:   d.Rules,
		clock:   d.Clock,
		notify:  d.Dispatcher,
		timeout: d.Timeout,
		log:     d.Log.Named("writing"),
	}
}

// detach keeps ctx's values but not its cancellation, so a client disconnect cannot abort a
// transaction halfway; the timeout still bounds it.
func (w *Writing) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	LocalDay   string             `json:"local_day"`
	Submission *models.Submission `json:"submission"`
	Balance    ledger.Balance     `json:"balance"`
	Streak     streak.Progress    `json:"streak"`
	// Unlocked lists the caller's submissions from today that this write unlocked, usually because
	// feedback given earlier in the day already meets the new submission's threshold.
	Unlocked []string `json:"unlocked"`
}

// Submit spends one token of cat and stores text as the caller's submission for their local day.
//
// The caller's ledger row is locked before the duplicate check, so a double click gets
// ErrDuplicateSubmission rather than ErrQuotaExhausted, and never spends twice.
func (w *Writing) Submit(ctx context.Context, id Identity, offset int, cat models.Category, text string) (*SubmitResult, error) {
	if !cat.Valid() {
		return nil, models.ErrInvalidCategory
	}
	if _, _, err := w.store.PrepareText(cat, text); err != nil {
		return nil, err
	}
	day := w.clock.Today(offset)
	ctx, cancel := w.detach(ctx)
	defer cancel()

	var (
		res      *SubmitResult
		unlocked []models.Submission
	)
	debited := false
	err := w.txr.Run(ctx, "writing.submit", func(tx *gorm.DB) error {
		res = &SubmitResult{LocalDay: day.Bucket}
		debited = false
		if err := w.ledger.EnsureTx(tx, id.UserID, id.Email); err != nil {
			return err
		}
		if _, _, err := w.ledger.LockTx(tx, id.UserID); err != nil {
			return err
		}
		existing, err := w.store.FindSubmission(tx, id.UserID, cat, day)
		if err != nil {
			return err
		}
		if existing != nil {
			return models.ErrDuplicateSubmission
		}

		debited = true
		if res.Balance, err = w.ledger.DebitTx(tx, id.UserID, cat, day); err != nil {
			return err
		}
		if res.Submission, err = w.store.CreateSubmission(tx, id.UserID, cat, text, day); err != nil {
			return err
		}
		if res.Streak, err = w.streak.RecordTx(tx, id.UserID, day); err != nil {
			return err
		}
		if _, unlocked, err = w.unlockDueTx(tx, id.UserID, day); err != nil {
			return err
		}
		for _, u := range unlocked {
			if u.ID == res.Submission.ID {
				res.Submission.FeedbackUnlocked = true
			}
		}
		return nil
	})

	metrics.Submissions.WithLabelValues(string(cat), outcome(err)).Inc()
	if debited && (err == nil || errors.Is(err, models.ErrQuotaExhausted)) {
		w.ledger.ObserveDebit(cat, err)
	}
	if err != nil {
		w.logOutcome("submit", id.UserID, err)
		return nil, err
	}
	w.streak.Observe(id.UserID, res.Streak)
	w.log.Info("submission accepted",
		zap.String("user_id", id.UserID), zap.String("category", string(cat)),
		zap.String("submission_id", res.Submission.ID), zap.String("local_day", day.Bucket))
	res.Unlocked = w.announceUnlocks(id, unlocked)
	return res, nil
}

// FeedbackResult is returned by GiveFeedback.
type FeedbackResult struct {
	LocalDay string           `json:"local_day"`
	Feedback *models.Feedback `json:"feedback"`
	// Given is the caller's feedback today, by target category, after this write.
	Given unlock.Counts `json:"given"`
	// Unlocked lists the caller's own submissions that this write unlocked.
	Unlocked []string `json:"unlocked"`
}

// GiveFeedback records the caller's feedback on another user's submission, then unlocks whichever of
// the caller's own submissions from today now meet their threshold. The insert, the target's counter
// and the unlocks commit together or not at all; notifications go out after commit.
func (w *Writing) GiveFeedback(ctx context.Context, id Identity, offset int, targetID, body string) (*FeedbackResult, error) {
	if _, err := store.PrepareFeedback(body); err != nil {
		return nil, err
	}
	day := w.clock.Today(offset)
	ctx, cancel := w.detach(ctx)
	defer cancel()

	var (
		res      *FeedbackResult
		target   *models.Submission
		unlocked []models.Submission
	)
	err := w.txr.Run(ctx, "writing.feedback", func(tx *gorm.DB) error {
		res = &FeedbackResult{LocalDay: day.Bucket}
		unlocked = nil
		if err := w.ledger.EnsureTx(tx, id.UserID, id.Email); err != nil {
			return err
		}
		if _, _, err := w.ledger.LockTx(tx, id.UserID); err != nil {
			return err
		}

		var err error
		if target, err = w.store.GetSubmission(tx, targetID); err != nil {
			return err
		}
		if target.UserID == id.UserID {
			return models.ErrOwnSubmission
		}
		own, err := w.store.CategoriesForDay(tx, id.UserID, day)
		if err != nil {
			return err
		}
		if !w.rules.Eligible(own, target.Category) {
			return models.ErrNotEligibleToday
		}

		if res.Feedback, err = w.store.CreateFeedback(tx, target.ID, id.UserID, body, day); err != nil {
			return err
		}
		if err := w.store.IncrementFeedbackCount(tx, target.ID); err != nil {
			return err
		}

		res.Given, unlocked, err = w.unlockDueTx(tx, id.UserID, day)
		return err
	})

	category := ""
	if target != nil {
		category = string(target.Category)
	}
	metrics.FeedbackGiven.WithLabelValues(category, outcome(err)).Inc()
	if err != nil {
		w.logOutcome("feedback", id.UserID, err)
		return nil, err
	}

	res.Unlocked = w.announceUnlocks(id, unlocked)
	return res, nil
}

// unlockDueTx recounts the author's feedback for day and unlocks every submission of theirs from
// day that now meets its threshold. It must run in the transaction of the write that triggered it.
func (w *Writing) unlockDueTx(tx *gorm.DB, userID string, day clock.LocalDay) (unlock.Counts, []models.Submission, error) {
	counts, err := w.store.CountTodayByAuthor(tx, userID, day)
	if err != nil {
		return nil, nil, err
	}
	subs, err := w.store.ListForDay(tx, userID, day)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]models.Submission, len(subs))
	for _, s := range subs {
		byID[s.ID] = s
	}
	var unlocked []models.Submission
	for _, sid := range w.rules.Evaluate(counts, subs) {
		changed, err := w.store.MarkUnlocked(tx, sid)
		if err != nil {
			return nil, nil, err
		}
		if changed {
			s := byID[sid]
			s.FeedbackUnlocked = true
			unlocked = append(unlocked, s)
		}
	}
	return counts, unlocked, nil
}

// announceUnlocks records and notifies committed unlocks, returning their ids.
func (w *Writing) announceUnlocks(id Identity, unlocked []models.Submission) []string {
	ids := make([]string, 0, len(unlocked))
	now := w.clock.Now().UTC()
	for _, s := range unlocked {
		ids = append(ids, s.ID)
		metrics.Unlocks.WithLabelValues(string(s.Category)).Inc()
		w.log.Info("submission unlocked",
			zap.String("user_id", id.UserID), zap.String("submission_id", s.ID), zap.String("category", string(s.Category)))
		w.notify.Dispatch(notify.Event{
			Type:          notify.EventFeedbackUnlocked,
			SubmissionID:  s.ID,
			UserID:        id.UserID,
			Email:         id.Email,
			Category:      s.Category,
			LocalDay:      s.LocalDayBucket,
			FeedbackCount: s.FeedbackReceivedCount,
			UnlockedAt:    now,
		})
	}
	return ids
}

// SetTier changes a user's refill cadence.
func (w *Writing) SetTier(ctx context.Context, userID string, tier models.Tier) error {
	ctx, cancel := w.detach(ctx)
	defer cancel()
	return w.ledger.SetTier(ctx, userID, tier)
}

func (w *Writing) logOutcome(op, userID string, err error) {
	if models.IsBusinessOutcome(err) {
		w.log.Debug(op+" rejected", zap.String("user_id", userID), zap.Error(err))
		return
	}
	w.log.Error(op+" failed", zap.String("user_id", userID), zap.Error(err))
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrQuotaExhausted):
		return "quota_exhausted"
	case errors.Is(err, models.ErrDuplicateSubmission):
		return "duplicate"
	case errors.Is(err, models.ErrAlreadyGivenFeedback):
		return "already_given"
	case errors.Is(err, models.ErrNotEligibleToday):
		return "not_eligible"
	case errors.Is(err, models.ErrStorageUnavailable):
		return "storage_unavailable"
	case models.IsBusinessOutcome(err):
		return "rejected"
	default:
		return "error"
	}
}
