package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/dailyink/clock"
	"github.com/cppla/dailyink/config"
	"github.com/cppla/dailyink/dbtest"
	"github.com/cppla/dailyink/ledger"
	"github.com/cppla/dailyink/models"
	"github.com/cppla/dailyink/notify"
	"github.com/cppla/dailyink/store"
	"github.com/cppla/dailyink/streak"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type recorder struct {
	mu  sync.Mutex
	got []notify.Event
}

func (r *recorder) FeedbackUnlocked(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ev)
	return nil
}

func (r *recorder) events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.got...)
}

type harness struct {
	svc      *Writing
	ledger   *ledger.Ledger
	clock    *fakeClock
	notified *recorder
	dispatch *notify.Dispatcher
}

// 2025-01-06 10:00 UTC is a Monday.
var mondayMorning = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, mutate func(*config.AppConfig)) *harness {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	rules, err := cfg.UnlockRules()
	require.NoError(t, err)

	txr := dbtest.Transactor(t)
	clk := &fakeClock{t: mondayMorning}
	l := ledger.New(txr, cfg.Quota, zap.NewNop())
	rec := &recorder{}
	d := notify.NewDispatcher(rec, notify.NewDeduper(nil, ""), time.Second, zap.NewNop())

	svc := NewWriting(Deps{
		Transactor: txr,
		Ledger:     l,
		Store:      store.New(txr.DB(), cfg.Quota.MaxLength),
		Streak:     streak.New(txr.DB(), l, cfg.Streak, clk.now, zap.NewNop()),
		Rules:      rules,
		Clock:      clock.NewResolver(clk.now),
		Dispatcher: d,
		Log:        zap.NewNop(),
	})
	return &harness{svc: svc, ledger: l, clock: clk, notified: rec, dispatch: d}
}

func user(id string) Identity {
	return Identity{UserID: id, Email: id + "@example.com"}
}

func (h *harness) submit(t *testing.T, id string, cat models.Category) *models.Submission {
	t.Helper()
	res, err := h.svc.Submit(context.Background(), user(id), 0, cat, "some text from "+id)
	require.NoError(t, err)
	return res.Submission
}

func (h *harness) feedback(t *testing.T, author string, target *models.Submission) *FeedbackResult {
	t.Helper()
	res, err := h.svc.GiveFeedback(context.Background(), user(author), 0, target.ID, "thoughtful feedback")
	require.NoError(t, err)
	return res
}

func TestSubmitSpendsTokenAndRecordsStreak(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.svc.Submit(context.Background(), user("u1"), 0, models.CategoryA, "first entry")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-06", res.LocalDay)
	assert.False(t, res.Submission.FeedbackUnlocked)
	assert.Equal(t, 0, res.Balance.Remaining(models.CategoryA))
	assert.Equal(t, 1, res.Balance.Remaining(models.CategoryB))
	assert.Equal(t, [5]bool{true, false, false, false, false}, res.Streak.Days)
}

func TestSubmitDuplicateDoesNotSpend(t *testing.T) {
	h := newHarness(t, nil)
	h.submit(t, "u1", models.CategoryA)

	_, err := h.svc.Submit(context.Background(), user("u1"), 0, models.CategoryA, "again")
	assert.ErrorIs(t, err, models.ErrDuplicateSubmission)

	bal, err := h.ledger.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Remaining(models.CategoryA))
	assert.Equal(t, 1, bal.Remaining(models.CategoryB))
}

func TestSubmitWeeklyQuotaExhausted(t *testing.T) {
	h := newHarness(t, nil)
	h.submit(t, "u1", models.CategoryB)

	h.clock.set(mondayMorning.AddDate(0, 0, 1))
	_, err := h.svc.Submit(context.Background(), user("u1"), 0, models.CategoryB, "tuesday")
	assert.ErrorIs(t, err, models.ErrQuotaExhausted)

	// The daily category refilled overnight.
	_, err = h.svc.Submit(context.Background(), user("u1"), 0, models.CategoryA, "tuesday")
	assert.NoError(t, err)

	h.clock.set(mondayMorning.AddDate(0, 0, 7))
	_, err = h.svc.Submit(context.Background(), user("u1"), 0, models.CategoryB, "next monday")
	assert.NoError(t, err)
}

func TestSubmitValidatesBeforeSpending(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, user("u1"), 0, models.CategoryA, "   ")
	assert.ErrorIs(t, err, models.ErrEmptyText)
	_, err = h.svc.Submit(ctx, user("u1"), 0, "Z", "text")
	assert.ErrorIs(t, err, models.ErrInvalidCategory)

	// Nothing was created, so the first real submission still has its token.
	h.submit(t, "u1", models.CategoryA)
}

func TestConcurrentDoubleSubmit(t *testing.T) {
	h := newHarness(t, nil)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Submit(context.Background(), user("u1"), 0, models.CategoryA, "double tap")
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if assert.ErrorIs(t, err, models.ErrDuplicateSubmission) {
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)

	bal, err := h.ledger.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Remaining(models.CategoryA))
}

func TestSubmitSurvivesClientCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.Submit(ctx, user("u1"), 0, models.CategoryA, "sent before the tab closed")
	require.NoError(t, err)
}

func TestCategoryAUnlocksAfterThreeFeedbacks(t *testing.T) {
	h := newHarness(t, nil)
	mine := h.submit(t, "u1", models.CategoryA)
	a2 := h.submit(t, "u2", models.CategoryA)
	a3 := h.submit(t, "u3", models.CategoryA)
	b4 := h.submit(t, "u4", models.CategoryB)

	res := h.feedback(t, "u1", a2)
	assert.Empty(t, res.Unlocked)
	res = h.feedback(t, "u1", a3)
	assert.Empty(t, res.Unlocked)
	res = h.feedback(t, "u1", b4)
	assert.Equal(t, []string{mine.ID}, res.Unlocked)
	assert.Equal(t, 2, res.Given[models.CategoryA])
	assert.Equal(t, 1, res.Given[models.CategoryB])

	h.dispatch.Wait()
	events := h.notified.events()
	require.Len(t, events, 1)
	assert.Equal(t, mine.ID, events[0].SubmissionID)
	assert.Equal(t, "u1@example.com", events[0].Email)
}

func TestCategoryBUnlocksOnItsOwnFloor(t *testing.T) {
	h := newHarness(t, nil)
	mine := h.submit(t, "u5", models.CategoryB)
	b4 := h.submit(t, "u4", models.CategoryB)

	res := h.feedback(t, "u5", b4)
	assert.Equal(t, []string{mine.ID}, res.Unlocked)
}

func TestCategoryBStaysLockedWhenFloorIsHigher(t *testing.T) {
	h := newHarness(t, func(c *config.AppConfig) { c.Unlock.RequiredB = 2 })
	h.submit(t, "u5", models.CategoryB)
	b4 := h.submit(t, "u4", models.CategoryB)

	res := h.feedback(t, "u5", b4)
	assert.Empty(t, res.Unlocked)
}

func TestFeedbackTowardAOnlyNeverUnlocksB(t *testing.T) {
	h := newHarness(t, nil)
	mineA := h.submit(t, "u1", models.CategoryA)
	h.submit(t, "u1", models.CategoryB)
	a2 := h.submit(t, "u2", models.CategoryA)
	a3 := h.submit(t, "u3", models.CategoryA)
	a4 := h.submit(t, "u4", models.CategoryA)

	h.feedback(t, "u1", a2)
	h.feedback(t, "u1", a3)
	res := h.feedback(t, "u1", a4)
	assert.Equal(t, []string{mineA.ID}, res.Unlocked)
}

func TestSubmitUnlocksWhenFeedbackAlreadyMeetsThreshold(t *testing.T) {
	h := newHarness(t, nil)
	mineA := h.submit(t, "u1", models.CategoryA)
	a2 := h.submit(t, "u2", models.CategoryA)
	a3 := h.submit(t, "u3", models.CategoryA)
	b4 := h.submit(t, "u4", models.CategoryB)

	h.feedback(t, "u1", b4)
	h.feedback(t, "u1", a2)
	res := h.feedback(t, "u1", a3)
	require.Equal(t, []string{mineA.ID}, res.Unlocked)
	require.Equal(t, 1, res.Given[models.CategoryB])

	// The B feedback given this morning already covers a B submission made afterwards.
	sub, err := h.svc.Submit(context.Background(), user("u1"), 0, models.CategoryB, "long form after lunch")
	require.NoError(t, err)
	assert.Equal(t, []string{sub.Submission.ID}, sub.Unlocked)
	assert.True(t, sub.Submission.FeedbackUnlocked)

	st, err := h.svc.Status(context.Background(), user("u1"), 0)
	require.NoError(t, err)
	require.Len(t, st.Submissions, 2)
	for _, s := range st.Submissions {
		assert.True(t, s.FeedbackUnlocked, s.Category)
	}

	h.dispatch.Wait()
	events := h.notified.events()
	require.Len(t, events, 2)
	assert.ElementsMatch(t, []string{mineA.ID, sub.Submission.ID},
		[]string{events[0].SubmissionID, events[1].SubmissionID})
}

func TestSubmitLeavesLockedBelowThreshold(t *testing.T) {
	h := newHarness(t, func(c *config.AppConfig) { c.Unlock.RequiredB = 2 })
	h.submit(t, "u1", models.CategoryA)
	b4 := h.submit(t, "u4", models.CategoryB)
	h.feedback(t, "u1", b4)

	sub, err := h.svc.Submit(context.Background(), user("u1"), 0, models.CategoryB, "long form")
	require.NoError(t, err)
	assert.Empty(t, sub.Unlocked)
	assert.False(t, sub.Submission.FeedbackUnlocked)
}

func TestFeedbackEligibility(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a2 := h.submit(t, "u2", models.CategoryA)

	// No submission today.
	_, err := h.svc.GiveFeedback(ctx, user("u1"), 0, a2.ID, "hi")
	assert.ErrorIs(t, err, models.ErrNotEligibleToday)

	// B writers may only review B.
	h.submit(t, "u1", models.CategoryB)
	_, err = h.svc.GiveFeedback(ctx, user("u1"), 0, a2.ID, "hi")
	assert.ErrorIs(t, err, models.ErrNotEligibleToday)

	mine := h.submit(t, "u1", models.CategoryA)
	_, err = h.svc.GiveFeedback(ctx, user("u1"), 0, mine.ID, "hi")
	assert.ErrorIs(t, err, models.ErrOwnSubmission)

	_, err = h.svc.GiveFeedback(ctx, user("u1"), 0, "missing", "hi")
	assert.ErrorIs(t, err, models.ErrSubmissionNotFound)

	_, err = h.svc.GiveFeedback(ctx, user("u1"), 0, a2.ID, "   ")
	assert.ErrorIs(t, err, models.ErrEmptyText)

	h.feedback(t, "u1", a2)
	_, err = h.svc.GiveFeedback(ctx, user("u1"), 0, a2.ID, "again")
	assert.ErrorIs(t, err, models.ErrAlreadyGivenFeedback)
}

func TestYesterdaysSubmissionDoesNotGrantEligibility(t *testing.T) {
	h := newHarness(t, nil)
	h.submit(t, "u1", models.CategoryA)

	h.clock.set(mondayMorning.AddDate(0, 0, 1))
	a2 := h.submit(t, "u2", models.CategoryA)
	_, err := h.svc.GiveFeedback(context.Background(), user("u1"), 0, a2.ID, "hi")
	assert.ErrorIs(t, err, models.ErrNotEligibleToday)
}

func TestUnlockIsMonotonic(t *testing.T) {
	h := newHarness(t, nil)
	mine := h.submit(t, "u1", models.CategoryB)
	targets := []*models.Submission{h.submit(t, "u2", models.CategoryB), h.submit(t, "u3", models.CategoryB)}

	res := h.feedback(t, "u1", targets[0])
	require.Equal(t, []string{mine.ID}, res.Unlocked)
	res = h.feedback(t, "u1", targets[1])
	assert.Empty(t, res.Unlocked, "an unlocked submission is not unlocked again")

	h.clock.set(mondayMorning.AddDate(0, 0, 1))
	got, err := h.svc.ReceivedFeedback(context.Background(), user("u1"), mine.ID)
	require.NoError(t, err)
	assert.True(t, got.Submission.FeedbackUnlocked)

	h.dispatch.Wait()
	assert.Len(t, h.notified.events(), 1)
}

func TestReceivedFeedbackVisibility(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	mine := h.submit(t, "u1", models.CategoryB)
	other := h.submit(t, "u2", models.CategoryB)

	// u2 reviews u1 while u1 has not reviewed anyone yet.
	h.feedback(t, "u2", mine)
	_, err := h.svc.ReceivedFeedback(ctx, user("u1"), mine.ID)
	assert.ErrorIs(t, err, models.ErrFeedbackLocked)

	_, err = h.svc.ReceivedFeedback(ctx, user("u2"), mine.ID)
	assert.ErrorIs(t, err, models.ErrSubmissionNotFound)

	h.feedback(t, "u1", other)
	got, err := h.svc.ReceivedFeedback(ctx, user("u1"), mine.ID)
	require.NoError(t, err)
	require.Len(t, got.Feedback, 1)
	assert.Equal(t, "u2", got.Feedback[0].AuthorUserID)
	assert.Equal(t, 1, got.Submission.FeedbackReceivedCount)
}

func TestStatusAppliesRefillAndReportsProgress(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	st, err := h.svc.Status(ctx, user("u1"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Balance.Remaining(models.CategoryA))
	assert.Empty(t, st.Submissions)
	assert.Empty(t, st.EligibleTargets)

	h.submit(t, "u1", models.CategoryA)
	a2 := h.submit(t, "u2", models.CategoryA)
	h.feedback(t, "u1", a2)

	st, err = h.svc.Status(ctx, user("u1"), 0)
	require.NoError(t, err)
	require.Len(t, st.Submissions, 1)
	assert.Equal(t, 1, st.Submissions[0].Progress)
	assert.Equal(t, 3, st.Submissions[0].Required)
	assert.Equal(t, []models.Category{models.CategoryA, models.CategoryB}, st.EligibleTargets)
	assert.Equal(t, 0, st.Balance.Remaining(models.CategoryA))

	h.clock.set(mondayMorning.AddDate(0, 0, 1))
	st, err = h.svc.Status(ctx, user("u1"), 0)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-07", st.LocalDay)
	assert.Equal(t, 1, st.Balance.Remaining(models.CategoryA))
	assert.Empty(t, st.Submissions)
	assert.Equal(t, [5]bool{true, false, false, false, false}, st.Streak.Days)
}

func TestOffsetDecidesTheDay(t *testing.T) {
	h := newHarness(t, nil)
	// 23:30 UTC on Sunday is already Monday in Tokyo.
	h.clock.set(time.Date(2025, 1, 5, 23, 30, 0, 0, time.UTC))

	res, err := h.svc.Submit(context.Background(), user("u1"), 9*60, models.CategoryA, "tokyo")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-06", res.LocalDay)

	_, err = h.svc.Submit(context.Background(), user("u2"), 0, models.CategoryA, "london")
	require.NoError(t, err)
	st, err := h.svc.Status(context.Background(), user("u2"), 0)
	require.NoError(t, err)
	assert.Equal(t, clock.Resolve(h.clock.now(), 0).Bucket, st.LocalDay)
	assert.Equal(t, "2025-01-05", st.LocalDay)
}

func TestWeekStreakCreditsBonusOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var last *SubmitResult
	for i := 0; i < 5; i++ {
		h.clock.set(mondayMorning.AddDate(0, 0, i))
		res, err := h.svc.Submit(ctx, user("u1"), 0, models.CategoryA, "daily")
		require.NoError(t, err)
		last = res
	}
	assert.True(t, last.Streak.JustCompleted)
	assert.True(t, last.Streak.CelebrationShown)

	// A second category on Friday completes nothing new.
	require.NoError(t, h.svc.SetTier(ctx, "u1", models.TierPromoted))
	res, err := h.svc.Submit(ctx, user("u1"), 0, models.CategoryB, "friday long form")
	require.NoError(t, err)
	assert.False(t, res.Streak.JustCompleted)

	bal, err := h.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, bal.BonusCurrency)
}

func TestOutcomeLabels(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "quota_exhausted", outcome(models.ErrQuotaExhausted))
	assert.Equal(t, "rejected", outcome(models.ErrOwnSubmission))
	assert.Equal(t, "storage_unavailable", outcome(models.ErrStorageUnavailable))
}
