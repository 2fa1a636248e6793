package streak

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/dailyink/clock"
	"github.com/cppla/dailyink/config"
	"github.com/cppla/dailyink/dbtest"
	"github.com/cppla/dailyink/ledger"
	"github.com/cppla/dailyink/store"
)

// 2025-01-06 is a Monday.
func weekday(i int) clock.LocalDay {
	return clock.Resolve(time.Date(2025, 1, 6+i, 10, 0, 0, 0, time.UTC), 0)
}

func setup(t *testing.T) (*Tracker, *ledger.Ledger, *store.Transactor) {
	t.Helper()
	txr := dbtest.Transactor(t)
	cfg := config.Default()
	l := ledger.New(txr, cfg.Quota, zap.NewNop())
	require.NoError(t, txr.Run(context.Background(), "test.ensure", func(tx *gorm.DB) error {
		return l.EnsureTx(tx, "u1", "")
	}))
	return New(txr.DB(), l, cfg.Streak, nil, zap.NewNop()), l, txr
}

func record(t *testing.T, tr *Tracker, txr *store.Transactor, day clock.LocalDay) Progress {
	t.Helper()
	var p Progress
	require.NoError(t, txr.Run(context.Background(), "test.record", func(tx *gorm.DB) error {
		var err error
		p, err = tr.RecordTx(tx, "u1", day)
		return err
	}))
	return p
}

func TestWeekCompletionCreditsOnce(t *testing.T) {
	tr, l, txr := setup(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		p := record(t, tr, txr, weekday(i))
		assert.False(t, p.JustCompleted)
		assert.False(t, p.Completed())
	}
	p := record(t, tr, txr, weekday(4))
	assert.True(t, p.JustCompleted)
	assert.True(t, p.Completed())
	assert.True(t, p.CelebrationShown)

	// A second category on Friday, and the weekend, change nothing.
	for _, d := range []clock.LocalDay{weekday(4), weekday(5), weekday(6)} {
		p = record(t, tr, txr, d)
		assert.False(t, p.JustCompleted)
	}

	bal, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, bal.BonusCurrency)
}

func TestWeekendIsNotASlot(t *testing.T) {
	tr, _, txr := setup(t)

	p := record(t, tr, txr, weekday(5))
	assert.Equal(t, "2025-01-06", p.WeekStart)
	assert.Equal(t, [5]bool{}, p.Days)

	got, err := tr.Progress(context.Background(), "u1", "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, [5]bool{}, got.Days)
}

func TestRecordIsIdempotentPerDay(t *testing.T) {
	tr, _, txr := setup(t)

	record(t, tr, txr, weekday(2))
	p := record(t, tr, txr, weekday(2))
	assert.Equal(t, [5]bool{false, false, true, false, false}, p.Days)
}

func TestNextWeekStartsFresh(t *testing.T) {
	tr, l, txr := setup(t)
	for i := 0; i < 5; i++ {
		record(t, tr, txr, weekday(i))
	}
	for i := 7; i < 12; i++ {
		record(t, tr, txr, weekday(i))
	}

	bal, err := l.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, bal.BonusCurrency)

	p, err := tr.Progress(context.Background(), "u1", "2025-01-13")
	require.NoError(t, err)
	assert.True(t, p.CelebrationShown)
}
