// Package streak tracks Monday to Friday submission streaks and pays the weekly bonus once.
package streak

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/dailyink/clock"
	"github.com/cppla/dailyink/config"
	"github.com/cppla/dailyink/ledger"
	"github.com/cppla/dailyink/metrics"
	"github.com/cppla/dailyink/models"
)

// Progress is a user's streak state for one week.
type Progress struct {
	WeekStart        string  `json:"week_start"`
	Days             [5]bool `json:"days"`
	CelebrationShown bool    `json:"celebration_shown"`
	// JustCompleted is set only on the call that completed the week and credited the bonus.
	JustCompleted bool `json:"just_completed,omitempty"`
}

// Completed reports whether every weekday of the week has a submission.
func (p Progress) Completed() bool {
	for _, d := range p.Days {
		if !d {
			return false
		}
	}
	return true
}

func progressOf(rec models.StreakRecord) Progress {
	return Progress{WeekStart: rec.IsoWeekStart, Days: rec.Slots(), CelebrationShown: rec.CelebrationShown}
}

// allDaysClause matches rows with every weekday slot set.
var allDaysClause = func() string {
	parts := make([]string, len(models.WeekdayColumns))
	for i, col := range models.WeekdayColumns {
		parts[i] = col + " = ?"
	}
	return strings.Join(parts, " AND ")
}()

// Tracker records weekday activity.
type Tracker struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	cfg    config.StreakConfig
	now    func() time.Time
	log    *zap.Logger
}

// New returns a Tracker crediting cfg.BonusAmount through l when a week completes.
func New(db *gorm.DB, l *ledger.Ledger, cfg config.StreakConfig, now func() time.Time, log *zap.Logger) *Tracker {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{db: db, ledger: l, cfg: cfg, now: now, log: log.Named("streak")}
}

// RecordTx marks day's weekday slot. Weekends change nothing. When the fifth slot is set, the
// celebration latch is flipped with a compare-and-set and only the caller that flips it credits the
// bonus, inside the same transaction; repeats within the week are no-ops.
func (t *Tracker) RecordTx(tx *gorm.DB, userID string, day clock.LocalDay) (Progress, error) {
	slot, ok := day.WeekdaySlot()
	if !ok {
		return t.ProgressTx(tx, userID, day.WeekStart)
	}
	col := models.WeekdayColumns[slot]

	rec := models.StreakRecord{UserID: userID, IsoWeekStart: day.WeekStart}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "iso_week_start"}},
		DoNothing: true,
	}).Create(&rec).Error; err != nil {
		return Progress{}, err
	}
	if err := tx.Model(&models.StreakRecord{}).
		Where("user_id = ? AND iso_week_start = ?", userID, day.WeekStart).
		Update(col, true).Error; err != nil {
		return Progress{}, err
	}

	args := []interface{}{userID, day.WeekStart, false}
	for range models.WeekdayColumns {
		args = append(args, true)
	}
	now := t.now().UTC()
	res := tx.Model(&models.StreakRecord{}).
		Where("user_id = ? AND iso_week_start = ? AND celebration_shown = ? AND "+allDaysClause, args...).
		Updates(map[string]interface{}{"celebration_shown": true, "completed_at": now})
	if res.Error != nil {
		return Progress{}, res.Error
	}
	won := res.RowsAffected == 1
	if won {
		if err := t.ledger.CreditBonusTx(tx, userID, t.cfg.BonusAmount, t.cfg.Reason); err != nil {
			return Progress{}, err
		}
	}

	p, err := t.ProgressTx(tx, userID, day.WeekStart)
	p.JustCompleted = won
	return p, err
}

// ProgressTx reads the week's record; a missing record is an empty week.
func (t *Tracker) ProgressTx(tx *gorm.DB, userID, weekStart string) (Progress, error) {
	var rec models.StreakRecord
	err := tx.Where("user_id = ? AND iso_week_start = ?", userID, weekStart).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Progress{WeekStart: weekStart}, nil
	}
	if err != nil {
		return Progress{}, err
	}
	return progressOf(rec), nil
}

// Progress reads the week's record outside a transaction.
func (t *Tracker) Progress(ctx context.Context, userID, weekStart string) (Progress, error) {
	return t.ProgressTx(t.db.WithContext(ctx), userID, weekStart)
}

// Observe records a committed completion.
func (t *Tracker) Observe(userID string, p Progress) {
	if !p.JustCompleted {
		return
	}
	metrics.StreaksCompleted.Inc()
	if t.cfg.BonusAmount > 0 {
		metrics.BonusCredited.WithLabelValues(t.cfg.Reason).Add(float64(t.cfg.BonusAmount))
	}
	t.log.Info("week completed", zap.String("user_id", userID), zap.String("week_start", p.WeekStart))
}
