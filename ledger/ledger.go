// Package ledger owns the per-user token counters: refills on local day and week boundaries,
// conditional debits, and bonus credits. No other package writes token_ledgers.
package ledger

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/dailyink/clock"
	"github.com/cppla/dailyink/config"
	"github.com/cppla/dailyink/metrics"
	"github.com/cppla/dailyink/models"
	"github.com/cppla/dailyink/store"
)

// Balance is a snapshot of a user's ledger.
type Balance struct {
	Tier                      models.Tier             `json:"tier"`
	Tokens                    map[models.Category]int `json:"tokens"`
	BonusCurrency             int                     `json:"bonus_currency"`
	LastDailyRefillDate       string                  `json:"last_daily_refill_date"`
	LastWeeklyRefillWeekStart string                  `json:"last_weekly_refill_week_start"`
}

// Remaining returns the tokens left in a category.
func (b Balance) Remaining(cat models.Category) int {
	return b.Tokens[cat]
}

func balanceOf(row models.TokenLedger, tier models.Tier) Balance {
	tokens := make(map[models.Category]int, len(models.Categories))
	for _, cat := range models.Categories {
		tokens[cat] = row.Tokens(cat)
	}
	return Balance{
		Tier:                      tier,
		Tokens:                    tokens,
		BonusCurrency:             row.BonusCurrency,
		LastDailyRefillDate:       row.LastDailyRefillDate,
		LastWeeklyRefillWeekStart: row.LastWeeklyRefillWeekStart,
	}
}

// Ledger is the token ledger. Methods ending in Tx join the caller's transaction;
// the others run their own transaction with retries.
type Ledger struct {
	txr   *store.Transactor
	quota config.QuotaConfig
	log   *zap.Logger
}

// New creates a Ledger applying quota.
func New(txr *store.Transactor, quota config.QuotaConfig, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{txr: txr, quota: quota, log: log.Named("ledger")}
}

// EnsureTx creates the user and an empty ledger on first contact. Existing rows are kept;
// a non-empty email replaces the stored one.
func (l *Ledger) EnsureTx(tx *gorm.DB, userID, email string) error {
	user := models.User{ID: userID, Email: email}
	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}
	if email != "" {
		onConflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "updated_at"}),
		}
	}
	if err := tx.Clauses(onConflict).Create(&user).Error; err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&models.TokenLedger{UserID: userID}).Error
}

// LockTx takes the user's ledger row lock for the rest of tx. Every per-user write path takes it first,
// so concurrent requests from one user run one after another.
func (l *Ledger) LockTx(tx *gorm.DB, userID string) (models.TokenLedger, models.Tier, error) {
	var row models.TokenLedger
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return row, "", models.ErrUserNotFound
		}
		return row, "", err
	}
	var user models.User
	if err := tx.Select("id", "tier").Where("id = ?", userID).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return row, "", models.ErrUserNotFound
		}
		return row, "", err
	}
	return row, user.Tier, nil
}

// ApplyDueRefillsTx resets counters whose boundary has been crossed since the last refill.
//
// Each write is guarded by "watermark < boundary", so when several requests observe the same due
// refill only the first write matches a row and the rest are no-ops. A day that resolves earlier than
// the watermark (client clock moved back) refills nothing and never lowers the watermark.
func (l *Ledger) ApplyDueRefillsTx(tx *gorm.DB, userID string, tier models.Tier, day clock.LocalDay) ([]models.Cadence, error) {
	daily := map[string]interface{}{
		"last_daily_refill_date": day.Bucket,
		"version":                gorm.Expr("version + 1"),
	}
	weekly := map[string]interface{}{
		"last_weekly_refill_week_start": day.WeekStart,
		"version":                       gorm.Expr("version + 1"),
	}
	for _, cat := range models.Categories {
		q, ok := l.quota.CategoryQuota(tier, cat)
		if !ok {
			continue
		}
		switch q.Cadence {
		case models.CadenceDaily:
			daily[cat.TokenColumn()] = q.Limit
		case models.CadenceWeekly:
			weekly[cat.TokenColumn()] = q.Limit
		}
	}

	var applied []models.Cadence
	res := tx.Model(&models.TokenLedger{}).
		Where("user_id = ? AND last_daily_refill_date < ?", userID, day.Bucket).
		Updates(daily)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		applied = append(applied, models.CadenceDaily)
	}

	res = tx.Model(&models.TokenLedger{}).
		Where("user_id = ? AND last_weekly_refill_week_start < ?", userID, day.WeekStart).
		Updates(weekly)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		applied = append(applied, models.CadenceWeekly)
	}

	for _, cadence := range applied {
		l.log.Debug("refill applied",
			zap.String("user_id", userID), zap.String("cadence", string(cadence)),
			zap.String("day", day.Bucket), zap.String("week_start", day.WeekStart))
	}
	return applied, nil
}

// DebitTx applies due refills, then takes one token of cat if and only if one is left.
func (l *Ledger) DebitTx(tx *gorm.DB, userID string, cat models.Category, day clock.LocalDay) (Balance, error) {
	if !cat.Valid() {
		return Balance{}, models.ErrInvalidCategory
	}
	_, tier, err := l.LockTx(tx, userID)
	if err != nil {
		return Balance{}, err
	}
	if _, err := l.ApplyDueRefillsTx(tx, userID, tier, day); err != nil {
		return Balance{}, err
	}

	col := cat.TokenColumn()
	res := tx.Model(&models.TokenLedger{}).
		Where("user_id = ? AND "+col+" > 0", userID).
		Updates(map[string]interface{}{
			col:       gorm.Expr(col + " - 1"),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return Balance{}, res.Error
	}
	if res.RowsAffected == 0 {
		return Balance{}, models.ErrQuotaExhausted
	}
	return l.BalanceTx(tx, userID)
}

// CreditBonusTx adds amount to the bonus currency. It is not idempotent by itself: callers
// guard it with a latch written in the same transaction (see streak.Tracker).
func (l *Ledger) CreditBonusTx(tx *gorm.DB, userID string, amount int, reason string) error {
	if amount <= 0 {
		return nil
	}
	res := tx.Model(&models.TokenLedger{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"bonus_currency": gorm.Expr("bonus_currency + ?", amount),
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	l.log.Info("bonus credited", zap.String("user_id", userID), zap.Int("amount", amount), zap.String("reason", reason))
	return nil
}

// BalanceTx reads the ledger inside tx.
func (l *Ledger) BalanceTx(tx *gorm.DB, userID string) (Balance, error) {
	var row models.TokenLedger
	if err := tx.Where("user_id = ?", userID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Balance{}, models.ErrUserNotFound
		}
		return Balance{}, err
	}
	var user models.User
	if err := tx.Select("id", "tier").Where("id = ?", userID).Take(&user).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Balance{}, err
	}
	return balanceOf(row, user.Tier), nil
}

// Debit is DebitTx in its own transaction. ErrQuotaExhausted leaves the ledger untouched.
func (l *Ledger) Debit(ctx context.Context, userID string, cat models.Category, day clock.LocalDay) (Balance, error) {
	var bal Balance
	err := l.txr.Run(ctx, "ledger.debit", func(tx *gorm.DB) error {
		var err error
		bal, err = l.DebitTx(tx, userID, cat, day)
		return err
	})
	l.ObserveDebit(cat, err)
	return bal, err
}

// ApplyDueRefills is ApplyDueRefillsTx in its own transaction, under the ledger row lock.
func (l *Ledger) ApplyDueRefills(ctx context.Context, userID string, day clock.LocalDay) (Balance, error) {
	var bal Balance
	var applied []models.Cadence
	err := l.txr.Run(ctx, "ledger.refill", func(tx *gorm.DB) error {
		_, tier, err := l.LockTx(tx, userID)
		if err != nil {
			return err
		}
		if applied, err = l.ApplyDueRefillsTx(tx, userID, tier, day); err != nil {
			return err
		}
		bal, err = l.BalanceTx(tx, userID)
		return err
	})
	if err == nil {
		l.ObserveRefills(applied)
	}
	return bal, err
}

// CreditBonus is CreditBonusTx in its own transaction.
func (l *Ledger) CreditBonus(ctx context.Context, userID string, amount int, reason string) error {
	err := l.txr.Run(ctx, "ledger.credit_bonus", func(tx *gorm.DB) error {
		return l.CreditBonusTx(tx, userID, amount, reason)
	})
	if err == nil && amount > 0 {
		metrics.BonusCredited.WithLabelValues(reason).Add(float64(amount))
	}
	return err
}

// Balance reads the ledger without applying refills.
func (l *Ledger) Balance(ctx context.Context, userID string) (Balance, error) {
	return l.BalanceTx(l.txr.DB().WithContext(ctx), userID)
}

// SetTier changes a user's refill cadence. The new cadence applies from the next boundary.
func (l *Ledger) SetTier(ctx context.Context, userID string, tier models.Tier) error {
	if !tier.Valid() {
		return models.ErrInvalidTier
	}
	return l.txr.Run(ctx, "ledger.set_tier", func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", userID).Update("tier", tier)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrUserNotFound
		}
		l.log.Info("tier changed", zap.String("user_id", userID), zap.String("tier", string(tier)))
		return nil
	})
}

// ObserveRefills records committed refills.
func (l *Ledger) ObserveRefills(applied []models.Cadence) {
	for _, cadence := range applied {
		metrics.LedgerRefills.WithLabelValues(string(cadence)).Inc()
	}
}

// ObserveDebit records the outcome of a debit made through DebitTx.
func (l *Ledger) ObserveDebit(cat models.Category, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, models.ErrQuotaExhausted):
		result = "exhausted"
	default:
		result = "error"
	}
	metrics.LedgerDebits.WithLabelValues(string(cat), result).Inc()
}
