package models

import "time"

// TokenLedger holds a user's quota counters. Only the ledger package writes to it.
//
// LastDailyRefillDate and LastWeeklyRefillWeekStart are YYYY-MM-DD local dates. They only move forward,
// and each refill is guarded by a strict "watermark < boundary" condition so a boundary is crossed once.
type TokenLedger struct {
	UserID                    string    `gorm:"primaryKey;size:128" json:"user_id"`
	TokensCategoryA           int       `gorm:"column:tokens_category_a;not null;default:0" json:"tokens_category_a"`
	TokensCategoryB           int       `gorm:"column:tokens_category_b;not null;default:0" json:"tokens_category_b"`
	BonusCurrency             int       `gorm:"not null;default:0" json:"bonus_currency"`
	LastDailyRefillDate       string    `gorm:"size:10;not null;default:''" json:"last_daily_refill_date"`
	LastWeeklyRefillWeekStart string    `gorm:"size:10;not null;default:''" json:"last_weekly_refill_week_start"`
	Version                   int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// Tokens returns the counter for a category.
func (l TokenLedger) Tokens(c Category) int {
	switch c {
	case CategoryA:
		return l.TokensCategoryA
	case CategoryB:
		return l.TokensCategoryB
	}
	return 0
}
