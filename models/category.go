package models

import "strings"

// Category is a submission type. Each category has its own token pool and its own unlock threshold.
type Category string

const (
	// CategoryA is the short "300-char" mode.
	CategoryA Category = "A"
	// CategoryB is the long "1000-char" mode.
	CategoryB Category = "B"
)

// Categories lists every known category in display order.
var Categories = []Category{CategoryA, CategoryB}

// ParseCategory normalizes user input into a known category.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", ErrInvalidCategory
	}
	return c, nil
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// TokenColumn is the token_ledgers column holding this category's counter.
func (c Category) TokenColumn() string {
	switch c {
	case CategoryA:
		return "tokens_category_a"
	case CategoryB:
		return "tokens_category_b"
	}
	return ""
}

// Tier controls the refill cadence of a user's quota.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPromoted Tier = "promoted"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierStandard || t == TierPromoted
}

// Cadence is how often a quota counter is reset to its limit.
type Cadence string

const (
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)
