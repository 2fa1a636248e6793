// Package unlock decides when a submission's received feedback becomes visible to its owner.
//
// A submission starts LOCKED and moves to UNLOCKED once the owner has given enough feedback
// on the same local day. UNLOCKED is terminal.
package unlock

import (
	"errors"
	"fmt"

	"github.com/cppla/dailyink/models"
)

// Counts is how many feedbacks an author gave today, keyed by the target submission's category.
type Counts map[models.Category]int

// Total sums the counts over every category.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Threshold says which target categories count toward a category's floor and how many are required.
type Threshold struct {
	Counted  []models.Category
	Required int
}

// Rules is the immutable unlock policy.
type Rules struct {
	thresholds  map[models.Category]Threshold
	eligibility map[models.Category]map[models.Category]bool
}

// NewRules builds rules from configuration.
//
// Category A unlocks on feedback toward any category (requiredTotal); category B only on feedback
// that landed on category B targets (requiredB). The eligibility mapping must name every known
// category, and may only reference known categories.
func NewRules(requiredTotal, requiredB int, eligibility map[models.Category][]models.Category) (Rules, error) {
	if requiredTotal <= 0 {
		return Rules{}, errors.New("unlock.required_total must be positive")
	}
	if requiredB <= 0 {
		return Rules{}, errors.New("unlock.required_b must be positive")
	}

	r := Rules{
		thresholds: map[models.Category]Threshold{
			models.CategoryA: {Counted: append([]models.Category(nil), models.Categories...), Required: requiredTotal},
			models.CategoryB: {Counted: []models.Category{models.CategoryB}, Required: requiredB},
		},
		eligibility: make(map[models.Category]map[models.Category]bool, len(eligibility)),
	}

	for own, targets := range eligibility {
		if !own.Valid() {
			return Rules{}, fmt.Errorf("unlock.eligibility: unknown category %q", own)
		}
		set := make(map[models.Category]bool, len(targets))
		for _, target := range targets {
			if !target.Valid() {
				return Rules{}, fmt.Errorf("unlock.eligibility.%s: unknown target category %q", own, target)
			}
			set[target] = true
		}
		r.eligibility[own] = set
	}
	for _, cat := range models.Categories {
		if _, ok := r.eligibility[cat]; !ok {
			return Rules{}, fmt.Errorf("unlock.eligibility: missing entry for category %q", cat)
		}
		if _, ok := r.thresholds[cat]; !ok {
			return Rules{}, fmt.Errorf("unlock: no threshold for category %q", cat)
		}
	}
	return r, nil
}

// Eligible reports whether an author who submitted ownToday may give feedback on a target category.
// An author with no submission today is never eligible.
func (r Rules) Eligible(ownToday []models.Category, target models.Category) bool {
	for _, own := range ownToday {
		if r.eligibility[own][target] {
			return true
		}
	}
	return false
}

// EligibleTargets lists the target categories open to an author today, in display order.
func (r Rules) EligibleTargets(ownToday []models.Category) []models.Category {
	var out []models.Category
	for _, cat := range models.Categories {
		if r.Eligible(ownToday, cat) {
			out = append(out, cat)
		}
	}
	return out
}

// Threshold returns the floor for a category.
func (r Rules) Threshold(cat models.Category) Threshold {
	return r.thresholds[cat]
}

// Progress is the count that counts toward cat's floor.
func (r Rules) Progress(counts Counts, cat models.Category) int {
	n := 0
	for _, counted := range r.thresholds[cat].Counted {
		n += counts[counted]
	}
	return n
}

// ShouldUnlock reports whether a submission of category cat unlocks under counts.
func (r Rules) ShouldUnlock(counts Counts, cat models.Category) bool {
	th, ok := r.thresholds[cat]
	if !ok {
		return false
	}
	return r.Progress(counts, cat) >= th.Required
}

// Evaluate returns the ids of still-locked submissions that must transition to UNLOCKED.
// Already unlocked submissions are never returned, so applying the result is idempotent.
func (r Rules) Evaluate(counts Counts, subs []models.Submission) []string {
	var ids []string
	for _, s := range subs {
		if s.FeedbackUnlocked {
			continue
		}
		if r.ShouldUnlock(counts, s.Category) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
