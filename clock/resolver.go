// Package clock turns a client-supplied UTC offset into the local calendar day and ISO week used
// for every daily and weekly boundary in the service.
package clock

import "time"

const (
	// DateLayout is the format of day buckets and week starts.
	DateLayout = "2006-01-02"

	// MinOffsetMinutes and MaxOffsetMinutes bound real-world UTC offsets (UTC-12:00 .. UTC+14:00).
	MinOffsetMinutes = -12 * 60
	MaxOffsetMinutes = 14 * 60
)

// LocalDay is the caller's local calendar position at one instant.
type LocalDay struct {
	// Bucket is the local date, YYYY-MM-DD.
	Bucket string
	// WeekStart is the Monday of Bucket's ISO week, YYYY-MM-DD.
	WeekStart string
	// Weekday is the local weekday.
	Weekday time.Weekday
	// Offset is the clamped offset in minutes east of UTC that produced this day.
	Offset int
}

// WeekdaySlot returns Mon=0..Fri=4, or false on weekends.
func (d LocalDay) WeekdaySlot() (int, bool) {
	if d.Weekday == time.Saturday || d.Weekday == time.Sunday {
		return 0, false
	}
	return int(d.Weekday) - int(time.Monday), true
}

// Resolve computes the local day for now shifted by offsetMinutes (east-positive, UTC+09:00 = 540).
// It is pure: the same instant and offset always give the same result.
func Resolve(now time.Time, offsetMinutes int) LocalDay {
	offsetMinutes = ClampOffset(offsetMinutes)
	local := now.UTC().Add(time.Duration(offsetMinutes) * time.Minute)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	// Monday-based week: Sunday is the 7th day, not the 0th.
	back := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -back)

	return LocalDay{
		Bucket:    day.Format(DateLayout),
		WeekStart: monday.Format(DateLayout),
		Weekday:   day.Weekday(),
		Offset:    offsetMinutes,
	}
}

// ClampOffset limits an untrusted offset to the real-world range.
func ClampOffset(offsetMinutes int) int {
	if offsetMinutes < MinOffsetMinutes {
		return MinOffsetMinutes
	}
	if offsetMinutes > MaxOffsetMinutes {
		return MaxOffsetMinutes
	}
	return offsetMinutes
}

// Resolver resolves local days against an injected time source.
type Resolver struct {
	now func() time.Time
}

// NewResolver returns a Resolver reading time from now; nil means the wall clock.
func NewResolver(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{now: now}
}

// Fixed returns a Resolver frozen at t.
func Fixed(t time.Time) *Resolver {
	return NewResolver(func() time.Time { return t })
}

// Now returns the current instant from the resolver's time source.
func (r *Resolver) Now() time.Time {
	return r.now()
}

// Today resolves the caller's local day at the current instant.
func (r *Resolver) Today(offsetMinutes int) LocalDay {
	return Resolve(r.now(), offsetMinutes)
}
