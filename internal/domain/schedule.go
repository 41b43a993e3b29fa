package domain

import (
	"fmt"
	"time"
)

// IsDue reports whether sub's daily reminder should fire at now.
//
// The reminder is due when the wall clock in sub.TZ reads sub.LocalTime and
// nothing was delivered yet on that local calendar day. When the target minute
// does not exist today (DST gap) the first minute after the gap counts as the
// target. When it exists twice (DST overlap) only the first passes the day check.
// An unresolvable timezone yields false and an error wrapping ErrInvalidTimezone.
func IsDue(sub *Subscription, now time.Time) (bool, error) {
	loc, err := LoadTZ(sub.TZ)
	if err != nil {
		return false, err
	}
	if !sub.LocalTime.Valid() {
		return false, fmt.Errorf("%w: %d minutes", ErrInvalidLocalTime, int(sub.LocalTime))
	}

	local := now.In(loc)
	if !atTarget(now, loc, sub.LocalTime) {
		return false, nil
	}
	if sub.LastSentAt == nil {
		return true, nil
	}
	return dateBefore(sub.LastSentAt.In(loc), local), nil
}

// atTarget reports whether now falls on the target minute in loc.
func atTarget(now time.Time, loc *time.Location, target LocalTime) bool {
	local := now.In(loc)
	cur := minuteOfDay(local)
	if cur == int(target) {
		return true
	}
	if !skippedOn(local, target) {
		return false
	}
	// The target was skipped today: fire on the first tick past the gap.
	prevLocal := now.Add(-time.Minute).In(loc)
	prev := -1
	if sameDate(prevLocal, local) {
		prev = minuteOfDay(prevLocal)
	}
	return prev < int(target) && cur > int(target)
}

// skippedOn reports whether the wall time target does not exist on local's date.
func skippedOn(local time.Time, target LocalTime) bool {
	c := wallTime(local, target)
	return c.Hour() != target.Hour() || c.Minute() != target.Minute() || !sameDate(c, local)
}

// NextFire returns the next instant (UTC) at which sub would be delivered,
// assuming deliveries succeed. It is informational; IsDue is authoritative.
func NextFire(sub *Subscription, now time.Time) (time.Time, error) {
	loc, err := LoadTZ(sub.TZ)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	today := wallTime(local, sub.LocalTime)

	sentToday := sub.LastSentAt != nil && !dateBefore(sub.LastSentAt.In(loc), local)
	if !sentToday && !today.Before(local.Truncate(time.Minute)) {
		return today.UTC(), nil
	}
	tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return wallTime(tomorrow, sub.LocalTime).UTC(), nil
}

// wallTime builds the instant for target on base's local date. Go normalizes
// nonexistent wall times into the offset of one side of the transition.
func wallTime(base time.Time, target LocalTime) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day(), target.Hour(), target.Minute(), 0, 0, base.Location())
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// dateBefore reports whether a's calendar date is strictly earlier than b's.
// Both must already be in the same location.
func dateBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
