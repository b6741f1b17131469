package core

import "time"

// NextOccurrence advances an anchor date by one interval unit using
// calendar-aware arithmetic.
//
// Rollover policy: when the anchor's day of month does not exist in the
// target month, the result is clamped to the last day of that month.
// Jan 31 + Monthly is Feb 28 (Feb 29 in leap years); Feb 29 + Yearly is
// Feb 28. Daily and Weekly are plain day offsets and never roll over.
// The time of day is preserved.
func NextOccurrence(interval RecurringInterval, anchor time.Time) time.Time {
	switch interval {
	case Daily:
		return anchor.AddDate(0, 0, 1)
	case Weekly:
		return anchor.AddDate(0, 0, 7)
	case Monthly:
		return addMonthsClamped(anchor, 1)
	case Yearly:
		return addMonthsClamped(anchor, 12)
	default:
		return anchor
	}
}

// AdvancePast advances anchor by whole intervals until the result is after
// now. A heavily overdue schedule keeps its day-of-month cadence instead of
// re-anchoring on the sweep date, and missed occurrences are skipped rather
// than posted as a burst.
func AdvancePast(interval RecurringInterval, anchor, now time.Time) time.Time {
	next := NextOccurrence(interval, anchor)
	for !next.After(now) {
		advanced := NextOccurrence(interval, next)
		if !advanced.After(next) {
			// Unknown interval; bail out instead of spinning.
			return next
		}
		next = advanced
	}
	return next
}

// addMonthsClamped adds months keeping the day of month where possible,
// clamping to the target month's last day otherwise. time.AddDate would
// normalize Jan 31 + 1 month into Mar 2/3, which is the wrong answer for a
// billing-style schedule.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()
	ny, nm := normalizeMonth(y, int(m)+months)
	if last := daysIn(ny, nm); d > last {
		d = last
	}
	return time.Date(ny, time.Month(nm), d, h, min, sec, t.Nanosecond(), t.Location())
}

func normalizeMonth(year, month int) (int, int) {
	for month > 12 {
		month -= 12
		year++
	}
	for month < 1 {
		month += 12
		year--
	}
	return year, month
}

func daysIn(year, month int) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// CombineDateTime materializes a transaction timestamp from a calendar date
// and the time-of-day of clock. The form supplies only a date; ordering
// within a day comes from the clock at creation (or the prior timestamp on
// edit).
func CombineDateTime(date, clock time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), date.Location())
}
