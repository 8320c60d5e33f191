package scheduler

import (
	"fmt"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
)

// ParseTimeOfDay parses an HH:MM wall-clock time.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	hour, minute, err = models.ParseClock(s)
	if err != nil {
		return 0, 0, errs.NewInvalidScheduleError("scheduleTime", err)
	}
	return hour, minute, nil
}

// NextSlot returns the first instant strictly after ref that matches the
// posting frequency, with timeOfDay read as wall-clock time in loc.
//
// Biweekly posting keeps a true 14 day cadence: when ref is itself a slot
// (the configured weekday at timeOfDay, which holds for every anchor taken
// from an earlier post) the next slot is two weeks later; otherwise the
// upcoming weekday starts the cycle.
//
// Monthly posting keeps the day of month of ref. Months that are too short
// get their last day instead (Jan 31 is followed by Feb 28 or 29).
func NextSlot(freq models.Frequency, timeOfDay string, dayOfWeek *int, loc *time.Location, ref time.Time) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	hour, minute, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	local := ref.In(loc)

	switch freq {
	case models.FrequencyDaily:
		return nextDaily(local, hour, minute), nil

	case models.FrequencyWeekly, models.FrequencyBiweekly:
		if dayOfWeek == nil {
			return time.Time{}, errs.NewInvalidScheduleError("scheduleDayOfWeek",
				fmt.Errorf("day of week is required for %s posting", freq))
		}
		if *dayOfWeek < 0 || *dayOfWeek > 6 {
			return time.Time{}, errs.NewInvalidScheduleError("scheduleDayOfWeek",
				fmt.Errorf("day of week %d is outside 0..6", *dayOfWeek))
		}
		weekday := time.Weekday(*dayOfWeek)
		if freq == models.FrequencyBiweekly && isSlot(local, weekday, hour, minute) {
			y, m, d := local.Date()
			return time.Date(y, m, d+14, hour, minute, 0, 0, loc), nil
		}
		return nextWeekly(local, weekday, hour, minute), nil

	case models.FrequencyMonthly:
		return nextMonthly(local, hour, minute), nil
	}

	return time.Time{}, errs.NewInvalidScheduleError("postingFrequency",
		fmt.Errorf("unsupported posting frequency %q", freq))
}

func nextDaily(ref time.Time, hour, minute int) time.Time {
	y, m, d := ref.Date()
	slot := time.Date(y, m, d, hour, minute, 0, 0, ref.Location())
	for !slot.After(ref) {
		d++
		slot = time.Date(y, m, d, hour, minute, 0, 0, ref.Location())
	}
	return slot
}

func nextWeekly(ref time.Time, weekday time.Weekday, hour, minute int) time.Time {
	y, m, d := ref.Date()
	d += (int(weekday) - int(ref.Weekday()) + 7) % 7
	slot := time.Date(y, m, d, hour, minute, 0, 0, ref.Location())
	for !slot.After(ref) {
		d += 7
		slot = time.Date(y, m, d, hour, minute, 0, 0, ref.Location())
	}
	return slot
}

func nextMonthly(ref time.Time, hour, minute int) time.Time {
	y, m, d := ref.Date()
	slot := clampedDate(y, m, d, hour, minute, ref.Location())
	for i := 1; !slot.After(ref); i++ {
		slot = clampedDate(y, m+time.Month(i), d, hour, minute, ref.Location())
	}
	return slot
}

// clampedDate is time.Date without day overflow: a day past the end of the
// month yields the month's last day.
func clampedDate(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	year, month = first.Year(), first.Month()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// isSlot compares against the normalized slot of t's date, so a slot that
// fell into a DST gap (02:30 becoming 03:30) is still recognized.
func isSlot(t time.Time, weekday time.Weekday, hour, minute int) bool {
	if t.Weekday() != weekday {
		return false
	}
	y, m, d := t.Date()
	return t.Equal(time.Date(y, m, d, hour, minute, 0, 0, t.Location()))
}
