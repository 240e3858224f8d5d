// Package streak computes consecutive check-in runs and milestone unlocks.
// Everything here is pure: no storage, no clock.
package streak

import (
	"github.com/imalive/server/calendar"
	"github.com/imalive/server/models"
)

// GraceDays is how long a streak survives without today's check-in.
const GraceDays = 1

// Compute returns the length of the unbroken run of days ending at the latest
// check-in, or 0 when the latest check-in is more than GraceDays before today.
// dates is treated as a set; order and duplicates do not matter.
func Compute(dates []calendar.Date, today calendar.Date) int {
	if len(dates) == 0 {
		return 0
	}

	set := make(map[calendar.Date]struct{}, len(dates))
	latest := dates[0]
	for _, d := range dates {
		set[d] = struct{}{}
		if d.After(latest) {
			latest = d
		}
	}

	if today.DaysSince(latest) > GraceDays {
		return 0
	}

	count := 0
	for day := latest; ; day = day.AddDays(-1) {
		if _, ok := set[day]; !ok {
			return count
		}
		count++
	}
}

// EvaluateUnlock returns the tier whose RequiredDays equals streak exactly,
// unless the user already holds it. It never returns an unlocked tier.
func EvaluateUnlock(streak int, unlocked map[uint]struct{}, defs []models.Achievement) *models.Achievement {
	if streak <= 0 {
		return nil
	}
	for i := range defs {
		if defs[i].RequiredDays != streak {
			continue
		}
		if _, held := unlocked[defs[i].ID]; held {
			return nil
		}
		tier := defs[i]
		return &tier
	}
	return nil
}

// Longest returns the longest run of consecutive days anywhere in dates.
func Longest(dates []calendar.Date) int {
	set := make(map[calendar.Date]struct{}, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}
	best := 0
	for d := range set {
		// only start counting at the first day of a run
		if _, ok := set[d.AddDays(-1)]; ok {
			continue
		}
		n := 0
		for day := d; ; day = day.AddDays(1) {
			if _, ok := set[day]; !ok {
				break
			}
			n++
		}
		if n > best {
			best = n
		}
	}
	return best
}
