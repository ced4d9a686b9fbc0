package reservation

import (
	"sort"
	"strings"
)

// SelectTime picks the slot to click.
//
// With exactOnly and a preference, only a slot whose label equals the preference is
// returned. Otherwise the earliest slot at or after the preference wins, falling back to
// the latest slot on the page; with no usable preference the earliest slot wins.
// Ties go to the slot encountered first.
func SelectTime(slots []TimeSlot, preference string, exactOnly bool) (TimeSlot, bool) {
	preference = strings.TrimSpace(preference)
	if exactOnly && preference != "" {
		for _, s := range slots {
			if s.Label == preference {
				return s, true
			}
		}
		return TimeSlot{}, false
	}
	if len(slots) == 0 {
		return TimeSlot{}, false
	}

	sorted := make([]TimeSlot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Minute < sorted[j].Minute })

	want, ok := ParseClock(preference)
	if preference == "" || !ok {
		return sorted[0], true
	}
	for _, s := range sorted {
		if s.Minute >= want {
			return s, true
		}
	}
	latest := sorted[len(sorted)-1].Minute
	for _, s := range sorted {
		if s.Minute == latest {
			return s, true
		}
	}
	return TimeSlot{}, false
}
