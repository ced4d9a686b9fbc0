package reservation

import (
	"regexp"
	"strconv"
	"strings"
)

// Request describes one reservation attempt against a single venue.
type Request struct {
	VenueURL  string
	Date      string // YYYY-MM-DD
	PartySize int

	// Preference is a 12-hour label such as "7:30 PM". Empty means no preference.
	Preference string
	ExactOnly  bool
}

// TimeSlot is a time label observed on the venue page and its minute of the day.
type TimeSlot struct {
	Label  string
	Minute int
}

var clockPattern = regexp.MustCompile(`(?i)^(\d{1,2})(?:[:.]?(\d{2}))?\s*(AM|PM)$`)

// ParseClock converts a 12-hour label ("7:30 PM", "7.30pm", "12 AM") to minutes since midnight.
func ParseClock(label string) (int, bool) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(label))
	if m == nil {
		return 0, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour < 1 || hour > 12 {
		return 0, false
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return 0, false
		}
	}
	total := (hour%12)*60 + minute
	if strings.EqualFold(m[3], "PM") {
		total += 12 * 60
	}
	return total, true
}

// ParseSlots keeps the labels that parse, in input order.
func ParseSlots(labels []string) []TimeSlot {
	out := make([]TimeSlot, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		minute, ok := ParseClock(l)
		if !ok {
			continue
		}
		out = append(out, TimeSlot{Label: l, Minute: minute})
	}
	return out
}
