package scheduler

import "time"

type State int

const (
	Navigating State = iota
	Selecting
	Booking
	Waiting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Navigating:
		return "navigating"
	case Selecting:
		return "selecting"
	case Booking:
		return "booking"
	case Waiting:
		return "waiting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Outcome is how a single poll cycle ended.
type Outcome string

const (
	OutcomeLoadFailed   Outcome = "load_failed"
	OutcomeNoSlot       Outcome = "no_slot"
	OutcomeNotConfirmed Outcome = "not_confirmed"
	OutcomeBooked       Outcome = "booked"
)

// Attempt is one Navigating → Selecting → (Booking) pass.
type Attempt struct {
	Number  int
	Labels  []string
	Chosen  string
	Outcome Outcome
	At      time.Time
}
