package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/resy-autobook/internal/domain/reservation"
	"github.com/example/resy-autobook/internal/internaltypes"
)

// ErrDeadline is returned when the poll window closes without a confirmed booking.
var ErrDeadline = fmt.Errorf("poll deadline reached: %w", internaltypes.ErrNotBooked)

var tracer = otel.Tracer("github.com/example/resy-autobook/internal/scheduler")

// Site is the venue the loop polls. Implementations swallow page errors where they can;
// Load failing only means "no slot yet".
type Site interface {
	Load(ctx context.Context) error
	Labels(ctx context.Context) ([]string, error)
	Book(ctx context.Context, slot reservation.TimeSlot) bool
}

// Recorder receives every finished poll cycle. Errors are logged and otherwise ignored.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

// PollState is the loop's memory for a single run.
type PollState struct {
	Deadline time.Time
	LastSeen []string
	Attempts int
}

type Result struct {
	State    State
	Slot     reservation.TimeSlot
	Attempts int
	LastSeen []string
}

// Scheduler polls one venue until a slot is booked or the deadline passes.
type Scheduler struct {
	Site       Site
	Recorder   Recorder
	Preference string
	ExactOnly  bool
	Interval   time.Duration
	MaxPoll    time.Duration

	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run drives Navigating → Selecting → Booking until Succeeded, or through Waiting until
// the deadline. It never reports Failed before start + MaxPoll. A cancelled ctx ends the
// run with ctx.Err().
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	st := PollState{Deadline: s.now().Add(s.MaxPoll)}
	slog.InfoContext(ctx, "polling for a table",
		"preference", s.Preference,
		"exact", s.ExactOnly,
		"deadline", st.Deadline.Format(time.Kitchen))

	for {
		if err := ctx.Err(); err != nil {
			return s.result(Failed, st, reservation.TimeSlot{}), err
		}

		a, slot := s.cycle(ctx, &st)
		s.record(ctx, a)
		if a.Outcome == OutcomeBooked {
			s.transition(ctx, Succeeded, st.Attempts)
			slog.InfoContext(ctx, "reservation confirmed", "time", slot.Label, "attempts", st.Attempts)
			return s.result(Succeeded, st, slot), nil
		}

		s.transition(ctx, Waiting, st.Attempts)
		if !s.now().Before(st.Deadline) {
			s.transition(ctx, Failed, st.Attempts)
			return s.result(Failed, st, reservation.TimeSlot{}), ErrDeadline
		}
		if err := s.sleep(ctx, s.Interval); err != nil {
			return s.result(Failed, st, reservation.TimeSlot{}), err
		}
	}
}

// cycle runs Navigating, Selecting and Booking once.
func (s *Scheduler) cycle(ctx context.Context, st *PollState) (a Attempt, slot reservation.TimeSlot) {
	st.Attempts++
	ctx, span := tracer.Start(ctx, "poll.cycle", trace.WithAttributes(attribute.Int("attempt", st.Attempts)))
	defer span.End()

	a = Attempt{Number: st.Attempts, At: s.now()}
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(a.Outcome)))
	}()

	s.transition(ctx, Navigating, st.Attempts)
	if err := s.Site.Load(ctx); err != nil {
		slog.InfoContext(ctx, "venue did not load", "attempt", st.Attempts, "err", err)
		span.SetStatus(codes.Error, err.Error())
		a.Outcome = OutcomeLoadFailed
		return a, slot
	}

	s.transition(ctx, Selecting, st.Attempts)
	labels, err := s.Site.Labels(ctx)
	if err != nil {
		slog.DebugContext(ctx, "read time slots", "err", err)
	}
	st.LastSeen = labels
	a.Labels = labels
	span.SetAttributes(attribute.StringSlice("labels", labels))

	slot, ok := reservation.SelectTime(reservation.ParseSlots(labels), s.Preference, s.ExactOnly)
	if !ok {
		slog.InfoContext(ctx, "no eligible slot", "attempt", st.Attempts, "seen", len(labels))
		a.Outcome = OutcomeNoSlot
		return a, slot
	}
	a.Chosen = slot.Label

	s.transition(ctx, Booking, st.Attempts)
	slog.InfoContext(ctx, "booking", "time", slot.Label, "attempt", st.Attempts)
	if !s.Site.Book(ctx, slot) {
		a.Outcome = OutcomeNotConfirmed
		return a, slot
	}
	a.Outcome = OutcomeBooked
	return a, slot
}

func (s *Scheduler) record(ctx context.Context, a Attempt) {
	if s.Recorder == nil {
		return
	}
	if err := s.Recorder.RecordAttempt(ctx, a); err != nil {
		slog.WarnContext(ctx, "record attempt", "attempt", a.Number, "err", err)
	}
}

func (s *Scheduler) transition(ctx context.Context, to State, attempt int) {
	slog.DebugContext(ctx, "state", "to", to.String(), "attempt", attempt)
}

func (s *Scheduler) result(state State, st PollState, slot reservation.TimeSlot) Result {
	return Result{State: state, Slot: slot, Attempts: st.Attempts, LastSeen: st.LastSeen}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
