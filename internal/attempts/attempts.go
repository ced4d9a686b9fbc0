// Package attempts stores a history of booking runs and their poll cycles in Postgres.
package attempts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/resy-autobook/internal/db"
	"github.com/example/resy-autobook/internal/domain/reservation"
	"github.com/example/resy-autobook/internal/scheduler"
)

type Status string

const (
	StatusRunning  Status = "running"
	StatusBooked   Status = "booked"
	StatusTimedOut Status = "timed_out"
	StatusAborted  Status = "aborted"
	StatusFailed   Status = "failed"
)

type Run struct {
	ID         int64
	VenueURL   string
	Date       string
	PartySize  int
	Preference string
	ExactTime  bool
	Status     Status
	BookedTime string
	Attempts   int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Querier is satisfied by *db.DB.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) error
	QueryRow(ctx context.Context, sql string, args ...any) db.Row
	Query(ctx context.Context, sql string, args ...any) (db.Rows, error)
}

type Repo struct{ db Querier }

func NewRepo(q Querier) *Repo { return &Repo{db: q} }

func (r *Repo) StartRun(ctx context.Context, req reservation.Request) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO runs(venue_url, reservation_date, party_size, time_preference, exact_time, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		req.VenueURL, req.Date, req.PartySize, req.Preference, req.ExactOnly, StatusRunning,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// RecordAttempt stores one poll cycle and bumps the run's attempt count in one statement.
func (r *Repo) RecordAttempt(ctx context.Context, runID int64, a scheduler.Attempt) error {
	if err := r.db.Exec(ctx, `
WITH ins AS (
	INSERT INTO run_attempts(run_id, number, labels, chosen, outcome, attempted_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING run_id, number
)
UPDATE runs SET attempts = ins.number FROM ins WHERE runs.id = ins.run_id`,
		runID, a.Number, joinLabels(a.Labels), a.Chosen, string(a.Outcome), a.At); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (r *Repo) FinishRun(ctx context.Context, runID int64, status Status, bookedTime string) error {
	return r.db.Exec(ctx, `UPDATE runs SET status=$2, booked_time=$3, finished_at=now() WHERE id=$1`,
		runID, status, bookedTime)
}

const runColumns = `id, venue_url, reservation_date::text, party_size, time_preference, exact_time, status, booked_time, attempts, started_at, finished_at`

// GetRun returns one run, or internaltypes.ErrNotFound when the id is unknown.
func (r *Repo) GetRun(ctx context.Context, runID int64) (Run, error) {
	run, err := scanRun(r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id=$1`, runID))
	if err != nil {
		return Run{}, db.WrapNotFound(err)
	}
	return run, nil
}

func (r *Repo) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+runColumns+`
FROM runs
ORDER BY started_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(row db.Row) (Run, error) {
	var run Run
	var status string
	if err := row.Scan(
		&run.ID, &run.VenueURL, &run.Date, &run.PartySize, &run.Preference, &run.ExactTime,
		&status, &run.BookedTime, &run.Attempts, &run.StartedAt, &run.FinishedAt,
	); err != nil {
		return Run{}, err
	}
	run.Status = Status(status)
	return run, nil
}

// ListAttempts returns the poll cycles of one run in order.
func (r *Repo) ListAttempts(ctx context.Context, runID int64) ([]scheduler.Attempt, error) {
	rows, err := r.db.Query(ctx, `
SELECT number, labels, chosen, outcome, attempted_at
FROM run_attempts
WHERE run_id=$1
ORDER BY number ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheduler.Attempt
	for rows.Next() {
		var a scheduler.Attempt
		var labels, outcome string
		if err := rows.Scan(&a.Number, &labels, &a.Chosen, &outcome, &a.At); err != nil {
			return nil, err
		}
		a.Labels = splitLabels(labels)
		a.Outcome = scheduler.Outcome(outcome)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Recorder binds the repo to one run for the polling loop.
func (r *Repo) Recorder(runID int64) scheduler.Recorder {
	return runRecorder{repo: r, runID: runID}
}

type runRecorder struct {
	repo  *Repo
	runID int64
}

func (rr runRecorder) RecordAttempt(ctx context.Context, a scheduler.Attempt) error {
	return rr.repo.RecordAttempt(ctx, rr.runID, a)
}

func joinLabels(labels []string) string {
	var cleaned []string
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			cleaned = append(cleaned, l)
		}
	}
	return strings.Join(cleaned, ",")
}

func splitLabels(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
