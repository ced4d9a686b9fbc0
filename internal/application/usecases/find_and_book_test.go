package usecases

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/resy-autobook/internal/attempts"
	"github.com/example/resy-autobook/internal/browser"
	"github.com/example/resy-autobook/internal/config"
	"github.com/example/resy-autobook/internal/domain/reservation"
	"github.com/example/resy-autobook/internal/internaltypes"
	"github.com/example/resy-autobook/internal/scheduler"
	"github.com/example/resy-autobook/internal/session"
)

type fakeBrowser struct {
	html string
	url  string

	visited  []string
	restored []browser.Cookie
	closed   int
}

func (b *fakeBrowser) Goto(_ context.Context, url string) error {
	b.visited = append(b.visited, url)
	return nil
}
func (b *fakeBrowser) ClickFirst(context.Context, []browser.Target) bool  { return true }
func (b *fakeBrowser) Fill(context.Context, browser.Target, string) error { return nil }
func (b *fakeBrowser) HTML(context.Context) (string, error)               { return b.html, nil }
func (b *fakeBrowser) URL(context.Context) string                         { return b.url }
func (b *fakeBrowser) Settle(context.Context)                             {}

func (b *fakeBrowser) Cookies(context.Context) ([]browser.Cookie, error) {
	return []browser.Cookie{{Name: "authtoken", Value: "fresh"}}, nil
}

func (b *fakeBrowser) SetCookies(_ context.Context, c []browser.Cookie) error {
	b.restored = c
	return nil
}

func (b *fakeBrowser) Close() error {
	b.closed++
	return nil
}

type fakeSessions struct {
	stored    []browser.Cookie
	loadErr   error
	savedWith string
	cleared   int
}

func (s *fakeSessions) Load(email, password string) ([]browser.Cookie, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.stored, nil
}

func (s *fakeSessions) Save(email, password string, cookies []browser.Cookie) error {
	s.savedWith = email
	s.stored = cookies
	return nil
}

func (s *fakeSessions) Clear() error {
	s.cleared++
	s.stored = nil
	return nil
}

type fakeHistory struct {
	startErr error
	started  []reservation.Request
	status   attempts.Status
	booked   string
	recorded []scheduler.Attempt
}

func (h *fakeHistory) StartRun(_ context.Context, req reservation.Request) (int64, error) {
	h.started = append(h.started, req)
	return 1, h.startErr
}

func (h *fakeHistory) FinishRun(_ context.Context, _ int64, status attempts.Status, booked string) error {
	h.status, h.booked = status, booked
	return nil
}

func (h *fakeHistory) Recorder(int64) scheduler.Recorder { return h }

func (h *fakeHistory) RecordAttempt(_ context.Context, a scheduler.Attempt) error {
	h.recorded = append(h.recorded, a)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Email:          "me@example.com",
		Password:       "pw",
		VenueURL:       "https://resy.com/cities/ny/lilia",
		Date:           "2026-11-01",
		PartySize:      2,
		TimePreference: "7:00 PM",
		Headless:       true,
		PollInterval:   2 * time.Second,
		MaxPoll:        10 * time.Second,
		StepTimeout:    time.Second,
	}
}

func newUsecase(b *fakeBrowser) (*FindAndBook, *time.Time) {
	now := time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)
	u := &FindAndBook{
		Config: testConfig(),
		Launch: func(context.Context, browser.Options) (Browser, error) { return b, nil },
		Now:    func() time.Time { return now },
		Sleep: func(_ context.Context, d time.Duration) error {
			now = now.Add(d)
			return nil
		},
	}
	return u, &now
}

func TestExecuteBooks(t *testing.T) {
	b := &fakeBrowser{html: `<button>6:00 PM</button><button>7:00 PM</button>`, url: "https://resy.com/confirmation"}
	h := &fakeHistory{}
	sessions := &fakeSessions{loadErr: session.ErrNoSession}
	u, _ := newUsecase(b)
	u.History = h
	u.Sessions = sessions

	res, err := u.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, scheduler.Succeeded, res.State)
	require.Equal(t, "7:00 PM", res.Slot.Label)
	require.Equal(t, 1, b.closed)

	require.Equal(t, []string{
		"https://resy.com/login",
		"https://resy.com/cities/ny/lilia?seats=2&date=2026-11-01",
	}, b.visited)
	require.Equal(t, "me@example.com", sessions.savedWith)
	require.Equal(t, attempts.StatusBooked, h.status)
	require.Equal(t, "7:00 PM", h.booked)
	require.Len(t, h.recorded, 1)
}

func TestExecuteTimesOutAndClosesBrowser(t *testing.T) {
	b := &fakeBrowser{html: `<button>Notify me</button>`, url: "https://resy.com/cities/ny/lilia"}
	h := &fakeHistory{}
	u, now := newUsecase(b)
	u.History = h
	start := *now

	_, err := u.Execute(context.Background())
	require.ErrorIs(t, err, internaltypes.ErrNotBooked)
	require.Equal(t, 1, b.closed)
	require.Equal(t, attempts.StatusTimedOut, h.status)
	require.False(t, now.Before(start.Add(10*time.Second)))
}

func TestExecuteRestoresSavedSession(t *testing.T) {
	b := &fakeBrowser{html: `<button>7:00 PM</button>`, url: "https://resy.com/success"}
	saved := []browser.Cookie{{Name: "authtoken", Value: "old"}}
	u, _ := newUsecase(b)
	u.Sessions = &fakeSessions{stored: saved}

	_, err := u.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, saved, b.restored)
}

func TestExecuteDiscardsUnusableSession(t *testing.T) {
	for _, tc := range []struct {
		loadErr error
		cleared int
	}{
		{loadErr: session.ErrMismatch, cleared: 1},
		{loadErr: fmt.Errorf("%w: decode session: hash key is not valid", session.ErrCorrupt), cleared: 1},
		{loadErr: session.ErrNoSession, cleared: 0},
		{loadErr: errors.New("read session: permission denied"), cleared: 0},
	} {
		b := &fakeBrowser{html: `<button>7:00 PM</button>`, url: "https://resy.com/success"}
		sessions := &fakeSessions{loadErr: tc.loadErr}
		u, _ := newUsecase(b)
		u.Sessions = sessions

		_, err := u.Execute(context.Background())
		require.NoError(t, err)
		require.Equal(t, tc.cleared, sessions.cleared, tc.loadErr.Error())
		require.Nil(t, b.restored)
		require.Equal(t, "me@example.com", sessions.savedWith, "a fresh login is saved")
	}
}

func TestExecuteLaunchFailure(t *testing.T) {
	h := &fakeHistory{}
	u := &FindAndBook{
		Config:  testConfig(),
		History: h,
		Launch: func(context.Context, browser.Options) (Browser, error) {
			return nil, errors.New("chromium not found")
		},
	}
	_, err := u.Execute(context.Background())
	require.ErrorContains(t, err, "chromium not found")
	require.Equal(t, attempts.StatusFailed, h.status)
}

func TestExecuteHistoryOutageIsNotFatal(t *testing.T) {
	b := &fakeBrowser{html: `<button>7:00 PM</button>`, url: "https://resy.com/confirm"}
	h := &fakeHistory{startErr: errors.New("connection refused")}
	u, _ := newUsecase(b)
	u.History = h

	_, err := u.Execute(context.Background())
	require.NoError(t, err)
	require.Empty(t, h.recorded)
	require.Empty(t, h.status)
}

func TestExecuteCancelled(t *testing.T) {
	b := &fakeBrowser{html: `<button>Notify me</button>`}
	h := &fakeHistory{}
	ctx, cancel := context.WithCancel(context.Background())
	u, _ := newUsecase(b)
	u.History = h
	u.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := u.Execute(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, b.closed)
	require.Equal(t, attempts.StatusAborted, h.status)
}

func TestRunStatus(t *testing.T) {
	require.Equal(t, attempts.StatusBooked, RunStatus(nil))
	require.Equal(t, attempts.StatusTimedOut, RunStatus(fmt.Errorf("run: %w", scheduler.ErrDeadline)))
	require.Equal(t, attempts.StatusAborted, RunStatus(context.Canceled))
	require.Equal(t, attempts.StatusFailed, RunStatus(errors.New("boom")))
}
