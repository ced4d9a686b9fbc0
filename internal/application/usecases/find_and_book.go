package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/resy-autobook/internal/attempts"
	"github.com/example/resy-autobook/internal/browser"
	"github.com/example/resy-autobook/internal/config"
	"github.com/example/resy-autobook/internal/domain/reservation"
	"github.com/example/resy-autobook/internal/resy"
	"github.com/example/resy-autobook/internal/scheduler"
	"github.com/example/resy-autobook/internal/session"
)

// Browser is a launched session the run owns until it returns.
type Browser interface {
	resy.Page
	Cookies(ctx context.Context) ([]browser.Cookie, error)
	SetCookies(ctx context.Context, cookies []browser.Cookie) error
	Close() error
}

type LaunchFunc func(ctx context.Context, opts browser.Options) (Browser, error)

// LaunchChromium starts a real browser.
func LaunchChromium(ctx context.Context, opts browser.Options) (Browser, error) {
	s, err := browser.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type SessionCache interface {
	Load(email, password string) ([]browser.Cookie, error)
	Save(email, password string, cookies []browser.Cookie) error
	Clear() error
}

type History interface {
	StartRun(ctx context.Context, req reservation.Request) (int64, error)
	FinishRun(ctx context.Context, runID int64, status attempts.Status, bookedTime string) error
	Recorder(runID int64) scheduler.Recorder
}

// FindAndBook runs one reservation attempt end to end. Sessions and History are optional.
type FindAndBook struct {
	Config   config.Config
	Launch   LaunchFunc
	Sessions SessionCache
	History  History

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (u FindAndBook) Execute(ctx context.Context) (res scheduler.Result, err error) {
	if u.Launch == nil {
		return res, fmt.Errorf("launcher is nil")
	}
	req := u.Config.Request()

	var recorder scheduler.Recorder
	if u.History != nil {
		runID, herr := u.History.StartRun(ctx, req)
		if herr != nil {
			slog.WarnContext(ctx, "history disabled for this run", "err", herr)
		} else {
			recorder = u.History.Recorder(runID)
			defer func() { u.finish(ctx, runID, res, err) }()
		}
	}

	b, err := u.Launch(ctx, browser.Options{
		Headless:    u.Config.Headless,
		Bin:         u.Config.BrowserBin,
		StepTimeout: u.Config.StepTimeout,
	})
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			slog.WarnContext(ctx, "close browser", "err", cerr)
		}
	}()

	u.restoreSession(ctx, b)
	if resy.Login(ctx, b, u.Config.Email, u.Config.Password) {
		u.saveSession(ctx, b)
	}

	s := &scheduler.Scheduler{
		Site:       &resy.Site{Page: b, Request: req},
		Recorder:   recorder,
		Preference: req.Preference,
		ExactOnly:  req.ExactOnly,
		Interval:   u.Config.PollInterval,
		MaxPoll:    u.Config.MaxPoll,
		Now:        u.Now,
		Sleep:      u.Sleep,
	}
	return s.Run(ctx)
}

func (u FindAndBook) restoreSession(ctx context.Context, b Browser) {
	if u.Sessions == nil {
		return
	}
	cookies, err := u.Sessions.Load(u.Config.Email, u.Config.Password)
	switch {
	case errors.Is(err, session.ErrNoSession):
		slog.DebugContext(ctx, "no reusable session", "reason", err)
		return
	case errors.Is(err, session.ErrMismatch), errors.Is(err, session.ErrCorrupt):
		slog.InfoContext(ctx, "discarding saved session", "reason", err)
		if cerr := u.Sessions.Clear(); cerr != nil {
			slog.WarnContext(ctx, "clear session", "err", cerr)
		}
		return
	case err != nil:
		slog.WarnContext(ctx, "load session", "err", err)
		return
	}
	if err := b.SetCookies(ctx, cookies); err != nil {
		slog.WarnContext(ctx, "restore session", "err", err)
		return
	}
	slog.InfoContext(ctx, "restored saved session", "cookies", len(cookies))
}

func (u FindAndBook) saveSession(ctx context.Context, b Browser) {
	if u.Sessions == nil {
		return
	}
	cookies, err := b.Cookies(ctx)
	if err != nil {
		slog.WarnContext(ctx, "read cookies", "err", err)
		return
	}
	if err := u.Sessions.Save(u.Config.Email, u.Config.Password, cookies); err != nil {
		slog.WarnContext(ctx, "save session", "err", err)
	}
}

func (u FindAndBook) finish(ctx context.Context, runID int64, res scheduler.Result, err error) {
	status := RunStatus(err)
	// the run may have ended because ctx was cancelled
	ctx = context.WithoutCancel(ctx)
	if ferr := u.History.FinishRun(ctx, runID, status, res.Slot.Label); ferr != nil {
		slog.WarnContext(ctx, "finish run", "run", runID, "err", ferr)
	}
}

// RunStatus maps the result of Execute to the stored run status.
func RunStatus(err error) attempts.Status {
	switch {
	case err == nil:
		return attempts.StatusBooked
	case errors.Is(err, scheduler.ErrDeadline):
		return attempts.StatusTimedOut
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return attempts.StatusAborted
	}
	return attempts.StatusFailed
}
