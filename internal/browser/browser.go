// Package browser drives a single Chromium page over the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// settleQuiet is how long the network must stay quiet before a page counts as settled.
const settleQuiet = 500 * time.Millisecond

type Options struct {
	Headless bool
	// Bin is an optional Chromium binary. When empty the launcher finds or downloads one.
	Bin string
	// StepTimeout bounds every navigation, lookup, click and settle.
	StepTimeout time.Duration
}

// Target locates an element by CSS selector and, optionally, by its text.
// Pattern is a JavaScript regular expression and takes precedence over Text.
type Target struct {
	CSS     string
	Text    string
	Pattern string
}

func (t Target) String() string {
	switch {
	case t.Pattern != "":
		return fmt.Sprintf("%s:text-matches(%q)", t.CSS, t.Pattern)
	case t.Text != "":
		return fmt.Sprintf("%s:has-text(%q)", t.CSS, t.Text)
	}
	return t.CSS
}

// Regex is the JavaScript regular expression literal rod matches element text against.
// Text matches as a case-insensitive literal; Pattern is used as written.
func (t Target) Regex() string {
	if t.Pattern != "" {
		return "/" + t.Pattern + "/"
	}
	return "/" + regexp.QuoteMeta(t.Text) + "/i"
}

// Button targets a <button> whose text contains text.
func Button(text string) Target { return Target{CSS: "button", Text: text} }

// CSS targets the first element matching selector.
func CSS(selector string) Target { return Target{CSS: selector} }

// Session owns the launched browser process and the one page every step runs on.
// Close must be called on every exit path.
type Session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
}

// Launch starts Chromium and opens a stealth page.
func Launch(ctx context.Context, opts Options) (sess *Session, retErr error) {
	l := launcher.New().Context(ctx).Headless(opts.Headless).Leakless(true)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if retErr != nil {
			l.Kill()
			l.Cleanup()
		}
	}()

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = b.Close()
		}
	}()

	p, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("open stealth page: %w", err)
	}

	timeout := opts.StepTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	slog.DebugContext(ctx, "browser launched", "headless", opts.Headless, "control_url", u)
	return &Session{launcher: l, browser: b, page: p, timeout: timeout}, nil
}

// step returns the page bound to ctx and the per-step timeout.
func (s *Session) step(ctx context.Context) (*rod.Page, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.page.Context(ctx), cancel
}

// Goto navigates to url and waits for the page to settle.
func (s *Session) Goto(ctx context.Context, url string) error {
	p, cancel := s.step(ctx)
	defer cancel()
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	s.Settle(ctx)
	return nil
}

// Settle waits for network activity to stop. A timeout is not an error.
func (s *Session) Settle(ctx context.Context) {
	p, cancel := s.step(ctx)
	defer cancel()
	if err := p.WaitStable(settleQuiet); err != nil {
		slog.DebugContext(ctx, "page did not settle", "err", err)
	}
}

// find returns the first element matching t without waiting for it to appear.
func (s *Session) find(p *rod.Page, t Target) (*rod.Element, error) {
	var (
		has bool
		el  *rod.Element
		err error
	)
	if t.Pattern != "" || t.Text != "" {
		has, el, err = p.HasR(t.CSS, t.Regex())
	} else {
		has, el, err = p.Has(t.CSS)
	}
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%s: not found", t)
	}
	return el, nil
}

// wait returns the first element matching t, retrying until p's context ends.
func (s *Session) wait(p *rod.Page, t Target) (*rod.Element, error) {
	var (
		el  *rod.Element
		err error
	)
	if t.Pattern != "" || t.Text != "" {
		el, err = p.ElementR(t.CSS, t.Regex())
	} else {
		el, err = p.Element(t.CSS)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}
	return el, nil
}

// ClickFirst clicks the first target that is present and visible, in order.
// It reports whether anything was clicked; lookup and click failures are skipped.
func (s *Session) ClickFirst(ctx context.Context, targets []Target) bool {
	for _, t := range targets {
		if s.click(ctx, t) {
			return true
		}
	}
	return false
}

func (s *Session) click(ctx context.Context, t Target) bool {
	p, cancel := s.step(ctx)
	defer cancel()
	el, err := s.find(p, t)
	if err != nil {
		return false
	}
	visible, err := el.Visible()
	if err != nil || !visible {
		return false
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		slog.DebugContext(ctx, "click failed", "target", t.String(), "err", err)
		return false
	}
	return true
}

// Fill waits up to the step timeout for the input matched by t and replaces its value.
func (s *Session) Fill(ctx context.Context, t Target, text string) error {
	p, cancel := s.step(ctx)
	defer cancel()
	el, err := s.wait(p, t)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		slog.DebugContext(ctx, "select existing text", "target", t.String(), "err", err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("fill %s: %w", t, err)
	}
	return nil
}

// HTML returns the rendered document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	p, cancel := s.step(ctx)
	defer cancel()
	return p.HTML()
}

// URL returns the current page URL, or "" when it cannot be read.
func (s *Session) URL(ctx context.Context) string {
	p, cancel := s.step(ctx)
	defer cancel()
	info, err := p.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close shuts the browser down and removes its profile directory.
func (s *Session) Close() error {
	var errs []error
	if err := s.browser.Close(); err != nil {
		errs = append(errs, err)
		s.launcher.Kill()
	}
	s.launcher.Cleanup()
	if errs != nil {
		return fmt.Errorf("close browser: %w", errors.Join(errs...))
	}
	return nil
}
