package resy

import (
	"context"
	"log/slog"

	"github.com/example/resy-autobook/internal/browser"
)

var (
	emailFields = []browser.Target{
		browser.CSS(`input[type="email"]`),
		browser.CSS(`input[name="email"]`),
		browser.CSS(`input[autocomplete="email"]`),
		browser.CSS(`input[placeholder*="Email" i]`),
	}
	passwordFields = []browser.Target{
		browser.CSS(`input[type="password"]`),
		browser.CSS(`input[name="password"]`),
		browser.CSS(`input[autocomplete="current-password"]`),
		browser.CSS(`input[placeholder*="Password" i]`),
	}
	// Button text matches ignore case, so "Log In" also finds "Log in" and "LOG IN".
	submitButtons = []browser.Target{
		browser.Button("Log In"),
		browser.Button("Sign In"),
		browser.CSS(`button[type="submit"]`),
		browser.CSS(`button[aria-label*="Log" i]`),
	}
)

// Login fills the credentials form and submits it. It reports whether both fields were
// filled and a submit control was clicked. The result is informational: a failed login
// only shows up later as a booking that never confirms.
func Login(ctx context.Context, p Page, email, password string) bool {
	if err := p.Goto(ctx, LoginURL); err != nil {
		slog.WarnContext(ctx, "login page did not load", "err", err)
		return false
	}
	if !fillFirst(ctx, p, emailFields, email) || !fillFirst(ctx, p, passwordFields, password) {
		slog.WarnContext(ctx, "login form not found")
		return false
	}
	if !p.ClickFirst(ctx, submitButtons) {
		slog.WarnContext(ctx, "login submit not found")
		return false
	}
	p.Settle(ctx)
	return true
}

func fillFirst(ctx context.Context, p Page, targets []browser.Target, value string) bool {
	for _, t := range targets {
		if err := p.Fill(ctx, t, value); err == nil {
			return true
		}
	}
	return false
}
