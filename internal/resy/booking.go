package resy

import (
	"context"
	"log/slog"
	"strings"

	"github.com/example/resy-autobook/internal/browser"
)

// checkoutSteps are clicked in order; a step with no visible control is skipped.
var checkoutSteps = [][]browser.Target{
	{browser.Button("Book Now"), browser.Button("Reserve")},
	{browser.Button("Continue"), browser.Button("Next")},
	{browser.Button("Confirm"), browser.Button("Complete"), browser.Button("Pay")},
}

var (
	confirmationText = []string{"Reservation Confirmed", "You're booked", "Confirmation", "Thanks for booking"}
	confirmationPath = []string{"confirmation", "confirm", "success"}
)

// CompleteBooking walks the checkout steps and reports whether the page then shows a
// confirmation.
func CompleteBooking(ctx context.Context, p Page) bool {
	for i, step := range checkoutSteps {
		if p.ClickFirst(ctx, step) {
			slog.DebugContext(ctx, "checkout step clicked", "step", i+1)
			p.Settle(ctx)
		}
	}
	html, err := p.HTML(ctx)
	if err != nil {
		slog.DebugContext(ctx, "read checkout page", "err", err)
		html = ""
	}
	return Confirmed(html, p.URL(ctx))
}

// Confirmed reports whether the page content or URL carries a booking confirmation marker.
// Text markers are case sensitive, URL markers are not.
func Confirmed(content, url string) bool {
	for _, marker := range confirmationText {
		if strings.Contains(content, marker) {
			return true
		}
	}
	url = strings.ToLower(url)
	for _, marker := range confirmationPath {
		if strings.Contains(url, marker) {
			return true
		}
	}
	return false
}
