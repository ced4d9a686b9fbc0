// Package resy holds the resy.com specific steps: login, venue navigation,
// reading the offered times and walking through checkout.
package resy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/resy-autobook/internal/browser"
	"github.com/example/resy-autobook/internal/domain/reservation"
)

const LoginURL = "https://resy.com/login"

// Page is the subset of a browser session the site steps need.
type Page interface {
	Goto(ctx context.Context, url string) error
	ClickFirst(ctx context.Context, targets []browser.Target) bool
	Fill(ctx context.Context, t browser.Target, text string) error
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) string
	Settle(ctx context.Context)
}

// VenueURL appends the seats and date query to the venue URL.
func VenueURL(req reservation.Request) string {
	sep := "?"
	if strings.Contains(req.VenueURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sseats=%d&date=%s", req.VenueURL, sep, req.PartySize, req.Date)
}

// Site adapts a Page to the polling loop for a single reservation request.
type Site struct {
	Page    Page
	Request reservation.Request
}

func (s *Site) Load(ctx context.Context) error {
	url := VenueURL(s.Request)
	slog.DebugContext(ctx, "loading venue", "url", url)
	return s.Page.Goto(ctx, url)
}

func (s *Site) Labels(ctx context.Context) ([]string, error) {
	html, err := s.Page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read venue page: %w", err)
	}
	return ScrapeTimeLabels(html)
}

// Book clicks the chosen time and walks the checkout steps.
func (s *Site) Book(ctx context.Context, slot reservation.TimeSlot) bool {
	if !ClickTime(ctx, s.Page, slot.Label) {
		slog.InfoContext(ctx, "time slot not clickable", "time", slot.Label)
		return false
	}
	s.Page.Settle(ctx)
	return CompleteBooking(ctx, s.Page)
}
