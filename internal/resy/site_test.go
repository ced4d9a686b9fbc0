package resy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-autobook/internal/browser"
	"github.com/example/resy-autobook/internal/domain/reservation"
)

// fakePage clicks and fills any target whose String() is listed.
type fakePage struct {
	clickable map[string]bool
	fillable  map[string]bool
	html      string
	htmlErr   error
	url       string
	gotoErr   error

	visited []string
	clicked []string
	filled  map[string]string
	settles int
}

func (p *fakePage) Goto(_ context.Context, url string) error {
	p.visited = append(p.visited, url)
	return p.gotoErr
}

func (p *fakePage) ClickFirst(_ context.Context, targets []browser.Target) bool {
	for _, t := range targets {
		if p.clickable[t.String()] {
			p.clicked = append(p.clicked, t.String())
			return true
		}
	}
	return false
}

func (p *fakePage) Fill(_ context.Context, t browser.Target, text string) error {
	if !p.fillable[t.String()] {
		return errors.New("not found")
	}
	if p.filled == nil {
		p.filled = map[string]string{}
	}
	p.filled[t.String()] = text
	return nil
}

func (p *fakePage) HTML(context.Context) (string, error) { return p.html, p.htmlErr }
func (p *fakePage) URL(context.Context) string           { return p.url }
func (p *fakePage) Settle(context.Context)               { p.settles++ }

func set(keys ...string) map[string]bool {
	m := map[string]bool{}
	for _, k := range keys {
		m[k] = true
	}
	return m
}

func TestVenueURL(t *testing.T) {
	req := reservation.Request{VenueURL: "https://resy.com/cities/ny/lilia", Date: "2026-11-01", PartySize: 4}
	require.Equal(t, "https://resy.com/cities/ny/lilia?seats=4&date=2026-11-01", VenueURL(req))

	req.VenueURL = "https://resy.com/cities/ny/lilia?ref=home"
	require.Equal(t, "https://resy.com/cities/ny/lilia?ref=home&seats=4&date=2026-11-01", VenueURL(req))
}

func TestScrapeTimeLabels(t *testing.T) {
	html := `<html><body>
		<button>Notify me</button>
		<div data-testid="time-slot"><button> 5:30
			PM <span>Dining Room</span></button></div>
		<button class="ReservationButton">7.00pm Bar</button>
		<div data-test="time-slot">9:15 PM</div>
		<button>5:30 PM Patio</button>
		<p>8:00 PM is not a control</p>
		<button>19:00</button>
	</body></html>`

	got, err := ScrapeTimeLabels(html)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"5:30 PM", "7.00pm", "9:15 PM"}, got); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapeTimeLabelsEmpty(t *testing.T) {
	got, err := ScrapeTimeLabels("<html><body><button>Sold out</button></body></html>")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestClickTimeUsesDigitBoundary(t *testing.T) {
	targets := slotTargets("1:30 PM")
	require.Len(t, targets, 3)
	require.Equal(t, "(^|[^0-9])1:30 PM", targets[0].Pattern)

	p := &fakePage{clickable: set(targets[1].String())}
	require.True(t, ClickTime(context.Background(), p, "1:30 PM"))
	require.Equal(t, []string{targets[1].String()}, p.clicked)
}

func TestLogin(t *testing.T) {
	p := &fakePage{
		fillable:  set(`input[name="email"]`, `input[type="password"]`),
		clickable: set(`button[type="submit"]`),
	}
	require.True(t, Login(context.Background(), p, "me@example.com", "pw"))
	require.Equal(t, []string{LoginURL}, p.visited)
	require.Equal(t, map[string]string{
		`input[name="email"]`:    "me@example.com",
		`input[type="password"]`: "pw",
	}, p.filled)
	require.Equal(t, 1, p.settles)
}

func TestLoginWithoutForm(t *testing.T) {
	p := &fakePage{clickable: set(`button:has-text("Log In")`)}
	require.False(t, Login(context.Background(), p, "me@example.com", "pw"))
	require.Empty(t, p.clicked)

	p = &fakePage{gotoErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	require.False(t, Login(context.Background(), p, "me@example.com", "pw"))
}

func TestLoginSubmitMatchesAnyCase(t *testing.T) {
	require.Equal(t, "/Log In/i", submitButtons[0].Regex())
	require.Equal(t, "/Sign In/i", submitButtons[1].Regex())
	for _, step := range checkoutSteps {
		for _, target := range step {
			require.Regexp(t, `/i$`, target.Regex(), target.String())
		}
	}

	p := &fakePage{
		fillable:  set(`input[placeholder*="Email" i]`, `input[placeholder*="Password" i]`),
		clickable: set(`button[aria-label*="Log" i]`),
	}
	require.True(t, Login(context.Background(), p, "me@example.com", "pw"))
	require.Equal(t, []string{`button[aria-label*="Log" i]`}, p.clicked)
}

func TestConfirmed(t *testing.T) {
	require.True(t, Confirmed("<h1>Reservation Confirmed</h1>", ""))
	require.True(t, Confirmed("You're booked at Lilia", ""))
	require.True(t, Confirmed("", "https://resy.com/reservation/SUCCESS?id=1"))
	require.False(t, Confirmed("reservation confirmed", "https://resy.com/cities/ny/lilia"))
	require.False(t, Confirmed("", ""))
}

func TestCompleteBookingClicksEachStep(t *testing.T) {
	p := &fakePage{
		clickable: set(`button:has-text("Reserve")`, `button:has-text("Complete")`),
		url:       "https://resy.com/cities/ny/lilia/confirmation",
	}
	require.True(t, CompleteBooking(context.Background(), p))
	require.Equal(t, []string{`button:has-text("Reserve")`, `button:has-text("Complete")`}, p.clicked)
	require.Equal(t, 2, p.settles)
}

func TestCompleteBookingWithoutConfirmation(t *testing.T) {
	p := &fakePage{
		clickable: set(`button:has-text("Book Now")`),
		htmlErr:   errors.New("target closed"),
		url:       "https://resy.com/cities/ny/lilia",
	}
	require.False(t, CompleteBooking(context.Background(), p))
}

func TestSite(t *testing.T) {
	ctx := context.Background()
	slot := reservation.TimeSlot{Label: "7:00 PM", Minute: 1140}
	p := &fakePage{
		html:      `<button>7:00 PM</button>`,
		clickable: set(slotTargets(slot.Label)[0].String(), `button:has-text("Confirm")`),
		url:       "https://resy.com/confirm",
	}
	site := &Site{Page: p, Request: reservation.Request{VenueURL: "https://resy.com/v", Date: "2026-11-01", PartySize: 2}}

	require.NoError(t, site.Load(ctx))
	require.Equal(t, []string{"https://resy.com/v?seats=2&date=2026-11-01"}, p.visited)

	labels, err := site.Labels(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"7:00 PM"}, labels)

	require.True(t, site.Book(ctx, slot))
}

func TestSiteBookMissingSlot(t *testing.T) {
	p := &fakePage{url: "https://resy.com/confirm"}
	site := &Site{Page: p}
	require.False(t, site.Book(context.Background(), reservation.TimeSlot{Label: "7:00 PM"}))
	require.Zero(t, p.settles)
}
