package resy

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/example/resy-autobook/internal/browser"
)

const slotSelector = `button, [data-testid="time-slot"], [data-test="time-slot"]`

var timeToken = regexp.MustCompile(`(?i)\b\d{1,2}[:.]\d{2}\s?(AM|PM)\b`)

// ScrapeTimeLabels returns the distinct time tokens shown on time slot controls,
// in document order.
func ScrapeTimeLabels(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse venue page: %w", err)
	}
	seen := map[string]bool{}
	var labels []string
	doc.Find(slotSelector).Each(func(_ int, s *goquery.Selection) {
		label := timeToken.FindString(strings.Join(strings.Fields(s.Text()), " "))
		if label == "" || seen[label] {
			return
		}
		seen[label] = true
		labels = append(labels, label)
	})
	return labels, nil
}

// slotTargets match label at a digit boundary so "1:30 PM" never clicks "11:30 PM".
func slotTargets(label string) []browser.Target {
	pattern := `(^|[^0-9])` + regexp.QuoteMeta(label)
	return []browser.Target{
		{CSS: "button", Pattern: pattern},
		{CSS: `[data-testid="time-slot"]`, Pattern: pattern},
		{CSS: `[data-test="time-slot"]`, Pattern: pattern},
	}
}

// ClickTime clicks the control offering label.
func ClickTime(ctx context.Context, p Page, label string) bool {
	return p.ClickFirst(ctx, slotTargets(label))
}
