package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/example/resy-autobook/internal/attempts"
	"github.com/example/resy-autobook/internal/config"
	"github.com/example/resy-autobook/internal/db"
	"github.com/example/resy-autobook/internal/scheduler"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		runID int64
	)

	c := &cobra.Command{
		Use:   "history",
		Short: "Show recent booking runs, or the poll cycles of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1, got %d", limit)
			}
			amb := config.LoadAmbient()
			if amb.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for history")
			}
			d, err := openHistory(ctx, amb.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			repo := attempts.NewRepo(d)

			if runID > 0 {
				return showRun(ctx, cmd.OutOrStdout(), repo, runID)
			}
			runs, err := repo.ListRecent(ctx, limit)
			if err != nil {
				return err
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	c.Flags().IntVar(&limit, "limit", 20, "max runs to show")
	c.Flags().Int64Var(&runID, "run", 0, "show the poll cycles of this run id")
	return c
}

type runReader interface {
	GetRun(ctx context.Context, runID int64) (attempts.Run, error)
	ListAttempts(ctx context.Context, runID int64) ([]scheduler.Attempt, error)
}

// showRun prints one run followed by its poll cycles.
func showRun(ctx context.Context, w io.Writer, repo runReader, runID int64) error {
	run, err := repo.GetRun(ctx, runID)
	if db.IsNotFound(err) {
		return fmt.Errorf("run %d not found", runID)
	}
	if err != nil {
		return err
	}
	list, err := repo.ListAttempts(ctx, runID)
	if err != nil {
		return err
	}
	renderRuns(w, []attempts.Run{run})
	renderAttempts(w, list)
	return nil
}

func renderRuns(w io.Writer, runs []attempts.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Venue", "Date", "Party", "Preference", "Status", "Booked", "Attempts", "Started", "Took"})
	for _, r := range runs {
		pref := r.Preference
		if r.ExactTime && pref != "" {
			pref += " (exact)"
		}
		took := "-"
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			r.ID, r.VenueURL, r.Date, r.PartySize, pref, r.Status, r.BookedTime, r.Attempts,
			r.StartedAt.Local().Format(time.DateTime), took,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderAttempts(w io.Writer, list []scheduler.Attempt) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "At", "Outcome", "Chosen", "Seen"})
	for _, a := range list {
		t.AppendRow(table.Row{
			a.Number, a.At.Local().Format(time.TimeOnly), a.Outcome, a.Chosen, strings.Join(a.Labels, ", "),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
