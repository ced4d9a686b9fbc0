package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/resy-autobook/internal/application/usecases"
	"github.com/example/resy-autobook/internal/attempts"
	"github.com/example/resy-autobook/internal/config"
	"github.com/example/resy-autobook/internal/db"
	"github.com/example/resy-autobook/internal/internaltypes"
	"github.com/example/resy-autobook/internal/migrate"
	"github.com/example/resy-autobook/internal/session"
	"github.com/example/resy-autobook/internal/telemetry"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

const (
	exitOK        = 0
	exitUsage     = 1
	exitNotBooked = 2
)

const (
	msgBooked    = "Reservation attempt reported success."
	msgNotBooked = "Reservation not completed within the allotted time."
)

// launch starts the browser for a booking run; tests swap it for a fake.
var launch usecases.LaunchFunc = usecases.LaunchChromium

func NewRootCmd() *cobra.Command {
	var (
		verbose bool
		envFile string
	)

	root := &cobra.Command{
		Use:   "resybook",
		Short: "Log in to Resy and book a table as soon as a matching time opens up",
		Long: `resybook opens a browser, logs in to resy.com and polls the venue page until a
time slot matching the preference appears, then walks through checkout.

Every flag falls back to its RESY_* environment variable, which may also come from a
.env file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotenv(envFile); err != nil {
				return err
			}
			telemetry.InitSlog(cmd.ErrOrStderr(), verbose || config.LoadAmbient().Debug)
			return nil
		},
		RunE: runBook,
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "KEY=VALUE file loaded into the environment if present")
	config.RegisterFlags(root.Flags())

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newHistoryCmd())

	return root
}

func runBook(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	tel, err := telemetry.Setup(ctx, cfg.OTLPEndpoint)
	if err != nil {
		slog.WarnContext(ctx, "tracing disabled", "err", err)
	}
	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("shutdown tracing", "err", err)
		}
	}()

	u := usecases.FindAndBook{Config: cfg, Launch: launch}
	if cfg.SessionFile != "" {
		u.Sessions = session.NewStore(cfg.SessionFile, cfg.SessionHashKey, cfg.SessionBlockKey)
	}
	if cfg.DatabaseURL != "" {
		d, err := openHistory(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.WarnContext(ctx, "history disabled", "err", err)
		} else {
			defer d.Close()
			u.History = attempts.NewRepo(d)
		}
	}

	res, err := u.Execute(ctx)
	if errors.Is(err, internaltypes.ErrNotBooked) {
		fmt.Fprintln(cmd.OutOrStdout(), msgNotBooked)
		return err
	}
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "booked", "time", res.Slot.Label, "attempts", res.Attempts)
	fmt.Fprintln(cmd.OutOrStdout(), msgBooked)
	return nil
}

func openHistory(ctx context.Context, databaseURL string) (*db.DB, error) {
	d, err := db.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := migrate.Up(ctx, d); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Execute runs the CLI and exits with 0 on a booking, 2 when the window closed without
// one and 1 on any other error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	var missing *config.MissingError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, internaltypes.ErrNotBooked):
		return exitNotBooked
	case errors.As(err, &missing):
		fmt.Fprintln(stderr, "error:", err)
		fmt.Fprintln(stderr)
		fmt.Fprint(stderr, root.UsageString())
		return exitUsage
	}
	fmt.Fprintln(stderr, "error:", err)
	return exitUsage
}
