package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/stimsync/internal/acquisition"
	"github.com/roach88/stimsync/internal/camera"
	"github.com/roach88/stimsync/internal/config"
	"github.com/roach88/stimsync/internal/fault"
	"github.com/roach88/stimsync/internal/recorder"
)

// AcquireOptions holds flags for the acquire command.
type AcquireOptions struct {
	*RootOptions
	Config   string
	Output   string
	Realtime bool
}

// AcquireResult is the outcome of one recording session.
type AcquireResult struct {
	SessionID  string                      `json:"session_id"`
	Dir        string                      `json:"dir,omitempty"`
	Directions []recorder.DirectionSummary `json:"directions"`
	AllValid   bool                        `json:"all_valid"`
	Error      string                      `json:"error,omitempty"`
}

// NewAcquireCommand creates the acquire command.
func NewAcquireCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AcquireOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Record one session with the simulated camera",
		Long: `Record a full session: every configured direction is swept while each
captured frame is paired with the stimulus frame generated for it. The
session is saved to <output>/<session-id>/ when the last direction completes
or when the command is interrupted.

By default the capture loop runs as fast as possible with virtual
timestamps at the nominal frame period. --realtime paces capture with a
wall-clock ticker.

Exit codes:
  0 - Session saved and every direction is valid
  1 - Session ended with a fault or an invalid direction
  2 - Command error (bad configuration, etc.)

Examples:
  stimsync acquire --config ./session.cue --output ./data
  stimsync acquire --realtime --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAcquire(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to CUE or JSON configuration (defaults to built-in)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output root directory (overrides output_dir)")
	cmd.Flags().BoolVar(&opts.Realtime, "realtime", false, "pace capture at the configured frame rate")

	return cmd
}

func runAcquire(opts *AcquireOptions, cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadAcquireConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	var (
		clock camera.Clock
		pacer acquisition.PacerFactory
	)
	if opts.Realtime {
		clock = camera.NewMonotonicClock()
		pacer = acquisition.NewTickerPacer
	} else {
		clock = camera.NewVirtualClock(cfg.Period())
		pacer = acquisition.NewImmediatePacer
	}

	mgr := acquisition.New(camera.NewSim(clock),
		acquisition.WithConfig(cfg),
		acquisition.WithPacerFactory(pacer),
	)

	info, err := mgr.Start(ctx, acquisition.Params{Config: cfg})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start session", err)
	}
	slog.Info("recording started",
		"session_id", info.ID,
		"directions", info.Directions,
		"frames_per_direction", info.FramesPerDirection,
	)

	res, runErr := awaitSession(ctx, mgr, opts.RootOptions, cmd)
	return reportAcquire(opts, cmd, info.ID, res, runErr)
}

func loadAcquireConfig(opts *AcquireOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.Config == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(opts.Config); err != nil {
		return nil, err
	}
	if opts.Output != "" {
		cfg.OutputDir = opts.Output
	}
	return cfg, nil
}

// awaitSession blocks until the session is saved, a fault ends it, or ctx
// is cancelled. Cancellation stops the session and saves what was captured.
func awaitSession(ctx context.Context, mgr *acquisition.Manager, opts *RootOptions, cmd *cobra.Command) (recorder.SaveResult, error) {
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	done := ctx.Done()
	for {
		select {
		case <-done:
			slog.Info("interrupted, stopping session")
			res, err := mgr.Stop(context.Background())
			if !fault.Is(err, fault.KindInvalidTransition) {
				return res, err
			}
			// The session is already settling on its own; its event follows.
			done = nil
		case ev := <-mgr.Events():
			switch ev.Kind {
			case acquisition.EventDirectionComplete:
				out.VerboseLog("direction %s complete", ev.Direction)
			case acquisition.EventSessionSaved:
				return *ev.Save, nil
			case acquisition.EventFault:
				if ev.Save != nil {
					return *ev.Save, ev.Err
				}
			}
		}
	}
}

func reportAcquire(opts *AcquireOptions, cmd *cobra.Command, sessionID string, res recorder.SaveResult, runErr error) error {
	result := AcquireResult{
		SessionID:  sessionID,
		Dir:        res.Dir,
		Directions: res.Directions,
		AllValid:   len(res.Directions) > 0,
	}
	if result.Directions == nil {
		result.Directions = []recorder.DirectionSummary{}
	}
	for _, d := range res.Directions {
		if !d.Valid {
			result.AllValid = false
		}
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	failed := runErr != nil || !result.AllValid

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result, SessionID: sessionID}
		if failed {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeIntegrity, Message: "session has invalid directions"}
			if runErr != nil {
				resp.Error = &CLIError{Code: errorCode(runErr), Message: runErr.Error()}
			}
		}
		out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err := out.JSON(resp); err != nil {
			return err
		}
	} else {
		outputAcquireText(cmd, result)
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "session ended with error", runErr)
	}
	if !result.AllValid {
		return NewExitError(ExitFailure, "session has invalid directions")
	}
	return nil
}

func outputAcquireText(cmd *cobra.Command, result AcquireResult) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Session %s\n", result.SessionID)
	if result.Dir != "" {
		fmt.Fprintf(w, "Saved to %s\n", result.Dir)
	}
	fmt.Fprintln(w)

	for _, d := range result.Directions {
		status := "✓"
		if !d.Valid {
			status = "✗"
		}
		fmt.Fprintf(w, "%s %-4s camera=%d stimulus=%d stored=%d", status, d.Label, d.CameraCount, d.StimulusCount, d.PairsStored)
		if d.InvalidReason != "" {
			fmt.Fprintf(w, " (%s)", d.InvalidReason)
		}
		fmt.Fprintln(w)
	}

	if result.Error != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Error: %s\n", result.Error)
	}
}
