package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stimsync/internal/recorder"
	"github.com/roach88/stimsync/internal/synctrack"
)

// InspectResult summarizes a saved session descriptor.
type InspectResult struct {
	SessionID          string                      `json:"session_id"`
	StartedAt          string                      `json:"started_at"`
	EndReason          string                      `json:"end_reason"`
	ConfigHash         string                      `json:"config_hash"`
	FrameRate          float64                     `json:"frame_rate"`
	FramesPerDirection int                         `json:"frames_per_direction"`
	InvalidPolicy      string                      `json:"invalid_policy"`
	Sync               synctrack.Stats             `json:"sync"`
	Directions         []recorder.DirectionSummary `json:"directions"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <session-dir>",
		Short: "Show the summary of a saved session",
		Long: `Print the descriptor of a saved session: end reason, capture cadence and
per-direction counts and validity.

Examples:
  stimsync inspect ./data/0192f0e4-...
  stimsync inspect ./data/0192f0e4-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, cmd, args[0])
		},
	}

	return cmd
}

func runInspect(opts *RootOptions, cmd *cobra.Command, dir string) error {
	desc, err := recorder.LoadDescriptor(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load session", err)
	}

	result := InspectResult{
		SessionID:          desc.SessionID,
		StartedAt:          desc.StartedAt,
		EndReason:          desc.EndReason,
		ConfigHash:         desc.ConfigHash,
		FrameRate:          desc.Config.FrameRate,
		FramesPerDirection: desc.FramesPerDirection,
		InvalidPolicy:      desc.Config.Recorder.InvalidPolicy,
		Sync:               desc.Sync,
		Directions:         desc.Directions,
	}

	if opts.Format == "json" {
		out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		return out.JSON(CLIResponse{Status: "ok", Data: result, SessionID: result.SessionID})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Session:    %s\n", result.SessionID)
	fmt.Fprintf(w, "Started:    %s\n", result.StartedAt)
	fmt.Fprintf(w, "Ended:      %s\n", result.EndReason)
	fmt.Fprintf(w, "Config:     %s\n", result.ConfigHash)
	fmt.Fprintf(w, "Frame rate: %g fps, %d frames per direction\n", result.FrameRate, result.FramesPerDirection)
	fmt.Fprintf(w, "Policy:     %s\n", result.InvalidPolicy)
	fmt.Fprintln(w)

	s := result.Sync
	stable := "stable"
	if !s.IsStable {
		stable = "unstable"
	}
	fmt.Fprintf(w, "Sync: %d frames, %.2f fps mean (min %.2f, max %.2f), jitter max %s, %d late, %s\n",
		s.Frames, s.FPSMean, s.FPSMin, s.FPSMax, s.JitterMax, s.LateFrames, stable)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Directions:")
	for _, d := range result.Directions {
		status := "valid"
		if !d.Valid {
			status = "invalid: " + d.InvalidReason
		}
		fmt.Fprintf(w, "  %-4s camera=%d stimulus=%d stored=%d  %s\n",
			d.Label, d.CameraCount, d.StimulusCount, d.PairsStored, status)
	}
	return nil
}
