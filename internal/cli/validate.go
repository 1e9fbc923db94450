package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stimsync/internal/config"
	"github.com/roach88/stimsync/internal/stimulus"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// ValidateResult describes a configuration that passed validation.
type ValidateResult struct {
	ConfigHash         string   `json:"config_hash"`
	FrameRate          float64  `json:"frame_rate"`
	PeriodUS           int64    `json:"period_us"`
	Directions         []string `json:"directions"`
	Cycles             int      `json:"cycles"`
	BaselineFrames     int      `json:"baseline_frames"`
	FramesPerCycle     int      `json:"frames_per_cycle"`
	FramesPerDirection int      `json:"frames_per_direction"`
	TotalFrames        int      `json:"total_frames"`
	InvalidPolicy      string   `json:"invalid_policy"`
	OutputDir          string   `json:"output_dir"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate an acquisition configuration",
		Long: `Validate a CUE or JSON acquisition configuration against the schema
and report the derived frame counts and the config hash.

Exit codes:
  0 - Configuration is valid
  1 - Configuration is invalid

Examples:
  stimsync validate ./session.cue
  stimsync validate ./session.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd, args[0])
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command, path string) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(path)
	if err == nil {
		// The stimulus geometry must also be renderable.
		_, err = stimulus.New(cfg)
	}
	if err != nil {
		if outErr := out.Error(ErrCodeConfiguration, err.Error(), map[string]string{"path": path}); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}

	hash, err := cfg.Hash()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to hash configuration", err)
	}

	result := ValidateResult{
		ConfigHash:         hash,
		FrameRate:          cfg.FrameRate,
		PeriodUS:           cfg.Period().Microseconds(),
		Directions:         cfg.Directions,
		Cycles:             cfg.Cycles,
		BaselineFrames:     cfg.BaselineFrames,
		FramesPerCycle:     cfg.FramesPerCycle(),
		FramesPerDirection: cfg.FramesPerDirection(),
		TotalFrames:        cfg.FramesPerDirection() * len(cfg.Directions),
		InvalidPolicy:      cfg.Recorder.InvalidPolicy,
		OutputDir:          cfg.OutputDir,
	}

	if opts.Format == "json" {
		return out.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ %s is valid\n", path)
	fmt.Fprintf(w, "  config hash:          %s\n", result.ConfigHash)
	fmt.Fprintf(w, "  frame rate:           %g fps (period %dµs)\n", result.FrameRate, result.PeriodUS)
	fmt.Fprintf(w, "  directions:           %v\n", result.Directions)
	fmt.Fprintf(w, "  frames per direction: %d (%d baseline + %d cycle(s) × %d)\n",
		result.FramesPerDirection, result.BaselineFrames, result.Cycles, result.FramesPerCycle)
	fmt.Fprintf(w, "  total frames:         %d\n", result.TotalFrames)
	fmt.Fprintf(w, "  invalid policy:       %s\n", result.InvalidPolicy)
	return nil
}
