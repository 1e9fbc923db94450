package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/stimsync/internal/recorder"
	"github.com/roach88/stimsync/internal/stimulus"
	"github.com/roach88/stimsync/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Direction string // optional - specific direction only
}

// VerifyDirectionResult holds the verification result for one direction.
type VerifyDirectionResult struct {
	Label          string   `json:"label"`
	RecordedValid  bool     `json:"recorded_valid"`
	PairsStored    int      `json:"pairs_stored"`
	Deterministic  bool     `json:"deterministic"`
	HashMismatches int      `json:"hash_mismatches"`
	Problems       []string `json:"problems,omitempty"`
}

// OK reports whether the direction passed every check.
func (r VerifyDirectionResult) OK() bool {
	return r.Deterministic && r.HashMismatches == 0 && len(r.Problems) == 0
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	SessionID   string                  `json:"session_id"`
	ConfigHash  string                  `json:"config_hash"`
	Directions  []VerifyDirectionResult `json:"directions"`
	Problems    []string                `json:"problems,omitempty"`
	AllVerified bool                    `json:"all_verified"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <session-dir>",
		Short: "Verify a saved session against its regenerated stimulus",
		Long: `Verify a saved session directory. Every stored pair's stimulus frame is
regenerated twice from the recorded configuration; both renderings must
match each other and the content hash stored with the pair. Stored counts
must match the descriptor, and frame indices and timestamps must be ordered.

Exit codes:
  0 - Session verified
  1 - Verification failed (hash mismatch, count mismatch, ordering)
  2 - Command error (session directory not found, etc.)

Examples:
  stimsync verify ./data/0192f0e4-...
  stimsync verify ./data/0192f0e4-... --direction LR
  stimsync verify ./data/0192f0e4-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Direction, "direction", "", "verify specific direction only")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command, dir string) error {
	ctx := cmd.Context()

	desc, err := recorder.LoadDescriptor(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load session", err)
	}

	st, err := store.Open(filepath.Join(dir, recorder.PairsFile))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open pairs database", err)
	}
	defer st.Close()

	gen, err := stimulus.New(desc.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to rebuild stimulus controller", err)
	}

	result := VerifyResult{
		SessionID:   desc.SessionID,
		ConfigHash:  desc.ConfigHash,
		Directions:  []VerifyDirectionResult{},
		AllVerified: true,
	}

	result.Problems, err = verifySessionRow(ctx, st, desc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	rows, err := st.ReadDirections(ctx, desc.SessionID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read directions", err)
	}
	if len(rows) != len(desc.Directions) {
		result.Problems = append(result.Problems,
			fmt.Sprintf("descriptor lists %d directions, store has %d", len(desc.Directions), len(rows)))
	}

	for _, summary := range desc.Directions {
		if opts.Direction != "" && summary.Label != opts.Direction {
			continue
		}
		dr, err := verifyDirection(ctx, st, gen, desc, summary)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to verify direction %s", summary.Label), err)
		}
		result.Directions = append(result.Directions, dr)
		if !dr.OK() {
			result.AllVerified = false
		}
	}
	if len(result.Problems) > 0 {
		result.AllVerified = false
	}

	if opts.Format == "json" {
		return outputVerifyJSON(cmd, result)
	}
	return outputVerifyText(cmd, result, opts.Verbose)
}

// verifySessionRow checks the stored session row against the descriptor and
// the descriptor's config against its recorded hash.
func verifySessionRow(ctx context.Context, st *store.Store, desc *recorder.Descriptor) ([]string, error) {
	var problems []string

	hash, err := desc.Config.Hash()
	if err != nil {
		return nil, err
	}
	if hash != desc.ConfigHash {
		problems = append(problems, fmt.Sprintf("config hash %s does not match recorded %s", hash, desc.ConfigHash))
	}

	row, err := st.ReadSession(ctx, desc.SessionID)
	if err != nil {
		return nil, err
	}
	if row.ConfigHash != desc.ConfigHash {
		problems = append(problems, fmt.Sprintf("store config hash %s does not match descriptor %s", row.ConfigHash, desc.ConfigHash))
	}
	return problems, nil
}

// verifyDirection regenerates every stored stimulus frame twice and checks
// counts and ordering.
func verifyDirection(ctx context.Context, st *store.Store, gen stimulus.Generator, desc *recorder.Descriptor, summary recorder.DirectionSummary) (VerifyDirectionResult, error) {
	res := VerifyDirectionResult{
		Label:         summary.Label,
		RecordedValid: summary.Valid,
		PairsStored:   summary.PairsStored,
		Deterministic: true,
	}

	pairs, err := st.ReadPairs(ctx, desc.SessionID, summary.Label)
	if err != nil {
		return res, err
	}
	if len(pairs) != summary.PairsStored {
		res.Problems = append(res.Problems,
			fmt.Sprintf("descriptor records %d pairs, store has %d", summary.PairsStored, len(pairs)))
	}
	if summary.Valid {
		if summary.CameraCount != summary.StimulusCount {
			res.Problems = append(res.Problems,
				fmt.Sprintf("valid direction has camera=%d stimulus=%d", summary.CameraCount, summary.StimulusCount))
		}
		if len(pairs) != desc.FramesPerDirection {
			res.Problems = append(res.Problems,
				fmt.Sprintf("valid direction has %d of %d frames", len(pairs), desc.FramesPerDirection))
		}
	}

	for i, p := range pairs {
		if p.FrameIndex != i {
			res.Problems = append(res.Problems, fmt.Sprintf("pair %d has frame index %d", i, p.FrameIndex))
			break
		}
		if i > 0 {
			prev := pairs[i-1]
			if p.CameraFrameIndex <= prev.CameraFrameIndex {
				res.Problems = append(res.Problems, fmt.Sprintf("camera frame index not increasing at frame %d", i))
				break
			}
			if p.TimestampUS < prev.TimestampUS {
				res.Problems = append(res.Problems, fmt.Sprintf("timestamp decreases at frame %d", i))
				break
			}
		}
	}

	for _, p := range pairs {
		_, first, err := gen.Generate(summary.Label, p.FrameIndex)
		if err != nil {
			res.Problems = append(res.Problems, fmt.Sprintf("frame %d: %v", p.FrameIndex, err))
			continue
		}
		frame, second, err := gen.Generate(summary.Label, p.FrameIndex)
		if err != nil {
			return res, fmt.Errorf("second generation of frame %d failed: %w", p.FrameIndex, err)
		}
		if first.Hash != second.Hash || stimulus.FrameHash(frame) != second.Hash {
			res.Deterministic = false
		}
		if first.Hash != p.StimulusHash {
			res.HashMismatches++
		}
	}
	return res, nil
}

// outputVerifyJSON outputs the verify result as JSON.
func outputVerifyJSON(cmd *cobra.Command, result VerifyResult) error {
	response := CLIResponse{
		Status:    "ok",
		Data:      result,
		SessionID: result.SessionID,
	}

	if !result.AllVerified {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeVerifyMismatch,
			Message: "session verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllVerified {
		return NewExitError(ExitFailure, "session verification failed")
	}
	return nil
}

// outputVerifyText outputs the verify result as text.
func outputVerifyText(cmd *cobra.Command, result VerifyResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Verify Summary: session %s, %d direction(s)\n", result.SessionID, len(result.Directions))
	fmt.Fprintln(w)

	for _, p := range result.Problems {
		fmt.Fprintf(w, "✗ %s\n", p)
	}

	for _, d := range result.Directions {
		status := "✓"
		if !d.OK() {
			status = "✗"
		}
		fmt.Fprintf(w, "%s %s: %d pairs", status, d.Label, d.PairsStored)
		if !d.RecordedValid {
			fmt.Fprint(w, " (recorded invalid)")
		}
		fmt.Fprintln(w)

		if verbose || !d.OK() {
			if !d.Deterministic {
				fmt.Fprintln(w, "    regeneration is not deterministic")
			}
			if d.HashMismatches > 0 {
				fmt.Fprintf(w, "    %d stored hash(es) differ from regenerated frames\n", d.HashMismatches)
			}
			for _, p := range d.Problems {
				fmt.Fprintf(w, "    %s\n", p)
			}
		}
	}

	fmt.Fprintln(w)
	if !result.AllVerified {
		fmt.Fprintln(w, "✗ Session verification FAILED")
		return NewExitError(ExitFailure, "session verification failed")
	}

	fmt.Fprintln(w, "✓ Session verified")
	return nil
}
