package acquisition

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/roach88/stimsync/internal/config"
	"github.com/roach88/stimsync/internal/recorder"
	"github.com/roach88/stimsync/internal/stimulus"
	"github.com/roach88/stimsync/internal/store"
)

// playbackFrame is one recorded pair as replayed.
type playbackFrame struct {
	stimulus.Metadata
	TimestampUS int64
}

type playbackDirection struct {
	label  string
	frames []playbackFrame
}

// playbackPlan is a saved session loaded for replay.
type playbackPlan struct {
	sessionID  string
	cfg        *config.Config
	directions []playbackDirection
	total      int
}

// loadPlayback reads a saved session directory. Only directions with stored
// pairs are replayed; the config hash in the descriptor must match the
// embedded config so regenerated frames are comparable.
func loadPlayback(ctx context.Context, dir string) (*playbackPlan, error) {
	desc, err := recorder.LoadDescriptor(dir)
	if err != nil {
		return nil, err
	}
	hash, err := desc.Config.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash recorded config: %w", err)
	}
	if hash != desc.ConfigHash {
		return nil, fmt.Errorf("session %s: config hash %s does not match recorded %s", desc.SessionID, hash, desc.ConfigHash)
	}

	st, err := store.Open(filepath.Join(dir, recorder.PairsFile))
	if err != nil {
		return nil, err
	}
	defer st.Close()

	rows, err := st.ReadDirections(ctx, desc.SessionID)
	if err != nil {
		return nil, err
	}

	plan := &playbackPlan{sessionID: desc.SessionID, cfg: desc.Config}
	for _, d := range rows {
		if d.PairsStored == 0 {
			continue
		}
		pairs, err := st.ReadPairs(ctx, desc.SessionID, d.Label)
		if err != nil {
			return nil, err
		}
		pd := playbackDirection{label: d.Label, frames: make([]playbackFrame, 0, len(pairs))}
		for _, p := range pairs {
			meta, err := recorder.MetadataFromRow(p)
			if err != nil {
				return nil, err
			}
			pd.frames = append(pd.frames, playbackFrame{Metadata: meta, TimestampUS: p.TimestampUS})
		}
		plan.total += len(pd.frames)
		plan.directions = append(plan.directions, pd)
	}
	return plan, nil
}
