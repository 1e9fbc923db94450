package acquisition

import (
	"context"
	"time"
)

// Pacer sets the loop cadence. Wait is the loop's only voluntary suspension.
type Pacer interface {
	// Wait blocks until the next frame is due or ctx is done.
	Wait(ctx context.Context) error
	// Stop releases timer resources.
	Stop()
}

// PacerFactory builds a pacer for a capture period.
type PacerFactory func(period time.Duration) Pacer

// TickerPacer paces the loop with a time.Ticker. The first Wait returns
// immediately; ticks missed by a slow iteration are dropped, not queued.
type TickerPacer struct {
	period time.Duration
	ticker *time.Ticker
}

// NewTickerPacer creates a pacer for the given period.
func NewTickerPacer(period time.Duration) Pacer {
	return &TickerPacer{period: period}
}

func (p *TickerPacer) Wait(ctx context.Context) error {
	if p.ticker == nil {
		p.ticker = time.NewTicker(p.period)
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C:
		return nil
	}
}

func (p *TickerPacer) Stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
}

// ImmediatePacer never sleeps. Used for offline runs and tests.
type ImmediatePacer struct{}

// NewImmediatePacer ignores the period.
func NewImmediatePacer(time.Duration) Pacer {
	return ImmediatePacer{}
}

func (ImmediatePacer) Wait(ctx context.Context) error { return ctx.Err() }

func (ImmediatePacer) Stop() {}
