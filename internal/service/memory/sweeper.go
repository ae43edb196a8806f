package memory

import (
	"context"
	"time"

	"github.com/sandevgo/mnemo/pkg/log"
)

// PruneSweeper periodically drops memories past the retention window.
type PruneSweeper struct {
	svc      *Service
	Interval time.Duration
}

func NewPruneSweeper(svc *Service, interval time.Duration) *PruneSweeper {
	return &PruneSweeper{
		svc:      svc,
		Interval: interval,
	}
}

func (p *PruneSweeper) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Dur("interval", p.Interval).Msg("starting memory prune sweeper")

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			deleted, err := p.svc.Prune(ctx, "")
			if err != nil {
				logger.Error().Err(err).Msg("prune sweep failed")
				continue
			}
			if deleted > 0 {
				logger.Info().Int64("deleted", deleted).Msg("pruned expired memories")
			}
		}
	}
}

func (p *PruneSweeper) Shutdown(ctx context.Context) error {
	return nil
}
