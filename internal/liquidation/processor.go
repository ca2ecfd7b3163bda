package liquidation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor is the background sweep that fails pending requests whose
// 24 hour expiry has passed, so stale intake never sits PENDING forever.
type Processor struct {
	service  *Service
	interval time.Duration
}

func NewProcessor(service *Service, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Processor{
		service:  service,
		interval: interval,
	}
}

// Start begins the expiry sweep loop. It returns when ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "expiry_sweep").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting request expiry sweep")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down request expiry sweep")
			return
		case <-ticker.C:
			if err := p.sweepExpired(); err != nil {
				logger.Error().Err(err).Msg("failed to sweep expired requests")
			}
		}
	}
}

func (p *Processor) sweepExpired() error {
	logger := log.With().Str("component", "expiry_sweep").Logger()

	expired, err := p.service.db.GetExpiredPending(p.service.now())
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	logger.Info().Int("expired_count", len(expired)).Msg("failing expired pending requests")

	for i := range expired {
		request := &expired[i]
		p.service.markFailed(request, "request expired")
	}

	return nil
}
