// Package heartbeat drives the periodic origin health ping that flips
// cloud_reachable, the gate other coordinator components read before
// relaying events or attempting an upload.
package heartbeat

import (
	"time"

	"github.com/nexxgate/edge-coordinator/pkg/coordinator"
	"github.com/rs/zerolog"
)

// Submitter is the coordinator's inbox, narrowed for testability.
type Submitter interface {
	Submit(msg coordinator.Msg)
}

// Reporter ticks every period and submits a HeartbeatTickMsg.
type Reporter struct {
	period time.Duration
	target Submitter
	logger zerolog.Logger
	stopCh chan struct{}
}

// New creates a heartbeat reporter that ticks every period.
func New(period time.Duration, target Submitter, logger zerolog.Logger) *Reporter {
	return &Reporter{
		period: period,
		target: target,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start begins the ticking loop on its own goroutine.
func (r *Reporter) Start() {
	go r.run()
}

// Stop halts the ticker.
func (r *Reporter) Stop() {
	close(r.stopCh)
}

func (r *Reporter) run() {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	r.logger.Info().Dur("period", r.period).Msg("heartbeat reporter started")

	for {
		select {
		case <-ticker.C:
			r.target.Submit(coordinator.HeartbeatTickMsg{})
		case <-r.stopCh:
			r.logger.Info().Msg("heartbeat reporter stopped")
			return
		}
	}
}
