// Package uploader drives the weekly log-upload tick, submitting to the
// coordinator loop so the HTTP call and file truncation happen under the
// loop's serialization rather than on this ticker's own goroutine.
package uploader

import (
	"time"

	"github.com/nexxgate/edge-coordinator/pkg/coordinator"
	"github.com/rs/zerolog"
)

// Submitter is the coordinator's inbox, narrowed for testability.
type Submitter interface {
	Submit(msg coordinator.Msg)
}

// Uploader ticks every period and submits an UploadTickMsg.
type Uploader struct {
	period time.Duration
	target Submitter
	logger zerolog.Logger
	stopCh chan struct{}
}

// New creates an uploader that ticks every period.
func New(period time.Duration, target Submitter, logger zerolog.Logger) *Uploader {
	return &Uploader{
		period: period,
		target: target,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start begins the ticking loop on its own goroutine.
func (u *Uploader) Start() {
	go u.run()
}

// Stop halts the ticker.
func (u *Uploader) Stop() {
	close(u.stopCh)
}

func (u *Uploader) run() {
	ticker := time.NewTicker(u.period)
	defer ticker.Stop()

	u.logger.Info().Dur("period", u.period).Msg("uploader started")

	for {
		select {
		case <-ticker.C:
			u.target.Submit(coordinator.UploadTickMsg{})
		case <-u.stopCh:
			u.logger.Info().Msg("uploader stopped")
			return
		}
	}
}
