// Package reconciler drives the periodic allow-list pull from the
// origin and the on-demand pull path, both by submitting messages to the
// coordinator loop rather than mutating any shared state directly.
package reconciler

import (
	"time"

	"github.com/nexxgate/edge-coordinator/pkg/coordinator"
	"github.com/rs/zerolog"
)

// Submitter is the coordinator's inbox, narrowed for testability.
type Submitter interface {
	Submit(msg coordinator.Msg)
}

// Reconciler ticks every period and submits a ReconcileTickMsg to the
// coordinator loop; the loop itself does the HTTP call and cache
// mutation so this goroutine never touches the Allow-List Cache.
type Reconciler struct {
	period time.Duration
	target Submitter
	logger zerolog.Logger
	stopCh chan struct{}
}

// New creates a reconciler that ticks every period.
func New(period time.Duration, target Submitter, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		period: period,
		target: target,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start begins the ticking loop on its own goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop halts the ticker.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	r.logger.Info().Dur("period", r.period).Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			r.target.Submit(coordinator.ReconcileTickMsg{})
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// TriggerOnDemandPull submits a RequestAccessListMsg immediately,
// independent of the ticker, for an inbound /request_access_list
// message carrying the literal body "update".
func (r *Reconciler) TriggerOnDemandPull(body []byte) {
	if string(body) != "update" {
		r.logger.Warn().Bytes("body", body).Msg("malformed request_access_list payload, dropping")
		return
	}
	r.target.Submit(coordinator.RequestAccessListMsg{})
}
