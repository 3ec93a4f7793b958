// Package coordinator implements the single-writer loop that is the
// edge's one serialization point: the Allow-List Cache, Lockout table,
// vote-round state, and cloud_reachable flag are mutated only here.
// Every MQTT callback and timer elsewhere in the process is a producer
// that pushes a message onto Coordinator's inbox rather than touching
// that state directly. The origin HTTP calls and access-log file I/O run
// on the loop goroutine itself, so the loop handles no other message
// while one of them is in progress.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nexxgate/edge-coordinator/pkg/accesslog"
	"github.com/nexxgate/edge-coordinator/pkg/allowlist"
	"github.com/nexxgate/edge-coordinator/pkg/config"
	"github.com/nexxgate/edge-coordinator/pkg/events"
	"github.com/nexxgate/edge-coordinator/pkg/lockout"
	"github.com/nexxgate/edge-coordinator/pkg/metrics"
	"github.com/nexxgate/edge-coordinator/pkg/origin"
	"github.com/nexxgate/edge-coordinator/pkg/security"
	"github.com/nexxgate/edge-coordinator/pkg/transport"
	"github.com/nexxgate/edge-coordinator/pkg/types"
	"github.com/nexxgate/edge-coordinator/pkg/vote"
	"github.com/rs/zerolog"
)

// Publisher is the subset of transport.LocalSession the coordinator
// needs, narrowed for testability.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// RemotePublisher is the subset of transport.RemoteSession the
// coordinator needs to relay access events to the origin bus.
type RemotePublisher interface {
	PublishAccess(payload []byte) error
}

// Msg is the sealed set of messages the coordinator loop accepts on its
// inbox. Producers outside the loop only ever construct and send these.
type Msg interface{ isMsg() }

// AuthenticateMsg is the decoded payload of an inbound /authenticate
// message.
type AuthenticateMsg struct {
	UID    string
	NodeID string
	Date   string
	Result bool
}

func (AuthenticateMsg) isMsg() {}

// RequestAccessListMsg is an on-demand pull request.
type RequestAccessListMsg struct{}

func (RequestAccessListMsg) isMsg() {}

// MajorityVoteMsg is a peer's broadcast of their local cache; this edge
// responds with its own cache on /vote_response but never treats the
// payload as a candidate to install.
type MajorityVoteMsg struct{}

func (MajorityVoteMsg) isMsg() {}

// VoteResponseMsg carries a peer's raw ballot payload during a
// collecting round.
type VoteResponseMsg struct {
	Payload []byte
}

func (VoteResponseMsg) isMsg() {}

// ReconcileTickMsg fires every config.Periods.AccessList.
type ReconcileTickMsg struct{}

func (ReconcileTickMsg) isMsg() {}

// VoteTimeoutMsg fires VOTE_TIMEOUT after a round starts collecting.
type VoteTimeoutMsg struct{}

func (VoteTimeoutMsg) isMsg() {}

// UploadTickMsg fires every config.Periods.LogUpload.
type UploadTickMsg struct{}

func (UploadTickMsg) isMsg() {}

// HeartbeatTickMsg fires every config.Periods.Heartbeat.
type HeartbeatTickMsg struct{}

func (HeartbeatTickMsg) isMsg() {}

// Coordinator owns all single-writer state and the loop that mutates it.
type Coordinator struct {
	cfg    config.Config
	logger zerolog.Logger

	allow   *allowlist.Cache
	lock    *lockout.Engine
	signer  *security.Signer
	store   *accesslog.Store
	bus     *events.Broker
	local   Publisher
	remote  RemotePublisher
	origin  *origin.Client

	cloudReachable bool
	round          *vote.Round
	ready          atomic.Bool

	inbox  chan Msg
	stopCh chan struct{}
}

// Ready reports whether the first reconciliation tick has completed,
// successfully or not. The HTTP /readyz handler reads this from a
// different goroutine than the one that sets it, hence the atomic.
func (c *Coordinator) Ready() bool {
	return c.ready.Load()
}

// New builds a coordinator. Nothing is started until Run is called.
func New(cfg config.Config, logger zerolog.Logger, allow *allowlist.Cache, lock *lockout.Engine, signer *security.Signer, store *accesslog.Store, bus *events.Broker, local Publisher, remote RemotePublisher, originClient *origin.Client) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		logger: logger,
		allow:  allow,
		lock:   lock,
		signer: signer,
		store:  store,
		bus:    bus,
		local:  local,
		remote: remote,
		origin: originClient,
		inbox:  make(chan Msg, 256),
		stopCh: make(chan struct{}),
	}
}

// Submit enqueues a message for the coordinator loop. Safe to call from
// any goroutine.
func (c *Coordinator) Submit(msg Msg) {
	select {
	case c.inbox <- msg:
	case <-c.stopCh:
	}
}

// Run drains the inbox until Stop is called. Must run on its own
// goroutine; it is the only goroutine allowed to touch allow/lock/round
// state.
func (c *Coordinator) Run() {
	for {
		select {
		case msg := <-c.inbox:
			c.dispatch(msg)
		case <-c.stopCh:
			return
		}
	}
}

// Stop halts the loop. In-flight vote rounds are abandoned, not
// persisted.
func (c *Coordinator) Stop() {
	close(c.stopCh)
}

func (c *Coordinator) dispatch(msg Msg) {
	switch m := msg.(type) {
	case AuthenticateMsg:
		c.handleAuthenticate(m)
	case RequestAccessListMsg:
		c.publishTop(transport.TopicResponseAccess)
	case MajorityVoteMsg:
		c.handleMajorityVote()
	case VoteResponseMsg:
		c.handleVoteResponse(m)
	case ReconcileTickMsg:
		c.handleReconcileTick()
	case VoteTimeoutMsg:
		c.handleVoteTimeout()
	case UploadTickMsg:
		c.handleUploadTick()
	case HeartbeatTickMsg:
		c.handleHeartbeatTick()
	default:
		c.logger.Warn().Msg("unrecognized coordinator message")
	}
}

// handleAuthenticate implements the Authentication Handler policy table.
func (c *Coordinator) handleAuthenticate(m AuthenticateMsg) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AuthenticationDuration)

	// corrID is attached to the log lines this handler writes itself (the
	// malformed-date warning and the access-log append error); revoke,
	// publishDecision and relayToOrigin log through c.logger without it.
	corrID := uuid.NewString()
	logger := c.logger.With().Str("correlation_id", corrID).Str("uid", m.UID).Logger()

	ts, err := time.Parse(types.LogTimestamp, m.Date)
	if err != nil {
		logger.Warn().Str("date", m.Date).Msg("malformed authenticate date, dropping")
		return
	}

	isOverride := !m.Result && c.allow.Contains(m.UID)
	granted := m.Result || isOverride

	// Every affirmative decision feeds the Lockout Engine, regardless of
	// which policy branch produced it, so reuse detection is uniform.
	lockedOut := granted && c.lock.Evaluate(m.UID, m.NodeID, ts)
	if lockedOut {
		c.revoke(m.UID)
		granted = false
	}

	// The response is emitted only after the lockout check and the log
	// append are complete.
	if err := c.store.Append(m.UID, m.NodeID, ts, granted, c.cfg.Origin.APIKey); err != nil {
		logger.Error().Err(err).Msg("failed to append access log")
	}

	if lockedOut || !m.Result {
		// Override path (granted or denied) and any lockout reversal
		// always answer the node.
		c.publishDecision(m.UID, m.NodeID, granted)
	}

	result := types.BoolString(granted)
	metrics.DecisionsTotal.WithLabelValues(result, "authenticate").Inc()

	if c.cloudReachable {
		c.relayToOrigin(m.UID, m.NodeID, m.Date, granted)
	}

	c.bus.Publish(&events.Event{Type: events.TypeDecisionMade, Message: m.UID})
}

func (c *Coordinator) publishDecision(uid, nodeID string, granted bool) {
	decision := types.AuthDecision{UID: uid, NodeID: nodeID, Result: granted}

	payload, err := json.Marshal(struct {
		UID    string `json:"uid"`
		NodeID string `json:"node_id"`
		Result bool   `json:"result"`
	}{uid, nodeID, granted})
	if err != nil {
		c.logger.Error().Err(err).Msg("marshal auth decision")
		return
	}

	sig, err := c.signer.Sign(payload)
	if err != nil {
		c.logger.Error().Err(err).Msg("sign auth decision")
		return
	}
	decision.Signature = sig

	out, err := json.Marshal(decision)
	if err != nil {
		c.logger.Error().Err(err).Msg("marshal signed auth decision")
		return
	}

	if err := c.local.Publish(transport.TopicAllowAuth, out); err != nil {
		c.logger.Error().Err(err).Msg("publish auth decision")
	}
}

// revoke removes uid from the cache and broadcasts a signed RemoveUid.
// Per ordering guarantees, this is always emitted before the denied
// decision for the same authenticate that triggered it.
func (c *Coordinator) revoke(uid string) {
	c.allow.Remove(uid)
	metrics.LockoutsTotal.Inc()
	metrics.AllowListSize.Set(float64(c.allow.Len()))

	sig, err := c.signer.Sign([]byte(uid))
	if err != nil {
		c.logger.Error().Err(err).Msg("sign remove uid")
		return
	}

	payload, err := json.Marshal(types.RemoveUID{UID: uid, Signature: sig})
	if err != nil {
		c.logger.Error().Err(err).Msg("marshal remove uid")
		return
	}

	if err := c.local.Publish(transport.TopicRemoveUID, payload); err != nil {
		c.logger.Error().Err(err).Msg("publish remove uid")
	}
	c.bus.Publish(&events.Event{Type: events.TypeUIDRevoked, Message: uid})
}

func (c *Coordinator) relayToOrigin(uid, nodeID, date string, granted bool) {
	event := types.NexxgateAccessEvent{
		UID:    uid,
		NodeID: nodeID,
		Date:   date,
		Result: types.BoolString(granted),
		APIKey: c.cfg.Origin.APIKey,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error().Err(err).Msg("marshal relay event")
		return
	}

	if err := c.remote.PublishAccess(payload); err != nil {
		c.logger.Warn().Err(err).Msg("relay to origin bus failed")
	}
}

// publishTop computes the publication view (Frequency Analyzer's top-100
// restricted to cache membership, padded with remaining cache uids in
// iteration order) and publishes it signed on topic.
func (c *Coordinator) publishTop(topic string) {
	limit := c.cfg.Periods.PublishLimit

	var uids []string
	if c.store != nil {
		records, err := c.store.Lines()
		if err != nil {
			c.logger.Warn().Err(err).Msg("read access log for publication ranking")
		} else {
			ranked := accesslog.TopUIDs(records, time.Now(), 7*24*time.Hour, limit)
			for _, r := range ranked {
				if c.allow.Contains(r.UID) {
					uids = append(uids, r.UID)
				}
			}
		}
	}

	if len(uids) < limit {
		seen := make(map[string]struct{}, len(uids))
		for _, u := range uids {
			seen[u] = struct{}{}
		}
		for _, u := range c.allow.Snapshot() {
			if len(uids) >= limit {
				break
			}
			if _, ok := seen[u]; ok {
				continue
			}
			uids = append(uids, u)
			seen[u] = struct{}{}
		}
	}

	payload, err := json.Marshal(uids)
	if err != nil {
		c.logger.Error().Err(err).Msg("marshal publication uids")
		return
	}

	sig, err := c.signer.Sign(payload)
	if err != nil {
		c.logger.Error().Err(err).Msg("sign publication")
		return
	}

	out, err := json.Marshal(types.SignedUIDList{UIDs: uids, Signature: sig})
	if err != nil {
		c.logger.Error().Err(err).Msg("marshal signed publication")
		return
	}

	if err := c.local.Publish(topic, out); err != nil {
		c.logger.Error().Err(err).Msg("publish allow list")
		return
	}

	c.bus.Publish(&events.Event{Type: events.TypeAllowListUpdated, Message: fmt.Sprintf("%d uids", len(uids))})
}

func (c *Coordinator) handleMajorityVote() {
	c.publishVoteResponse()
}

func (c *Coordinator) publishVoteResponse() {
	payload, err := json.Marshal(c.allow.Snapshot())
	if err != nil {
		c.logger.Error().Err(err).Msg("marshal vote response")
		return
	}
	if err := c.local.Publish(transport.TopicVoteResponse, payload); err != nil {
		c.logger.Error().Err(err).Msg("publish vote response")
	}
}

func (c *Coordinator) handleVoteResponse(m VoteResponseMsg) {
	if c.round == nil {
		return
	}
	c.round.AddBallot(m.Payload)
}

func (c *Coordinator) handleReconcileTick() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)
	defer c.ready.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	uids, err := c.origin.AccessList(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("reconciliation failed, falling back to majority vote")
		metrics.ReconciliationCyclesTotal.WithLabelValues("failure").Inc()
		c.cloudReachable = false
		metrics.CloudReachable.Set(0)
		c.startVoteRound()
		return
	}

	c.allow.Replace(uids)
	metrics.AllowListSize.Set(float64(c.allow.Len()))
	metrics.ReconciliationCyclesTotal.WithLabelValues("success").Inc()
	c.publishTop(transport.TopicAccessList)
}

func (c *Coordinator) startVoteRound() {
	if c.round != nil && c.round.State == vote.StateCollecting {
		return
	}
	c.round = vote.NewRound()

	payload, err := json.Marshal(c.allow.Snapshot())
	if err != nil {
		c.logger.Error().Err(err).Msg("marshal local cache for vote broadcast")
		return
	}
	if err := c.local.Publish(transport.TopicMajorityVote, payload); err != nil {
		c.logger.Error().Err(err).Msg("publish majority vote broadcast")
	}

	time.AfterFunc(c.cfg.Periods.VoteTimeout, func() {
		c.Submit(VoteTimeoutMsg{})
	})
}

func (c *Coordinator) handleVoteTimeout() {
	if c.round == nil {
		return
	}
	winner, outcome := c.round.Tally()
	metrics.VoteRoundsTotal.WithLabelValues(string(outcome)).Inc()

	if outcome == vote.OutcomeNoVotes {
		c.logger.Info().Msg("no votes received, retaining local allow-list")
		c.round = nil
		return
	}

	c.allow.Replace(winner)
	metrics.AllowListSize.Set(float64(c.allow.Len()))
	c.publishTop(transport.TopicAccessList)
	c.round = nil
}

func (c *Coordinator) handleUploadTick() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.UploadDuration)

	if !c.cloudReachable {
		metrics.UploadsTotal.WithLabelValues("skipped_unreachable").Inc()
		return
	}

	body, err := c.store.Contents()
	if err != nil {
		c.logger.Error().Err(err).Msg("read access log for upload")
		metrics.UploadsTotal.WithLabelValues("read_error").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ok, err := c.origin.UploadLog(ctx, body)
	if err != nil || !ok {
		c.logger.Warn().Err(err).Msg("log upload not acknowledged, keeping file")
		metrics.UploadsTotal.WithLabelValues("not_acked").Inc()
		return
	}

	if err := c.store.Truncate(); err != nil {
		c.logger.Error().Err(err).Msg("truncate access log after upload")
		return
	}
	metrics.UploadsTotal.WithLabelValues("success").Inc()
}

func (c *Coordinator) handleHeartbeatTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reachable := c.origin.HealthCheck(ctx)
	c.cloudReachable = reachable
	if reachable {
		metrics.CloudReachable.Set(1)
	} else {
		metrics.CloudReachable.Set(0)
	}

	if reachable {
		if err := c.origin.Heartbeat(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("heartbeat ping failed")
			metrics.HeartbeatsTotal.WithLabelValues("failure").Inc()
		} else {
			metrics.HeartbeatsTotal.WithLabelValues("success").Inc()
		}
		c.bus.Publish(&events.Event{Type: events.TypeCloudReachable})
	} else {
		c.bus.Publish(&events.Event{Type: events.TypeCloudUnreachable})
	}
}
