// Package transport owns the two independent MQTT client sessions: the
// local mTLS broker shared with door nodes, and the remote origin broker
// used only to relay individual access events. Neither session assumes
// delivery guarantees beyond QoS 0 — correctness here rests on eventual
// reconciliation with the origin, not on message ordering.
package transport

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const qos = 0

// Topics used on the local broker.
const (
	TopicAuthenticate      = "/authenticate"
	TopicAllowAuth         = "/allow_authentication"
	TopicAccessList        = "/access_list"
	TopicRequestAccessList = "/request_access_list"
	TopicResponseAccess    = "/response_access_list"
	TopicRemoveUID         = "/remove_uid"
	TopicMajorityVote      = "/majority_vote"
	TopicVoteResponse      = "/vote_response"
)

// RemoteTopicAccess is the single topic published on the remote origin
// broker, relaying one access event at a time.
const RemoteTopicAccess = "/nexxgate/access"

// Handler processes one inbound message's raw payload.
type Handler func(payload []byte)

// LocalSession wraps the mTLS client session used for intra-edge and
// edge<->node traffic.
type LocalSession struct {
	client mqtt.Client
	logger zerolog.Logger
}

// NewLocalSession opens a connection to the local broker and registers
// message handlers for every inbound topic. tlsOpts should already carry
// the mTLS client certificate and pinned CA.
func NewLocalSession(broker, clientID string, tlsOpt func(*mqtt.ClientOptions), logger zerolog.Logger, handlers map[string]Handler) (*LocalSession, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if tlsOpt != nil {
		tlsOpt(opts)
	}

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		for topic, h := range handlers {
			handler := h
			if token := c.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
				handler(msg.Payload())
			}); token.Wait() && token.Error() != nil {
				logger.Error().Err(token.Error()).Str("topic", topic).Msg("subscribe failed")
			}
		}
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to local broker: %w", token.Error())
	}

	return &LocalSession{client: client, logger: logger}, nil
}

// Publish sends payload on topic with QoS 0.
func (s *LocalSession) Publish(topic string, payload []byte) error {
	token := s.client.Publish(topic, qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects the session cleanly.
func (s *LocalSession) Close() {
	s.client.Disconnect(250)
}

// RemoteSession wraps the TLS+password client session used to relay
// access events to the origin's broker. It subscribes to nothing.
type RemoteSession struct {
	client mqtt.Client
}

// NewRemoteSession opens a connection to the origin's broker.
func NewRemoteSession(broker, clientID, username, password string, tlsOpt func(*mqtt.ClientOptions)) (*RemoteSession, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetUsername(username).
		SetPassword(password).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if tlsOpt != nil {
		tlsOpt(opts)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to remote broker: %w", token.Error())
	}

	return &RemoteSession{client: client}, nil
}

// PublishAccess relays one access event to the origin.
func (s *RemoteSession) PublishAccess(payload []byte) error {
	token := s.client.Publish(RemoteTopicAccess, qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", RemoteTopicAccess, err)
	}
	return nil
}

// Close disconnects the session cleanly.
func (s *RemoteSession) Close() {
	s.client.Disconnect(250)
}
