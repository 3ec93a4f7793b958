package coordinator

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nexxgate/edge-coordinator/pkg/accesslog"
	"github.com/nexxgate/edge-coordinator/pkg/allowlist"
	"github.com/nexxgate/edge-coordinator/pkg/config"
	"github.com/nexxgate/edge-coordinator/pkg/events"
	"github.com/nexxgate/edge-coordinator/pkg/lockout"
	"github.com/nexxgate/edge-coordinator/pkg/log"
	"github.com/nexxgate/edge-coordinator/pkg/origin"
	"github.com/nexxgate/edge-coordinator/pkg/security"
	"github.com/nexxgate/edge-coordinator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMsg
}

type publishedMsg struct {
	topic   string
	payload []byte
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMsg{topic: topic, payload: append([]byte(nil), payload...)})
	return nil
}

func (f *fakePublisher) last() (publishedMsg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		return publishedMsg{}, false
	}
	return f.published[len(f.published)-1], true
}

type fakeRemote struct{ published [][]byte }

func (f *fakeRemote) PublishAccess(payload []byte) error {
	f.published = append(f.published, payload)
	return nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakePublisher, *security.Verifier) {
	t.Helper()
	log.Init(log.Config{Level: log.InfoLevel})

	path, key := writeSigningKey(t)
	signer, err := security.LoadSigner(path)
	require.NoError(t, err)
	verifier := security.NewVerifier(&key.PublicKey)

	store, err := accesslog.NewStore(testLogPath(t))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Origin.APIKey = "test-api-key"
	cfg.NodeID = "edge-test"

	pub := &fakePublisher{}
	remote := &fakeRemote{}
	originClient := origin.NewClient("http://127.0.0.1:0", cfg.Origin.APIKey)

	c := New(cfg, log.Logger, allowlist.New(), lockout.New(cfg.Periods.LockoutWindow), signer, store, events.NewBroker(), pub, remote, originClient)
	return c, pub, verifier
}

func TestS1OverridePathGrantsAndSigns(t *testing.T) {
	c, pub, verifier := newTestCoordinator(t)
	c.allow.Replace([]string{"U1"})

	c.dispatch(AuthenticateMsg{UID: "U1", NodeID: "N1", Date: "2024-05-30 12:00:00", Result: false})

	msg, ok := pub.last()
	require.True(t, ok)
	assert.Equal(t, "/allow_authentication", msg.topic)

	var decision types.AuthDecision
	require.NoError(t, json.Unmarshal(msg.payload, &decision))
	assert.True(t, decision.Result)
	assert.Equal(t, "U1", decision.UID)
	assert.Equal(t, "N1", decision.NodeID)
	assert.NotEmpty(t, decision.Signature)

	canonical, _ := json.Marshal(struct {
		UID    string `json:"uid"`
		NodeID string `json:"node_id"`
		Result bool   `json:"result"`
	}{decision.UID, decision.NodeID, decision.Result})
	assert.NoError(t, verifier.Verify(canonical, decision.Signature))
}

func TestS2LockoutRevokesAndDenies(t *testing.T) {
	c, pub, _ := newTestCoordinator(t)
	c.allow.Replace([]string{"U1"})

	c.dispatch(AuthenticateMsg{UID: "U1", NodeID: "N1", Date: "2024-05-30 12:00:00", Result: false})
	c.dispatch(AuthenticateMsg{UID: "U1", NodeID: "N2", Date: "2024-05-30 12:00:05", Result: false})

	// Expect at least a remove_uid broadcast followed by a denied decision.
	var sawRemove, sawDenied bool
	var removeIdx, deniedIdx int
	for i, m := range pub.published {
		if m.topic == "/remove_uid" {
			sawRemove = true
			removeIdx = i
		}
		if m.topic == "/allow_authentication" {
			var d types.AuthDecision
			require.NoError(t, json.Unmarshal(m.payload, &d))
			if d.UID == "U1" && !d.Result {
				sawDenied = true
				deniedIdx = i
			}
		}
	}

	assert.True(t, sawRemove)
	assert.True(t, sawDenied)
	assert.Less(t, removeIdx, deniedIdx)
	assert.False(t, c.allow.Contains("U1"))
}

func TestS6OnDemandPullPublishesResponseAccessList(t *testing.T) {
	c, pub, verifier := newTestCoordinator(t)
	c.allow.Replace([]string{"A", "B", "C"})

	c.dispatch(RequestAccessListMsg{})

	msg, ok := pub.last()
	require.True(t, ok)
	assert.Equal(t, "/response_access_list", msg.topic)

	var list types.SignedUIDList
	require.NoError(t, json.Unmarshal(msg.payload, &list))
	assert.LessOrEqual(t, len(list.UIDs), 100)
	assert.NotEmpty(t, list.Signature)

	canonical, _ := json.Marshal(list.UIDs)
	assert.NoError(t, verifier.Verify(canonical, list.Signature))
}

func TestMajorityVoteRespondsWithOwnCacheOnly(t *testing.T) {
	c, pub, _ := newTestCoordinator(t)
	c.allow.Replace([]string{"LOCAL"})

	c.dispatch(MajorityVoteMsg{})

	msg, ok := pub.last()
	require.True(t, ok)
	assert.Equal(t, "/vote_response", msg.topic)

	var uids []string
	require.NoError(t, json.Unmarshal(msg.payload, &uids))
	assert.Equal(t, []string{"LOCAL"}, uids)
}

func TestHeartbeatTickFlipsCloudReachable(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.cloudReachable = true

	c.dispatch(HeartbeatTickMsg{})

	assert.False(t, c.cloudReachable)
}

func TestNoOverrideWhenResultTrueAndNoLockout(t *testing.T) {
	c, pub, _ := newTestCoordinator(t)

	c.dispatch(AuthenticateMsg{UID: "U9", NodeID: "N1", Date: "2024-05-30 12:00:00", Result: true})

	_, ok := pub.last()
	assert.False(t, ok, "no /allow_authentication expected when the node already granted and no lockout fired")
}

func TestReadyFlipsAfterFirstReconcileTick(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	assert.False(t, c.Ready(), "should not be ready before any reconciliation tick")

	c.dispatch(ReconcileTickMsg{})

	assert.True(t, c.Ready(), "should be ready once the first reconciliation tick has completed, even on failure")
}

func testLogPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "access.log")
}

func writeSigningKey(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der := x509.MarshalPKCS1PrivateKey(key)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}

	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	return path, key
}
