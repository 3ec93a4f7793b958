package reconciler

import (
	"sync"
	"testing"
	"time"

	"github.com/nexxgate/edge-coordinator/pkg/coordinator"
	"github.com/nexxgate/edge-coordinator/pkg/log"
	"github.com/stretchr/testify/assert"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	msgs []coordinator.Msg
}

func (f *fakeSubmitter) Submit(msg coordinator.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestReconcilerTicksSubmitReconcileTick(t *testing.T) {
	log.Init(log.Config{Level: log.InfoLevel})
	sub := &fakeSubmitter{}
	r := New(10*time.Millisecond, sub, log.Logger)
	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool { return sub.count() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestTriggerOnDemandPullWithValidBody(t *testing.T) {
	log.Init(log.Config{Level: log.InfoLevel})
	sub := &fakeSubmitter{}
	r := New(time.Hour, sub, log.Logger)

	r.TriggerOnDemandPull([]byte("update"))

	assert.Equal(t, 1, sub.count())
	_, ok := sub.msgs[0].(coordinator.RequestAccessListMsg)
	assert.True(t, ok)
}

func TestTriggerOnDemandPullDropsMalformedBody(t *testing.T) {
	log.Init(log.Config{Level: log.InfoLevel})
	sub := &fakeSubmitter{}
	r := New(time.Hour, sub, log.Logger)

	r.TriggerOnDemandPull([]byte("garbage"))

	assert.Equal(t, 0, sub.count())
}
