package broadcaster

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinical-dss-be/internal/constant"
	"clinical-dss-be/internal/dto"
	"clinical-dss-be/internal/pipeline"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

// fakeDeliverer simulates a connected or disconnected session.
type fakeDeliverer struct {
	mu        sync.Mutex
	connected map[string]bool
	delivered map[string][][]byte
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{
		connected: make(map[string]bool),
		delivered: make(map[string][][]byte),
	}
}

func (d *fakeDeliverer) Deliver(sessionId string, payload []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected[sessionId] {
		return false
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	d.delivered[sessionId] = append(d.delivered[sessionId], cp)
	return true
}

func (d *fakeDeliverer) setConnected(sessionId string, up bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected[sessionId] = up
}

func (d *fakeDeliverer) count(sessionId string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delivered[sessionId])
}

func (d *fakeDeliverer) payloads(sessionId string) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.delivered[sessionId]))
	copy(out, d.delivered[sessionId])
	return out
}

func event(seq uint64) []byte {
	payload, _ := json.Marshal(dto.PipelineEvent{
		Type:  constant.EventTypeProcessingStep,
		Stage: constant.StageEmbedding,
		Seq:   seq,
	})
	return payload
}

func publish(t *testing.T, pub message.Publisher, sessionId string, payload []byte) {
	t.Helper()
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(pipeline.MetaSessionId, sessionId)
	require.NoError(t, pub.Publish(pipeline.EventsTopic, msg))
}

func startBroadcaster(t *testing.T, d Deliverer, bufSize int) (message.Publisher, *Broadcaster) {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	b := NewBroadcaster(nopLogger{}, ps, d, bufSize)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, b.Start(ctx))
	return ps, b
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestBroadcaster_DeliversInOrderWhileConnected(t *testing.T) {
	d := newFakeDeliverer()
	d.setConnected("s1", true)
	pub, _ := startBroadcaster(t, d, 50)

	for seq := uint64(1); seq <= 5; seq++ {
		publish(t, pub, "s1", event(seq))
	}

	waitFor(t, func() bool { return d.count("s1") == 5 })

	var lastSeq uint64
	for _, payload := range d.payloads("s1") {
		var ev dto.PipelineEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Greater(t, ev.Seq, lastSeq)
		lastSeq = ev.Seq
	}
}

func TestBroadcaster_BuffersWhileDisconnectedAndFlushesOnReconnect(t *testing.T) {
	d := newFakeDeliverer()
	pub, b := startBroadcaster(t, d, 50)

	for seq := uint64(1); seq <= 3; seq++ {
		publish(t, pub, "s1", event(seq))
	}
	waitFor(t, func() bool { return b.Buffered("s1") == 3 })
	assert.Zero(t, d.count("s1"))

	d.setConnected("s1", true)
	b.Flush("s1")

	require.Equal(t, 3, d.count("s1"))
	var lastSeq uint64
	for _, payload := range d.payloads("s1") {
		var ev dto.PipelineEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Greater(t, ev.Seq, lastSeq)
		lastSeq = ev.Seq
	}
	assert.Zero(t, b.Buffered("s1"))
}

func TestBroadcaster_OverflowCollapsesToSingleResync(t *testing.T) {
	d := newFakeDeliverer()
	d.setConnected("sentinel", true)
	pub, b := startBroadcaster(t, d, 5)

	for seq := uint64(1); seq <= 10; seq++ {
		publish(t, pub, "s1", event(seq))
	}
	// The consumer handles events in publish order, so once the sentinel
	// event lands every s1 event has been processed.
	publish(t, pub, "sentinel", event(11))
	waitFor(t, func() bool { return d.count("sentinel") == 1 })
	assert.Equal(t, 1, b.Buffered("s1"))

	d.setConnected("s1", true)
	b.Flush("s1")

	require.Equal(t, 1, d.count("s1"), "overflow leaves exactly one resync event")
	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal(d.payloads("s1")[0], &ev))
	assert.Equal(t, constant.EventTypeResync, ev["type"])
}

// gatedDeliverer blocks the first delivery to the gated session until
// released, exposing the window while a flush is mid-delivery.
type gatedDeliverer struct {
	*fakeDeliverer
	gate    string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (d *gatedDeliverer) Deliver(sessionId string, payload []byte) bool {
	if sessionId == d.gate {
		d.once.Do(func() {
			close(d.entered)
			<-d.release
		})
	}
	return d.fakeDeliverer.Deliver(sessionId, payload)
}

func TestBroadcaster_EventsDuringFlushQueueBehindBuffer(t *testing.T) {
	base := newFakeDeliverer()
	d := &gatedDeliverer{
		fakeDeliverer: base,
		gate:          "s1",
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	pub, b := startBroadcaster(t, d, 50)

	publish(t, pub, "s1", event(1))
	publish(t, pub, "s1", event(2))
	waitFor(t, func() bool { return b.Buffered("s1") == 2 })

	base.setConnected("s1", true)
	flushed := make(chan struct{})
	go func() {
		b.Flush("s1")
		close(flushed)
	}()

	// The flush is stuck inside its first delivery; a fresh event must
	// queue behind the buffered ones instead of overtaking them.
	<-d.entered
	publish(t, pub, "s1", event(3))
	base.setConnected("sentinel", true)
	publish(t, pub, "sentinel", event(4))
	waitFor(t, func() bool { return base.count("sentinel") == 1 })
	assert.Zero(t, base.count("s1"))

	close(d.release)
	<-flushed

	require.Equal(t, 3, base.count("s1"))
	var lastSeq uint64
	for _, payload := range base.payloads("s1") {
		var ev dto.PipelineEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Greater(t, ev.Seq, lastSeq)
		lastSeq = ev.Seq
	}
	assert.Zero(t, b.Buffered("s1"))
}

func TestBroadcaster_DropDiscardsBuffer(t *testing.T) {
	d := newFakeDeliverer()
	pub, b := startBroadcaster(t, d, 50)

	publish(t, pub, "s1", event(1))
	waitFor(t, func() bool { return b.Buffered("s1") == 1 })

	b.Drop("s1")

	assert.Zero(t, b.Buffered("s1"))
	d.setConnected("s1", true)
	b.Flush("s1")
	assert.Zero(t, d.count("s1"))
}

func TestBroadcaster_SessionsAreIsolated(t *testing.T) {
	d := newFakeDeliverer()
	d.setConnected("up", true)
	pub, b := startBroadcaster(t, d, 50)

	for i := 0; i < 3; i++ {
		publish(t, pub, "up", event(uint64(i+1)))
		publish(t, pub, "down", event(uint64(i+1)))
	}

	waitFor(t, func() bool { return d.count("up") == 3 && b.Buffered("down") == 3 })
	assert.Zero(t, d.count("down"))
}
