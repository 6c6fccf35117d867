package broadcaster

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"clinical-dss-be/internal/constant"
	"clinical-dss-be/internal/pipeline"
	"clinical-dss-be/internal/pkg/logger"
)

// Deliverer pushes a payload to a connected session. It reports false when
// the session is not currently connected, in which case the broadcaster
// buffers the event.
type Deliverer interface {
	Deliver(sessionId string, payload []byte) bool
}

// Broadcaster consumes run events from the in-process bus and forwards
// them to the owning session in publish order. Events for a disconnected
// session buffer up to a bound; on overflow the whole buffer collapses
// into a single resync marker and the client must re-fetch the run
// snapshot instead of replaying.
type Broadcaster struct {
	log        logger.ILogger
	subscriber message.Subscriber
	deliverer  Deliverer
	bufSize    int

	mu         sync.Mutex
	buffers    map[string][][]byte
	overflowed map[string]bool
	flushing   map[string]bool
}

func NewBroadcaster(log logger.ILogger, subscriber message.Subscriber, deliverer Deliverer, bufSize int) *Broadcaster {
	return &Broadcaster{
		log:        log,
		subscriber: subscriber,
		deliverer:  deliverer,
		bufSize:    bufSize,
		buffers:    make(map[string][][]byte),
		overflowed: make(map[string]bool),
		flushing:   make(map[string]bool),
	}
}

// Start subscribes to the event topic and consumes until ctx is done.
// A single consumer goroutine preserves per-run ordering.
func (b *Broadcaster) Start(ctx context.Context) error {
	messages, err := b.subscriber.Subscribe(ctx, pipeline.EventsTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			b.handle(msg)
			msg.Ack()
		}
	}()
	return nil
}

func (b *Broadcaster) handle(msg *message.Message) {
	sessionId := msg.Metadata.Get(pipeline.MetaSessionId)
	if sessionId == "" {
		b.log.Warn("broadcaster", "Event without session metadata dropped", nil)
		return
	}

	b.mu.Lock()
	// While a session has buffered events or a flush in progress, new
	// deliveries queue behind them to preserve order.
	if len(b.buffers[sessionId]) > 0 || b.overflowed[sessionId] || b.flushing[sessionId] {
		b.bufferLocked(sessionId, msg.Payload)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if b.deliverer.Deliver(sessionId, msg.Payload) {
		return
	}

	b.mu.Lock()
	b.bufferLocked(sessionId, msg.Payload)
	b.mu.Unlock()
}

// bufferLocked appends to a session's buffer, collapsing into a single
// resync event when the bound is exceeded.
func (b *Broadcaster) bufferLocked(sessionId string, payload []byte) {
	if b.overflowed[sessionId] {
		return
	}

	buf := b.buffers[sessionId]
	if len(buf) >= b.bufSize {
		b.buffers[sessionId] = [][]byte{resyncPayload(payload)}
		b.overflowed[sessionId] = true

		b.log.Warn("broadcaster", "Session buffer overflow, collapsed to resync", map[string]interface{}{
			"session_id": sessionId,
			"dropped":    len(buf),
		})
		return
	}
	b.buffers[sessionId] = append(buf, payload)
}

// Flush delivers a session's buffered events in order after a reconnect.
// Events arriving mid-flush queue behind the buffer and drain in the same
// call. Delivery failures leave the remainder buffered.
func (b *Broadcaster) Flush(sessionId string) {
	b.mu.Lock()
	if b.flushing[sessionId] {
		b.mu.Unlock()
		return
	}
	b.flushing[sessionId] = true
	b.mu.Unlock()

	for {
		b.mu.Lock()
		buf := b.buffers[sessionId]
		if len(buf) == 0 {
			delete(b.buffers, sessionId)
			delete(b.overflowed, sessionId)
			delete(b.flushing, sessionId)
			b.mu.Unlock()
			return
		}
		b.buffers[sessionId] = nil
		delete(b.overflowed, sessionId)
		b.mu.Unlock()

		for i, payload := range buf {
			if !b.deliverer.Deliver(sessionId, payload) {
				b.mu.Lock()
				b.buffers[sessionId] = append(buf[i:], b.buffers[sessionId]...)
				delete(b.flushing, sessionId)
				b.mu.Unlock()
				return
			}
		}
	}
}

// Drop discards a released session's buffer.
func (b *Broadcaster) Drop(sessionId string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, sessionId)
	delete(b.overflowed, sessionId)
}

// Buffered reports how many events are queued for a session.
func (b *Broadcaster) Buffered(sessionId string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffers[sessionId])
}

// resyncPayload builds a resync marker carrying the run id of the event
// that overflowed the buffer.
func resyncPayload(latest []byte) []byte {
	var hint struct {
		RunId string `json:"run_id"`
	}
	_ = json.Unmarshal(latest, &hint)

	out, _ := json.Marshal(map[string]interface{}{
		"type":      constant.EventTypeResync,
		"run_id":    hint.RunId,
		"timestamp": time.Now().UTC(),
	})
	return out
}
