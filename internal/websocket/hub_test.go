package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinical-dss-be/internal/constant"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

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

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil, nopLogger{})
	go h.Run()
	return h
}

func connect(t *testing.T, h *Hub, sessionId string, sendBuf int) *Client {
	t.Helper()
	client := &Client{Hub: h, SessionId: sessionId, Send: make(chan []byte, sendBuf)}
	h.register <- client
	waitFor(t, func() bool { return h.Connected(sessionId) })
	return client
}

func TestHub_DeliverToConnectedSession(t *testing.T) {
	h := startHub(t)
	client := connect(t, h, "s1", 4)

	// Drain the welcome frame first.
	welcomeRaw := <-client.Send
	var welcome map[string]interface{}
	require.NoError(t, json.Unmarshal(welcomeRaw, &welcome))
	assert.Equal(t, constant.EventTypeWelcome, welcome["type"])

	assert.True(t, h.Deliver("s1", []byte(`{"seq":1}`)))
	assert.Equal(t, []byte(`{"seq":1}`), <-client.Send)
}

// Without redis a session unknown to this instance cannot be reached, so
// Deliver must report false and leave buffering to the caller.
func TestHub_DeliverToUnknownSessionReportsUndelivered(t *testing.T) {
	h := startHub(t)

	assert.False(t, h.Deliver("nobody", []byte(`{"seq":1}`)))
}

func TestHub_DeliverToFullSendBufferDropsConnection(t *testing.T) {
	h := startHub(t)
	connect(t, h, "s1", 1)
	// The welcome frame already occupies the single send slot.

	assert.False(t, h.Deliver("s1", []byte(`{"seq":1}`)))
	waitFor(t, func() bool { return !h.Connected("s1") })
	assert.Zero(t, h.ConnectionCount())
}

func TestHub_LifecycleHooksFireOnRegisterAndUnregister(t *testing.T) {
	h := NewHub(nil, nopLogger{})
	connected := make(chan string, 1)
	disconnected := make(chan string, 1)
	h.SetLifecycleHooks(
		func(sessionId string) { connected <- sessionId },
		func(sessionId string) { disconnected <- sessionId },
	)
	go h.Run()

	client := connect(t, h, "s1", 4)
	assert.Equal(t, "s1", <-connected)

	h.unregister <- client
	assert.Equal(t, "s1", <-disconnected)
	assert.False(t, h.Connected("s1"))
}
