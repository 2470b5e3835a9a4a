package mqtttransport

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPendingAcksTracksSubscribeAndPublishAcks(t *testing.T) {
	c := &Client{events: make(chan Event, 8)}

	c.enqueue(Event{Kind: EventSubscribed, AckID: 1})
	c.enqueue(Event{Kind: EventPublished, AckID: 2})

	// Simulate what Subscribe/Publish would have incremented before the acks
	// arrived, then let Poll's dispatch bring it back down.
	c.pendingAcks = 2

	c.Poll(0)

	if c.HasPendingOutgoing() {
		t.Errorf("pendingAcks = %d, want 0 after both acks dispatched", c.pendingAcks)
	}
}

func TestDisconnectedEventResetsPendingAcks(t *testing.T) {
	c := &Client{events: make(chan Event, 8)}
	c.pendingAcks = 3

	c.enqueue(Event{Kind: EventDisconnected})
	c.Poll(0)

	if c.HasPendingOutgoing() {
		t.Error("expected pendingAcks reset to 0 on disconnect")
	}
}

func TestPollDispatchesCallbacks(t *testing.T) {
	var gotConnected bool
	var gotSessionPresent bool
	var gotTopic string
	var gotPayload []byte

	c := &Client{
		events: make(chan Event, 8),
		cfg: Config{
			Callbacks: Callbacks{
				OnConnected: func(sessionPresent bool) {
					gotConnected = true
					gotSessionPresent = sessionPresent
				},
				OnMessage: func(topic string, payload []byte) {
					gotTopic = topic
					gotPayload = payload
				},
			},
		},
	}

	c.enqueue(Event{Kind: EventConnected, SessionPresent: true})
	c.enqueue(Event{Kind: EventMessage, Topic: "device/ctrl", Payload: []byte("hi")})

	c.Poll(0)

	if !gotConnected || !gotSessionPresent {
		t.Error("OnConnected callback not dispatched with session_present=true")
	}
	if gotTopic != "device/ctrl" || string(gotPayload) != "hi" {
		t.Errorf("OnMessage callback got topic=%q payload=%q", gotTopic, gotPayload)
	}
}

func TestPollReturnsOnTimeoutWithNoEvents(t *testing.T) {
	c := &Client{events: make(chan Event, 8)}

	start := time.Now()
	c.Poll(20 * time.Millisecond)
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Poll blocked for %v, want roughly the timeout", elapsed)
	}
}

func TestPollPicksUpEventEnqueuedWhileBlocked(t *testing.T) {
	var dispatched atomic.Int64
	c := &Client{
		events: make(chan Event, 8),
		cfg: Config{
			Callbacks: Callbacks{
				OnPublished: func(uint32) { dispatched.Add(1) },
			},
		},
	}
	c.pendingAcks = 1

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.enqueue(Event{Kind: EventPublished, AckID: 1})
	}()

	require.Eventually(t, func() bool {
		c.Poll(50 * time.Millisecond)
		return dispatched.Load() == 1
	}, time.Second, 5*time.Millisecond, "blocked Poll never dispatched the late ack")
	require.False(t, c.HasPendingOutgoing())
}

func TestAllocIDIsMonotonicallyIncreasing(t *testing.T) {
	c := &Client{events: make(chan Event, 8)}
	a := c.allocID()
	b := c.allocID()
	if b <= a {
		t.Errorf("allocID not increasing: %d then %d", a, b)
	}
}

func TestFailedPublishCountPerTopic(t *testing.T) {
	c := &Client{events: make(chan Event, 8), failedPublishes: make(map[string]int64)}

	c.recordFailedPublish("device/telemetry")
	c.recordFailedPublish("device/telemetry")
	c.recordFailedPublish("device/other")

	if got := c.FailedPublishCount("device/telemetry"); got != 2 {
		t.Errorf("FailedPublishCount(telemetry) = %d, want 2", got)
	}
	if got := c.FailedPublishCount("device/other"); got != 1 {
		t.Errorf("FailedPublishCount(other) = %d, want 1", got)
	}
	if got := c.FailedPublishCount("device/never-published"); got != 0 {
		t.Errorf("FailedPublishCount(unknown) = %d, want 0", got)
	}
}
