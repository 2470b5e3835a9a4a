// Package mqtttransport is the thin typed layer over the MQTT session:
// connect/disconnect/subscribe/publish/poll, outstanding-ack tracking, and
// upward event delivery (connected, disconnected, subscribed, published,
// message).
//
// Paho's client is callback/goroutine driven; this package bridges that
// into an explicit poll-drives-everything model: every Paho callback only
// ever enqueues an Event, and Poll is the sole place those events are
// dispatched to the caller's callbacks, on the caller's goroutine.
package mqtttransport

import (
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/edgelink/device-agent/pkg/agenterr"
	"github.com/edgelink/device-agent/pkg/util"
)

// EventKind is the closed set of upward notifications C7 surfaces.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventSubscribed
	EventPublished
	EventMessage
)

// Event is one queued notification awaiting dispatch from Poll.
type Event struct {
	Kind           EventKind
	SessionPresent bool   // EventConnected
	Err            error  // EventDisconnected
	AckID          uint32 // EventSubscribed, EventPublished
	ReturnCode     byte   // EventSubscribed
	Topic          string // EventMessage
	Payload        []byte // EventMessage
}

// Callbacks is the set of handlers Poll invokes as queued events are
// dispatched. Any may be nil.
type Callbacks struct {
	OnConnected    func(sessionPresent bool)
	OnDisconnected func(err error)
	OnSubscribed   func(id uint32, returnCode byte)
	OnPublished    func(id uint32)
	OnMessage      func(topic string, payload []byte)
}

// Config configures one Client instance.
type Config struct {
	BrokerURL             string // "mqtts://host:port" or "mqtt://host:port" in dev mode
	ClientID              string
	TLSCertificate        *tls.Certificate // nil only permitted with an insecure, non-TLS BrokerURL
	InsecureSkipVerify    bool
	CleanSession          bool
	ConnectTimeout        time.Duration
	KeepAlive             time.Duration
	Callbacks             Callbacks
}

// Client is a typed, event-queueing wrapper around a single Paho MQTT
// client connection.
type Client struct {
	cfg    Config
	paho   pahomqtt.Client
	events chan Event

	pendingAcks int64 // non-QoS0 publishes/subscribes awaiting ACK

	nextID uint32

	mu                sync.Mutex
	failedPublishes   map[string]int64 // per-topic failure counter, never reset
}

// New builds a Client from cfg but does not connect.
func New(cfg Config) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	c := &Client{
		cfg:             cfg,
		events:          make(chan Event, 256),
		failedPublishes: make(map[string]int64),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(cfg.CleanSession).
		SetKeepAlive(cfg.KeepAlive).
		SetAutoReconnect(false). // reconnect policy belongs to the embedder, not the transport
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			c.enqueue(Event{Kind: EventDisconnected, Err: err})
		}).
		SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
			payload := make([]byte, len(msg.Payload()))
			copy(payload, msg.Payload())
			c.enqueue(Event{Kind: EventMessage, Topic: msg.Topic(), Payload: payload})
		})

	if cfg.TLSCertificate != nil {
		opts.SetTLSConfig(&tls.Config{
			Certificates:       []tls.Certificate{*cfg.TLSCertificate},
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		})
	}

	c.paho = pahomqtt.NewClient(opts)
	return c
}

func (c *Client) enqueue(ev Event) {
	select {
	case c.events <- ev:
	default:
		util.WithField("kind", ev.Kind).Warn("mqtttransport: event queue full, dropping event")
	}
}

func (c *Client) allocID() uint32 {
	return atomic.AddUint32(&c.nextID, 1)
}

// Connect opens the MQTT session synchronously, blocking up to
// cfg.ConnectTimeout for the CONNACK. On success it enqueues an
// EventConnected carrying the broker's session_present flag; Poll must be
// called to have it dispatched.
func (c *Client) Connect() error {
	token := c.paho.Connect()
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return agenterr.New(agenterr.Timeout, "mqtttransport.Connect", "CONNACK not received within timeout")
	}
	if err := token.Error(); err != nil {
		return agenterr.Wrap(agenterr.MqttError, "mqtttransport.Connect", err)
	}

	sessionPresent := false
	if ct, ok := token.(*pahomqtt.ConnectToken); ok {
		sessionPresent = ct.SessionPresent()
	}
	c.enqueue(Event{Kind: EventConnected, SessionPresent: sessionPresent})
	return nil
}

// Disconnect initiates a clean MQTT DISCONNECT, waiting up to quiesce for
// in-flight work to drain.
func (c *Client) Disconnect(quiesce time.Duration) {
	c.paho.Disconnect(uint(quiesce.Milliseconds()))
}

// IsConnected reports the Paho client's live connection state.
func (c *Client) IsConnected() bool {
	return c.paho.IsConnected()
}

// Subscribe issues a SUBSCRIBE at qos and tracks it as a pending
// outgoing ack; the result arrives as an EventSubscribed through Poll.
// Returns the correlation id assigned to this subscription.
func (c *Client) Subscribe(topic string, qos byte) uint32 {
	id := c.allocID()
	atomic.AddInt64(&c.pendingAcks, 1)

	token := c.paho.Subscribe(topic, qos, nil)
	go func() {
		token.Wait()
		rc := qos
		if err := token.Error(); err != nil {
			rc = 0x80 // SUBACK failure code
			util.WithFields(map[string]interface{}{"topic": topic, "error": err}).Warn("mqtttransport: subscribe failed")
		}
		c.enqueue(Event{Kind: EventSubscribed, AckID: id, ReturnCode: rc})
	}()
	return id
}

// Publish issues a PUBLISH at qos. QoS 0 publishes are fire-and-forget
// and never produce an EventPublished (there is no PUBACK to wait for);
// QoS 1/2 publishes are tracked as pending outgoing work until their ack
// arrives. Returns the correlation id assigned to this publish.
func (c *Client) Publish(topic string, payload []byte, qos byte) uint32 {
	id := c.allocID()
	tracked := qos > 0
	if tracked {
		atomic.AddInt64(&c.pendingAcks, 1)
	}

	token := c.paho.Publish(topic, qos, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.recordFailedPublish(topic)
			util.WithFields(map[string]interface{}{"topic": topic, "error": err}).Warn("mqtttransport: publish failed")
			if tracked {
				atomic.AddInt64(&c.pendingAcks, -1)
			}
			return
		}
		if tracked {
			c.enqueue(Event{Kind: EventPublished, AckID: id})
		}
	}()
	return id
}

func (c *Client) recordFailedPublish(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedPublishes[topic]++
}

// FailedPublishCount returns the number of publish failures observed for
// topic since the client was created. Failures are counted, not retried;
// reconnect policy belongs to the layers above.
func (c *Client) FailedPublishCount(topic string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failedPublishes[topic]
}

// FailedPublishTotal returns the number of publish failures observed
// across all topics since the client was created.
func (c *Client) FailedPublishTotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, n := range c.failedPublishes {
		total += n
	}
	return total
}

// HasPendingOutgoing reports whether any non-QoS0 publish or subscribe is
// still awaiting its ack.
func (c *Client) HasPendingOutgoing() bool {
	return atomic.LoadInt64(&c.pendingAcks) > 0
}

// Poll is the only driver of progress: it drains whatever events are
// already queued, then — if none were available — waits up to timeout
// for exactly one more, draining any further backlog before returning.
// Every dispatched event runs its Callbacks entry on the calling
// goroutine.
func (c *Client) Poll(timeout time.Duration) {
	if c.drainAvailable() {
		c.drainAvailable()
		return
	}
	if timeout <= 0 {
		return
	}
	select {
	case ev := <-c.events:
		c.dispatch(ev)
	case <-time.After(timeout):
		return
	}
	c.drainAvailable()
}

// drainAvailable dispatches every event currently buffered without
// blocking, returning whether it dispatched at least one.
func (c *Client) drainAvailable() bool {
	dispatched := false
	for {
		select {
		case ev := <-c.events:
			c.dispatch(ev)
			dispatched = true
		default:
			return dispatched
		}
	}
}

func (c *Client) dispatch(ev Event) {
	switch ev.Kind {
	case EventConnected:
		if c.cfg.Callbacks.OnConnected != nil {
			c.cfg.Callbacks.OnConnected(ev.SessionPresent)
		}
	case EventDisconnected:
		atomic.StoreInt64(&c.pendingAcks, 0)
		if c.cfg.Callbacks.OnDisconnected != nil {
			c.cfg.Callbacks.OnDisconnected(ev.Err)
		}
	case EventSubscribed:
		atomic.AddInt64(&c.pendingAcks, -1)
		if c.cfg.Callbacks.OnSubscribed != nil {
			c.cfg.Callbacks.OnSubscribed(ev.AckID, ev.ReturnCode)
		}
	case EventPublished:
		atomic.AddInt64(&c.pendingAcks, -1)
		if c.cfg.Callbacks.OnPublished != nil {
			c.cfg.Callbacks.OnPublished(ev.AckID)
		}
	case EventMessage:
		if c.cfg.Callbacks.OnMessage != nil {
			c.cfg.Callbacks.OnMessage(ev.Topic, ev.Payload)
		}
	default:
		util.WithField("kind", ev.Kind).Warn(fmt.Sprintf("mqtttransport: unhandled event kind %d", ev.Kind))
	}
}
