// Package devicestate implements the device lifecycle state machine:
// Disconnected/Connecting/Connected, session handshake sequencing, and
// the introspection-fingerprint fast path that skips the handshake on a
// resumed session.
//
// The transport dependency is a narrow interface rather than the concrete
// MQTT client, which is what makes the handshake sequencing testable
// without a live broker.
package devicestate

import (
	"context"
	"sync"
	"time"

	"github.com/edgelink/device-agent/pkg/agenterr"
	"github.com/edgelink/device-agent/pkg/bsoncodec"
	"github.com/edgelink/device-agent/pkg/credentials"
	"github.com/edgelink/device-agent/pkg/introspection"
	"github.com/edgelink/device-agent/pkg/mqtttransport"
	"github.com/edgelink/device-agent/pkg/propertycache"
	"github.com/edgelink/device-agent/pkg/schema"
	"github.com/edgelink/device-agent/pkg/util"
)

// State is one of the three lifecycle states.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Callbacks are the two lifecycle notifications the state machine itself
// raises; inbound data/property callbacks belong to the layer above
// (deviceagent), which is handed every message via OnMessage instead.
type Callbacks struct {
	OnConnect    func()
	OnDisconnect func(err error)
}

// Config configures one Machine.
type Config struct {
	RealmName string
	DeviceID  string

	CleanSession   bool
	ConnectTimeout time.Duration
	KeepAlive      time.Duration

	// HTTPTimeout bounds each pairing HTTP call (CSR exchange, broker URL
	// lookup) individually. Zero means no deadline beyond the pairing
	// client's own fixed transport timeout.
	HTTPTimeout time.Duration

	Registry    *introspection.Registry
	Cache       *propertycache.Store
	Credentials *credentials.Store
	Pairing     *credentials.PairingClient

	Callbacks Callbacks

	// OnMessage receives every inbound MQTT message once the session is
	// established; devicestate does no topic demuxing of its own beyond
	// what the handshake itself needs.
	OnMessage func(topic string, payload []byte)

	// OnPublishAck receives the correlation id of every publish ack that
	// the handshake did not itself issue, for callers (deviceagent) that
	// need to know when their own set_property/stream_* publishes land.
	OnPublishAck func(id uint32)
}

// transport is the narrow surface Machine depends on; mqtttransport.Client
// satisfies it structurally. Depending on the interface rather than the
// concrete client lets the state machine's sequencing be unit tested
// without a live broker.
type transport interface {
	Connect() error
	Disconnect(quiesce time.Duration)
	IsConnected() bool
	Subscribe(topic string, qos byte) uint32
	Publish(topic string, payload []byte, qos byte) uint32
	Poll(timeout time.Duration)
	HasPendingOutgoing() bool
	FailedPublishTotal() int64
}

// Machine drives the MQTT session lifecycle for one device: credential
// acquisition, CONNECT, handshake sequencing, and steady-state publish
// access, gated by the current State.
type Machine struct {
	realm    string
	deviceID string

	registry    *introspection.Registry
	cache       *propertycache.Store
	credStore   *credentials.Store
	pairing     *credentials.PairingClient
	httpTimeout time.Duration

	mqttCfg mqtttransport.Config

	newTransport func(mqtttransport.Config) transport

	callbacks    Callbacks
	onMessage    func(topic string, payload []byte)
	onPublishAck func(id uint32)

	mu               sync.Mutex
	state            State
	tr               transport
	handshakePending map[uint32]struct{}
	handshakeFailed  bool
	handshakeCanon   string
	lastFailedCount  int64
}

// New builds a Machine in the Disconnected state.
func New(cfg Config) *Machine {
	m := &Machine{
		realm:       cfg.RealmName,
		deviceID:    cfg.DeviceID,
		registry:    cfg.Registry,
		cache:       cfg.Cache,
		credStore:   cfg.Credentials,
		pairing:     cfg.Pairing,
		httpTimeout: cfg.HTTPTimeout,
		mqttCfg: mqtttransport.Config{
			ClientID:       cfg.DeviceID,
			CleanSession:   cfg.CleanSession,
			ConnectTimeout: cfg.ConnectTimeout,
			KeepAlive:      cfg.KeepAlive,
		},
		callbacks:    cfg.Callbacks,
		onMessage:    cfg.OnMessage,
		onPublishAck: cfg.OnPublishAck,
		state:        Disconnected,
		newTransport: func(c mqtttransport.Config) transport { return mqtttransport.New(c) },
	}
	return m
}

// State reports the machine's current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) ensureCredentials(ctx context.Context) error {
	if m.credStore.Ready() {
		return nil
	}
	kp, err := credentials.GenerateKeyPair()
	if err != nil {
		return err
	}
	csrPEM, err := credentials.BuildCSR(kp)
	if err != nil {
		return err
	}
	callCtx, cancel := m.withHTTPTimeout(ctx)
	defer cancel()
	chainPEM, err := m.pairing.RequestCertificate(callCtx, csrPEM)
	if err != nil {
		return err
	}
	return m.credStore.Install(kp, chainPEM)
}

// withHTTPTimeout derives a per-call deadline from httpTimeout, leaving ctx
// untouched when the caller didn't configure one.
func (m *Machine) withHTTPTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.httpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.httpTimeout)
}

// Connect ensures credentials are installed, resolves the broker URL,
// and initiates the MQTT CONNECT. It enters Connecting just before the
// CONNECT is sent and returns once the CONNACK has arrived (or the
// connection attempt has failed/timed out, which puts the state back to
// Disconnected); the handshake and the transition to Connected are only
// applied once Poll dispatches the queued connect event.
func (m *Machine) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case Connecting:
		m.mu.Unlock()
		return agenterr.New(agenterr.MqttClientAlreadyConnecting, "devicestate.Connect", "connect already in progress")
	case Connected:
		m.mu.Unlock()
		return agenterr.New(agenterr.MqttClientAlreadyConnected, "devicestate.Connect", "already connected")
	}
	m.mu.Unlock()

	if err := m.ensureCredentials(ctx); err != nil {
		return err
	}
	brokerCtx, cancel := m.withHTTPTimeout(ctx)
	brokerURL, err := m.pairing.BrokerURL(brokerCtx)
	cancel()
	if err != nil {
		return err
	}
	cert, err := m.credStore.TLSCertificate()
	if err != nil {
		return err
	}

	tcfg := m.mqttCfg
	tcfg.BrokerURL = brokerURL
	tcfg.TLSCertificate = &cert
	tcfg.Callbacks = mqtttransport.Callbacks{
		OnConnected:    m.onTransportConnected,
		OnDisconnected: m.onTransportDisconnected,
		OnSubscribed:   m.onTransportSubscribed,
		OnPublished:    m.onTransportPublished,
		OnMessage:      m.onTransportMessage,
	}

	tr := m.newTransport(tcfg)

	m.mu.Lock()
	m.tr = tr
	m.state = Connecting
	m.handshakePending = make(map[uint32]struct{})
	m.handshakeFailed = false
	m.mu.Unlock()

	if err := tr.Connect(); err != nil {
		m.mu.Lock()
		m.state = Disconnected
		m.tr = nil
		m.mu.Unlock()
		return err
	}
	return nil
}

// Disconnect initiates a clean MQTT DISCONNECT from any state but
// Disconnected.
func (m *Machine) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Disconnected {
		return agenterr.New(agenterr.DeviceNotReady, "devicestate.Disconnect", "already disconnected")
	}
	if m.tr != nil {
		m.tr.Disconnect(1 * time.Second)
		m.lastFailedCount = m.tr.FailedPublishTotal()
	}
	m.state = Disconnected
	m.tr = nil
	return nil
}

// Poll drives the underlying transport, dispatching whatever events
// arrive (or arrived already) onto the calling goroutine.
func (m *Machine) Poll(timeout time.Duration) {
	m.mu.Lock()
	tr := m.tr
	m.mu.Unlock()
	if tr == nil {
		return
	}
	tr.Poll(timeout)
}

// Publish forwards a steady-state publish (stream_*/set_property/
// unset_property) to the transport, rejecting the call if the device is
// not Connected.
func (m *Machine) Publish(topic string, payload []byte, qos byte) (uint32, error) {
	m.mu.Lock()
	tr := m.tr
	state := m.state
	m.mu.Unlock()
	if state != Connected || tr == nil {
		return 0, agenterr.New(agenterr.DeviceNotReady, "devicestate.Publish", "device is not connected")
	}
	return tr.Publish(topic, payload, qos), nil
}

func (m *Machine) onTransportConnected(sessionPresent bool) {
	m.mu.Lock()
	if m.state != Connecting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	canon := m.registry.CanonicalString()
	if sessionPresent {
		if err := m.cache.CheckIntrospection(canon); err == nil {
			m.transitionConnected(canon)
			return
		}
	}
	m.runHandshake(canon)
}

func (m *Machine) onTransportDisconnected(err error) {
	m.mu.Lock()
	m.state = Disconnected
	if m.tr != nil {
		m.lastFailedCount = m.tr.FailedPublishTotal()
	}
	m.tr = nil
	m.handshakePending = nil
	cb := m.callbacks.OnDisconnect
	m.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// FailedPublishTotal reports the transport's cumulative publish-failure
// count: live while a session is up, or the count captured at the last
// disconnect otherwise.
func (m *Machine) FailedPublishTotal() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tr != nil {
		return m.tr.FailedPublishTotal()
	}
	return m.lastFailedCount
}

func (m *Machine) onTransportMessage(topic string, payload []byte) {
	if m.onMessage != nil {
		m.onMessage(topic, payload)
	}
}

func (m *Machine) onTransportSubscribed(id uint32, returnCode byte) {
	m.mu.Lock()
	_, tracked := m.handshakePending[id]
	m.mu.Unlock()
	if !tracked {
		return
	}
	m.handleHandshakeAck(id, returnCode == 0x80)
}

func (m *Machine) onTransportPublished(id uint32) {
	m.mu.Lock()
	_, tracked := m.handshakePending[id]
	m.mu.Unlock()
	if !tracked {
		if m.onPublishAck != nil {
			m.onPublishAck(id)
		}
		return
	}
	m.handleHandshakeAck(id, false)
}

func (m *Machine) handleHandshakeAck(id uint32, failed bool) {
	m.mu.Lock()
	if m.state != Connecting {
		m.mu.Unlock()
		return
	}
	delete(m.handshakePending, id)
	if failed {
		m.handshakeFailed = true
	}
	remaining := len(m.handshakePending)
	failedNow := m.handshakeFailed
	canon := m.handshakeCanon
	tr := m.tr
	m.mu.Unlock()

	if failedNow {
		m.failHandshake(tr)
		return
	}
	if remaining == 0 && tr != nil && !tr.HasPendingOutgoing() {
		m.transitionConnected(canon)
	}
}

func (m *Machine) failHandshake(tr transport) {
	m.mu.Lock()
	if m.state != Connecting {
		m.mu.Unlock()
		return
	}
	m.state = Disconnected
	m.tr = nil
	cb := m.callbacks.OnDisconnect
	m.mu.Unlock()

	if tr != nil {
		tr.Disconnect(0)
	}
	if cb != nil {
		cb(agenterr.New(agenterr.Internal, "devicestate.handshake", "subscription failed during handshake"))
	}
}

func (m *Machine) transitionConnected(canon string) {
	if err := m.cache.StoreIntrospection(canon); err != nil {
		util.WithField("error", err).Warn("devicestate: failed to persist introspection fingerprint")
	}
	m.mu.Lock()
	m.state = Connected
	cb := m.callbacks.OnConnect
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// runHandshake executes the six-step session setup for a non-resumable
// session, tracking every issued subscribe/publish id until all their
// acks arrive with none reporting failure.
func (m *Machine) runHandshake(canon string) {
	m.mu.Lock()
	tr := m.tr
	m.handshakePending = make(map[uint32]struct{})
	m.handshakeFailed = false
	m.handshakeCanon = canon
	m.mu.Unlock()

	track := func(id uint32) {
		m.mu.Lock()
		m.handshakePending[id] = struct{}{}
		m.mu.Unlock()
	}

	track(tr.Subscribe(ConsumerPropertiesTopic(m.realm, m.deviceID), 2))

	for iface := range m.registry.All() {
		if iface.Ownership == schema.OwnershipServer {
			track(tr.Subscribe(ServerWildcardTopic(m.realm, m.deviceID, iface.Name), 2))
		}
	}

	track(tr.Publish(DeviceBaseTopic(m.realm, m.deviceID), []byte(canon), 2))
	track(tr.Publish(EmptyCacheTopic(m.realm, m.deviceID), []byte("1"), 2))

	m.replayCachedProperties(tr, track)
	m.publishPurgeList(tr, track)
}

// replayCachedProperties publishes every device-owned cache entry still
// recognized by the current introspection, and drops (without
// publishing) any entry whose interface is gone or whose major version
// has moved on.
func (m *Machine) replayCachedProperties(tr transport, track func(uint32)) {
	for key := range m.cache.Iterate() {
		iface, err := m.registry.Get(key.Interface)
		if err != nil {
			if err := m.cache.Delete(key.Interface, key.Path); err != nil {
				util.WithField("error", err).Warn("devicestate: failed to drop stale cached property")
			}
			continue
		}
		mapping, err := schema.FindMapping(iface, key.Path)
		if err != nil {
			m.cache.Delete(key.Interface, key.Path)
			continue
		}

		major, v, err := m.cache.Load(key.Interface, key.Path, mapping.Type)
		if err != nil {
			util.WithFields(map[string]interface{}{"interface": key.Interface, "path": key.Path, "error": err}).
				Warn("devicestate: failed to load cached property for replay")
			continue
		}
		if major != iface.Major {
			m.cache.Delete(key.Interface, key.Path)
			continue
		}
		if iface.Ownership != schema.OwnershipDevice {
			continue
		}

		data, err := bsoncodec.EncodeIndividual(v, nil)
		if err != nil {
			util.WithField("error", err).Warn("devicestate: failed to encode replayed property")
			continue
		}
		topic := DataTopic(m.realm, m.deviceID, key.Interface, key.Path)
		track(tr.Publish(topic, data, 2))
	}
}

// publishPurgeList tells the platform which device-owned properties
// remain in the cache after replay, so it can delete anything stale on
// its side.
func (m *Machine) publishPurgeList(tr transport, track func(uint32)) {
	var entries []string
	for key := range m.cache.Iterate() {
		iface, err := m.registry.Get(key.Interface)
		if err != nil || iface.Ownership != schema.OwnershipDevice {
			continue
		}
		entries = append(entries, key.String())
	}

	payload, err := EncodePropertyList(entries)
	if err != nil {
		util.WithField("error", err).Warn("devicestate: failed to encode purge-properties payload")
		return
	}
	track(tr.Publish(PurgePropertiesTopic(m.realm, m.deviceID), payload, 2))
}
