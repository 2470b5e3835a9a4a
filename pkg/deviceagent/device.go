// Package device is the public entry point: it wires together
// introspection, schema validation, BSON encoding, the property cache
// and the devicestate lifecycle machine into the operations an embedder
// actually calls — New/Connect/Disconnect/Poll, the four publish
// operations, and inbound dispatch to user callbacks.
package device

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/edgelink/device-agent/pkg/agenterr"
	"github.com/edgelink/device-agent/pkg/bsoncodec"
	"github.com/edgelink/device-agent/pkg/credentials"
	"github.com/edgelink/device-agent/pkg/devicestate"
	"github.com/edgelink/device-agent/pkg/introspection"
	"github.com/edgelink/device-agent/pkg/propertycache"
	"github.com/edgelink/device-agent/pkg/schema"
	"github.com/edgelink/device-agent/pkg/sessionlog"
	"github.com/edgelink/device-agent/pkg/util"
)

// ReconnectBackoff bounds the delay an embedder's own reconnect loop
// should use between Connect attempts after a disconnect; devicestate
// itself never retries on its own — it owns sequencing, not policy.
type ReconnectBackoff struct {
	Min time.Duration
	Max time.Duration
}

// Callbacks are the user-facing notifications a Device raises.
type Callbacks struct {
	Connect    func()
	Disconnect func(err error)

	DatastreamIndividual func(iface, path string, v schema.Individual, ts *time.Time)
	DatastreamObject     func(iface, path string, entries []schema.ObjectEntry, ts *time.Time)
	PropertySet          func(iface, path string, v schema.Individual, ts *time.Time)
	PropertyUnset        func(iface, path string)
}

// Config configures one Device.
type Config struct {
	RealmName           string
	DeviceID            string
	CredentialSecret    string
	PairingBaseURL      string
	AllowInsecureBroker bool

	HTTPTimeout           time.Duration
	MQTTConnectionTimeout time.Duration
	MQTTPollTimeout       time.Duration
	CleanSession          bool
	ReconnectBackoff      ReconnectBackoff

	// PropertyCacheAddr is the address (host:port, or "unix://" path) of
	// the Redis instance backing the device-local property cache.
	PropertyCacheAddr string
	PropertyCacheDB   int

	Interfaces []schema.Interface
	Callbacks  Callbacks
	UserData   any
}

type pendingAck struct {
	kind  string // "set" or "unset"
	iface string
	path  string
	major int
	value schema.Individual
}

// Device is a fully assembled device instance: one introspection registry,
// one property cache connection, and the lifecycle machine driving the
// MQTT session, bound together behind the four steady-state operations.
type Device struct {
	realm    string
	deviceID string

	registry  *introspection.Registry
	cache     *propertycache.Store
	credStore *credentials.Store
	machine   *devicestate.Machine

	pollTimeout time.Duration
	backoff     ReconnectBackoff

	callbacks Callbacks
	userData  any

	mu          sync.Mutex
	pendingAcks map[uint32]pendingAck
}

// New validates every interface and assembles a Device in the Disconnected
// state. Returns agenterr.InvalidParam on a malformed interface definition
// or a duplicate interface name.
func New(cfg Config) (*Device, error) {
	registry := introspection.New()
	for i := range cfg.Interfaces {
		iface, err := schema.NewInterface(cfg.Interfaces[i])
		if err != nil {
			return nil, err
		}
		if err := registry.Add(iface); err != nil {
			return nil, agenterr.New(agenterr.InvalidParam, "device.New", "duplicate interface "+iface.Name)
		}
	}

	cache := propertycache.Open(cfg.PropertyCacheAddr, cfg.PropertyCacheDB)
	credStore := credentials.NewStore()
	pairing := credentials.NewPairingClient(cfg.PairingBaseURL, cfg.CredentialSecret, cfg.AllowInsecureBroker)

	d := &Device{
		realm:       cfg.RealmName,
		deviceID:    cfg.DeviceID,
		registry:    registry,
		cache:       cache,
		credStore:   credStore,
		pollTimeout: cfg.MQTTPollTimeout,
		backoff:     cfg.ReconnectBackoff,
		callbacks:   cfg.Callbacks,
		userData:    cfg.UserData,
		pendingAcks: make(map[uint32]pendingAck),
	}

	d.machine = devicestate.New(devicestate.Config{
		RealmName:      cfg.RealmName,
		DeviceID:       cfg.DeviceID,
		CleanSession:   cfg.CleanSession,
		ConnectTimeout: cfg.MQTTConnectionTimeout,
		HTTPTimeout:    cfg.HTTPTimeout,
		Registry:       registry,
		Cache:          cache,
		Credentials:    credStore,
		Pairing:        pairing,
		Callbacks: devicestate.Callbacks{
			OnConnect:    d.handleConnect,
			OnDisconnect: d.handleDisconnect,
		},
		OnMessage:    d.handleMessage,
		OnPublishAck: d.handlePublishAck,
	})
	return d, nil
}

// ReconnectBackoff returns the configured reconnect policy, for an
// embedder's own reconnect loop to consult; Device does not reconnect on
// its own.
func (d *Device) ReconnectBackoff() ReconnectBackoff { return d.backoff }

// UserData returns the opaque value passed in Config, unchanged.
func (d *Device) UserData() any { return d.userData }

// State reports the device's current lifecycle state.
func (d *Device) State() devicestate.State { return d.machine.State() }

// Connect acquires credentials if needed, resolves the broker, and starts
// the MQTT session handshake.
func (d *Device) Connect(ctx context.Context) error {
	return d.machine.Connect(ctx)
}

// Disconnect initiates a clean MQTT disconnect.
func (d *Device) Disconnect() error {
	return d.machine.Disconnect()
}

// Poll drives the underlying transport once, dispatching any events that
// have arrived (or already arrived) onto the calling goroutine. Callers
// own the poll loop; every state transition and callback runs on the
// goroutine that calls Poll.
func (d *Device) Poll() {
	d.machine.Poll(d.pollTimeout)
}

// Destroy disconnects if still connected and releases the property cache
// connection. The Device must not be used afterward.
func (d *Device) Destroy() error {
	if d.machine.State() != devicestate.Disconnected {
		d.machine.Disconnect()
	}
	return d.cache.Close()
}

// StreamIndividual publishes one value on an individual-aggregation
// datastream interface.
func (d *Device) StreamIndividual(ifaceName, path string, v schema.Individual, ts *time.Time) error {
	iface, err := d.registry.Get(ifaceName)
	if err != nil {
		return err
	}
	if iface.Kind != schema.KindDatastream || iface.Aggregation != schema.AggregationIndividual {
		return agenterr.New(agenterr.MappingIncompatible, "device.StreamIndividual",
			"interface "+ifaceName+" is not an individual-aggregation datastream")
	}
	mapping, err := schema.FindMapping(iface, path)
	if err != nil {
		return err
	}
	if err := schema.Validate(mapping, v); err != nil {
		return err
	}

	var tsPtr *time.Time
	if mapping.ExplicitTimestamp {
		tsPtr = ts
	}

	data, err := bsoncodec.EncodeIndividual(v, tsPtr)
	if err != nil {
		return err
	}

	topic := devicestate.DataTopic(d.realm, d.deviceID, ifaceName, path)
	_, err = d.machine.Publish(topic, data, mapping.Reliability.QoS())
	return err
}

// StreamAggregated publishes an object-aggregation datastream: one BSON
// subdocument under prefix holding every entry's value.
func (d *Device) StreamAggregated(ifaceName, prefix string, obj schema.Object, ts *time.Time) error {
	iface, err := d.registry.Get(ifaceName)
	if err != nil {
		return err
	}
	if iface.Kind != schema.KindDatastream || iface.Aggregation != schema.AggregationObject {
		return agenterr.New(agenterr.MappingIncompatible, "device.StreamAggregated",
			"interface "+ifaceName+" is not an object-aggregation datastream")
	}
	if err := schema.ValidateObject(iface, prefix, obj); err != nil {
		return err
	}

	data, err := bsoncodec.EncodeObject(obj, ts)
	if err != nil {
		return err
	}

	topic := devicestate.DataTopic(d.realm, d.deviceID, ifaceName, prefix)
	_, err = d.machine.Publish(topic, data, objectQoS(iface, prefix, obj))
	return err
}

// objectQoS uses the reliability declared on the object's own mappings;
// every mapping under one aggregated interface shares a reliability in
// practice, so the first resolvable entry decides the publish's QoS.
func objectQoS(iface *schema.Interface, prefix string, obj schema.Object) byte {
	for _, entry := range obj.Entries {
		if m, err := schema.FindMapping(iface, prefix+"/"+entry.Endpoint); err == nil {
			return m.Reliability.QoS()
		}
	}
	return 0
}

// SetProperty publishes a device-owned property value. The property cache
// is updated once the publish is acknowledged, not before — a disconnect
// between the publish and its ack leaves the cache and the platform in
// agreement rather than the cache running ahead of what was actually sent.
func (d *Device) SetProperty(ifaceName, path string, v schema.Individual) error {
	iface, err := d.registry.Get(ifaceName)
	if err != nil {
		return err
	}
	if iface.Kind != schema.KindProperties || iface.Ownership != schema.OwnershipDevice {
		return agenterr.New(agenterr.MappingIncompatible, "device.SetProperty",
			"interface "+ifaceName+" is not a device-owned properties interface")
	}
	mapping, err := schema.FindMapping(iface, path)
	if err != nil {
		return err
	}
	if err := schema.Validate(mapping, v); err != nil {
		return err
	}

	data, err := bsoncodec.EncodeIndividual(v, nil)
	if err != nil {
		return err
	}

	// d.mu is held across the publish so the ack, which also takes d.mu on
	// the poll goroutine, cannot be dispatched before the id is recorded.
	topic := devicestate.DataTopic(d.realm, d.deviceID, ifaceName, path)
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.machine.Publish(topic, data, 2)
	if err != nil {
		return err
	}
	d.pendingAcks[id] = pendingAck{kind: "set", iface: ifaceName, path: path, major: iface.Major, value: v}
	return nil
}

// UnsetProperty publishes an empty payload to clear a device-owned
// property. Allowed even if the path was never set; the original SDK
// treats this as a no-op publish rather than an error.
func (d *Device) UnsetProperty(ifaceName, path string) error {
	iface, err := d.registry.Get(ifaceName)
	if err != nil {
		return err
	}
	if iface.Kind != schema.KindProperties || iface.Ownership != schema.OwnershipDevice {
		return agenterr.New(agenterr.MappingIncompatible, "device.UnsetProperty",
			"interface "+ifaceName+" is not a device-owned properties interface")
	}
	mapping, err := schema.FindMapping(iface, path)
	if err != nil {
		return err
	}
	if !mapping.AllowUnset {
		return agenterr.New(agenterr.InvalidParam, "device.UnsetProperty",
			"mapping "+path+" on "+ifaceName+" does not allow unset")
	}

	topic := devicestate.DataTopic(d.realm, d.deviceID, ifaceName, path)
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.machine.Publish(topic, nil, 2)
	if err != nil {
		return err
	}
	d.pendingAcks[id] = pendingAck{kind: "unset", iface: ifaceName, path: path}
	return nil
}

func (d *Device) handleConnect() {
	sessionlog.Log(sessionlog.NewEvent(d.realm, d.deviceID, sessionlog.OpConnect).WithSuccess())
	if d.callbacks.Connect != nil {
		d.callbacks.Connect()
	}
}

// handleDisconnect renews the device's credentials on a TLS-layer
// connection failure before forwarding to the user callback, so the next
// Connect acquires a fresh certificate instead of retrying the one that
// just failed its handshake.
func (d *Device) handleDisconnect(err error) {
	event := sessionlog.NewEvent(d.realm, d.deviceID, sessionlog.OpDisconnect).
		WithFailedPublishes(d.machine.FailedPublishTotal())
	if err != nil {
		event.WithError(err)
	} else {
		event.WithSuccess()
	}
	sessionlog.Log(event)

	if err != nil && looksLikeTLSFailure(err) {
		d.credStore.Clear()
	}
	if d.callbacks.Disconnect != nil {
		d.callbacks.Disconnect(err)
	}
}

func looksLikeTLSFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "tls") || strings.Contains(msg, "certificate") || strings.Contains(msg, "x509")
}

func (d *Device) handlePublishAck(id uint32) {
	d.mu.Lock()
	p, ok := d.pendingAcks[id]
	if ok {
		delete(d.pendingAcks, id)
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	switch p.kind {
	case "set":
		if err := d.cache.Store(p.iface, p.path, p.major, p.value); err != nil {
			util.WithFields(map[string]interface{}{"interface": p.iface, "path": p.path, "error": err}).
				Warn("device: failed to write-through acknowledged property")
		}
	case "unset":
		if err := d.cache.Delete(p.iface, p.path); err != nil {
			util.WithFields(map[string]interface{}{"interface": p.iface, "path": p.path, "error": err}).
				Warn("device: failed to delete-through acknowledged property unset")
		}
	}
}

// handleMessage is the single inbound entrypoint devicestate hands every
// MQTT message to once the session is established: control-topic messages
// are demuxed here, everything else is parsed as a data-topic publish and
// routed by interface kind/aggregation to the matching user callback.
func (d *Device) handleMessage(topic string, payload []byte) {
	if topic == devicestate.ConsumerPropertiesTopic(d.realm, d.deviceID) {
		d.handleConsumerProperties(payload)
		return
	}

	ifaceName, path, ok := devicestate.ParseDataTopic(topic, d.realm, d.deviceID)
	if !ok {
		util.WithField("topic", topic).Warn("device: dropping message on an unrecognized topic")
		return
	}
	iface, err := d.registry.Get(ifaceName)
	if err != nil {
		util.WithField("interface", ifaceName).Warn("device: dropping message for an unregistered interface")
		return
	}

	switch {
	case iface.Kind == schema.KindProperties && len(payload) == 0:
		d.handlePropertyUnset(iface, path)
	case iface.Kind == schema.KindProperties:
		d.handlePropertySet(iface, path, payload)
	case iface.Aggregation == schema.AggregationObject:
		d.handleDatastreamObject(iface, path, payload)
	default:
		d.handleDatastreamIndividual(iface, path, payload)
	}
}

func (d *Device) handlePropertySet(iface *schema.Interface, path string, payload []byte) {
	mapping, err := schema.FindMapping(iface, path)
	if err != nil {
		util.WithFields(map[string]interface{}{"interface": iface.Name, "path": path, "error": err}).
			Warn("device: dropping server property set for an unknown path")
		return
	}
	v, ts, err := bsoncodec.DecodeIndividual(payload, mapping.Type)
	if err != nil {
		util.WithFields(map[string]interface{}{"interface": iface.Name, "path": path, "error": err}).
			Warn("device: failed to decode inbound property")
		return
	}
	if err := d.cache.Store(iface.Name, path, iface.Major, v); err != nil {
		util.WithFields(map[string]interface{}{"interface": iface.Name, "path": path, "error": err}).
			Warn("device: failed to cache inbound property")
	}
	if d.callbacks.PropertySet != nil {
		d.callbacks.PropertySet(iface.Name, path, v, ts)
	}
}

func (d *Device) handlePropertyUnset(iface *schema.Interface, path string) {
	if err := d.cache.Delete(iface.Name, path); err != nil {
		util.WithFields(map[string]interface{}{"interface": iface.Name, "path": path, "error": err}).
			Warn("device: failed to remove unset property from the cache")
	}
	if d.callbacks.PropertyUnset != nil {
		d.callbacks.PropertyUnset(iface.Name, path)
	}
}

func (d *Device) handleDatastreamIndividual(iface *schema.Interface, path string, payload []byte) {
	mapping, err := schema.FindMapping(iface, path)
	if err != nil {
		util.WithFields(map[string]interface{}{"interface": iface.Name, "path": path, "error": err}).
			Warn("device: dropping datastream message for an unknown path")
		return
	}
	v, ts, err := bsoncodec.DecodeIndividual(payload, mapping.Type)
	if err != nil {
		util.WithFields(map[string]interface{}{"interface": iface.Name, "path": path, "error": err}).
			Warn("device: failed to decode inbound datastream value")
		return
	}
	if d.callbacks.DatastreamIndividual != nil {
		d.callbacks.DatastreamIndividual(iface.Name, path, v, ts)
	}
}

func (d *Device) handleDatastreamObject(iface *schema.Interface, prefix string, payload []byte) {
	obj, ts, err := bsoncodec.DecodeObject(payload, iface, prefix)
	if err != nil {
		util.WithFields(map[string]interface{}{"interface": iface.Name, "path": prefix, "error": err}).
			Warn("device: failed to decode inbound aggregated datastream")
		return
	}
	if d.callbacks.DatastreamObject != nil {
		d.callbacks.DatastreamObject(iface.Name, prefix, obj.Entries, ts)
	}
}

// handleConsumerProperties applies the platform's authoritative
// server-owned property list: any cached server-owned entry absent from
// the list is stale and is dropped.
func (d *Device) handleConsumerProperties(payload []byte) {
	entries, err := devicestate.DecodePropertyList(payload)
	if err != nil {
		util.WithField("error", err).Warn("device: failed to decode consumer properties control message")
		return
	}
	authoritative := make(map[string]bool, len(entries))
	for _, e := range entries {
		authoritative[e] = true
	}

	for key := range d.cache.Iterate() {
		iface, err := d.registry.Get(key.Interface)
		if err != nil || iface.Ownership != schema.OwnershipServer {
			continue
		}
		if !authoritative[key.String()] {
			if err := d.cache.Delete(key.Interface, key.Path); err != nil {
				util.WithFields(map[string]interface{}{"interface": key.Interface, "path": key.Path, "error": err}).
					Warn("device: failed to purge a stale server property")
			}
		}
	}
}
