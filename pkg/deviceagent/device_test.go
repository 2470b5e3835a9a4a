package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edgelink/device-agent/pkg/agenterr"
	"github.com/edgelink/device-agent/pkg/schema"
)

func individualDatastream(name string) schema.Interface {
	return schema.Interface{
		Name: name, Major: 1, Minor: 0,
		Ownership:   schema.OwnershipServer,
		Aggregation: schema.AggregationIndividual,
		Kind:        schema.KindDatastream,
		Mappings: []schema.Mapping{
			{PathTemplate: "/value", Type: schema.Integer32, Reliability: schema.ReliabilityGuaranteed},
		},
	}
}

func objectDatastream(name string) schema.Interface {
	return schema.Interface{
		Name: name, Major: 1, Minor: 0,
		Ownership:   schema.OwnershipDevice,
		Aggregation: schema.AggregationObject,
		Kind:        schema.KindDatastream,
		Mappings: []schema.Mapping{
			{PathTemplate: "/sensor/x", Type: schema.Integer32, Reliability: schema.ReliabilityGuaranteed},
			{PathTemplate: "/sensor/y", Type: schema.Integer32, Reliability: schema.ReliabilityGuaranteed},
		},
	}
}

func deviceProperty(name string, allowUnset bool) schema.Interface {
	return schema.Interface{
		Name: name, Major: 1, Minor: 0,
		Ownership: schema.OwnershipDevice,
		Kind:      schema.KindProperties,
		Mappings: []schema.Mapping{
			{PathTemplate: "/enabled", Type: schema.Boolean, AllowUnset: allowUnset},
		},
	}
}

func serverProperty(name string) schema.Interface {
	return schema.Interface{
		Name: name, Major: 1, Minor: 0,
		Ownership: schema.OwnershipServer,
		Kind:      schema.KindProperties,
		Mappings: []schema.Mapping{
			{PathTemplate: "/enabled", Type: schema.Boolean, AllowUnset: true},
		},
	}
}

func newTestConfig(ifaces ...schema.Interface) Config {
	return Config{
		RealmName:         "realm",
		DeviceID:          "device01",
		PropertyCacheAddr: "127.0.0.1:0",
		Interfaces:        ifaces,
	}
}

func TestNewRejectsDuplicateInterfaceName(t *testing.T) {
	iface := individualDatastream("org.example.Sensors")
	_, err := New(newTestConfig(iface, iface))
	if !agenterr.Is(err, agenterr.InvalidParam) {
		t.Fatalf("New with duplicate interfaces = %v, want InvalidParam", err)
	}
}

func TestNewRejectsInvalidInterface(t *testing.T) {
	bad := individualDatastream("")
	if _, err := New(newTestConfig(bad)); err == nil {
		t.Fatal("expected an error for an empty interface name")
	}
}

func TestStreamIndividualRejectsWrongKind(t *testing.T) {
	d, err := New(newTestConfig(deviceProperty("org.example.Settings", true)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = d.StreamIndividual("org.example.Settings", "/enabled", schema.Bool(true), nil)
	if !agenterr.Is(err, agenterr.MappingIncompatible) {
		t.Fatalf("StreamIndividual against a properties interface = %v, want MappingIncompatible", err)
	}
}

func TestStreamAggregatedRejectsNonObjectInterface(t *testing.T) {
	d, err := New(newTestConfig(individualDatastream("org.example.Sensors")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = d.StreamAggregated("org.example.Sensors", "/value", schema.Object{}, nil)
	if !agenterr.Is(err, agenterr.MappingIncompatible) {
		t.Fatalf("StreamAggregated against an individual interface = %v, want MappingIncompatible", err)
	}
}

func TestSetPropertyRejectsNonDeviceOwnedInterface(t *testing.T) {
	d, err := New(newTestConfig(serverProperty("org.example.Remote")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = d.SetProperty("org.example.Remote", "/enabled", schema.Bool(true))
	if !agenterr.Is(err, agenterr.MappingIncompatible) {
		t.Fatalf("SetProperty against a server-owned interface = %v, want MappingIncompatible", err)
	}
}

func TestUnsetPropertyRejectsWhenNotAllowed(t *testing.T) {
	d, err := New(newTestConfig(deviceProperty("org.example.Settings", false)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = d.UnsetProperty("org.example.Settings", "/enabled")
	if !agenterr.Is(err, agenterr.InvalidParam) {
		t.Fatalf("UnsetProperty on a no-unset mapping = %v, want InvalidParam", err)
	}
}

func TestPublishOperationsRejectedWhenNotConnected(t *testing.T) {
	d, err := New(newTestConfig(individualDatastream("org.example.Sensors"), deviceProperty("org.example.Settings", true)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := d.StreamIndividual("org.example.Sensors", "/value", schema.Int32(1), nil); !agenterr.Is(err, agenterr.DeviceNotReady) {
		t.Errorf("StreamIndividual while disconnected = %v, want DeviceNotReady", err)
	}
	if err := d.SetProperty("org.example.Settings", "/enabled", schema.Bool(true)); !agenterr.Is(err, agenterr.DeviceNotReady) {
		t.Errorf("SetProperty while disconnected = %v, want DeviceNotReady", err)
	}
	if err := d.UnsetProperty("org.example.Settings", "/enabled"); !agenterr.Is(err, agenterr.DeviceNotReady) {
		t.Errorf("UnsetProperty while disconnected = %v, want DeviceNotReady", err)
	}
}

func TestHandleMessageRoutesDatastreamIndividual(t *testing.T) {
	var gotIface, gotPath string
	var gotValue schema.Individual

	cfg := newTestConfig(individualDatastream("org.example.Sensors"))
	cfg.Callbacks.DatastreamIndividual = func(iface, path string, v schema.Individual, ts *time.Time) {
		gotIface, gotPath, gotValue = iface, path, v
	}
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := encodeIndividualForTest(t, schema.Int32(42))
	d.handleMessage("realm/device01/org.example.Sensors/value", payload)

	if gotIface != "org.example.Sensors" || gotPath != "/value" {
		t.Fatalf("callback got (%q, %q), want (org.example.Sensors, /value)", gotIface, gotPath)
	}
	if gotValue.Raw() != int32(42) {
		t.Errorf("callback value = %v, want 42", gotValue.Raw())
	}
}

func TestHandleMessageRoutesDatastreamObject(t *testing.T) {
	var gotEntries []schema.ObjectEntry

	cfg := newTestConfig(objectDatastream("org.example.Multi"))
	cfg.Callbacks.DatastreamObject = func(iface, path string, entries []schema.ObjectEntry, ts *time.Time) {
		gotEntries = entries
	}
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	obj := schema.Object{Entries: []schema.ObjectEntry{
		{Endpoint: "x", Value: schema.Int32(1)},
		{Endpoint: "y", Value: schema.Int32(2)},
	}}
	payload := encodeObjectForTest(t, obj)
	d.handleMessage("realm/device01/org.example.Multi/sensor", payload)

	if len(gotEntries) != 2 {
		t.Fatalf("got %d entries, want 2", len(gotEntries))
	}
}

func TestHandleMessageDropsUnknownInterface(t *testing.T) {
	d, err := New(newTestConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Must not panic on an interface the registry never heard of.
	d.handleMessage("realm/device01/org.example.Ghost/value", []byte{})
}

func TestHandleMessageDropsUnparsableTopic(t *testing.T) {
	d, err := New(newTestConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.handleMessage("otherrealm/otherdevice/x", []byte{})
}

func TestLooksLikeTLSFailure(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("remote error: tls: bad certificate"), true},
		{errors.New("x509: certificate signed by unknown authority"), true},
		{errors.New("connection refused"), false},
		{errors.New("i/o timeout"), false},
	}
	for _, tc := range cases {
		if got := looksLikeTLSFailure(tc.err); got != tc.want {
			t.Errorf("looksLikeTLSFailure(%q) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestHandleDisconnectClearsCredentialsOnTLSFailure(t *testing.T) {
	d, err := New(newTestConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.credStore.Install(mustKeyPair(t), []byte(testSelfSignedPEM))
	if !d.credStore.Ready() {
		t.Fatal("expected credentials to be ready before the disconnect")
	}

	d.handleDisconnect(errors.New("remote error: tls: bad certificate"))

	if d.credStore.Ready() {
		t.Error("expected credentials to be cleared after a TLS-flavored disconnect error")
	}
}

func TestHandleDisconnectKeepsCredentialsOnOrdinaryError(t *testing.T) {
	d, err := New(newTestConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.credStore.Install(mustKeyPair(t), []byte(testSelfSignedPEM))

	d.handleDisconnect(errors.New("connection reset by peer"))

	if !d.credStore.Ready() {
		t.Error("expected credentials to survive a non-TLS disconnect error")
	}
}

func TestConnectContextIsRespected(t *testing.T) {
	d, err := New(newTestConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// With no pairing server reachable and a canceled context, Connect
	// must fail rather than hang.
	if err := d.Connect(ctx); err == nil {
		t.Error("expected Connect to fail with no reachable pairing service")
	}
}
