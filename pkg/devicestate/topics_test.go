package devicestate

import "testing"

func TestTopicLayout(t *testing.T) {
	const realm, device = "myrealm", "device01"

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"base", DeviceBaseTopic(realm, device), "myrealm/device01"},
		{"control base", ControlBaseTopic(realm, device), "myrealm/device01/control"},
		{"consumer properties", ConsumerPropertiesTopic(realm, device), "myrealm/device01/control/consumer/properties"},
		{"empty cache", EmptyCacheTopic(realm, device), "myrealm/device01/control/emptyCache"},
		{"purge properties", PurgePropertiesTopic(realm, device), "myrealm/device01/control/producer/properties"},
		{"data", DataTopic(realm, device, "org.example.Sensors", "/temperature"), "myrealm/device01/org.example.Sensors/temperature"},
		{"server wildcard", ServerWildcardTopic(realm, device, "org.example.Actuators"), "myrealm/device01/org.example.Actuators/#"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s = %q, want %q", tc.name, tc.got, tc.want)
		}
	}
}

func TestParseDataTopic(t *testing.T) {
	iface, path, ok := ParseDataTopic("myrealm/device01/org.example.Sensors/temperature/outdoor", "myrealm", "device01")
	if !ok {
		t.Fatal("expected ok=true for a topic under the device base")
	}
	if iface != "org.example.Sensors" {
		t.Errorf("iface = %q, want org.example.Sensors", iface)
	}
	if path != "/temperature/outdoor" {
		t.Errorf("path = %q, want /temperature/outdoor", path)
	}
}

func TestParseDataTopicRejectsForeignTopic(t *testing.T) {
	if _, _, ok := ParseDataTopic("otherrealm/other/iface/x", "myrealm", "device01"); ok {
		t.Error("expected ok=false for a topic outside the device base")
	}
}

func TestParseDataTopicRejectsBareBase(t *testing.T) {
	if _, _, ok := ParseDataTopic("myrealm/device01", "myrealm", "device01"); ok {
		t.Error("expected ok=false for the bare device base with no interface suffix")
	}
}
