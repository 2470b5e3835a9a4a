package devicestate

import "strings"

// DeviceBaseTopic is "$R/$D": the topic introspection is published to and
// the prefix every data/control topic for this device extends.
func DeviceBaseTopic(realm, deviceID string) string {
	return realm + "/" + deviceID
}

// ControlBaseTopic is "$R/$D/control".
func ControlBaseTopic(realm, deviceID string) string {
	return DeviceBaseTopic(realm, deviceID) + "/control"
}

// ConsumerPropertiesTopic is the control topic the device subscribes to
// for the platform's authoritative server-owned property set.
func ConsumerPropertiesTopic(realm, deviceID string) string {
	return ControlBaseTopic(realm, deviceID) + "/consumer/properties"
}

// EmptyCacheTopic is where the device publishes "1" during handshake to
// tell the platform to discard anything it has cached for this device.
func EmptyCacheTopic(realm, deviceID string) string {
	return ControlBaseTopic(realm, deviceID) + "/emptyCache"
}

// PurgePropertiesTopic is where the device publishes its encoded
// device-owned property list during handshake.
func PurgePropertiesTopic(realm, deviceID string) string {
	return ControlBaseTopic(realm, deviceID) + "/producer/properties"
}

// DataTopic is "$R/$D/$I/$P": where one mapping's value is published or
// received. path already carries its own leading slash.
func DataTopic(realm, deviceID, iface, path string) string {
	return DeviceBaseTopic(realm, deviceID) + "/" + iface + path
}

// ServerWildcardTopic is the subscription filter covering every path
// under a server-owned interface.
func ServerWildcardTopic(realm, deviceID, iface string) string {
	return DeviceBaseTopic(realm, deviceID) + "/" + iface + "/#"
}

// ParseDataTopic splits an inbound topic under this device's base into
// its interface name and mapping path. ok is false for any topic that
// isn't under $R/$D (control topics are matched separately by the caller
// before this is tried).
func ParseDataTopic(topic, realm, deviceID string) (iface, path string, ok bool) {
	prefix := DeviceBaseTopic(realm, deviceID) + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(topic, prefix)
	if rest == "" {
		return "", "", false
	}
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return rest, "", true
	}
	return rest[:idx], rest[idx:], true
}
