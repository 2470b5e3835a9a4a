package bsoncodec

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/edgelink/device-agent/pkg/agenterr"
	"github.com/edgelink/device-agent/pkg/schema"
)

// propertyEntry is the shape stored in the property cache: the interface
// major version active when the value was written, plus the value
// itself. Keeping the major alongside the value lets the handshake replay
// compare it with the registered interface's current major and drop an
// entry whose major version has moved on.
type propertyEntry struct {
	Major int `bson:"m"`
	V     any `bson:"v"`
}

// EncodePropertyEntry serializes the (major, individual) tuple the
// property cache persists for one (interface, path).
func EncodePropertyEntry(major int, v schema.Individual) ([]byte, error) {
	raw, err := toBSONValue(v)
	if err != nil {
		return nil, err
	}
	data, err := bson.Marshal(propertyEntry{Major: major, V: raw})
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BsonError, "bsoncodec.EncodePropertyEntry", err)
	}
	return data, nil
}

// DecodePropertyEntry is the inverse of EncodePropertyEntry.
func DecodePropertyEntry(data []byte, want schema.PrimitiveType) (major int, v schema.Individual, err error) {
	var entry propertyEntry
	if err := bson.Unmarshal(data, &entry); err != nil {
		return 0, schema.Individual{}, agenterr.Wrap(agenterr.BsonError, "bsoncodec.DecodePropertyEntry", err)
	}
	v, err = fromBSONValue(want, entry.V)
	if err != nil {
		return 0, schema.Individual{}, err
	}
	return entry.Major, v, nil
}
