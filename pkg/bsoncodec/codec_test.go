package bsoncodec

import (
	"testing"
	"time"

	"github.com/edgelink/device-agent/pkg/agenterr"
	"github.com/edgelink/device-agent/pkg/schema"
)

func TestEncodeDecodeScalarRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		v    schema.Individual
		typ  schema.PrimitiveType
	}{
		{"int32", schema.Int32(42), schema.Integer32},
		{"int64", schema.Int64(1 << 40), schema.Integer64},
		{"double", schema.Float64(3.5), schema.Double},
		{"bool", schema.Bool(true), schema.Boolean},
		{"string", schema.Str("hello"), schema.String},
		{"bytes", schema.Blob([]byte{0x01, 0x02, 0x03}), schema.Bytes},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeIndividual(tt.v, nil)
			if err != nil {
				t.Fatalf("EncodeIndividual: %v", err)
			}
			got, ts, err := DecodeIndividual(data, tt.typ)
			if err != nil {
				t.Fatalf("DecodeIndividual: %v", err)
			}
			if ts != nil {
				t.Errorf("expected nil timestamp, got %v", ts)
			}
			if got.Type() != tt.typ {
				t.Errorf("Type() = %v, want %v", got.Type(), tt.typ)
			}
		})
	}
}

func TestEncodeDecodeDateTimeWithTimestamp(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	ts := now.Add(time.Hour)

	data, err := EncodeIndividual(schema.Time(now), &ts)
	if err != nil {
		t.Fatalf("EncodeIndividual: %v", err)
	}
	got, gotTS, err := DecodeIndividual(data, schema.DateTime)
	if err != nil {
		t.Fatalf("DecodeIndividual: %v", err)
	}
	if gotTS == nil || !gotTS.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", gotTS, ts)
	}
	if decoded, ok := got.Raw().(time.Time); !ok || !decoded.Equal(now) {
		t.Errorf("value = %v, want %v", got.Raw(), now)
	}
}

func TestEncodeDecodeArrayRoundTrip(t *testing.T) {
	data, err := EncodeIndividual(schema.Int32Array([]int32{1, 2, 3}), nil)
	if err != nil {
		t.Fatalf("EncodeIndividual: %v", err)
	}
	got, _, err := DecodeIndividual(data, schema.Integer32Array)
	if err != nil {
		t.Fatalf("DecodeIndividual: %v", err)
	}
	arr, ok := got.Raw().([]int32)
	if !ok || len(arr) != 3 || arr[1] != 2 {
		t.Errorf("got %v", got.Raw())
	}
}

func TestDecodeWrongTypeIsBsonError(t *testing.T) {
	data, _ := EncodeIndividual(schema.Str("not a number"), nil)
	_, _, err := DecodeIndividual(data, schema.Integer32)
	if !agenterr.Is(err, agenterr.BsonError) {
		t.Errorf("expected BsonError, got %v", err)
	}
}

func TestEncodeDecodeObjectRoundTrip(t *testing.T) {
	iface, err := schema.NewInterface(schema.Interface{
		Name:        "org.example.Gps",
		Major:       1,
		Ownership:   schema.OwnershipDevice,
		Kind:        schema.KindDatastream,
		Aggregation: schema.AggregationObject,
		Mappings: []schema.Mapping{
			{PathTemplate: "/position/latitude", Type: schema.Double},
			{PathTemplate: "/position/longitude", Type: schema.Double},
		},
	})
	if err != nil {
		t.Fatalf("NewInterface: %v", err)
	}

	obj := schema.Object{Entries: []schema.ObjectEntry{
		{Endpoint: "latitude", Value: schema.Float64(45.0)},
		{Endpoint: "longitude", Value: schema.Float64(9.0)},
	}}

	data, err := EncodeObject(obj, nil)
	if err != nil {
		t.Fatalf("EncodeObject: %v", err)
	}

	got, _, err := DecodeObject(data, iface, "/position")
	if err != nil {
		t.Fatalf("DecodeObject: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got.Entries))
	}
}

func TestDecodeObjectUnknownEndpoint(t *testing.T) {
	iface, _ := schema.NewInterface(schema.Interface{
		Name:        "org.example.Gps",
		Major:       1,
		Ownership:   schema.OwnershipDevice,
		Kind:        schema.KindDatastream,
		Aggregation: schema.AggregationObject,
		Mappings: []schema.Mapping{
			{PathTemplate: "/position/latitude", Type: schema.Double},
		},
	})

	obj := schema.Object{Entries: []schema.ObjectEntry{{Endpoint: "altitude", Value: schema.Float64(1.0)}}}
	data, _ := EncodeObject(obj, nil)

	_, _, err := DecodeObject(data, iface, "/position")
	if !agenterr.Is(err, agenterr.MappingPathMismatch) {
		t.Errorf("expected MappingPathMismatch, got %v", err)
	}
}

func TestPropertyEntryRoundTrip(t *testing.T) {
	data, err := EncodePropertyEntry(3, schema.Str("on"))
	if err != nil {
		t.Fatalf("EncodePropertyEntry: %v", err)
	}
	major, v, err := DecodePropertyEntry(data, schema.String)
	if err != nil {
		t.Fatalf("DecodePropertyEntry: %v", err)
	}
	if major != 3 {
		t.Errorf("major = %d, want 3", major)
	}
	if s, ok := v.Raw().(string); !ok || s != "on" {
		t.Errorf("value = %v, want \"on\"", v.Raw())
	}
}
