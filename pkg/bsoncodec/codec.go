// Package bsoncodec encodes and decodes the BSON payload envelopes that
// cross the wire on every publish and inbound message, and the tuple
// format the property cache persists on disk.
//
// Decoding is strict: every element is interpreted against the mapping's
// declared type, and anything else is a BsonError — the codec never
// guesses at a lenient conversion for a value the schema didn't declare.
package bsoncodec

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/edgelink/device-agent/pkg/agenterr"
	"github.com/edgelink/device-agent/pkg/schema"
)

// envelope is the on-wire shape of a datastream or property publish:
// {"v": <value>, "t": <datetime, omitted for mappings without an explicit
// timestamp>}.
type envelope struct {
	V any        `bson:"v"`
	T *time.Time `bson:"t,omitempty"`
}

// EncodeIndividual builds the BSON envelope for a scalar or array value.
// ts is nil unless the mapping declares explicit_timestamp.
func EncodeIndividual(v schema.Individual, ts *time.Time) ([]byte, error) {
	raw, err := toBSONValue(v)
	if err != nil {
		return nil, err
	}
	data, err := bson.Marshal(envelope{V: raw, T: ts})
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BsonError, "bsoncodec.EncodeIndividual", err)
	}
	return data, nil
}

// DecodeIndividual parses an envelope produced by EncodeIndividual,
// interpreting "v" according to want (the mapping's declared type).
func DecodeIndividual(data []byte, want schema.PrimitiveType) (schema.Individual, *time.Time, error) {
	var env envelope
	if err := bson.Unmarshal(data, &env); err != nil {
		return schema.Individual{}, nil, agenterr.Wrap(agenterr.BsonError, "bsoncodec.DecodeIndividual", err)
	}
	v, err := fromBSONValue(want, env.V)
	if err != nil {
		return schema.Individual{}, nil, err
	}
	return v, env.T, nil
}

// EncodeObject builds the BSON envelope for an object-aggregate publish,
// where "v" is a subdocument keyed by endpoint name.
func EncodeObject(obj schema.Object, ts *time.Time) ([]byte, error) {
	sub := bson.M{}
	for _, entry := range obj.Entries {
		raw, err := toBSONValue(entry.Value)
		if err != nil {
			return nil, err
		}
		sub[entry.Endpoint] = raw
	}
	data, err := bson.Marshal(envelope{V: sub, T: ts})
	if err != nil {
		return nil, agenterr.Wrap(agenterr.BsonError, "bsoncodec.EncodeObject", err)
	}
	return data, nil
}

// DecodeObject parses an object envelope, resolving each subdocument key
// against the mappings found under prefix on iface.
func DecodeObject(data []byte, iface *schema.Interface, prefix string) (schema.Object, *time.Time, error) {
	var env struct {
		V bson.M     `bson:"v"`
		T *time.Time `bson:"t,omitempty"`
	}
	if err := bson.Unmarshal(data, &env); err != nil {
		return schema.Object{}, nil, agenterr.Wrap(agenterr.BsonError, "bsoncodec.DecodeObject", err)
	}

	endpoints := schema.ObjectEndpoints(iface, prefix)
	obj := schema.Object{}
	for endpoint, raw := range env.V {
		mapping, ok := endpoints[endpoint]
		if !ok {
			return schema.Object{}, nil, agenterr.New(agenterr.MappingPathMismatch, "bsoncodec.DecodeObject",
				"endpoint "+endpoint+" is not declared under "+prefix)
		}
		v, err := fromBSONValue(mapping.Type, raw)
		if err != nil {
			return schema.Object{}, nil, err
		}
		obj.Entries = append(obj.Entries, schema.ObjectEntry{Endpoint: endpoint, Value: v})
	}
	return obj, env.T, nil
}

func toBSONValue(v schema.Individual) (any, error) {
	switch x := v.Raw().(type) {
	case int32, int64, float64, bool, string, time.Time:
		return x, nil
	case []byte:
		return bson.Binary{Subtype: 0x00, Data: x}, nil
	case []int32:
		return bson.A(toAnySlice(x)), nil
	case []int64:
		return bson.A(toAnySlice(x)), nil
	case []float64:
		return bson.A(toAnySlice(x)), nil
	case []bool:
		return bson.A(toAnySlice(x)), nil
	case []string:
		return bson.A(toAnySlice(x)), nil
	case []time.Time:
		return bson.A(toAnySlice(x)), nil
	case [][]byte:
		out := make(bson.A, len(x))
		for i, b := range x {
			out[i] = bson.Binary{Subtype: 0x00, Data: b}
		}
		return out, nil
	default:
		return nil, agenterr.New(agenterr.Internal, "bsoncodec.toBSONValue", fmt.Sprintf("unsupported Go type %T", x))
	}
}

func toAnySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func fromBSONValue(want schema.PrimitiveType, raw any) (schema.Individual, error) {
	switch want {
	case schema.Integer32:
		n, err := asInt64(raw)
		if err != nil {
			return schema.Individual{}, wrongType(want, raw)
		}
		return schema.Int32(int32(n)), nil
	case schema.Integer64:
		n, err := asInt64(raw)
		if err != nil {
			return schema.Individual{}, wrongType(want, raw)
		}
		return schema.Int64(n), nil
	case schema.Double:
		f, ok := raw.(float64)
		if !ok {
			return schema.Individual{}, wrongType(want, raw)
		}
		return schema.Float64(f), nil
	case schema.Boolean:
		b, ok := raw.(bool)
		if !ok {
			return schema.Individual{}, wrongType(want, raw)
		}
		return schema.Bool(b), nil
	case schema.String:
		s, ok := raw.(string)
		if !ok {
			return schema.Individual{}, wrongType(want, raw)
		}
		return schema.Str(s), nil
	case schema.Bytes:
		b, ok := asBytes(raw)
		if !ok {
			return schema.Individual{}, wrongType(want, raw)
		}
		return schema.Blob(b), nil
	case schema.DateTime:
		tm, ok := asTime(raw)
		if !ok {
			return schema.Individual{}, wrongType(want, raw)
		}
		return schema.Time(tm), nil
	case schema.Integer32Array:
		arr, err := asArray(raw)
		if err != nil {
			return schema.Individual{}, err
		}
		out := make([]int32, len(arr))
		for i, e := range arr {
			n, err := asInt64(e)
			if err != nil {
				return schema.Individual{}, wrongType(want, raw)
			}
			out[i] = int32(n)
		}
		return schema.Int32Array(out), nil
	case schema.Integer64Array:
		arr, err := asArray(raw)
		if err != nil {
			return schema.Individual{}, err
		}
		out := make([]int64, len(arr))
		for i, e := range arr {
			n, err := asInt64(e)
			if err != nil {
				return schema.Individual{}, wrongType(want, raw)
			}
			out[i] = n
		}
		return schema.Int64Array(out), nil
	case schema.DoubleArray:
		arr, err := asArray(raw)
		if err != nil {
			return schema.Individual{}, err
		}
		out := make([]float64, len(arr))
		for i, e := range arr {
			f, ok := e.(float64)
			if !ok {
				return schema.Individual{}, wrongType(want, raw)
			}
			out[i] = f
		}
		return schema.Float64Array(out), nil
	case schema.BooleanArray:
		arr, err := asArray(raw)
		if err != nil {
			return schema.Individual{}, err
		}
		out := make([]bool, len(arr))
		for i, e := range arr {
			b, ok := e.(bool)
			if !ok {
				return schema.Individual{}, wrongType(want, raw)
			}
			out[i] = b
		}
		return schema.BoolArray(out), nil
	case schema.StringArray:
		arr, err := asArray(raw)
		if err != nil {
			return schema.Individual{}, err
		}
		out := make([]string, len(arr))
		for i, e := range arr {
			s, ok := e.(string)
			if !ok {
				return schema.Individual{}, wrongType(want, raw)
			}
			out[i] = s
		}
		return schema.StrArray(out), nil
	case schema.BytesArray:
		arr, err := asArray(raw)
		if err != nil {
			return schema.Individual{}, err
		}
		out := make([][]byte, len(arr))
		for i, e := range arr {
			b, ok := asBytes(e)
			if !ok {
				return schema.Individual{}, wrongType(want, raw)
			}
			out[i] = b
		}
		return schema.BlobArray(out), nil
	case schema.DateTimeArray:
		arr, err := asArray(raw)
		if err != nil {
			return schema.Individual{}, err
		}
		out := make([]time.Time, len(arr))
		for i, e := range arr {
			tm, ok := asTime(e)
			if !ok {
				return schema.Individual{}, wrongType(want, raw)
			}
			out[i] = tm
		}
		return schema.TimeArray(out), nil
	default:
		return schema.Individual{}, agenterr.New(agenterr.Internal, "bsoncodec.fromBSONValue", "unhandled primitive type")
	}
}

// asInt64 accepts int32 or int64, since driver decode can produce either
// depending on the BSON element's declared width.
func asInt64(raw any) (int64, error) {
	switch n := raw.(type) {
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, agenterr.New(agenterr.BsonError, "bsoncodec.asInt64", "value is not an integer")
	}
}

// asTime accepts time.Time or the driver's raw bson.DateTime, which is
// what a datetime element decodes to when the target is an interface
// value rather than a struct field.
func asTime(raw any) (time.Time, bool) {
	switch t := raw.(type) {
	case time.Time:
		return t, true
	case bson.DateTime:
		return time.UnixMilli(int64(t)).UTC(), true
	default:
		return time.Time{}, false
	}
}

func asBytes(raw any) ([]byte, bool) {
	switch b := raw.(type) {
	case bson.Binary:
		return b.Data, true
	case []byte:
		return b, true
	default:
		return nil, false
	}
}

func asArray(raw any) (bson.A, error) {
	arr, ok := raw.(bson.A)
	if !ok {
		return nil, agenterr.New(agenterr.BsonError, "bsoncodec.asArray", "expected an array element")
	}
	return arr, nil
}

func wrongType(want schema.PrimitiveType, raw any) error {
	return agenterr.New(agenterr.BsonError, "bsoncodec.fromBSONValue",
		fmt.Sprintf("expected %s, got Go type %T", want, raw))
}
