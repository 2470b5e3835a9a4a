package schema

import "time"

// Individual is a tagged union over the 14 primitive types. It is
// constructed through the typed helpers below so the tag and the Go type
// stored in value can never disagree.
type Individual struct {
	typ   PrimitiveType
	value any
}

// Type returns the tag of this individual value.
func (v Individual) Type() PrimitiveType { return v.typ }

// Raw returns the underlying Go value, for callers (the BSON codec,
// mostly) that need to type-switch on it directly.
func (v Individual) Raw() any { return v.value }

func Int32(v int32) Individual    { return Individual{Integer32, v} }
func Int64(v int64) Individual    { return Individual{Integer64, v} }
func Float64(v float64) Individual { return Individual{Double, v} }
func Bool(v bool) Individual      { return Individual{Boolean, v} }
func Str(v string) Individual     { return Individual{String, v} }
func Blob(v []byte) Individual    { return Individual{Bytes, v} }
func Time(v time.Time) Individual { return Individual{DateTime, v} }

func Int32Array(v []int32) Individual        { return Individual{Integer32Array, v} }
func Int64Array(v []int64) Individual        { return Individual{Integer64Array, v} }
func Float64Array(v []float64) Individual    { return Individual{DoubleArray, v} }
func BoolArray(v []bool) Individual          { return Individual{BooleanArray, v} }
func StrArray(v []string) Individual         { return Individual{StringArray, v} }
func BlobArray(v [][]byte) Individual        { return Individual{BytesArray, v} }
func TimeArray(v []time.Time) Individual     { return Individual{DateTimeArray, v} }

// Len returns the element count for array-typed individuals, and 1 for
// scalars (matching the spec's "arrays carry element count" rule, with
// scalars treated as single-element for uniform iteration).
func (v Individual) Len() int {
	switch x := v.value.(type) {
	case []int32:
		return len(x)
	case []int64:
		return len(x)
	case []float64:
		return len(x)
	case []bool:
		return len(x)
	case []string:
		return len(x)
	case [][]byte:
		return len(x)
	case []time.Time:
		return len(x)
	default:
		return 1
	}
}
