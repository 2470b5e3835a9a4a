package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/edgelink/device-agent/pkg/schema"
)

// parseIndividual converts a single command-line argument into the
// schema.Individual the mapping's declared type expects. Array types take
// a comma-separated list in one argument.
func parseIndividual(typ schema.PrimitiveType, raw string) (schema.Individual, error) {
	if typ.IsArray() {
		var elems []string
		if raw != "" {
			elems = strings.Split(raw, ",")
		}
		return parseArray(typ, elems)
	}

	switch typ {
	case schema.Integer32:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return schema.Individual{}, fmt.Errorf("parsing integer32 %q: %w", raw, err)
		}
		return schema.Int32(int32(n)), nil
	case schema.Integer64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return schema.Individual{}, fmt.Errorf("parsing integer64 %q: %w", raw, err)
		}
		return schema.Int64(n), nil
	case schema.Double:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return schema.Individual{}, fmt.Errorf("parsing double %q: %w", raw, err)
		}
		return schema.Float64(f), nil
	case schema.Boolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return schema.Individual{}, fmt.Errorf("parsing boolean %q: %w", raw, err)
		}
		return schema.Bool(b), nil
	case schema.String:
		return schema.Str(raw), nil
	case schema.Bytes:
		return schema.Blob([]byte(raw)), nil
	case schema.DateTime:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return schema.Individual{}, fmt.Errorf("parsing datetime %q (want RFC3339): %w", raw, err)
		}
		return schema.Time(t), nil
	default:
		return schema.Individual{}, fmt.Errorf("unsupported scalar type %s", typ)
	}
}

func parseArray(typ schema.PrimitiveType, elems []string) (schema.Individual, error) {
	switch typ {
	case schema.Integer32Array:
		out := make([]int32, len(elems))
		for i, e := range elems {
			n, err := strconv.ParseInt(e, 10, 32)
			if err != nil {
				return schema.Individual{}, err
			}
			out[i] = int32(n)
		}
		return schema.Int32Array(out), nil
	case schema.Integer64Array:
		out := make([]int64, len(elems))
		for i, e := range elems {
			n, err := strconv.ParseInt(e, 10, 64)
			if err != nil {
				return schema.Individual{}, err
			}
			out[i] = n
		}
		return schema.Int64Array(out), nil
	case schema.DoubleArray:
		out := make([]float64, len(elems))
		for i, e := range elems {
			f, err := strconv.ParseFloat(e, 64)
			if err != nil {
				return schema.Individual{}, err
			}
			out[i] = f
		}
		return schema.Float64Array(out), nil
	case schema.BooleanArray:
		out := make([]bool, len(elems))
		for i, e := range elems {
			b, err := strconv.ParseBool(e)
			if err != nil {
				return schema.Individual{}, err
			}
			out[i] = b
		}
		return schema.BoolArray(out), nil
	case schema.StringArray:
		return schema.StrArray(elems), nil
	case schema.BytesArray:
		out := make([][]byte, len(elems))
		for i, e := range elems {
			out[i] = []byte(e)
		}
		return schema.BlobArray(out), nil
	case schema.DateTimeArray:
		out := make([]time.Time, len(elems))
		for i, e := range elems {
			t, err := time.Parse(time.RFC3339, e)
			if err != nil {
				return schema.Individual{}, err
			}
			out[i] = t
		}
		return schema.TimeArray(out), nil
	default:
		return schema.Individual{}, fmt.Errorf("unsupported array type %s", typ)
	}
}
