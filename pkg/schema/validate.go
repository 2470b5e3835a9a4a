package schema

import (
	"math"

	"github.com/edgelink/device-agent/pkg/agenterr"
)

// Validate checks that v's tag equals mapping's declared type, and for
// doubles, that the value is finite. Every inbound or outbound payload
// passes through this single gate.
func Validate(mapping *Mapping, v Individual) error {
	if v.Type() != mapping.Type {
		return agenterr.New(agenterr.MappingIncompatible, "schema.Validate",
			"value type "+v.Type().String()+" does not match mapping type "+mapping.Type.String())
	}
	switch mapping.Type {
	case Double:
		f, ok := v.value.(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return agenterr.New(agenterr.MappingIncompatible, "schema.Validate", "double value is not finite")
		}
	case DoubleArray:
		arr, ok := v.value.([]float64)
		if !ok {
			return agenterr.New(agenterr.MappingIncompatible, "schema.Validate", "expected []float64")
		}
		for _, f := range arr {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return agenterr.New(agenterr.MappingIncompatible, "schema.Validate", "double array contains a non-finite value")
			}
		}
	}
	return nil
}

func newMappingPathMismatch(ifaceName, path string) error {
	return agenterr.New(agenterr.MappingPathMismatch, "schema.ValidateObject",
		"path "+path+" on interface "+ifaceName+" is not a known object endpoint")
}
