// Package schema models an Astarte-style interface: a named, versioned
// description of the paths a device publishes or subscribes to, the type
// each path carries, and the QoS/aggregation rules governing it.
package schema

import (
	"fmt"
	"regexp"
)

// PrimitiveType is the closed set of 14 value types a mapping may declare.
type PrimitiveType int

const (
	Integer32 PrimitiveType = iota
	Integer64
	Double
	Boolean
	String
	Bytes
	DateTime
	Integer32Array
	Integer64Array
	DoubleArray
	BooleanArray
	StringArray
	BytesArray
	DateTimeArray
)

var primitiveTypeNames = [...]string{
	"integer32", "integer64", "double", "boolean", "string", "bytes", "datetime",
	"integer32array", "integer64array", "doublearray", "booleanarray", "stringarray", "bytesarray", "datetimearray",
}

func (t PrimitiveType) String() string {
	if int(t) < 0 || int(t) >= len(primitiveTypeNames) {
		return fmt.Sprintf("PrimitiveType(%d)", int(t))
	}
	return primitiveTypeNames[t]
}

// IsArray reports whether t is one of the seven array variants.
func (t PrimitiveType) IsArray() bool {
	return t >= Integer32Array && t <= DateTimeArray
}

// Ownership determines which side of the MQTT session publishes a mapping.
type Ownership int

const (
	OwnershipDevice Ownership = iota
	OwnershipServer
)

func (o Ownership) String() string {
	if o == OwnershipServer {
		return "server"
	}
	return "device"
}

// Aggregation determines whether mappings under an interface publish
// independently or as one object document per path.
type Aggregation int

const (
	AggregationIndividual Aggregation = iota
	AggregationObject
)

// InterfaceKind distinguishes non-retained flows from retained key/value
// properties.
type InterfaceKind int

const (
	KindDatastream InterfaceKind = iota
	KindProperties
)

// Reliability maps directly to MQTT QoS for datastream mappings.
type Reliability int

const (
	ReliabilityUnreliable Reliability = iota // QoS 0
	ReliabilityGuaranteed                    // QoS 1
	ReliabilityUnique                        // QoS 2
)

// QoS returns the MQTT QoS level this reliability corresponds to.
func (r Reliability) QoS() byte {
	switch r {
	case ReliabilityGuaranteed:
		return 1
	case ReliabilityUnique:
		return 2
	default:
		return 0
	}
}

// Mapping is one path template inside an interface, with its compiled
// matcher and type/QoS metadata.
type Mapping struct {
	PathTemplate      string
	Type              PrimitiveType
	Reliability       Reliability
	ExplicitTimestamp bool
	AllowUnset        bool

	regex *regexp.Regexp
}

// Regex returns the compiled, anchored matcher for PathTemplate, set by
// NewInterface; nil on a Mapping that never went through it.
func (m *Mapping) Regex() *regexp.Regexp {
	return m.regex
}

// Matches reports whether path satisfies this mapping's path template.
func (m *Mapping) Matches(path string) bool {
	return m.regex != nil && m.regex.MatchString(path)
}

// Interface is a named, versioned schema: an ownership, an aggregation, a
// kind, and an ordered list of mappings.
type Interface struct {
	Name        string
	Major       int
	Minor       int
	Ownership   Ownership
	Aggregation Aggregation
	Kind        InterfaceKind
	Mappings    []Mapping
}

// VersionString renders the canonical "name:major:minor" triple used both
// in the introspection wire format and as the per-interface identity for
// the property cache's major-drift check.
func (i *Interface) VersionString() string {
	return fmt.Sprintf("%s:%d:%d", i.Name, i.Major, i.Minor)
}
