package schema

import (
	"regexp"
	"strings"

	"github.com/edgelink/device-agent/pkg/agenterr"
)

var wildcardSegment = regexp.MustCompile(`%\{[^/{}]+\}`)

// compilePathTemplate turns a slash-delimited path template such as
// "/sensors/%{sensor_id}/value" into an anchored regex where every
// "%{name}" wildcard segment matches one non-slash path segment.
func compilePathTemplate(template string) (*regexp.Regexp, error) {
	escaped := regexp.QuoteMeta(template)
	// QuoteMeta escapes the '%', '{', '}' of our wildcard markers too, so
	// match against the escaped form of the marker.
	escapedMarker := regexp.QuoteMeta("%{")
	pattern := escaped
	for {
		start := strings.Index(pattern, escapedMarker)
		if start == -1 {
			break
		}
		end := strings.Index(pattern[start:], regexp.QuoteMeta("}"))
		if end == -1 {
			return nil, agenterr.New(agenterr.InvalidParam, "schema.compilePathTemplate", "unterminated wildcard segment in "+template)
		}
		pattern = pattern[:start] + `[^/]+` + pattern[start+end+len(regexp.QuoteMeta("}")):]
	}
	re, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		return nil, agenterr.Wrap(agenterr.InvalidParam, "schema.compilePathTemplate", err)
	}
	return re, nil
}

// NewInterface validates and compiles a full interface definition: every
// mapping's path template is compiled to a regex, and properties
// mappings are rejected at load time if they declare explicit_timestamp
// (retained values carry no per-sample timestamps).
func NewInterface(iface Interface) (*Interface, error) {
	if iface.Name == "" {
		return nil, agenterr.New(agenterr.InvalidParam, "schema.NewInterface", "interface name must not be empty")
	}
	if iface.Major == 0 && iface.Minor == 0 {
		return nil, agenterr.New(agenterr.InvalidParam, "schema.NewInterface", "interface "+iface.Name+" cannot have major and minor both 0")
	}
	compiled := make([]Mapping, len(iface.Mappings))
	for idx, m := range iface.Mappings {
		if iface.Kind == KindProperties && m.ExplicitTimestamp {
			return nil, agenterr.New(agenterr.InvalidParam, "schema.NewInterface",
				"properties mapping "+m.PathTemplate+" on "+iface.Name+" must not set explicit_timestamp")
		}
		re, err := compilePathTemplate(m.PathTemplate)
		if err != nil {
			return nil, err
		}
		m.regex = re
		compiled[idx] = m
	}
	iface.Mappings = compiled
	return &iface, nil
}

// FindMapping returns the mapping whose compiled regex matches path.
func FindMapping(iface *Interface, path string) (*Mapping, error) {
	for idx := range iface.Mappings {
		if iface.Mappings[idx].Matches(path) {
			return &iface.Mappings[idx], nil
		}
	}
	return nil, agenterr.New(agenterr.MappingNotFound, "schema.FindMapping", "no mapping in "+iface.Name+" matches path "+path)
}

// ObjectEndpoints returns the set of mapping path templates in iface whose
// template extends the given object publish path prefix, along with the
// endpoint name (the suffix relative to prefix) for each. Used to validate
// and label the members of an object-aggregation publish.
func ObjectEndpoints(iface *Interface, prefix string) map[string]*Mapping {
	out := make(map[string]*Mapping)
	prefixSlash := strings.TrimSuffix(prefix, "/") + "/"
	for idx := range iface.Mappings {
		m := &iface.Mappings[idx]
		if strings.HasPrefix(m.PathTemplate, prefixSlash) {
			endpoint := strings.TrimPrefix(m.PathTemplate, prefixSlash)
			out[endpoint] = m
		}
	}
	return out
}

// ArrayToScalar returns the scalar type corresponding to an array type, or
// an Internal error if t is not an array type (mirrors C2's
// array_to_scalar, whose only failure mode is programmer error).
func ArrayToScalar(t PrimitiveType) (PrimitiveType, error) {
	switch t {
	case Integer32Array:
		return Integer32, nil
	case Integer64Array:
		return Integer64, nil
	case DoubleArray:
		return Double, nil
	case BooleanArray:
		return Boolean, nil
	case StringArray:
		return String, nil
	case BytesArray:
		return Bytes, nil
	case DateTimeArray:
		return DateTime, nil
	default:
		return 0, agenterr.New(agenterr.Internal, "schema.ArrayToScalar", "type "+t.String()+" is not an array type")
	}
}
