package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edgelink/device-agent/pkg/agenterr"
)

// fileInterface is the authoring shape for an interface definition on disk
// (JSON, matching Astarte's own interface schema, or YAML as a convenience
// — both decode into the same in-memory schema.Interface).
type fileInterface struct {
	InterfaceName string          `json:"interface_name" yaml:"interface_name"`
	VersionMajor  int             `json:"version_major" yaml:"version_major"`
	VersionMinor  int             `json:"version_minor" yaml:"version_minor"`
	Type          string          `json:"type" yaml:"type"`       // "datastream" | "properties"
	Ownership     string          `json:"ownership" yaml:"ownership"` // "device" | "server"
	Aggregation   string          `json:"aggregation,omitempty" yaml:"aggregation,omitempty"` // "individual" | "object"
	Mappings      []fileMapping   `json:"mappings" yaml:"mappings"`
}

type fileMapping struct {
	Endpoint          string `json:"endpoint" yaml:"endpoint"`
	Type              string `json:"type" yaml:"type"`
	Reliability       string `json:"reliability,omitempty" yaml:"reliability,omitempty"`
	ExplicitTimestamp bool   `json:"explicit_timestamp,omitempty" yaml:"explicit_timestamp,omitempty"`
	AllowUnset        bool   `json:"allow_unset,omitempty" yaml:"allow_unset,omitempty"`
}

var typeNameToPrimitive = map[string]PrimitiveType{
	"integer": Integer32, "longinteger": Integer64, "double": Double,
	"boolean": Boolean, "string": String, "binaryblob": Bytes, "datetime": DateTime,
	"integerarray": Integer32Array, "longintegerarray": Integer64Array, "doublearray": DoubleArray,
	"booleanarray": BooleanArray, "stringarray": StringArray, "binaryblobarray": BytesArray,
	"datetimearray": DateTimeArray,
}

var reliabilityNameToValue = map[string]Reliability{
	"unreliable": ReliabilityUnreliable,
	"guaranteed": ReliabilityGuaranteed,
	"unique":     ReliabilityUnique,
}

// LoadInterfaceFile reads one interface definition (JSON or YAML, chosen
// by file extension) and returns a compiled *Interface.
func LoadInterfaceFile(path string) (*Interface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.InvalidParam, "schema.LoadInterfaceFile", err)
	}

	var fi fileInterface
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fi); err != nil {
			return nil, agenterr.Wrap(agenterr.InvalidParam, "schema.LoadInterfaceFile", err)
		}
	default:
		if err := json.Unmarshal(data, &fi); err != nil {
			return nil, agenterr.Wrap(agenterr.InvalidParam, "schema.LoadInterfaceFile", err)
		}
	}

	return fromFileInterface(fi)
}

// LoadInterfaceDir loads every *.json/*.yaml/*.yml file in dir as an
// interface definition.
func LoadInterfaceDir(dir string) ([]*Interface, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.InvalidParam, "schema.LoadInterfaceDir", err)
	}

	var ifaces []*Interface
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		iface, err := LoadInterfaceFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}

func fromFileInterface(fi fileInterface) (*Interface, error) {
	var kind InterfaceKind
	switch fi.Type {
	case "datastream":
		kind = KindDatastream
	case "properties":
		kind = KindProperties
	default:
		return nil, agenterr.New(agenterr.InvalidParam, "schema.fromFileInterface", "unknown interface type "+fi.Type)
	}

	var ownership Ownership
	switch fi.Ownership {
	case "device":
		ownership = OwnershipDevice
	case "server":
		ownership = OwnershipServer
	default:
		return nil, agenterr.New(agenterr.InvalidParam, "schema.fromFileInterface", "unknown ownership "+fi.Ownership)
	}

	aggregation := AggregationIndividual
	if fi.Aggregation == "object" {
		aggregation = AggregationObject
	}

	mappings := make([]Mapping, len(fi.Mappings))
	for i, fm := range fi.Mappings {
		t, ok := typeNameToPrimitive[strings.ToLower(fm.Type)]
		if !ok {
			return nil, agenterr.New(agenterr.InvalidParam, "schema.fromFileInterface", "unknown mapping type "+fm.Type)
		}
		reliability := ReliabilityUnreliable
		if fm.Reliability != "" {
			r, ok := reliabilityNameToValue[strings.ToLower(fm.Reliability)]
			if !ok {
				return nil, agenterr.New(agenterr.InvalidParam, "schema.fromFileInterface", "unknown reliability "+fm.Reliability)
			}
			reliability = r
		}
		mappings[i] = Mapping{
			PathTemplate:      fm.Endpoint,
			Type:              t,
			Reliability:       reliability,
			ExplicitTimestamp: fm.ExplicitTimestamp,
			AllowUnset:        fm.AllowUnset,
		}
	}

	return NewInterface(Interface{
		Name:        fi.InterfaceName,
		Major:       fi.VersionMajor,
		Minor:       fi.VersionMinor,
		Ownership:   ownership,
		Aggregation: aggregation,
		Kind:        kind,
		Mappings:    mappings,
	})
}
