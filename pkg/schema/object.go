package schema

// ObjectEntry is one (endpoint-name, individual) pair inside an aggregated
// object publish.
type ObjectEntry struct {
	Endpoint string
	Value    Individual
}

// Object is an ordered list of endpoint/value pairs sharing a common path
// prefix, published atomically as one BSON subdocument.
type Object struct {
	Entries []ObjectEntry
}

// ValidateObject checks every entry of obj against the mapping whose
// template extends prefix with the entry's endpoint name.
func ValidateObject(iface *Interface, prefix string, obj Object) error {
	endpoints := ObjectEndpoints(iface, prefix)
	for _, entry := range obj.Entries {
		m, ok := endpoints[entry.Endpoint]
		if !ok {
			return newMappingPathMismatch(iface.Name, prefix+"/"+entry.Endpoint)
		}
		if err := Validate(m, entry.Value); err != nil {
			return err
		}
	}
	return nil
}
