package schema

import "fmt"

// Error reports a malformed schema. Path is the dotted path of the offending
// field (e.g. "phoneNumber.areaCode"); it is empty for schema-level problems
// such as an empty schema.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "schema: " + e.Reason
	}
	return fmt.Sprintf("schema: field %q: %s", e.Path, e.Reason)
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
