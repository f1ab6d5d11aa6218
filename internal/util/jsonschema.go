package util

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema returns an inline JSON schema for the given object type.
// Definitions are expanded in place because tool parameter schemas must
// describe an object at the top level.
func GenerateJSONSchema(obj any) (json.RawMessage, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(obj)
	schema.Version = ""
	return json.Marshal(schema)
}
