package geojson

import (
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

// PropertiesSchema returns the JSON Schema of StationProperties.
func PropertiesSchema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		ref := jsonschema.Reflector{
			Anonymous:      true,
			DoNotReference: true,
		}
		schema = ref.Reflect(&StationProperties{})
		schema.Title = "Station properties"
	})
	return schema
}
