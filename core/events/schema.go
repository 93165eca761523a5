package events

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// WireSchema returns the JSON schema of the object carried by an
// event-bearing line.
func WireSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := reflector.Reflect(&Record{})
	schema.Title = "Research stream record"
	schema.Description = "Payload of a `data:` line. The literal `[DONE]` payload terminates the stream."
	return schema
}

func WireSchemaJSON() ([]byte, error) {
	data, err := json.MarshalIndent(WireSchema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("error marshalling schema: %w", err)
	}
	return data, nil
}
