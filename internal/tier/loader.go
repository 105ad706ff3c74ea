package tier

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema guards the shape of a TIER_CONFIG file before it is parsed.
// Threshold ordering and the zero-floor rule are checked by NewTable.
const configSchema = `{
  "type": "object",
  "required": ["tiers"],
  "properties": {
    "tiers": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "min_lifetime_points"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "min_lifetime_points": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

// Load reads a tier table from the JSON file at path, validating the
// document against the embedded schema first.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier config %q: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a tier table from raw JSON config bytes.
func Parse(data []byte) (*Table, error) {
	schema, err := jsonschema.CompileString("https://perkly.dev/schemas/tiers", configSchema)
	if err != nil {
		return nil, fmt.Errorf("compile tier schema: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tier config is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("tier config rejected: %w", err)
	}
	var file struct {
		Tiers []Definition `json:"tiers"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tier config: %w", err)
	}
	return NewTable(file.Tiers)
}
