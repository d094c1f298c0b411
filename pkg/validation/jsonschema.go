package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	_ "github.com/santhosh-tekuri/jsonschema/v5/httploader"
)

// GenerationParamsSchema bounds the sampling parameters accepted by the
// completion API: temperature and top_p in [0,1] ranges the backend tolerates,
// a sane new-token ceiling, repetition penalty around 1.
const GenerationParamsSchema = `{
  "type": "object",
  "properties": {
    "temperature":        {"type": "number", "minimum": 0, "maximum": 2},
    "top_p":              {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
    "top_k":              {"type": "integer", "minimum": 0},
    "max_new_tokens":     {"type": "integer", "minimum": 1, "maximum": 4096},
    "repetition_penalty": {"type": "number", "minimum": 0.5, "maximum": 2}
  },
  "additionalProperties": false
}`

// ValidateJSONWithSchema validates a JSON data string against a JSON schema string.
func ValidateJSONWithSchema(schemaJSON string, dataJSON string) error {
	if schemaJSON == "" {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}
	sch, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile JSON schema: %w. Schema: %s", err, schemaJSON)
	}

	var data interface{}
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON data: %w. Data: %s", err, dataJSON)
	}

	if err := sch.Validate(data); err != nil {
		validationErr, ok := err.(*jsonschema.ValidationError)
		if ok {
			return fmt.Errorf("JSON data failed validation against schema: %v", validationErr)
		}
		return fmt.Errorf("JSON data failed validation (unexpected error type): %w", err)
	}
	return nil
}

// ValidateGenerationParams checks a raw sampling-parameter JSON payload
// against GenerationParamsSchema. Only the keys the caller sent are checked,
// so partial payloads stay valid.
func ValidateGenerationParams(rawJSON []byte) error {
	return ValidateJSONWithSchema(GenerationParamsSchema, string(rawJSON))
}
