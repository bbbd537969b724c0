package config

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchemaDoc is the JSON Schema every --config document must satisfy
// before it is unmarshaled into UserConfig. It only constrains the shape
// the policy merge and proxy defaults actually read; rule-variant bodies
// are intentionally left loose (additionalProperties) since RuleSpec's
// own UnmarshalYAML rejects unknown "type" values.
const configSchemaDoc = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": true,
  "properties": {
    "policy": {
      "type": "object",
      "additionalProperties": true,
      "properties": {
        "fail_fast": {"type": "boolean"},
        "metrics": {"type": "object"},
        "rules": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type"],
            "properties": {
              "type": {"enum": ["metrics", "regex", "license", "linked"]}
            }
          }
        }
      }
    },
    "registries": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "url": {"type": "string"}
        }
      }
    },
    "proxy": {
      "type": "object",
      "additionalProperties": true,
      "properties": {
        "host": {"type": "string"},
        "port": {"type": "integer"},
        "decision_mode": {"enum": ["fail_closed", "fail_open"]},
        "cache_ttl_seconds": {"type": "integer"},
        "response_cache_ttl_ms": {"type": "integer"},
        "timeout_seconds": {"type": "integer"}
      }
    }
  }
}`

const configSchemaResourceURL = "depgate://config.schema.json"

var compiledConfigSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchemaDoc))
	if err != nil {
		panic(fmt.Sprintf("internal config schema is invalid JSON: %v", err))
	}
	if err := compiler.AddResource(configSchemaResourceURL, doc); err != nil {
		panic(fmt.Sprintf("internal config schema could not be registered: %v", err))
	}
	compiledConfigSchema, err = compiler.Compile(configSchemaResourceURL)
	if err != nil {
		panic(fmt.Sprintf("internal config schema failed to compile: %v", err))
	}
}

// ValidateSchema checks raw YAML config bytes against configSchemaDoc.
// YAML is decoded generically first so jsonschema sees plain
// map[string]interface{}/[]interface{}/scalar values.
func ValidateSchema(raw []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decoding YAML for schema validation: %w", err)
	}
	if doc == nil {
		return nil
	}
	if err := compiledConfigSchema.Validate(doc); err != nil {
		return err
	}
	return nil
}
