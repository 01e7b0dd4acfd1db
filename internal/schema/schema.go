// Package schema normalizes tool input schemas between the MCP wire shape and
// the shapes each model provider expects.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
)

// ErrNotObjectSchema is returned for input schemas that do not describe a
// JSON object.
var ErrNotObjectSchema = errors.New("schema: input schema is not an object schema")

// Generate produces a JSON object schema from a Go struct type T.
// It uses struct tags (json, jsonschema) to derive the schema.
func Generate[T any]() json.RawMessage {
	var zero T
	root := extractRoot(jsonschema.Reflect(&zero))

	m := map[string]any{"type": "object"}
	if props := schemaProperties(root); props != nil {
		m["properties"] = props
	} else {
		m["properties"] = map[string]any{}
	}
	if len(root.Required) > 0 {
		m["required"] = root.Required
	}

	data, _ := json.Marshal(m)
	return data
}

// extractRoot resolves the root schema, following $ref to $defs if needed.
func extractRoot(s *jsonschema.Schema) *jsonschema.Schema {
	if s.Ref != "" && s.Definitions != nil {
		for _, def := range s.Definitions {
			if def.Type == "object" {
				return def
			}
		}
	}
	return s
}

func schemaProperties(s *jsonschema.Schema) map[string]any {
	if s.Properties == nil {
		return nil
	}
	props := make(map[string]any)
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		props[pair.Key] = propertySchema(pair.Value)
	}
	return props
}

func propertySchema(s *jsonschema.Schema) map[string]any {
	m := make(map[string]any)

	if s.Type != "" {
		m["type"] = s.Type
	}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if s.Default != nil {
		m["default"] = s.Default
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}

	// invopop/jsonschema uses anyOf for nullable types
	if len(s.AnyOf) > 0 {
		for _, sub := range s.AnyOf {
			if sub.Type != "null" && sub.Type != "" {
				m["type"] = sub.Type
				break
			}
		}
	}

	if s.Properties != nil {
		m["type"] = "object"
		m["properties"] = schemaProperties(s)
		if len(s.Required) > 0 {
			m["required"] = s.Required
		}
	}

	if s.Items != nil {
		m["items"] = propertySchema(s.Items)
	}

	return m
}

// Parse validates raw as a JSON object schema and returns it as a generic map.
// An empty schema is treated as an object with no properties. A schema
// without a "properties" key gets an empty one.
func Parse(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObjectSchema, err)
	}
	if s.Type != "" && s.Type != "object" {
		return nil, fmt.Errorf("%w: type %q", ErrNotObjectSchema, s.Type)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObjectSchema, err)
	}
	m["type"] = "object"
	if _, ok := m["properties"]; !ok {
		m["properties"] = map[string]any{}
	}
	return m, nil
}

// Validate reports whether raw is a usable object schema.
func Validate(raw json.RawMessage) error {
	_, err := Parse(raw)
	return err
}

// ToAnthropic converts raw into the Anthropic tool input schema. Keys other
// than properties and required are carried in ExtraFields.
func ToAnthropic(raw json.RawMessage) (anthropic.ToolInputSchemaParam, error) {
	m, err := Parse(raw)
	if err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}

	param := anthropic.ToolInputSchemaParam{Properties: m["properties"]}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				param.Required = append(param.Required, s)
			}
		}
	}

	extra := make(map[string]any)
	for k, v := range m {
		switch k {
		case "type", "properties", "required":
		default:
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		param.ExtraFields = extra
	}
	return param, nil
}

// ToOpenAI converts raw into the function parameter map used by OpenAI
// compatible chat completion APIs.
func ToOpenAI(raw json.RawMessage) (map[string]any, error) {
	return Parse(raw)
}
