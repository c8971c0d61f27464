package conductor

import (
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// toJSONSchema converts a Parameter to a JSON Schema document.
func toJSONSchema(p *Parameter) map[string]any {
	schema := map[string]any{
		"type": string(p.Type),
	}

	if p.Description != "" {
		schema["description"] = p.Description
	}

	if p.Type == TypeObject && p.Properties != nil {
		props := make(map[string]any)
		for name, prop := range p.Properties {
			props[name] = toJSONSchema(prop)
		}
		schema["properties"] = props
		if len(p.Required) > 0 {
			required := make([]any, len(p.Required))
			for i, r := range p.Required {
				required[i] = r
			}
			schema["required"] = required
		}
	}

	if p.Type == TypeArray && p.Items != nil {
		schema["items"] = toJSONSchema(p.Items)
	}

	if p.Enum != nil {
		enum := make([]any, len(p.Enum))
		for i, e := range p.Enum {
			enum[i] = e
		}
		schema["enum"] = enum
	}

	if p.Minimum != nil {
		schema["minimum"] = *p.Minimum
	}
	if p.Maximum != nil {
		schema["maximum"] = *p.Maximum
	}
	if p.MinLength != nil {
		schema["minLength"] = float64(*p.MinLength)
	}
	if p.MaxLength != nil {
		schema["maxLength"] = float64(*p.MaxLength)
	}
	if p.Pattern != "" {
		schema["pattern"] = p.Pattern
	}
	if p.MinItems != nil {
		schema["minItems"] = float64(*p.MinItems)
	}
	if p.MaxItems != nil {
		schema["maxItems"] = float64(*p.MaxItems)
	}

	return schema
}

// validateParameterValue checks a single argument value against the parameter
// specification with a compiled JSON Schema.
func validateParameterValue(name string, p *Parameter, value any) error {
	compiler := jsonschema.NewCompiler()
	resource := fmt.Sprintf("inline://parameter/%s.json", name)
	if err := compiler.AddResource(resource, toJSONSchema(p)); err != nil {
		return goerr.Wrap(err, "failed to register parameter schema", goerr.V("parameter", name))
	}

	schema, err := compiler.Compile(resource)
	if err != nil {
		return goerr.Wrap(err, "failed to compile parameter schema", goerr.V("parameter", name))
	}

	// The validator expects values in decoded-JSON form (float64 for numbers),
	// so normalize through a JSON round trip.
	raw, err := json.Marshal(value)
	if err != nil {
		return goerr.Wrap(ErrInvalidParameter, "parameter value is not serializable",
			goerr.V("parameter", name))
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return goerr.Wrap(ErrInvalidParameter, "parameter value is not serializable",
			goerr.V("parameter", name))
	}

	if err := schema.Validate(normalized); err != nil {
		return goerr.Wrap(ErrInvalidParameter, "parameter value does not match schema",
			goerr.V("parameter", name), goerr.V("cause", err.Error()))
	}

	return nil
}
