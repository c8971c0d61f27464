package conductor

import (
	"testing"

	"github.com/m-mizutani/gt"
)

func TestToJSONSchema(t *testing.T) {
	t.Run("string with constraints", func(t *testing.T) {
		p := &Parameter{
			Type:      TypeString,
			MinLength: ptrOf(1),
			MaxLength: ptrOf(16),
			Pattern:   "^[a-z]+$",
		}
		schema := toJSONSchema(p)
		gt.Equal(t, schema["type"], "string")
		gt.Equal(t, schema["minLength"], 1.0)
		gt.Equal(t, schema["maxLength"], 16.0)
		gt.Equal(t, schema["pattern"], "^[a-z]+$")
	})

	t.Run("nested object", func(t *testing.T) {
		p := &Parameter{
			Type: TypeObject,
			Properties: map[string]*Parameter{
				"name": {Type: TypeString},
			},
			Required: []string{"name"},
		}
		schema := toJSONSchema(p)
		props := schema["properties"].(map[string]any)
		gt.Equal(t, props["name"].(map[string]any)["type"], "string")
		gt.Equal[any](t, schema["required"], []any{"name"})
	})

	t.Run("array items", func(t *testing.T) {
		p := &Parameter{
			Type:  TypeArray,
			Items: &Parameter{Type: TypeInteger},
		}
		schema := toJSONSchema(p)
		gt.Equal(t, schema["items"].(map[string]any)["type"], "integer")
	})
}

func TestValidateParameterValue(t *testing.T) {
	t.Run("type match", func(t *testing.T) {
		p := &Parameter{Type: TypeString}
		gt.NoError(t, validateParameterValue("name", p, "hello"))
		gt.Error(t, validateParameterValue("name", p, 42))
	})

	t.Run("native integers validate as numbers", func(t *testing.T) {
		p := &Parameter{Type: TypeNumber}
		gt.NoError(t, validateParameterValue("count", p, 3))
		gt.NoError(t, validateParameterValue("count", p, 3.5))
	})

	t.Run("enum", func(t *testing.T) {
		p := &Parameter{Type: TypeString, Enum: []string{"open", "closed"}}
		gt.NoError(t, validateParameterValue("state", p, "open"))
		gt.Error(t, validateParameterValue("state", p, "pending"))
	})

	t.Run("range", func(t *testing.T) {
		p := &Parameter{Type: TypeInteger, Minimum: ptrOf(1.0), Maximum: ptrOf(10.0)}
		gt.NoError(t, validateParameterValue("limit", p, 5))
		gt.Error(t, validateParameterValue("limit", p, 100))
	})

	t.Run("object required fields", func(t *testing.T) {
		p := &Parameter{
			Type: TypeObject,
			Properties: map[string]*Parameter{
				"state": {Type: TypeString},
			},
			Required: []string{"state"},
		}
		gt.NoError(t, validateParameterValue("filters", p, map[string]any{"state": "open"}))
		gt.Error(t, validateParameterValue("filters", p, map[string]any{}))
	})
}

func ptrOf[T any](v T) *T {
	return &v
}
