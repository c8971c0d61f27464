package conductor

import (
	"context"
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// ToolSpec is the specification of a tool that steps and actions may invoke.
type ToolSpec struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description is a human-readable description of what the tool does.
	Description string

	// Parameters defines the input parameters that the tool accepts.
	Parameters map[string]*Parameter

	// Required is the list of required parameter names, in the order they
	// should be prompted for when missing.
	Required []string
}

// Validate validates the tool specification.
func (s *ToolSpec) Validate() error {
	eb := goerr.NewBuilder(goerr.V("tool", s))
	if s.Name == "" {
		return eb.Wrap(ErrInvalidTool, "name is required")
	}

	for _, param := range s.Parameters {
		if err := param.Validate(); err != nil {
			return eb.Wrap(ErrInvalidTool, "invalid parameter")
		}
	}

	for _, req := range s.Required {
		if _, ok := s.Parameters[req]; !ok {
			return eb.Wrap(ErrInvalidTool, "required parameter not declared", goerr.V("name", req))
		}
	}

	return nil
}

// ParameterType is the type of a parameter.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeInteger ParameterType = "integer"
	TypeBoolean ParameterType = "boolean"
	TypeArray   ParameterType = "array"
	TypeObject  ParameterType = "object"
)

// Parameter is a parameter of a tool.
type Parameter struct {
	// Title is the user-friendly name of the parameter.
	Title string

	// Type is the type of the parameter.
	Type ParameterType

	// Description is the description of the parameter.
	Description string

	// Required is the list of required field names when Type is Object.
	Required []string

	// Enum is the list of allowed values for the parameter.
	Enum []string

	// Properties is the properties of the parameter for object types.
	Properties map[string]*Parameter

	// Items is the element specification for array types.
	Items *Parameter

	// Number constraints
	Minimum *float64
	Maximum *float64

	// String constraints
	MinLength *int
	MaxLength *int
	Pattern   string

	// Array constraints
	MinItems *int
	MaxItems *int

	// Default value for the parameter.
	Default any
}

// Validate validates the parameter.
func (p *Parameter) Validate() error {
	eb := goerr.NewBuilder(goerr.V("parameter", p))

	if p.Type == "" {
		return eb.Wrap(ErrInvalidParameter, "type is required")
	}

	if p.Type == TypeObject {
		if p.Properties == nil {
			return eb.Wrap(ErrInvalidParameter, "properties is required for object type")
		}
		for _, prop := range p.Properties {
			if err := prop.Validate(); err != nil {
				return eb.Wrap(ErrInvalidParameter, "invalid property")
			}
		}
		for _, req := range p.Required {
			if _, ok := p.Properties[req]; !ok {
				return eb.Wrap(ErrInvalidParameter, "required field not found in properties", goerr.V("field", req))
			}
		}
	}

	if p.Type == TypeArray {
		if p.Items == nil {
			return eb.Wrap(ErrInvalidParameter, "items is required for array type")
		}
		if err := p.Items.Validate(); err != nil {
			return eb.Wrap(ErrInvalidParameter, "invalid items")
		}
	}

	if p.Type == TypeNumber || p.Type == TypeInteger {
		if p.Minimum != nil && p.Maximum != nil && *p.Minimum > *p.Maximum {
			return eb.Wrap(ErrInvalidParameter, "minimum must be less than or equal to maximum")
		}
	}

	if p.Type == TypeString {
		if p.MinLength != nil && p.MaxLength != nil && *p.MinLength > *p.MaxLength {
			return eb.Wrap(ErrInvalidParameter, "minLength must be less than or equal to maxLength")
		}
		if p.Pattern != "" {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return eb.Wrap(ErrInvalidParameter, "invalid pattern", goerr.V("pattern", p.Pattern))
			}
		}
	}

	if p.Type == TypeArray {
		if p.MinItems != nil && p.MaxItems != nil && *p.MinItems > *p.MaxItems {
			return eb.Wrap(ErrInvalidParameter, "minItems must be less than or equal to maxItems")
		}
	}

	return nil
}

// FunctionCall is a fully reconstructed tool invocation request.
type FunctionCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Invoker dispatches a tool invocation to an external collaborator. The
// collaborator is treated as an opaque, possibly slow, possibly failing black
// box; timeouts are its own responsibility.
type Invoker interface {
	Invoke(ctx context.Context, toolName string, args map[string]any) (map[string]any, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, toolName string, args map[string]any) (map[string]any, error)

func (f InvokerFunc) Invoke(ctx context.Context, toolName string, args map[string]any) (map[string]any, error) {
	return f(ctx, toolName, args)
}

// SchemaProvider returns the parameter schema of a tool by name. It is used by
// the action state machine to evaluate readiness of a proposed call.
type SchemaProvider interface {
	ToolSpec(ctx context.Context, toolName string) (*ToolSpec, error)
}

// SpecSet is a static SchemaProvider over a fixed list of tool specifications.
type SpecSet map[string]*ToolSpec

// NewSpecSet builds a SpecSet and rejects duplicated or invalid specs.
func NewSpecSet(specs ...*ToolSpec) (SpecSet, error) {
	set := SpecSet{}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, ok := set[spec.Name]; ok {
			return nil, goerr.Wrap(ErrInvalidTool, "tool name conflict", goerr.V("tool_name", spec.Name))
		}
		set[spec.Name] = spec
	}
	return set, nil
}

func (s SpecSet) ToolSpec(ctx context.Context, toolName string) (*ToolSpec, error) {
	spec, ok := s[toolName]
	if !ok {
		return nil, goerr.Wrap(ErrInvalidTool, "tool not found", goerr.V("tool_name", toolName))
	}
	return spec, nil
}
