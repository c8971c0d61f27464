package conductor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPClient is a tool collaborator backed by an MCP server. It serves both
// sides of the coordinator's tool contract: schema discovery (SchemaProvider)
// and dispatch (Invoker).
type MCPClient struct {
	// For local MCP server
	path    string
	args    []string
	envVars []string

	// For remote MCP server
	baseURL string
	headers map[string]string

	// Common client
	client     *client.Client
	initResult *mcp.InitializeResult
	specs      SpecSet

	initMutex sync.Mutex
}

// MCPonStdioOption is the option for the MCP client for local MCP executable server via stdio.
type MCPonStdioOption func(*MCPClient)

// WithEnvVars sets the environment variables for the MCP client. It appends the environment variables to the existing ones.
func WithEnvVars(envVars []string) MCPonStdioOption {
	return func(m *MCPClient) {
		m.envVars = append(m.envVars, envVars...)
	}
}

// MCPonSSEOption is the option for the MCP client for remote MCP server via HTTP SSE.
type MCPonSSEOption func(*MCPClient)

// WithHeaders sets the headers for the MCP client. It replaces the existing headers setting.
func WithHeaders(headers map[string]string) MCPonSSEOption {
	return func(m *MCPClient) {
		m.headers = headers
	}
}

// NewMCPStdio creates an MCP client for a local executable server.
func NewMCPStdio(path string, args []string, options ...MCPonStdioOption) *MCPClient {
	c := &MCPClient{
		path: path,
		args: args,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// NewMCPSSE creates an MCP client for a remote HTTP SSE server.
func NewMCPSSE(baseURL string, options ...MCPonSSEOption) *MCPClient {
	c := &MCPClient{
		baseURL: baseURL,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Start connects to the server, initializes the protocol and discovers the
// tool schemas. It is idempotent.
func (c *MCPClient) Start(ctx context.Context) error {
	c.initMutex.Lock()
	defer c.initMutex.Unlock()

	if c.initResult != nil {
		return nil
	}

	var tp transport.Interface
	if c.path != "" {
		tp = transport.NewStdio(c.path, c.envVars, c.args...)
	}

	if c.baseURL != "" {
		sse, err := transport.NewSSE(c.baseURL, transport.WithHeaders(c.headers))
		if err != nil {
			return goerr.Wrap(err, "failed to create SSE transport")
		}
		tp = sse
	}

	if tp == nil {
		return goerr.New("no transport")
	}

	c.client = client.NewClient(tp)

	if err := c.client.Start(ctx); err != nil {
		return goerr.Wrap(err, "failed to start MCP client")
	}

	var initRequest mcp.InitializeRequest
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "conductor",
		Version: "0.0.1",
	}

	resp, err := c.client.Initialize(ctx, initRequest)
	if err != nil {
		return goerr.Wrap(err, "failed to initialize MCP client")
	}
	c.initResult = resp

	tools, err := c.listTools(ctx)
	if err != nil {
		return err
	}

	specs := SpecSet{}
	for _, tool := range tools {
		spec, err := mcpToolToSpec(tool)
		if err != nil {
			return err
		}
		specs[spec.Name] = spec
	}
	c.specs = specs

	return nil
}

// Close shuts down the connection to the server.
func (c *MCPClient) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close MCP client")
	}
	return nil
}

func (c *MCPClient) listTools(ctx context.Context) ([]mcp.Tool, error) {
	resp, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tools")
	}

	return resp.Tools, nil
}

// ToolSpec implements SchemaProvider over the discovered tool schemas.
func (c *MCPClient) ToolSpec(ctx context.Context, toolName string) (*ToolSpec, error) {
	c.initMutex.Lock()
	specs := c.specs
	c.initMutex.Unlock()

	if specs == nil {
		return nil, goerr.New("MCP client not initialized")
	}
	return specs.ToolSpec(ctx, toolName)
}

// Invoke implements Invoker by dispatching the call to the MCP server.
func (c *MCPClient) Invoke(ctx context.Context, toolName string, args map[string]any) (map[string]any, error) {
	if c.initResult == nil {
		return nil, goerr.New("MCP client not initialized")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args
	resp, err := c.client.CallTool(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call tool", goerr.V("tool_name", toolName))
	}

	return mcpContentToMap(resp.Content), nil
}

func valueOrEmpty[T any](v any) T {
	var empty T
	if v == nil {
		return empty
	}
	if v, ok := v.(T); ok {
		return v
	}
	return empty
}

func mcpToolToSpec(tool mcp.Tool) (*ToolSpec, error) {
	parameters, err := inputSchemaToParameters(tool.InputSchema)
	if err != nil {
		return nil, err
	}

	return &ToolSpec{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  parameters,
		Required:    tool.InputSchema.Required,
	}, nil
}

func inputSchemaToParameters(inputSchema mcp.ToolInputSchema) (map[string]*Parameter, error) {
	parameters := map[string]*Parameter{}

	for name, property := range inputSchema.Properties {
		prop, ok := property.(map[string]any)
		if !ok {
			return nil, goerr.Wrap(ErrInvalidInputSchema, "invalid property", goerr.V("property", property))
		}

		parameter, err := propertyToParameter(name, prop)
		if err != nil {
			return nil, err
		}
		parameters[name] = parameter
	}

	return parameters, nil
}

func propertyToParameter(name string, prop map[string]any) (*Parameter, error) {
	var properties map[string]*Parameter
	var items *Parameter
	var required []string
	propType := valueOrEmpty[string](prop["type"])

	if propType == "object" {
		properties = map[string]*Parameter{}
		nestedProperty := valueOrEmpty[map[string]any](prop["properties"])

		for k, v := range nestedProperty {
			nested, ok := v.(map[string]any)
			if !ok {
				return nil, goerr.Wrap(ErrInvalidInputSchema, "invalid nested property", goerr.V("name", k))
			}
			objParam, err := propertyToParameter(k, nested)
			if err != nil {
				return nil, err
			}
			properties[k] = objParam
		}

		for _, v := range valueOrEmpty[[]any](prop["required"]) {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}

	if propType == "array" {
		itemsProp, ok := prop["items"].(map[string]any)
		if !ok {
			return nil, goerr.Wrap(ErrInvalidInputSchema, "array property without items", goerr.V("name", name))
		}
		v, err := propertyToParameter(name, itemsProp)
		if err != nil {
			return nil, err
		}
		items = v
	}

	var enum []string
	for _, v := range valueOrEmpty[[]any](prop["enum"]) {
		if s, ok := v.(string); ok {
			enum = append(enum, s)
		}
	}

	return &Parameter{
		Type:        ParameterType(propType),
		Title:       valueOrEmpty[string](prop["title"]),
		Description: valueOrEmpty[string](prop["description"]),
		Required:    required,
		Enum:        enum,
		Properties:  properties,
		Items:       items,
	}, nil
}

// mcpContentToMap converts an MCP tool result to the map form the store keeps.
// Text content that parses as a JSON object is kept structured; anything else
// lands under "result".
func mcpContentToMap(contents []mcp.Content) map[string]any {
	for _, c := range contents {
		if txt, ok := c.(*mcp.TextContent); ok {
			var v any
			if err := json.Unmarshal([]byte(txt.Text), &v); err == nil {
				if mapData, ok := v.(map[string]any); ok {
					return mapData
				}

				return map[string]any{
					"result": v,
				}
			}

			return map[string]any{
				"result": txt.Text,
			}
		}
	}

	// No appropriate content found
	return map[string]any{}
}
