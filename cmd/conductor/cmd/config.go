package cmd

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/m-mizutani/conductor"
)

// Config is the CLI configuration file layout.
type Config struct {
	ContinueOnError bool          `yaml:"continue_on_error"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`

	MCP MCPConfig `yaml:"mcp"`
}

// MCPConfig selects the MCP server to execute tools against. Exactly one of
// Command or URL should be set.
type MCPConfig struct {
	// Local executable server via stdio
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`

	// Remote server via HTTP SSE
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}

	return cfg, nil
}

func (c *Config) newMCPClient() (*conductor.MCPClient, error) {
	switch {
	case c.MCP.Command != "":
		return conductor.NewMCPStdio(c.MCP.Command, c.MCP.Args, conductor.WithEnvVars(c.MCP.Env)), nil
	case c.MCP.URL != "":
		return conductor.NewMCPSSE(c.MCP.URL, conductor.WithHeaders(c.MCP.Headers)), nil
	default:
		return nil, goerr.New("config must set either mcp.command or mcp.url")
	}
}

// PlanFile is the YAML layout of a plan given to the run command.
type PlanFile struct {
	Input string           `yaml:"input"`
	Steps []conductor.Step `yaml:"steps"`
}

func loadPlanFile(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read plan file", goerr.V("path", path))
	}

	var plan PlanFile
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, goerr.Wrap(err, "failed to parse plan file", goerr.V("path", path))
	}
	if len(plan.Steps) == 0 {
		return nil, goerr.New("plan file has no steps", goerr.V("path", path))
	}

	return &plan, nil
}
