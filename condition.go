package conductor

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/m-mizutani/goerr/v2"
)

// ReadinessRule marks a tool call as under-specified even when no single
// declared parameter is absent. When the CEL expression evaluates to true
// against the call's argument map, the suggested parameter is surfaced as
// missing to drive the normal collection flow.
type ReadinessRule struct {
	// ToolName is the tool the rule applies to. Empty matches every tool.
	ToolName string

	// Expression is a CEL predicate over the variable `args`
	// (map[string]dyn). True means the call is under-specified.
	Expression string

	// Suggest is the synthesized missing-parameter name presented to the
	// client when the rule fires.
	Suggest string

	program cel.Program
}

// RuleSet holds compiled readiness rules.
type RuleSet struct {
	rules []*ReadinessRule
}

// DefaultReadinessRules returns the built-in rule set: a fetch-style call
// with no identifier, no filter and no explicit "all" marker prompts for
// filters.
func DefaultReadinessRules() []*ReadinessRule {
	return []*ReadinessRule{
		{
			ToolName:   "fetch",
			Expression: `!has(args.id) && !has(args.filters) && !(has(args.all) && args.all == true)`,
			Suggest:    "filters",
		},
	}
}

// NewRuleSet compiles the given rules. Compilation happens once, up front, so
// that evaluation during action analysis cannot fail on syntax.
func NewRuleSet(rules ...*ReadinessRule) (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create CEL environment")
	}

	for _, rule := range rules {
		ast, issues := env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, goerr.Wrap(issues.Err(), "failed to compile readiness rule",
				goerr.V("tool_name", rule.ToolName),
				goerr.V("expression", rule.Expression))
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to build readiness rule program",
				goerr.V("tool_name", rule.ToolName))
		}
		rule.program = program
	}

	return &RuleSet{rules: rules}, nil
}

// Evaluate returns the synthesized missing-parameter names for the given call.
// Evaluation errors degrade to "rule does not fire": an unevaluable rule must
// not block an otherwise complete call.
func (rs *RuleSet) Evaluate(toolName string, args map[string]any) []string {
	if rs == nil {
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}

	var suggested []string
	for _, rule := range rs.rules {
		if rule.ToolName != "" && rule.ToolName != toolName {
			continue
		}

		result, _, err := rule.program.Eval(map[string]any{"args": args})
		if err != nil {
			continue
		}
		if result.Type() != types.BoolType {
			continue
		}
		if result.Value().(bool) {
			suggested = append(suggested, rule.Suggest)
		}
	}

	return suggested
}
