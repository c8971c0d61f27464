package conductor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Resolver substitutes placeholder expressions embedded in step arguments with
// values from the dependency store. Resolution is a pure read: it never fails,
// and a placeholder that cannot be satisfied degrades to its fallback text or
// is left in place. Substituted text is final and never re-scanned.
type Resolver struct {
	store *Store
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

var (
	// {{step:<stepId>.<dotted.path>[|<helper>]}}
	stepRefRegex = regexp.MustCompile(`\{\{step:([A-Za-z0-9_-]+)\.([^}|]+?)(?:\|([^}]+))?\}\}`)

	// {{plan:<tag>[|<helper>]}}
	planRefRegex = regexp.MustCompile(`\{\{plan:([^}|]+?)(?:\|([^}]+))?\}\}`)

	helperRegex = regexp.MustCompile(`^\s*([a-zA-Z_]+)\s*\((.*)\)\s*$`)
)

// Resolve walks an arbitrary JSON-like value and replaces every placeholder
// expression found in its strings. Arrays keep order and length, mappings keep
// all keys, and non-string scalars pass through unchanged.
func (r *Resolver) Resolve(planID string, input any) any {
	switch v := input.(type) {
	case string:
		return r.resolveString(planID, v)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = r.Resolve(planID, elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, elem := range v {
			out[key] = r.Resolve(planID, elem)
		}
		return out
	default:
		return input
	}
}

// ResolveArgs resolves a full argument map. Keys are preserved.
func (r *Resolver) ResolveArgs(planID string, args map[string]any) map[string]any {
	resolved, ok := r.Resolve(planID, args).(map[string]any)
	if !ok {
		return args
	}
	return resolved
}

type refMatch struct {
	start, end int
	replace    func() (string, bool)
}

// resolveString scans the original string left to right so that earlier
// replacements never perturb later match positions.
func (r *Resolver) resolveString(planID, input string) string {
	var matches []refMatch

	for _, m := range stepRefRegex.FindAllStringSubmatchIndex(input, -1) {
		stepID := input[m[2]:m[3]]
		path := input[m[4]:m[5]]
		helper := ""
		if m[6] >= 0 {
			helper = input[m[6]:m[7]]
		}
		matches = append(matches, refMatch{
			start: m[0], end: m[1],
			replace: func() (string, bool) {
				value, ok := r.lookupStep(planID, stepID, path)
				return applyHelper(value, ok, helper)
			},
		})
	}

	for _, m := range planRefRegex.FindAllStringSubmatchIndex(input, -1) {
		tag := input[m[2]:m[3]]
		helper := ""
		if m[4] >= 0 {
			helper = input[m[4]:m[5]]
		}
		matches = append(matches, refMatch{
			start: m[0], end: m[1],
			replace: func() (string, bool) {
				value, ok := r.store.PlanData(planID, tag)
				return applyHelper(value, ok, helper)
			},
		})
	}

	if len(matches) == 0 {
		return input
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	var sb strings.Builder
	pos := 0
	for _, m := range matches {
		if m.start < pos {
			continue
		}
		sb.WriteString(input[pos:m.start])
		if text, ok := m.replace(); ok {
			sb.WriteString(text)
		} else {
			// Resolution miss without fallback: leave the placeholder in place.
			sb.WriteString(input[m.start:m.end])
		}
		pos = m.end
	}
	sb.WriteString(input[pos:])

	return sb.String()
}

// lookupStep fetches a completed step result and walks the dotted path into
// its raw output. A missing intermediate key yields undefined, not an error.
func (r *Resolver) lookupStep(planID, stepID, path string) (any, bool) {
	result, ok := r.store.StepResult(planID, stepID)
	if !ok || result.RawOutput == nil {
		return nil, false
	}

	var current any = result.RawOutput
	for _, key := range strings.Split(path, ".") {
		mapping, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = mapping[key]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// applyHelper applies an optional transformation helper to a resolved value
// and returns the substitution text. Unknown helper syntax is ignored and the
// value passes through unmodified.
func applyHelper(value any, found bool, helper string) (string, bool) {
	name, arg := parseHelper(helper)

	if !found {
		if name == "fallback" {
			return unquote(arg), true
		}
		return "", false
	}

	switch name {
	case "truncate":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 0 {
			break
		}
		text := stringify(value)
		if len(text) > n {
			return text[:n] + "...", true
		}
		return text, true

	case "extract":
		field := unquote(arg)
		mapping, ok := value.(map[string]any)
		if !ok {
			break
		}
		projected, ok := mapping[field]
		if !ok {
			return "", false
		}
		return stringify(projected), true
	}

	return stringify(value), true
}

func parseHelper(helper string) (name, arg string) {
	if helper == "" {
		return "", ""
	}
	m := helperRegex.FindStringSubmatch(helper)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// stringify produces the natural string form of a resolved value. Composite
// values embed as JSON.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case map[string]any, []any:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
