package conductor_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/conductor"
)

func newTestResolver(t *testing.T) (*conductor.Store, *conductor.Resolver) {
	t.Helper()
	store := conductor.NewStore()
	return store, conductor.NewResolver(store)
}

func saveOutput(store *conductor.Store, planID, stepID string, output map[string]any) {
	store.SaveStepResult(&conductor.StepResult{
		PlanID:    planID,
		StepID:    stepID,
		Status:    conductor.StepStatusCompleted,
		RawOutput: output,
	})
}

func TestResolveString(t *testing.T) {
	store, resolver := newTestResolver(t)
	saveOutput(store, "plan1", "s1", map[string]any{
		"id":    "T-42",
		"count": float64(3),
		"user":  map[string]any{"name": "mizutani", "email": "m@example.com"},
		"tags":  []any{"a", "b"},
	})

	t.Run("no placeholder is identity", func(t *testing.T) {
		gt.Equal(t, resolver.Resolve("plan1", "plain text"), "plain text")
	})

	t.Run("step reference", func(t *testing.T) {
		got := resolver.Resolve("plan1", "ticket is {{step:s1.id}}")
		gt.Equal(t, got, "ticket is T-42")
	})

	t.Run("dotted path", func(t *testing.T) {
		got := resolver.Resolve("plan1", "{{step:s1.user.name}}")
		gt.Equal(t, got, "mizutani")
	})

	t.Run("non-string value stringifies", func(t *testing.T) {
		gt.Equal(t, resolver.Resolve("plan1", "{{step:s1.count}}"), "3")
		gt.Equal(t, resolver.Resolve("plan1", "{{step:s1.tags}}"), `["a","b"]`)
	})

	t.Run("multiple references in one string", func(t *testing.T) {
		got := resolver.Resolve("plan1", "{{step:s1.id}}: {{step:s1.user.name}}")
		gt.Equal(t, got, "T-42: mizutani")
	})

	t.Run("unknown step stays in place", func(t *testing.T) {
		got := resolver.Resolve("plan1", "see {{step:nope.id}}")
		gt.Equal(t, got, "see {{step:nope.id}}")
	})

	t.Run("unknown path stays in place", func(t *testing.T) {
		got := resolver.Resolve("plan1", "{{step:s1.user.phone}}")
		gt.Equal(t, got, "{{step:s1.user.phone}}")
	})

	t.Run("other plans cannot see the scope", func(t *testing.T) {
		got := resolver.Resolve("plan2", "{{step:s1.id}}")
		gt.Equal(t, got, "{{step:s1.id}}")
	})
}

func TestResolvePlanTags(t *testing.T) {
	store, resolver := newTestResolver(t)
	store.SavePlanData("plan1", "ticket_id", "T-9")
	store.SavePlanData("plan1", "report.date", "2025-06-01")

	gt.Equal(t, resolver.Resolve("plan1", "{{plan:ticket_id}}"), "T-9")
	gt.Equal(t, resolver.Resolve("plan1", "{{plan:report.date}}"), "2025-06-01")
	gt.Equal(t, resolver.Resolve("plan1", "{{plan:missing}}"), "{{plan:missing}}")
	gt.Equal(t, resolver.Resolve("plan1", `{{plan:missing|fallback("none")}}`), "none")
}

func TestResolveHelpers(t *testing.T) {
	store, resolver := newTestResolver(t)
	saveOutput(store, "plan1", "s1", map[string]any{
		"body": strings.Repeat("x", 100),
		"user": map[string]any{"name": "mizutani", "email": "m@example.com"},
	})

	t.Run("truncate clips long values", func(t *testing.T) {
		got := resolver.Resolve("plan1", "{{step:s1.body|truncate(10)}}").(string)
		gt.Equal(t, got, strings.Repeat("x", 10)+"...")
	})

	t.Run("truncate keeps short values", func(t *testing.T) {
		got := resolver.Resolve("plan1", "{{step:s1.user.name|truncate(100)}}")
		gt.Equal(t, got, "mizutani")
	})

	t.Run("extract projects a field", func(t *testing.T) {
		got := resolver.Resolve("plan1", `{{step:s1.user|extract("email")}}`)
		gt.Equal(t, got, "m@example.com")
	})

	t.Run("extract miss stays in place", func(t *testing.T) {
		got := resolver.Resolve("plan1", `{{step:s1.user|extract("phone")}}`)
		gt.Equal(t, got, `{{step:s1.user|extract("phone")}}`)
	})

	t.Run("fallback fires only on resolution miss", func(t *testing.T) {
		gt.Equal(t, resolver.Resolve("plan1", `{{step:s1.user.name|fallback("anon")}}`), "mizutani")
		gt.Equal(t, resolver.Resolve("plan1", `{{step:nope.id|fallback("anon")}}`), "anon")
	})

	t.Run("unknown helper passes value through", func(t *testing.T) {
		got := resolver.Resolve("plan1", "{{step:s1.user.name|shout()}}")
		gt.Equal(t, got, "mizutani")
	})
}

func TestResolveSubstitutionIsFinal(t *testing.T) {
	store, resolver := newTestResolver(t)
	// The resolved value itself looks like a placeholder; it must not be
	// resolved a second time.
	saveOutput(store, "plan1", "s1", map[string]any{"tricky": "{{step:s1.tricky}}"})

	got := resolver.Resolve("plan1", "value: {{step:s1.tricky}}")
	gt.Equal(t, got, "value: {{step:s1.tricky}}")
}

func TestResolveStructured(t *testing.T) {
	store, resolver := newTestResolver(t)
	saveOutput(store, "plan1", "s1", map[string]any{"id": "T-1"})

	t.Run("nested containers", func(t *testing.T) {
		input := map[string]any{
			"query": "{{step:s1.id}}",
			"limit": 10,
			"tags":  []any{"{{step:s1.id}}", "static", true},
			"meta":  map[string]any{"ref": "{{step:s1.id}}"},
		}

		got := resolver.ResolveArgs("plan1", input)
		gt.Equal(t, got["query"], "T-1")
		gt.Equal(t, got["limit"], 10)
		gt.Equal[any](t, got["tags"], []any{"T-1", "static", true})
		gt.Equal[any](t, got["meta"], map[string]any{"ref": "T-1"})
	})

	t.Run("input is not mutated", func(t *testing.T) {
		input := map[string]any{"query": "{{step:s1.id}}"}
		_ = resolver.ResolveArgs("plan1", input)
		gt.Equal(t, input["query"], "{{step:s1.id}}")
	})
}
