package engine

import (
	"reflect"
	"testing"

	"github.com/jperaza/planwave/pkg/schema"
)

func planOf(steps ...schema.PlanStep) *schema.QueryPlan {
	return &schema.QueryPlan{Steps: steps}
}

func step(id, tool string, deps ...string) schema.PlanStep {
	return schema.PlanStep{ID: id, Tool: tool, DependsOn: deps}
}

func TestBuildWavesLinearChain(t *testing.T) {
	plan := planOf(
		step("a", "t"),
		step("b", "t", "a"),
		step("c", "t", "b"),
	)

	waves, err := BuildWaves(plan)
	if err != nil {
		t.Fatalf("BuildWaves failed: %v", err)
	}

	want := [][]string{{"a"}, {"b"}, {"c"}}
	if !reflect.DeepEqual(waves.Groups, want) {
		t.Errorf("Groups = %v, want %v", waves.Groups, want)
	}
}

func TestBuildWavesDiamond(t *testing.T) {
	plan := planOf(
		step("root", "t"),
		step("left", "t", "root"),
		step("right", "t", "root"),
		step("join", "t", "left", "right"),
	)

	waves, err := BuildWaves(plan)
	if err != nil {
		t.Fatalf("BuildWaves failed: %v", err)
	}

	want := [][]string{{"root"}, {"left", "right"}, {"join"}}
	if !reflect.DeepEqual(waves.Groups, want) {
		t.Errorf("Groups = %v, want %v", waves.Groups, want)
	}
	if waves.MaxWidth() != 2 {
		t.Errorf("MaxWidth = %d, want 2", waves.MaxWidth())
	}
}

func TestBuildWavesPreservesPlanOrderWithinWave(t *testing.T) {
	// All independent: a single wave in declared order, not sorted order.
	plan := planOf(
		step("zeta", "t"),
		step("alpha", "t"),
		step("mid", "t"),
	)

	waves, err := BuildWaves(plan)
	if err != nil {
		t.Fatalf("BuildWaves failed: %v", err)
	}

	want := [][]string{{"zeta", "alpha", "mid"}}
	if !reflect.DeepEqual(waves.Groups, want) {
		t.Errorf("Groups = %v, want %v", waves.Groups, want)
	}
}

// Every step appears in exactly one wave, and each step's wave index is
// strictly greater than each of its dependencies' wave indices.
func TestBuildWavesPartitionAndLevelInvariant(t *testing.T) {
	plan := planOf(
		step("0", "t"),
		step("1", "t", "0"),
		step("2", "t", "0"),
		step("3", "t", "1", "2"),
		step("4", "t"),
		step("5", "t", "4", "3"),
	)

	waves, err := BuildWaves(plan)
	if err != nil {
		t.Fatalf("BuildWaves failed: %v", err)
	}

	seen := make(map[string]int)
	for _, wave := range waves.Groups {
		for _, id := range wave {
			seen[id]++
		}
	}
	if len(seen) != len(plan.Steps) {
		t.Fatalf("waves cover %d steps, want %d", len(seen), len(plan.Steps))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("step %s appears %d times", id, n)
		}
	}

	for i := range plan.Steps {
		s := &plan.Steps[i]
		for _, dep := range s.DependsOn {
			if waves.Level[s.ID] <= waves.Level[dep] {
				t.Errorf("step %s at level %d not after dependency %s at level %d",
					s.ID, waves.Level[s.ID], dep, waves.Level[dep])
			}
		}
	}
}

func TestBuildWavesIdempotent(t *testing.T) {
	plan := planOf(
		step("a", "t"),
		step("b", "t", "a"),
		step("c", "t", "a"),
		step("d", "t", "b", "c"),
	)

	first, err := BuildWaves(plan)
	if err != nil {
		t.Fatalf("first BuildWaves failed: %v", err)
	}
	second, err := BuildWaves(plan)
	if err != nil {
		t.Fatalf("second BuildWaves failed: %v", err)
	}

	if !reflect.DeepEqual(first.Groups, second.Groups) {
		t.Errorf("leveling not idempotent: %v vs %v", first.Groups, second.Groups)
	}
}

func TestBuildWavesCycle(t *testing.T) {
	plan := planOf(
		step("0", "t", "1"),
		step("1", "t", "0"),
	)

	_, err := BuildWaves(plan)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	ee, ok := err.(*schema.EngineError)
	if !ok {
		t.Fatalf("expected *schema.EngineError, got %T", err)
	}
	if ee.Code != schema.ErrCodeCycleDetected {
		t.Errorf("Code = %s, want %s", ee.Code, schema.ErrCodeCycleDetected)
	}
	if !schema.IsPlanningError(err) {
		t.Error("cycle should classify as a planning error")
	}
}

func TestBuildWavesDanglingDependency(t *testing.T) {
	plan := planOf(
		step("a", "t"),
		step("b", "t", "ghost"),
	)

	_, err := BuildWaves(plan)
	if err == nil {
		t.Fatal("expected dangling dependency error")
	}
	ee, ok := err.(*schema.EngineError)
	if !ok {
		t.Fatalf("expected *schema.EngineError, got %T", err)
	}
	if ee.Code != schema.ErrCodePlanning {
		t.Errorf("Code = %s, want %s", ee.Code, schema.ErrCodePlanning)
	}
	if ee.StepID != "b" {
		t.Errorf("StepID = %s, want b", ee.StepID)
	}
}

func TestBuildWavesSelfDependency(t *testing.T) {
	plan := planOf(step("a", "t", "a"))

	_, err := BuildWaves(plan)
	if err == nil {
		t.Fatal("expected self-dependency error")
	}
	if ee, ok := err.(*schema.EngineError); !ok || ee.Code != schema.ErrCodeCycleDetected {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildWavesEmptyPlan(t *testing.T) {
	if _, err := BuildWaves(&schema.QueryPlan{}); err == nil {
		t.Fatal("expected validation error for empty plan")
	}
	if _, err := BuildWaves(nil); err == nil {
		t.Fatal("expected validation error for nil plan")
	}
}

func TestBuildWavesSingleStep(t *testing.T) {
	waves, err := BuildWaves(planOf(step("only", "t")))
	if err != nil {
		t.Fatalf("BuildWaves failed: %v", err)
	}
	if waves.WaveCount() != 1 || len(waves.Groups[0]) != 1 {
		t.Errorf("Groups = %v, want single singleton wave", waves.Groups)
	}
}
