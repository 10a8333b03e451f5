package engine

import (
	"testing"
	"time"

	"github.com/jperaza/planwave/pkg/schema"
)

func wavesOf(groups ...[]string) *Waves {
	w := &Waves{Groups: groups, Level: make(map[string]int)}
	for i, g := range groups {
		for _, id := range g {
			w.Level[id] = i
		}
	}
	return w
}

func TestComputeMetricsAllSingletons(t *testing.T) {
	m := computeMetrics(wavesOf([]string{"a"}, []string{"b"}, []string{"c"}))

	if m.Speedup != 1.0 {
		t.Errorf("Speedup = %v, want exactly 1.0 for all-singleton waves", m.Speedup)
	}
	if m.StepsParallelized != 0 || m.ParallelGroups != 0 {
		t.Errorf("expected no parallel groups, got %+v", m)
	}
	if m.ParallelizationRatio != 0 {
		t.Errorf("ParallelizationRatio = %v, want 0", m.ParallelizationRatio)
	}
}

func TestComputeMetricsMixedWaves(t *testing.T) {
	// 1 serial step + one wave of 3: 4 steps over 2 waves.
	m := computeMetrics(wavesOf([]string{"a"}, []string{"b", "c", "d"}))

	if m.TotalSteps != 4 {
		t.Errorf("TotalSteps = %d, want 4", m.TotalSteps)
	}
	if m.Speedup != 2.0 {
		t.Errorf("Speedup = %v, want 2.0", m.Speedup)
	}
	if m.StepsParallelized != 3 {
		t.Errorf("StepsParallelized = %d, want 3", m.StepsParallelized)
	}
	if m.ParallelGroups != 1 {
		t.Errorf("ParallelGroups = %d, want 1", m.ParallelGroups)
	}
	if m.ParallelizationRatio != 0.75 {
		t.Errorf("ParallelizationRatio = %v, want 0.75", m.ParallelizationRatio)
	}
}

func TestComputeMetricsSpeedupNeverBelowOne(t *testing.T) {
	cases := []*Waves{
		wavesOf([]string{"a"}),
		wavesOf([]string{"a", "b"}),
		wavesOf([]string{"a"}, []string{"b"}, []string{"c", "d"}, []string{"e"}),
	}
	for _, w := range cases {
		if m := computeMetrics(w); m.Speedup < 1.0 {
			t.Errorf("Speedup = %v for %v, want >= 1.0", m.Speedup, w.Groups)
		}
	}
}

func TestRealizedSpeedup(t *testing.T) {
	now := time.Now().UTC()
	results := []*schema.StepResult{
		{StepID: "a", Status: schema.StepStatusCompleted, CompletedAt: &now, DurationMs: 100},
		{StepID: "b", Status: schema.StepStatusCompleted, CompletedAt: &now, DurationMs: 100},
		{StepID: "c", Status: schema.StepStatusPending}, // never ran, excluded
	}

	// 200ms of step work in 100ms of wall clock: 2x.
	if got := realizedSpeedup(results, 100); got != 2.0 {
		t.Errorf("realizedSpeedup = %v, want 2.0", got)
	}

	if got := realizedSpeedup(results, 0); got != 0 {
		t.Errorf("realizedSpeedup with zero wall clock = %v, want 0", got)
	}
	if got := realizedSpeedup(nil, 100); got != 0 {
		t.Errorf("realizedSpeedup with no results = %v, want 0", got)
	}
}
