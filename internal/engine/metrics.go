package engine

import (
	"github.com/jperaza/planwave/pkg/schema"
)

// computeMetrics derives the parallelism figures for a schedule. The speedup
// is a shape-based estimate assuming uniform step cost: a serial execution
// takes one unit per step, the leveled execution takes one unit per wave.
// An all-singleton schedule therefore reports exactly 1.0.
func computeMetrics(waves *Waves) *schema.ParallelMetrics {
	total := 0
	parallelized := 0
	groups := 0
	for _, wave := range waves.Groups {
		total += len(wave)
		if len(wave) > 1 {
			parallelized += len(wave)
			groups++
		}
	}
	if total == 0 {
		return &schema.ParallelMetrics{Speedup: 1.0}
	}

	m := &schema.ParallelMetrics{
		TotalSteps:           total,
		StepsParallelized:    parallelized,
		ParallelGroups:       groups,
		ParallelizationRatio: float64(parallelized) / float64(total),
		Speedup:              float64(total) / float64(len(waves.Groups)),
	}
	if m.Speedup < 1.0 {
		m.Speedup = 1.0
	}
	return m
}

// realizedSpeedup estimates the speedup actually observed in a finished run:
// the sum of individual step durations over the wall-clock duration. Labeled
// an estimate because step costs are never uniform and no serial comparison
// run happens.
func realizedSpeedup(results []*schema.StepResult, wallMs int64) float64 {
	if wallMs <= 0 {
		return 0
	}
	var sumMs int64
	for _, r := range results {
		if r != nil && r.CompletedAt != nil {
			sumMs += r.DurationMs
		}
	}
	if sumMs <= 0 {
		return 0
	}
	return float64(sumMs) / float64(wallMs)
}
