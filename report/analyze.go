package report

import (
	"math"

	"github.com/weiihann/pybench/harness"
)

// Stat summarizes a series of measurements.
type Stat struct {
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Stddev float64 `json:"stddev"`
}

// ToolStats aggregates the successful runs of one tool. Durations are in
// milliseconds, sizes in bytes.
type ToolStats struct {
	Tool           harness.Tool `json:"tool"`
	SuccessfulRuns int          `json:"successful_runs"`
	TotalRuns      int          `json:"total_runs"`
	Setup          Stat         `json:"setup_ms"`
	Resolve        Stat         `json:"resolve_ms"`
	Install        Stat         `json:"install_ms"`
	Total          Stat         `json:"total_ms"`
	LockSize       Stat         `json:"lock_file_size"`
	PeakMemory     uint64       `json:"peak_memory_bytes"`
}

// Succeeded reports whether at least one run completed.
func (s ToolStats) Succeeded() bool {
	return s.SuccessfulRuns > 0
}

// Speedup compares a tool's mean total time against a baseline tool.
// Factor above 1 means the tool is faster than the baseline.
type Speedup struct {
	Tool   harness.Tool `json:"tool"`
	Factor float64      `json:"factor"`
}

// Analyze computes per-tool statistics in benchmark order.
func Analyze(rep *harness.Report) []ToolStats {
	tools := rep.Tools()
	stats := make([]ToolStats, 0, len(tools))

	for _, tool := range tools {
		results := rep.ByTool(tool)

		s := ToolStats{Tool: tool, TotalRuns: len(results)}

		var setup, resolve, install, total, lock []float64

		for _, r := range results {
			if !r.Success() {
				continue
			}

			s.SuccessfulRuns++
			setup = append(setup, float64(r.SetupMs))
			resolve = append(resolve, float64(r.ResolveMs))
			install = append(install, float64(r.InstallMs))
			total = append(total, float64(totalMs(r)))
			lock = append(lock, float64(r.LockFileSize))
			s.PeakMemory = max(s.PeakMemory, r.PeakMemoryBytes)
		}

		s.Setup = summarize(setup)
		s.Resolve = summarize(resolve)
		s.Install = summarize(install)
		s.Total = summarize(total)
		s.LockSize = summarize(lock)

		stats = append(stats, s)
	}

	return stats
}

// Fastest returns the successful tool with the lowest mean total time.
func Fastest(stats []ToolStats) (ToolStats, bool) {
	var (
		best  ToolStats
		found bool
	)

	for _, s := range stats {
		if !s.Succeeded() {
			continue
		}

		if !found || s.Total.Mean < best.Total.Mean {
			best = s
			found = true
		}
	}

	return best, found
}

// SpeedupsVs returns the speedup of every other successful tool relative
// to baseline. It returns false when baseline has no successful run.
func SpeedupsVs(stats []ToolStats, baseline harness.Tool) ([]Speedup, bool) {
	var base *ToolStats

	for i := range stats {
		if stats[i].Tool == baseline && stats[i].Succeeded() {
			base = &stats[i]
		}
	}

	if base == nil || base.Total.Mean <= 0 {
		return nil, false
	}

	var speedups []Speedup

	for _, s := range stats {
		if s.Tool == baseline || !s.Succeeded() || s.Total.Mean <= 0 {
			continue
		}

		speedups = append(speedups, Speedup{
			Tool:   s.Tool,
			Factor: base.Total.Mean / s.Total.Mean,
		})
	}

	return speedups, true
}

// summarize uses the sample standard deviation, zero for fewer than two
// values.
func summarize(values []float64) Stat {
	if len(values) == 0 {
		return Stat{}
	}

	st := Stat{Min: values[0], Max: values[0]}

	var sum float64
	for _, v := range values {
		sum += v
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
	}

	st.Mean = sum / float64(len(values))

	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			d := v - st.Mean
			sq += d * d
		}

		st.Stddev = math.Sqrt(sq / float64(len(values)-1))
	}

	return st
}
