// Package report formats, persists and analyzes benchmark reports.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/weiihann/pybench/harness"
)

// Generate writes a markdown comparison table for the given report.
func Generate(w io.Writer, rep *harness.Report) error {
	if rep == nil || len(rep.Results) == 0 {
		return fmt.Errorf("no results to report")
	}

	fastestMs := findFastest(rep.Results)

	// Header.
	fmt.Fprintln(w, "## Benchmark Results")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Report `%s`: %d packages on %s/%s\n",
		rep.ID, rep.PackagesCount, rep.OS, rep.Arch)
	fmt.Fprintln(w)

	// Table header.
	fmt.Fprintln(w, "| Tool | Run | Status | Setup | Resolve | Install "+
		"| Peak Mem | Lock Size | Speedup |")
	fmt.Fprintln(w, "|------|-----|--------|-------|---------|---------"+
		"|----------|-----------|---------|")

	for _, r := range rep.Results {
		speedup := "-"
		if r.Success() && fastestMs > 0 {
			speedup = fmt.Sprintf("%.2fx", float64(totalMs(r))/float64(fastestMs))
		}

		fmt.Fprintf(w, "| %s | %d | %s | %s | %s | %s | %s | %s | %s |\n",
			r.Tool,
			r.Run,
			r.Status,
			formatMs(r.SetupMs),
			formatMs(r.ResolveMs),
			formatMs(r.InstallMs),
			formatBytes(r.PeakMemoryBytes),
			formatBytes(r.LockFileSize),
			speedup,
		)
	}

	if failed := rep.Failed(); len(failed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "### Failures")
		fmt.Fprintln(w)

		for _, r := range failed {
			fmt.Fprintf(w, "- %s run %d (exit %d): %s\n",
				r.Tool, r.Run, r.ExitCode, r.Error)

			if tail := lastLine(r.StderrTail); tail != "" {
				fmt.Fprintf(w, "  `%s`\n", tail)
			}
		}
	}

	if !hasRepeatedRuns(rep) {
		return nil
	}

	// Per-tool statistics.
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Tool | Successful | Mean | Min | Max | StdDev | Lock Size |")
	fmt.Fprintln(w, "|------|------------|------|-----|-----|--------|-----------|")

	for _, s := range Analyze(rep) {
		if s.SuccessfulRuns == 0 {
			fmt.Fprintf(w, "| %s | 0/%d | - | - | - | - | - |\n", s.Tool, s.TotalRuns)

			continue
		}

		fmt.Fprintf(w, "| %s | %d/%d | %s | %s | %s | %s | %s |\n",
			s.Tool,
			s.SuccessfulRuns, s.TotalRuns,
			formatMs(int64(s.Total.Mean)),
			formatMs(int64(s.Total.Min)),
			formatMs(int64(s.Total.Max)),
			formatMs(int64(s.Total.Stddev)),
			formatBytes(uint64(s.LockSize.Mean)),
		)
	}

	return nil
}

// GenerateJSON writes the report as indented JSON to w.
func GenerateJSON(w io.Writer, rep *harness.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(rep)
}

// totalMs is the measured time of a run: environment creation, resolution
// and installation.
func totalMs(r harness.Result) int64 {
	return r.SetupMs + r.ResolveMs + r.InstallMs
}

func findFastest(results []harness.Result) int64 {
	fastest := int64(math.MaxInt64)
	for _, r := range results {
		if t := totalMs(r); r.Success() && t > 0 && t < fastest {
			fastest = t
		}
	}

	if fastest == math.MaxInt64 {
		return 0
	}

	return fastest
}

func hasRepeatedRuns(rep *harness.Report) bool {
	counts := make(map[harness.Tool]int)
	for _, r := range rep.Results {
		counts[r.Tool]++
		if counts[r.Tool] > 1 {
			return true
		}
	}

	return false
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}

	return strings.ReplaceAll(strings.TrimSpace(s), "`", "'")
}

func formatMs(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}

	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(b)
	unit := 0

	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}

	formatted := fmt.Sprintf("%.1f", size)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")

	return formatted + " " + units[unit]
}
