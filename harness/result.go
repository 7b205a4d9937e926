// Package harness runs Python package managers against a manifest and
// measures how long they take to create an environment, resolve and
// install it.
package harness

import "time"

// Status describes how a single benchmark run ended.
type Status string

const (
	// StatusOK means every step exited zero.
	StatusOK Status = "ok"
	// StatusFailed means a resolve, install or lock step exited non-zero.
	StatusFailed Status = "failed"
	// StatusSetupFailed means the isolated environment could not be
	// created.
	StatusSetupFailed Status = "setup_failed"
	// StatusCanceled means the run was interrupted.
	StatusCanceled Status = "canceled"
)

// Result holds the measurements of one run of one tool.
type Result struct {
	Tool            Tool      `json:"tool"`
	Run             int       `json:"run_number"`
	Status          Status    `json:"status"`
	SetupMs         int64     `json:"setup_ms"`
	ResolveMs       int64     `json:"resolve_ms"`
	InstallMs       int64     `json:"install_ms"`
	PeakMemoryBytes uint64    `json:"peak_memory_bytes"`
	LockFilePath    string    `json:"lock_file_path,omitempty"`
	LockFileSize    uint64    `json:"lock_file_size"`
	PackagesCount   int       `json:"packages_count"`
	ExitCode        int       `json:"exit_code"`
	Error           string    `json:"error,omitempty"`
	StderrTail      string    `json:"stderr_tail,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Success reports whether the run completed.
func (r Result) Success() bool {
	return r.Status == StatusOK
}

// Report is the ordered outcome of one benchmark invocation.
type Report struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	FinishedAt    time.Time `json:"finished_at"`
	OS            string    `json:"os"`
	Arch          string    `json:"arch"`
	PackagesCount int       `json:"packages_count"`
	Results       []Result  `json:"results"`
}

// Failed returns the results that did not complete.
func (r *Report) Failed() []Result {
	var failed []Result

	for _, res := range r.Results {
		if !res.Success() {
			failed = append(failed, res)
		}
	}

	return failed
}

// Tools returns the distinct tools in the order they were benchmarked.
func (r *Report) Tools() []Tool {
	seen := make(map[Tool]bool)

	var tools []Tool

	for _, res := range r.Results {
		if !seen[res.Tool] {
			seen[res.Tool] = true
			tools = append(tools, res.Tool)
		}
	}

	return tools
}

// ByTool returns the results recorded for tool, in run order.
func (r *Report) ByTool(tool Tool) []Result {
	var results []Result

	for _, res := range r.Results {
		if res.Tool == tool {
			results = append(results, res)
		}
	}

	return results
}
