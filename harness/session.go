package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/weiihann/pybench/manifest"
)

// SessionConfig describes one benchmark invocation.
type SessionConfig struct {
	Tools          []Tool
	Runs           int
	Manifest       *manifest.Manifest
	Executables    Executables
	NoCache        bool
	UVRequirements bool
	Run            RunConfig
}

// Session benchmarks every selected tool sequentially and builds a Report.
type Session struct {
	cfg      SessionConfig
	logger   *slog.Logger
	progress io.Writer
}

// NewSession creates a Session. progress, if non-nil, receives per-step
// timings.
func NewSession(cfg SessionConfig, logger *slog.Logger, progress io.Writer) *Session {
	return &Session{
		cfg:      cfg,
		logger:   logger,
		progress: progress,
	}
}

// Run benchmarks the tools in order. A failing tool never stops the
// remaining ones. The returned Report holds one Result per attempted run;
// it is non-nil even when ctx is canceled part way, in which case the
// context's error is returned alongside it.
func (s *Session) Run(ctx context.Context) (*Report, error) {
	if s.cfg.Manifest == nil || s.cfg.Manifest.Len() == 0 {
		return nil, manifest.ErrEmpty
	}

	runs := s.cfg.Runs
	if runs < 1 {
		runs = 1
	}

	runCfg := s.cfg.Run

	if runCfg.WorkDir == "" {
		dir, err := os.MkdirTemp("", "pybench-")
		if err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}

		defer os.Remove(dir)

		runCfg.WorkDir = dir
	} else if err := os.MkdirAll(runCfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir %s: %w", runCfg.WorkDir, err)
	}

	workDir, err := filepath.Abs(runCfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}

	runCfg.WorkDir = workDir

	report := &Report{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		PackagesCount: s.cfg.Manifest.Len(),
		Results:       make([]Result, 0, len(s.cfg.Tools)*runs),
	}

	opts := PlanOptions{
		Requirements:   s.cfg.Manifest.Requirements,
		NoCache:        s.cfg.NoCache,
		UVRequirements: s.cfg.UVRequirements,
	}

	s.logger.InfoContext(ctx, "starting benchmark",
		slog.String("report_id", report.ID),
		slog.Any("tools", s.cfg.Tools),
		slog.Int("runs", runs),
		slog.Int("packages", report.PackagesCount),
		slog.String("work_dir", runCfg.WorkDir),
	)

	for _, tool := range s.cfg.Tools {
		runner := NewRunner(tool, s.cfg.Executables, opts, s.logger, s.progress)

		for run := 1; run <= runs; run++ {
			if err := ctx.Err(); err != nil {
				return s.finish(report), err
			}

			result, runErr := runner.Run(ctx, run, runCfg)
			report.Results = append(report.Results, *result)

			if runErr == nil {
				continue
			}

			if ctx.Err() != nil {
				s.logger.WarnContext(ctx, "benchmark interrupted",
					slog.String("tool", string(tool)),
					slog.Int("run", run),
				)

				return s.finish(report), runErr
			}

			if errors.Is(runErr, ErrExecutableNotFound) {
				s.logger.WarnContext(ctx, "tool unavailable, skipping remaining runs",
					slog.String("tool", string(tool)),
					slog.Int("skipped", runs-run),
					slog.String("error", runErr.Error()),
				)

				break
			}

			s.logger.WarnContext(ctx, "run failed, continuing",
				slog.String("tool", string(tool)),
				slog.Int("run", run),
				slog.String("error", runErr.Error()),
			)
		}
	}

	return s.finish(report), nil
}

func (s *Session) finish(report *Report) *Report {
	report.FinishedAt = time.Now().UTC()

	return report
}
