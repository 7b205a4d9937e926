package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// stderrTailBytes is how much failing output is kept in a Result.
const stderrTailBytes = 4096

// waitDelay bounds how long Wait blocks on output pipes after the child
// has been killed.
const waitDelay = 5 * time.Second

// RunConfig holds parameters for a single tool run.
type RunConfig struct {
	WorkDir        string
	Timeout        time.Duration
	SampleInterval time.Duration
}

// Runner benchmarks one tool in a fresh environment directory per run.
type Runner struct {
	Tool        Tool
	Executables Executables
	Options     PlanOptions
	Logger      *slog.Logger
	// Progress receives one line per step when non-nil.
	Progress io.Writer
}

// NewRunner creates a Runner for tool.
func NewRunner(
	tool Tool,
	exe Executables,
	opts PlanOptions,
	logger *slog.Logger,
	progress io.Writer,
) *Runner {
	return &Runner{
		Tool:        tool,
		Executables: exe,
		Options:     opts,
		Logger:      logger.With(slog.String("tool", string(tool))),
		Progress:    progress,
	}
}

// Run performs run number run of the tool and always returns a Result.
// The error is a *SetupError, an *InvocationError or the context's error;
// the environment directory is removed before Run returns in every case.
func (r *Runner) Run(ctx context.Context, run int, cfg RunConfig) (*Result, error) {
	result := &Result{
		Tool:          r.Tool,
		Run:           run,
		Status:        StatusOK,
		PackagesCount: len(r.Options.Requirements),
		Timestamp:     time.Now().UTC(),
	}

	envDir, err := filepath.Abs(filepath.Join(
		cfg.WorkDir,
		fmt.Sprintf("%s-run%d-%s", r.Tool, run, uuid.NewString()[:8]),
	))
	if err != nil {
		return r.setupFailed(result, fmt.Errorf("resolve env dir: %w", err))
	}

	if err := os.RemoveAll(envDir); err != nil {
		return r.setupFailed(result, fmt.Errorf("clean env dir %s: %w", envDir, err))
	}

	if err := os.MkdirAll(envDir, 0o755); err != nil {
		return r.setupFailed(result, fmt.Errorf("create env dir %s: %w", envDir, err))
	}

	defer r.cleanup(envDir)

	if err := r.checkExecutables(); err != nil {
		return r.setupFailed(result, err)
	}

	plan, err := BuildPlan(r.Tool, r.Executables, r.Options, envDir)
	if err != nil {
		return r.setupFailed(result, err)
	}

	for name, content := range plan.Files {
		path := filepath.Join(envDir, name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return r.setupFailed(result, fmt.Errorf("write %s: %w", name, err))
		}
	}

	r.Logger.InfoContext(ctx, "starting run",
		slog.Int("run", run),
		slog.String("env_dir", envDir),
		slog.Int("packages", result.PackagesCount),
	)

	runStart := time.Now()

	for _, step := range plan.Steps {
		out, err := r.runStep(ctx, envDir, step, cfg)

		if out.peakRSS > result.PeakMemoryBytes {
			result.PeakMemoryBytes = out.peakRSS
		}

		elapsedMs := out.elapsed.Milliseconds()

		switch step.Phase {
		case PhaseSetup:
			result.SetupMs += elapsedMs
		case PhaseResolve:
			result.ResolveMs += elapsedMs
		case PhaseInstall:
			result.InstallMs += elapsedMs
		}

		if err == nil {
			r.progressf("%s run %d: %s %s\n",
				r.Tool, run, step.Name,
				out.elapsed.Round(time.Millisecond))

			continue
		}

		result.ExitCode = out.exitCode
		result.StderrTail = out.stderrTail

		if ctx.Err() != nil {
			result.Status = StatusCanceled
			result.Error = ctx.Err().Error()

			return result, ctx.Err()
		}

		if step.Phase == PhaseSetup {
			return r.setupFailed(result, err)
		}

		result.Status = StatusFailed
		result.Error = err.Error()

		r.Logger.ErrorContext(ctx, "step failed",
			slog.Int("run", run),
			slog.String("step", step.Name),
			slog.Int("exit_code", out.exitCode),
		)

		return result, err
	}

	if plan.LockFile != "" {
		result.LockFilePath = plan.LockFile

		info, err := os.Stat(filepath.Join(envDir, plan.LockFile))
		if err != nil {
			r.Logger.WarnContext(ctx, "lock file not produced",
				slog.String("lock_file", plan.LockFile),
				slog.String("error", err.Error()),
			)
		} else {
			result.LockFileSize = uint64(info.Size())
		}
	}

	r.Logger.InfoContext(ctx, "run finished",
		slog.Int("run", run),
		slog.Duration("wall_time", time.Since(runStart)),
		slog.Int64("install_ms", result.InstallMs),
		slog.Uint64("lock_file_size", result.LockFileSize),
	)

	return result, nil
}

type stepOutcome struct {
	elapsed    time.Duration
	peakRSS    uint64
	exitCode   int
	stderrTail string
}

// runStep executes one step, timing it and sampling the memory of the
// child process tree while it runs.
func (r *Runner) runStep(
	ctx context.Context,
	dir string,
	step Step,
	cfg RunConfig,
) (stepOutcome, error) {
	var out stepOutcome

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, step.Argv[0], step.Argv[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	if len(step.Env) > 0 {
		cmd.Env = append(os.Environ(), step.Env...)
	}

	configureProcess(cmd)

	var stdout bytes.Buffer

	stderr := newTailBuffer(stderrTailBytes)
	stdoutTail := newTailBuffer(stderrTailBytes)
	cmd.Stderr = stderr

	if step.StdoutFile != "" {
		cmd.Stdout = io.MultiWriter(&stdout, stdoutTail)
	} else {
		cmd.Stdout = stdoutTail
	}

	r.Logger.DebugContext(ctx, "exec",
		slog.String("step", step.Name),
		slog.Any("argv", step.Argv),
	)

	start := time.Now()

	if err := cmd.Start(); err != nil {
		out.exitCode = -1

		return out, r.invocationError(step, out, fmt.Errorf("start: %w", err))
	}

	sampler := startMemorySampler(cmd.Process.Pid, cfg.SampleInterval)
	waitErr := cmd.Wait()
	out.elapsed = time.Since(start)
	out.peakRSS = max(sampler.Stop(), maxRSS(cmd.ProcessState))

	if waitErr != nil {
		out.exitCode = -1

		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			out.exitCode = exitErr.ExitCode()
		}

		// Some tools report failures on stdout only.
		out.stderrTail = stderr.String()
		if out.stderrTail == "" {
			out.stderrTail = stdoutTail.String()
		}

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			waitErr = fmt.Errorf("timed out after %s: %w", cfg.Timeout, ctx.Err())
		}

		return out, r.invocationError(step, out, waitErr)
	}

	if step.StdoutFile != "" {
		path := filepath.Join(dir, step.StdoutFile)
		if err := os.WriteFile(path, stdout.Bytes(), 0o644); err != nil {
			return out, r.invocationError(step, out,
				fmt.Errorf("write %s: %w", step.StdoutFile, err))
		}
	}

	return out, nil
}

func (r *Runner) invocationError(step Step, out stepOutcome, err error) error {
	return &InvocationError{
		Tool:       r.Tool,
		Step:       step.Name,
		ExitCode:   out.exitCode,
		StderrTail: out.stderrTail,
		Err:        err,
	}
}

func (r *Runner) checkExecutables() error {
	for _, bin := range r.Executables.Required(r.Tool) {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrExecutableNotFound, bin, err)
		}
	}

	return nil
}

func (r *Runner) setupFailed(result *Result, err error) (*Result, error) {
	setupErr := &SetupError{Tool: r.Tool, Err: err}

	result.Status = StatusSetupFailed
	result.Error = setupErr.Error()

	r.Logger.Error("environment setup failed",
		slog.Int("run", result.Run),
		slog.String("error", err.Error()),
	)

	return result, setupErr
}

func (r *Runner) cleanup(envDir string) {
	if err := os.RemoveAll(envDir); err != nil {
		r.Logger.Warn("failed to remove env dir",
			slog.String("env_dir", envDir),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) progressf(format string, args ...any) {
	if r.Progress != nil {
		fmt.Fprintf(r.Progress, format, args...)
	}
}
