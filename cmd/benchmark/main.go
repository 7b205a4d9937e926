// Package main provides the benchmark command, which times pip, poetry and
// uv installing the same package manifest.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/weiihann/pybench/config"
	"github.com/weiihann/pybench/harness"
	"github.com/weiihann/pybench/internal/cli"
	"github.com/weiihann/pybench/manifest"
	"github.com/weiihann/pybench/report"
)

func main() {
	cli.Execute(newRootCmd())
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Benchmark Python package managers",
		Long: `Benchmark creates a fresh isolated environment for pip (with venv),
poetry and uv, installs the same package manifest with each of them and
compares environment creation, resolution and installation time, peak
memory and lock file size.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger := cli.NewLogger(cmd.ErrOrStderr(), "benchmark", cfg.Verbose)

			return runBenchmark(cmd.Context(), logger, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	config.RegisterFlags(flags)
	flags.StringVar(&configFile, "config", "",
		"Config file (YAML, TOML or JSON)")

	return cmd
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.Config,
	stdout, stderr io.Writer,
) error {
	// Step 1: Load the manifest and resolve the tool selection.
	m, err := manifest.Load(cfg.Packages)
	if err != nil {
		return err
	}

	if m.Len() != manifest.CanonicalSize {
		logger.Warn("manifest is not the canonical size",
			slog.String("path", m.Path),
			slog.Int("packages", m.Len()),
			slog.Int("expected", manifest.CanonicalSize),
		)
	}

	tools, err := harness.SelectTools(cfg.Tools)
	if err != nil {
		return err
	}

	exe, err := harness.ParseExecutables(cfg.Python, cfg.Poetry, cfg.UV)
	if err != nil {
		return err
	}

	// Step 2: Make sure the report can be written before spending time on
	// installs.
	if err := checkWritable(cfg.ResultsDir); err != nil {
		return err
	}

	// Per-step timings go to stdout, except with --json where stdout
	// carries only the report.
	var progress io.Writer
	if cfg.Verbose {
		progress = stdout
		if cfg.JSON {
			progress = stderr
		}
	}

	// Step 3: Benchmark each tool sequentially.
	session := harness.NewSession(harness.SessionConfig{
		Tools:          tools,
		Runs:           cfg.Runs,
		Manifest:       m,
		Executables:    exe,
		NoCache:        cfg.NoCache,
		UVRequirements: cfg.UVRequirements,
		Run: harness.RunConfig{
			WorkDir: cfg.WorkDir,
			Timeout: cfg.Timeout,
		},
	}, logger, progress)

	rep, runErr := session.Run(ctx)
	if rep == nil {
		return runErr
	}

	// Step 4: Persist the report, including partial results after an
	// interrupt.
	path, err := report.Write(cfg.ResultsDir, rep, cfg.Compress)
	if err != nil {
		return err
	}

	logger.Info("report written", slog.String("path", path))

	// Step 5: Print the summary.
	if len(rep.Results) > 0 {
		if err := printSummary(stdout, rep, cfg.JSON); err != nil {
			return err
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return &cli.ExitError{Code: 1, Err: fmt.Errorf("interrupted: %w", runErr)}
		}

		return runErr
	}

	if failed := rep.Failed(); len(failed) > 0 {
		return &cli.ExitError{
			Code: 1,
			Err:  fmt.Errorf("%d of %d runs failed", len(failed), len(rep.Results)),
		}
	}

	logger.Info("benchmark complete")

	return nil
}

func printSummary(w io.Writer, rep *harness.Report, asJSON bool) error {
	if asJSON {
		if err := report.GenerateJSON(w, rep); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}

		return nil
	}

	var buf bytes.Buffer
	if err := report.Generate(&buf, rep); err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	return cli.RenderMarkdown(w, buf.String())
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}

	f, err := os.CreateTemp(dir, ".pybench-*")
	if err != nil {
		return fmt.Errorf("results dir %s is not writable: %w", dir, err)
	}

	f.Close()

	return os.Remove(f.Name())
}
