// Package main provides the analyze command, which summarizes a stored
// benchmark report.
package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/weiihann/pybench/config"
	"github.com/weiihann/pybench/harness"
	"github.com/weiihann/pybench/internal/cli"
	"github.com/weiihann/pybench/report"
)

func main() {
	cli.Execute(newRootCmd())
}

func newRootCmd() *cobra.Command {
	var resultsDir string

	cmd := &cobra.Command{
		Use:   "analyze [results-file]",
		Short: "Summarize a benchmark report",
		Long: `Analyze loads a report written by benchmark (plain or zstd-compressed)
and prints per-tool statistics, the fastest tool and each tool's speedup
relative to pip. Without an argument the newest report in --results-dir is
used.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := reportPath(args, resultsDir)
			if err != nil {
				return err
			}

			rep, err := report.Load(path)
			if err != nil {
				return err
			}

			return analyze(cmd.OutOrStdout(), path, rep)
		},
	}

	cmd.Flags().StringVar(&resultsDir, "results-dir", config.Default().ResultsDir,
		"Directory searched for the newest report")

	return cmd
}

func reportPath(args []string, resultsDir string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	return report.Latest(resultsDir)
}

func analyze(w io.Writer, path string, rep *harness.Report) error {
	stats := report.Analyze(rep)
	if len(stats) == 0 {
		return fmt.Errorf("report %s has no results", path)
	}

	fmt.Fprintln(w, cli.TitleStyle.Render("Benchmark analysis"))
	fmt.Fprintln(w, cli.SubtitleStyle.Render(fmt.Sprintf("%s: %d packages, %s/%s, %s",
		path, rep.PackagesCount, rep.OS, rep.Arch, rep.CreatedAt.Format("2006-01-02 15:04:05"))))
	fmt.Fprintln(w)

	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, statsRow(s))
	}

	fmt.Fprintln(w, cli.Table([]string{
		"Tool", "Runs", "Mean", "Min", "Max", "StdDev", "Install", "Lock Size", "Peak Mem",
	}, rows))
	fmt.Fprintln(w)

	fastest, ok := report.Fastest(stats)
	if !ok {
		fmt.Fprintln(w, cli.ErrorStyle.Render("No tool completed a run."))

		return nil
	}

	fmt.Fprintf(w, "Fastest: %s (%s mean)\n",
		cli.SuccessStyle.Render(string(fastest.Tool)), seconds(fastest.Total.Mean))

	speedups, ok := report.SpeedupsVs(stats, harness.ToolPip)
	if !ok {
		fmt.Fprintln(w, cli.WarningStyle.Render("No successful pip run to compare against."))

		return nil
	}

	for _, s := range speedups {
		fmt.Fprintf(w, "%s: %s\n", cli.HighlightStyle.Render(string(s.Tool)), describeSpeedup(s.Factor))
	}

	return nil
}

func statsRow(s report.ToolStats) []string {
	runs := fmt.Sprintf("%d/%d", s.SuccessfulRuns, s.TotalRuns)

	if !s.Succeeded() {
		return []string{string(s.Tool), runs, "-", "-", "-", "-", "-", "-", "-"}
	}

	return []string{
		string(s.Tool),
		runs,
		seconds(s.Total.Mean),
		seconds(s.Total.Min),
		seconds(s.Total.Max),
		seconds(s.Total.Stddev),
		seconds(s.Install.Mean),
		strconv.FormatFloat(s.LockSize.Mean/1024, 'f', 1, 64) + " KB",
		strconv.FormatFloat(float64(s.PeakMemory)/(1024*1024), 'f', 1, 64) + " MB",
	}
}

// describeSpeedup phrases a factor relative to pip, where factor > 1 means
// faster.
func describeSpeedup(factor float64) string {
	if factor >= 1 {
		return fmt.Sprintf("%.1fx faster than pip", factor)
	}

	return fmt.Sprintf("%.1fx slower than pip", 1/factor)
}

func seconds(ms float64) string {
	return strconv.FormatFloat(ms/1000, 'f', 2, 64) + "s"
}
