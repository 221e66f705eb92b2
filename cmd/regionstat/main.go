// Package main implements the regionstat CLI, which reads the .stat report
// files produced by the runtime and summarizes them.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"regionprof/internal/report"
)

// statFiles lists the report files a profiled run can produce.
var statFiles = []string{
	"cpu_cycle.stat",
	"heap_stat.stat",
	"tagged_coverage.stat",
	"tagged_funcs.stat",
}

var (
	// Set via ldflags during build.
	version = "dev"
)

var dirFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "regionstat",
		Short: "Inspect region profiling report files",
		Long: `regionstat reads the append-only .stat report files written by a
profiled program and presents them per run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "",
		"Report directory (default: $REGIONPROF_OUTPUT_DIR, then the system temp directory)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "summary",
			Short: "Summarize the latest run of each report file",
			RunE:  runSummary,
		},
		&cobra.Command{
			Use:   "dump",
			Short: "Print every block of every report file",
			RunE:  runDump,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// loadAll parses every report file present in the directory. Missing files
// are skipped; a directory with no report files at all is an error.
func loadAll(dir string) (map[string][]report.Block, error) {
	found := make(map[string][]report.Block)
	for _, name := range statFiles {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		blocks, err := report.ParseBlocks(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if len(blocks) > 0 {
			found[name] = blocks
		}
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no report files found in %s", dir)
	}
	return found, nil
}

func runSummary(cmd *cobra.Command, _ []string) error {
	dir := report.ResolveDir(dirFlag)
	files, err := loadAll(dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Reports in %s\n", dir)
	for _, name := range statFiles {
		blocks, ok := files[name]
		if !ok {
			continue
		}
		latest := blocks[len(blocks)-1]
		fmt.Fprintf(out, "\n%s (%d runs, latest shown)\n", name, len(blocks))
		for _, f := range latest.Fields {
			fmt.Fprintf(out, "  %s: %s\n", f.Key, f.Value)
		}
		if pct := latest.Get("Tagged percentage"); pct != "" {
			printBar(out, "tagged share", pct)
		}
		if pct := latest.Get("Coverage percentage"); pct != "" {
			printBar(out, "coverage", pct)
		}
	}
	return nil
}

func runDump(cmd *cobra.Command, _ []string) error {
	dir := report.ResolveDir(dirFlag)
	files, err := loadAll(dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range statFiles {
		for i, b := range files[name] {
			fmt.Fprintf(out, "%s run %d: %s\n", name, i+1, b.Title)
			for _, f := range b.Fields {
				fmt.Fprintf(out, "  %s: %s\n", f.Key, f.Value)
			}
		}
	}
	return nil
}

// printBar renders a 40-column percentage bar under a summary line.
func printBar(out io.Writer, label, pctStr string) {
	pct, err := strconv.ParseFloat(pctStr, 64)
	if err != nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * 40)
	fmt.Fprintf(out, "  [%s%s] %.1f%% %s\n",
		strings.Repeat("#", filled), strings.Repeat("-", 40-filled), pct, label)
}
