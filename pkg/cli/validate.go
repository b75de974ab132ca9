package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/getmockd/tracemock/pkg/cli/internal/output"
	"github.com/getmockd/tracemock/pkg/trace"
)

// ValidateResult is one row of the validate report.
type ValidateResult struct {
	File    string       `json:"file"`
	Format  trace.Format `json:"format"`
	Entries int          `json:"entries"`
	Error   string       `json:"error,omitempty"`
}

var errInvalidTraces = errors.New("invalid traces")

func newValidateCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate PATTERN...",
		Short: "Parse trace files and report errors",
		Long: `Parse every trace file matched by the given patterns and print one line per
file. Patterns support ** (for example traces/**/*.trace). The command exits
non-zero when any file fails to parse.`,
		Example: `  tracemock validate testdata/*.trace
  tracemock validate 'traces/**/*.{trace,yaml,json}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandPatterns(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no trace files match %v", args)
			}

			results := make([]ValidateResult, 0, len(files))
			failed := 0
			for _, file := range files {
				res := ValidateResult{File: file, Format: trace.FormatFromPath(file)}
				t, err := trace.Load(file)
				if err != nil {
					res.Error = err.Error()
					failed++
				} else {
					res.Entries = t.Len()
				}
				results = append(results, res)
			}

			if g.jsonOutput {
				if err := output.JSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				tw := output.Table(cmd.OutOrStdout())
				fmt.Fprintln(tw, "FILE\tFORMAT\tENTRIES\tSTATUS")
				for _, r := range results {
					status := "ok"
					if r.Error != "" {
						status = r.Error
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.File, r.Format, r.Entries, status)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if failed > 0 {
				return fmt.Errorf("%w: %d of %d failed to parse", errInvalidTraces, failed, len(files))
			}
			return nil
		},
	}
}

// expandPatterns globs every pattern and returns the sorted, de-duplicated
// matches. A pattern without meta characters names a file directly.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, p := range patterns {
		if !doublestar.ValidatePathPattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}
