package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/getmockd/tracemock/pkg/trace"
)

func newConvertCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Re-encode a trace in another format",
		Long: `Read a trace and write it back out. Formats are picked from the file
extensions: .yaml/.yml and .json are structured documents, anything else
is the plain log format. Use "-" as OUT to print to stdout, with --format
selecting the encoding.`,
		Example: `  tracemock convert login.trace login.yaml
  tracemock convert login.json - --format log`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := args[0], args[1]

			t, err := trace.Load(in)
			if err != nil {
				return err
			}

			if out == "-" {
				f := trace.FormatLog
				if format != "" {
					if f, err = trace.ParseFormat(format); err != nil {
						return err
					}
				}
				return trace.Encode(cmd.OutOrStdout(), t.Entries, f)
			}

			if format != "" {
				f, err := trace.ParseFormat(format)
				if err != nil {
					return err
				}
				if f != trace.FormatFromPath(out) {
					return fmt.Errorf("--format %s does not match output file %s", f, out)
				}
			}
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("output file %s already exists", out)
			}
			if err := trace.Save(out, t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d entries to %s\n", t.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (log, yaml, json)")
	return cmd
}
