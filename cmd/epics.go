package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/danielolaszy/pulse/internal/logging"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const (
	outputPlain = "plain"
	outputTable = "table"
)

func newListEpicsCmd(root *rootOptions) *cobra.Command {
	var backlog, output string

	cmd := &cobra.Command{
		Use:   "list-epics",
		Short: "List the open epics of a backlog",
		Long: `List every epic of a backlog whose status category is not Done.

By default one "<key><TAB><summary>" line is written per epic so the output
can be piped into other tools. Use --output=table for a human readable table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if backlog == "" {
				return fmt.Errorf("backlog flag is required")
			}
			if output != outputPlain && output != outputTable {
				return fmt.Errorf("unknown output format %q: expected %s or %s", output, outputPlain, outputTable)
			}

			client, err := root.newClient(nil)
			if err != nil {
				return err
			}

			epics, err := client.ListOpenEpics(cmd.Context(), backlog)
			if err != nil {
				return err
			}
			logging.Info("found open epics", "backlog", backlog, "count", len(epics))

			return printEpics(cmd.OutOrStdout(), epics, output)
		},
	}

	cmd.Flags().StringVar(&backlog, "backlog", "", "The backlog to list open epics in")
	cmd.Flags().StringVarP(&output, "output", "o", outputPlain, "Output format: plain or table")

	return cmd
}

// printEpics writes "<key>\t<summary>" lines, or a table of them.
func printEpics(w io.Writer, epics []string, output string) error {
	if output == outputPlain {
		for _, epic := range epics {
			if _, err := fmt.Fprintln(w, epic); err != nil {
				return err
			}
		}
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Key", "Summary"})
	for _, epic := range epics {
		key, summary, _ := strings.Cut(epic, "\t")
		tw.AppendRow(table.Row{key, summary})
	}
	tw.Render()
	return nil
}
