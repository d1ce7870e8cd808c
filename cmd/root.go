// Package cmd provides the command-line interface for the pulse CLI tool.
package cmd

import (
	"fmt"
	"io"

	"github.com/danielolaszy/pulse/internal/config"
	"github.com/danielolaszy/pulse/internal/jira"
	"github.com/spf13/cobra"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	credentials string
	url         string
}

// newClient loads the credentials file and builds a JIRA client from it.
func (o *rootOptions) newClient(dump io.Writer) (*jira.Client, error) {
	cfg, err := config.LoadCredentials(o.credentials)
	if err != nil {
		return nil, err
	}
	if o.url != "" {
		cfg.Jira.URL = o.url
	}
	return jira.NewClient(cfg.Jira, dump)
}

// NewRootCmd builds the pulse command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "pulse",
		Short: "Pulse automates day to day JIRA tasks",
		Long: `Pulse is a CLI tool for day to day JIRA tasks.

It reads JIRA credentials from a YAML file (~/.jira_credentials by default):

  user: "<your canonical email address>"
  token: "<a valid JIRA API token>"

Examples:
  # Write the list of the open epics in a given backlog to stdout
  pulse list-epics --backlog=UDENG

  # Create a new pulse in JIRA from a YAML file containing ticket details
  pulse new-pulse --path=my-pulse.yaml

  # Add tickets to an existing pulse in JIRA
  pulse new-pulse --path=my-pulse.yaml --pulse-exists`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("a subcommand is required: list-epics or new-pulse")
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.credentials, "credentials", config.DefaultCredentialsPath, "Path to YAML file with JIRA credentials")
	rootCmd.PersistentFlags().StringVar(&opts.url, "url", "", "JIRA base URL, overrides the credentials file and JIRA_URL")

	rootCmd.AddCommand(newListEpicsCmd(opts))
	rootCmd.AddCommand(newNewPulseCmd(opts))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
