package cmd

import (
	"fmt"

	"github.com/danielolaszy/pulse/internal/config"
	"github.com/danielolaszy/pulse/internal/logging"
	"github.com/spf13/cobra"
)

func newNewPulseCmd(root *rootOptions) *cobra.Command {
	var path string
	var pulseExists bool

	cmd := &cobra.Command{
		Use:   "new-pulse",
		Short: "Create a new pulse in JIRA",
		Long: `Create the issues listed in a pulse definition file, link each of them to
its parent epic and add them, together with any existing issues, to the pulse.

The pulse (a JIRA sprint) is created unless --pulse-exists is given, in which
case it is looked up by name on the board instead.

Example pulse definition:

  backlog: UDENG
  board_id: 42
  pulse_name: "Pulse 2024#05"
  pulse_goal: "Ship the thing"
  start_date: 2024-02-26
  duration_days: 14
  shared_labels: ["platform"]
  existing_issues: ["UDENG-9"]
  issues:
    - title: Add endpoint
      parent: UDENG-1
      story_points: 3
      issue_type: Story
      description: Expose the new API

The run is not transactional: when a call fails, issues created before the
failure stay in JIRA and are listed in the error log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("path flag is required")
			}

			client, err := root.newClient(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			pulse, err := config.LoadPulse(path)
			if err != nil {
				return err
			}

			result, err := client.CreatePulse(cmd.Context(), pulse, pulseExists)
			if err != nil {
				if len(result.Created) > 0 {
					logging.Error("issues created before the failure were not rolled back",
						"pulse_id", result.PulseID,
						"created", result.Created)
				}
				return err
			}

			logging.Info("pulse ready",
				"pulse_id", result.PulseID,
				"created", result.Created,
				"issue_count", len(result.Added))
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Path to YAML file with the pulse contents")
	cmd.Flags().BoolVar(&pulseExists, "pulse-exists", false, "Expect the pulse named in the YAML file to already exist")

	return cmd
}
