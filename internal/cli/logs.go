package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/aquaproc/pkg/model"
)

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <job_id>",
		Short: "Show the container output of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			resp, err := client.Get("/api/v1/jobs/" + args[0] + "/logs")
			if err != nil {
				return fmt.Errorf("get logs: %w", err)
			}
			var logs model.JobLogs
			if err := json.Unmarshal(resp.Data, &logs); err != nil {
				return fmt.Errorf("parse logs response: %w", err)
			}

			fmt.Fprintf(out, "=== %s ===\n", logs.JobID)
			if logs.Stdout != "" {
				fmt.Fprintf(out, "[stdout]\n%s", logs.Stdout)
			}
			if logs.Stderr != "" {
				fmt.Fprintf(out, "[stderr]\n%s", logs.Stderr)
			}
			if logs.ExitCode != nil {
				fmt.Fprintf(out, "[exit code: %d]\n", *logs.ExitCode)
			}
			return nil
		},
	}
}
