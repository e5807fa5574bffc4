package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_id>",
		Short: "Check the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			job, err := client.GetJob(args[0])
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}

			fmt.Fprintf(out, "Job: %s\n", job.ID)
			fmt.Fprintf(out, "  Process:  %s\n", job.ProcessID)
			fmt.Fprintf(out, "  State:    %s\n", job.State)
			if job.Message != "" {
				fmt.Fprintf(out, "  Message:  %s\n", job.Message)
			}
			if job.ExitCode != nil {
				fmt.Fprintf(out, "  Exit code: %d\n", *job.ExitCode)
			}
			fmt.Fprintf(out, "  Created:  %s\n", job.CreatedAt.Format(time.RFC3339))
			if job.CompletedAt != nil {
				fmt.Fprintf(out, "  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}
