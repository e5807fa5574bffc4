package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/aquaproc/pkg/model"
)

func newDismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <job_id>",
		Short: "Dismiss a running job, or delete a finished one and its outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Delete("/api/v1/jobs/" + args[0])
			if err != nil {
				return fmt.Errorf("dismiss job: %w", err)
			}
			var data struct {
				Job     model.Job `json:"job"`
				Deleted bool      `json:"deleted"`
			}
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			if data.Deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s deleted (was %s)\n", data.Job.ID, data.Job.State)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s: %s\n", data.Job.ID, data.Job.State)
			return nil
		},
	}
}
