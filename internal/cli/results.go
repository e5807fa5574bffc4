package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/aquaproc/pkg/model"
)

func newResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <job_id>",
		Short: "Show the output links of a successful job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/jobs/" + args[0] + "/results")
			if err != nil {
				return fmt.Errorf("get results: %w", err)
			}
			var outputs map[string]model.OutputLink
			if err := json.Unmarshal(resp.Data, &outputs); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			printOutputs(cmd.OutOrStdout(), outputs)
			return nil
		},
	}
}
