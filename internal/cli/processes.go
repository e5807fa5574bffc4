package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/aquaproc/internal/process"
)

func newProcessesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "processes [process_id]",
		Short: "List processes, or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				resp, err := client.Get("/api/v1/processes/" + args[0])
				if err != nil {
					return fmt.Errorf("get process: %w", err)
				}
				var def process.Definition
				if err := json.Unmarshal(resp.Data, &def); err != nil {
					return fmt.Errorf("parse response: %w", err)
				}
				fmt.Fprintf(out, "%s (%s)\n", def.ID, def.Version)
				fmt.Fprintf(out, "  %s\n", def.Title)
				if def.Description != "" {
					fmt.Fprintf(out, "  %s\n", def.Description)
				}
				fmt.Fprintln(out, "Inputs:")
				for _, in := range def.Inputs {
					fmt.Fprintf(out, "  - %-20s %s\n", in.ID, in.Title)
				}
				fmt.Fprintln(out, "Outputs:")
				for _, o := range def.Outputs {
					fmt.Fprintf(out, "  - %-30s %s\n", o.ID, o.Title)
				}
				return nil
			}

			resp, err := client.Get("/api/v1/processes/")
			if err != nil {
				return fmt.Errorf("list processes: %w", err)
			}
			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Fprintf(out, "%-32s  %-8s  %s\n", "ID", "VERSION", "TITLE")
			for _, p := range data {
				id, _ := p["id"].(string)
				version, _ := p["version"].(string)
				title, _ := p["title"].(string)
				fmt.Fprintf(out, "%-32s  %-8s  %s\n", id, version, title)
			}
			return nil
		},
	}
}
