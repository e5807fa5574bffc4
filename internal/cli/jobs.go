package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/aquaproc/pkg/model"
)

func newJobsCmd() *cobra.Command {
	var (
		state     string
		processID string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			q := url.Values{}
			if state != "" {
				q.Set("state", state)
			}
			if processID != "" {
				q.Set("process", processID)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			path := "/api/v1/jobs/"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}
			var jobs []model.Job
			if err := json.Unmarshal(resp.Data, &jobs); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs found.")
				return nil
			}

			fmt.Fprintf(out, "%-36s  %-10s  %-30s  %s\n", "ID", "STATE", "PROCESS", "CREATED")
			fmt.Fprintf(out, "%-36s  %-10s  %-30s  %s\n", "--", "-----", "-------", "-------")
			for _, j := range jobs {
				fmt.Fprintf(out, "%-36s  %-10s  %-30s  %s\n", j.ID, j.State, j.ProcessID, j.CreatedAt.Format(time.RFC3339))
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(jobs), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (accepted, running, successful, failed, dismissed)")
	cmd.Flags().StringVar(&processID, "process", "", "Filter by process id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (server default 20, max 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}
