package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/aquaproc/pkg/model"
)

func newExecuteCmd() *cobra.Command {
	var (
		pairs      []string
		inputsFile string
		async      bool
		wait       bool
		interval   time.Duration
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "execute <process_id>",
		Short: "Execute a process on the server",
		Long: `Execute a process with the given inputs. By default the call blocks until
the container has finished and prints the output links. With --async the job
is queued and its id printed; add --wait to poll until it finishes.`,
		Example: `  aquaproc execute combine-eurostat-data -i country_code=DE -i year=2021
  aquaproc execute weighting-functions --inputs-file job.yml --async --wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			inputs, err := parseInputs(inputsFile, pairs)
			if err != nil {
				return err
			}

			var header http.Header
			if async {
				header = http.Header{"Prefer": []string{"respond-async"}}
			}
			resp, err := client.Post("/api/v1/processes/"+args[0]+"/execution", map[string]any{"inputs": inputs}, header)
			if err != nil {
				return fmt.Errorf("execute %s: %w", args[0], err)
			}

			if !async {
				var res struct {
					JobID   string                      `json:"job_id"`
					Status  model.JobState              `json:"status"`
					Outputs map[string]model.OutputLink `json:"outputs"`
				}
				if err := json.Unmarshal(resp.Data, &res); err != nil {
					return fmt.Errorf("parse response: %w", err)
				}
				fmt.Fprintf(out, "Job %s: %s\n", res.JobID, res.Status)
				printOutputs(out, res.Outputs)
				return nil
			}

			var job model.Job
			if err := json.Unmarshal(resp.Data, &job); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Fprintf(out, "Job accepted: %s\n", job.ID)
			if !wait {
				return nil
			}

			final, err := waitForJob(job.ID, interval, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Job %s: %s\n", final.ID, final.State)
			if final.State != model.JobStateSuccessful {
				return fmt.Errorf("job %s %s: %s", final.ID, final.State, final.Message)
			}
			printOutputs(out, final.Outputs)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&pairs, "input", "i", nil, "Process input as key=value (repeatable)")
	cmd.Flags().StringVar(&inputsFile, "inputs-file", "", "YAML or JSON file with process inputs")
	cmd.Flags().BoolVar(&async, "async", false, "Queue the job and return immediately")
	cmd.Flags().BoolVar(&wait, "wait", false, "With --async, poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "poll-interval", 2*time.Second, "Polling interval for --wait")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Hour, "Give up waiting after this long")

	return cmd
}

// waitForJob polls a job until it reaches a terminal state.
func waitForJob(id string, interval, timeout time.Duration) (*model.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		job, err := client.GetJob(id)
		if err != nil {
			return nil, fmt.Errorf("get job: %w", err)
		}
		if job.State.IsTerminal() {
			return job, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("job %s still %s after %s", id, job.State, timeout)
		}
		logger.Debug("waiting for job", "job_id", id, "state", job.State)
		time.Sleep(interval)
	}
}

// printOutputs prints output links sorted by output id.
func printOutputs(w io.Writer, outputs map[string]model.OutputLink) {
	ids := make([]string, 0, len(outputs))
	for id := range outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %-32s %s\n", id, outputs[id].Href)
	}
}
