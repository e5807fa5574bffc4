package cli

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/me/aquaproc/internal/config"
	"github.com/me/aquaproc/internal/process"
	"github.com/me/aquaproc/internal/runner"
)

func newRunCmd() *cobra.Command {
	var (
		pairs      []string
		inputsFile string
		configFile string
		jobID      string
		showLogs   bool
	)

	cmd := &cobra.Command{
		Use:   "run <process_id>",
		Short: "Run a process locally without a server",
		Long: `Run a process directly through the local container engine, using the same
service configuration file the server reads. Output files are written below
download_dir exactly as a server job would write them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := config.LoadService(config.ResolvePath(configFile))
			if err != nil {
				return err
			}
			cat, err := process.LoadCatalog()
			if err != nil {
				return err
			}
			def, ok := cat.Get(args[0])
			if !ok {
				return &process.UnknownProcessError{ID: args[0]}
			}
			inputs, err := parseInputs(inputsFile, pairs)
			if err != nil {
				return err
			}
			if jobID == "" {
				jobID = uuid.New().String()
			}

			exec := process.NewExecutor(cfg, runner.New(logger), logger)
			outcome, err := exec.Execute(cmd.Context(), def, jobID, inputs)
			if outcome != nil && (showLogs || err != nil) {
				res := outcome.Result
				if res.Stdout != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "[stdout]\n%s", res.Stdout)
				}
				if res.Stderr != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "[stderr]\n%s", res.Stderr)
				}
			}
			if err != nil {
				var le *runner.LaunchError
				if errors.As(err, &le) {
					return fmt.Errorf("%w (is %q installed and on PATH?)", err, cfg.DockerExecutable)
				}
				return err
			}

			fmt.Fprintf(out, "Job %s: SUCCESSFUL\n", jobID)
			fmt.Fprintf(out, "Output directory: %s\n", outcome.OutputDir)
			printOutputs(out, outcome.Outputs)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&pairs, "input", "i", nil, "Process input as key=value (repeatable)")
	cmd.Flags().StringVar(&inputsFile, "inputs-file", "", "YAML or JSON file with process inputs")
	cmd.Flags().StringVar(&configFile, "config", "", "Service config file (default $"+config.ConfigFileEnv+" or "+config.DefaultConfigFile+")")
	cmd.Flags().StringVar(&jobID, "job-id", "", "Job id used for output names (default: random UUID)")
	cmd.Flags().BoolVar(&showLogs, "logs", false, "Print container stdout and stderr")
	return cmd
}
