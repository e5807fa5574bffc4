package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/aquaproc/internal/logging"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking AQUAPROC_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("AQUAPROC_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the aquaproc CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aquaproc",
		Short: "aquaproc runs containerized R geoprocessing",
		Long:  "aquaproc lists processes, executes them and inspects their jobs on an aquaproc server, or runs a process locally.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), flagLogFormat, cmd.ErrOrStderr())
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "aquaproc server URL (or AQUAPROC_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newProcessesCmd(),
		newExecuteCmd(),
		newStatusCmd(),
		newResultsCmd(),
		newJobsCmd(),
		newLogsCmd(),
		newDismissCmd(),
		newRunCmd(),
	)

	return root
}
