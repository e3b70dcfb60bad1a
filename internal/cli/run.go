package cli

import (
	"github.com/spf13/cobra"
)

type RunOptions struct {
	EndpointsFile string
	Only          []string
	DryRun        bool
	LogFile       string
}

func NewRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract, transform and load every configured endpoint",
		Long: `Runs the endpoints in order. A failing endpoint is logged and reported;
the remaining endpoints still run and the command exits 0.`,
		RunE: func(c *cobra.Command, args []string) error {
			opts.EndpointsFile, _ = c.Flags().GetString("endpoints")
			return runPipeline(c.Context(), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Only, "only", "o", nil, "Run only the named endpoints (repeatable or comma separated)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Fetch and transform without writing to MongoDB")
	cmd.Flags().StringVar(&opts.LogFile, "log-file", "", "Also write logs to this file")

	return cmd
}

func NewEndpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List the resolved endpoints and their destinations",
		RunE: func(c *cobra.Command, args []string) error {
			file, _ := c.Flags().GetString("endpoints")
			return listEndpoints(c, file)
		},
	}
}
