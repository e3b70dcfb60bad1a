package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nvd-etl",
		Short: "nvd-etl - NVD vulnerability feed connector",
		Long: `nvd-etl pulls CVE, CPE and CVE change-history data from the NVD REST API,
normalizes each response schema and upserts the records into MongoDB.
Re-running against the same data leaves the destination unchanged apart from ingestion timestamps.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringP("endpoints", "e", "", "Path to an endpoint YAML file (defaults to the built-in NVD endpoints)")

	rootCmd.AddCommand(NewRunCmd(), NewEndpointsCmd())

	return rootCmd
}
