package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// metricsAddr is the zenohd daemon's metrics address (host:port).
	metricsAddr string

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string
)

// rootCmd is the top-level cobra command for zenohctl.
var rootCmd = &cobra.Command{
	Use:   "zenohctl",
	Short: "Introspection CLI for the zenohd daemon",
	Long:  "zenohctl scrapes a running zenohd daemon's Prometheus metrics endpoint to report session counters.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "addr", "localhost:9100",
		"zenohd metrics address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
