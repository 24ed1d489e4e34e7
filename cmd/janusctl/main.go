// janusctl is a thin HTTP client CLI for the flash job orchestrator: list
// drives and jobs, start and cancel batches, all from a terminal instead of
// the web UI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var apiBaseURL string

func main() {
	rootCmd := &cobra.Command{
		Use:     "janusctl",
		Short:   "Command-line client for the flash job orchestrator",
		Version: "0.1.0",
	}
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api", "http://localhost:8000", "base URL of the janus API server")

	rootCmd.AddCommand(
		drivesEntrypoint(),
		jobsEntrypoint(),
		batchEntrypoint(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
