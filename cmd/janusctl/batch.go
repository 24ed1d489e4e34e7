package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type batchStartRequest struct {
	ImageName   string   `json:"image_name"`
	CellIDs     []string `json:"cell_ids"`
	Concurrency int      `json:"concurrency"`
}

func batchEntrypoint() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Start, cancel, or retry a batch of flash jobs",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(batchStartEntrypoint(), batchCancelEntrypoint(), batchRetryEntrypoint())
	return cmd
}

func batchStartEntrypoint() *cobra.Command {
	var imageName string
	var cellIDs []string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Admit one flash job per target cell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(apiBaseURL)

			req := batchStartRequest{ImageName: imageName, CellIDs: cellIDs, Concurrency: concurrency}
			var jobs []jobView
			if err := client.do(cmd.Context(), "POST", "/api/batch/start", req, &jobs); err != nil {
				return err
			}
			fmt.Printf("admitted %d job(s)\n", len(jobs))
			return nil
		},
	}
	cmd.Flags().StringVar(&imageName, "image", "", "image name to write (required)")
	cmd.Flags().StringSliceVar(&cellIDs, "cell", nil, "cell id to target (repeatable)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override the default concurrency cap")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func batchCancelEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel every non-terminal job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(apiBaseURL)
			return client.do(cmd.Context(), "POST", "/api/batch/cancel", nil, nil)
		},
	}
}

func batchRetryEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Retry every failed job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(apiBaseURL)
			var retried []jobView
			if err := client.do(cmd.Context(), "POST", "/api/batch/retry", nil, &retried); err != nil {
				return err
			}
			fmt.Printf("retried %d job(s)\n", len(retried))
			return nil
		},
	}
}
