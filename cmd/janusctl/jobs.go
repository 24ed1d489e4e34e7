package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type jobView struct {
	JobID      string  `json:"job_id"`
	CellID     string  `json:"cell_id"`
	DevicePath string  `json:"device_path"`
	ImageName  string  `json:"image_name"`
	State      string  `json:"state"`
	Stage      string  `json:"stage"`
	Progress   float64 `json:"progress"`
}

func jobsEntrypoint() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List and control flash jobs",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(jobsListEntrypoint(), jobsCancelEntrypoint(), jobsRetryEntrypoint())
	return cmd
}

func jobsListEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every known job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(apiBaseURL)

			var jobs []jobView
			if err := client.do(cmd.Context(), "GET", "/api/jobs", nil, &jobs); err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Job", "Cell", "Device", "Image", "State", "Stage", "Progress"})
			for _, j := range jobs {
				table.Append([]string{
					j.JobID,
					j.CellID,
					j.DevicePath,
					j.ImageName,
					j.State,
					j.Stage,
					fmt.Sprintf("%.0f%%", j.Progress*100),
				})
			}
			table.Render()
			return nil
		},
	}
}

func jobsCancelEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [jobId]",
		Short: "Cancel one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(apiBaseURL)
			return client.do(cmd.Context(), "POST", "/api/jobs/"+args[0]+"/cancel", nil, nil)
		},
	}
}

func jobsRetryEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [jobId]",
		Short: "Retry one failed or cancelled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(apiBaseURL)
			var retried jobView
			if err := client.do(cmd.Context(), "POST", "/api/jobs/"+args[0]+"/retry", nil, &retried); err != nil {
				return err
			}
			fmt.Printf("retried as %s\n", retried.JobID)
			return nil
		},
	}
}
