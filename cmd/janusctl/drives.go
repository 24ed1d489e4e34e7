package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type drive struct {
	DevicePath string `json:"device_path"`
	SizeHuman  string `json:"size_human"`
	Model      string `json:"model,omitempty"`
	Removable  bool   `json:"removable"`
	Mounted    bool   `json:"mounted"`
	USBSpeed   string `json:"usb_speed"`
}

func drivesEntrypoint() *cobra.Command {
	var removableOnly bool

	cmd := &cobra.Command{
		Use:   "drives",
		Short: "List currently attached block devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(apiBaseURL)

			path := "/api/drives"
			if removableOnly {
				path += "?removable=1"
			}

			var drives []drive
			if err := client.do(cmd.Context(), "GET", path, nil, &drives); err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Device", "Size", "Model", "Removable", "Mounted", "USB"})
			for _, d := range drives {
				table.Append([]string{
					d.DevicePath,
					d.SizeHuman,
					d.Model,
					fmt.Sprintf("%v", d.Removable),
					fmt.Sprintf("%v", d.Mounted),
					d.USBSpeed,
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&removableOnly, "removable", false, "only list removable devices")
	return cmd
}
