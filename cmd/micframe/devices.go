package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/micframe/micframe"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := micframe.Default().Driver(selectedDriver()).ListDevices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("no capture devices found")
			return nil
		}
		for _, d := range devices {
			fmt.Println(d)
		}
		return nil
	},
}
