// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/ganprep/pkg/devices"
	"github.com/spf13/cobra"
)

func newDevicesCmd() *cobra.Command {
	var globalBatchSize int
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the training devices and the per-replica batch size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := devices.Strategy()
			if err != nil {
				return err
			}
			gpus, err := devices.ListGPUs()
			if err != nil {
				return err
			}
			perReplica, err := devices.PerReplicaBatchSize(globalBatchSize, len(gpus))
			if err != nil {
				return err
			}
			fmt.Println(titleStyle.Render("Devices"))
			table := newPlainTable(lipgloss.Right, lipgloss.Left)
			for ii, device := range strategy {
				table.Row(strconv.Itoa(ii), device.Name())
			}
			fmt.Println(table.Render())
			fmt.Printf("Batch size %d: %d per replica\n", globalBatchSize, perReplica)
			return nil
		},
	}
	cmd.Flags().IntVar(&globalBatchSize, "batch", 64, "Global batch size to split across the devices.")
	return cmd
}
