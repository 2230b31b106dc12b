// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/ganprep/pkg/dataset"
	"github.com/gomlx/ganprep/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "inspect ARCHIVE",
		Short: "Print a summary of a dataset archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archivePath, err := fsutil.ResolvePath(args[0])
			if err != nil {
				return err
			}
			var classes []string
			if dataDir != "" {
				dataDir, err = fsutil.RequireDir(dataDir)
				if err != nil {
					return errors.WithMessage(err, "invalid --data")
				}
				discovery, err := dataset.Discover(dataDir)
				if err != nil {
					return err
				}
				classes = discovery.Classes
			}
			return inspect(archivePath, classes)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data", "",
		"Optional data directory the archive was created from, used to name the classes.")
	return cmd
}

func inspect(archivePath string, classes []string) error {
	info, err := os.Stat(archivePath)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %q", archivePath)
	}
	features, labels, err := dataset.Load(archivePath)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Summary"))
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Row("archive", archivePath)
	table.Row("file size", humanize.Bytes(uint64(info.Size())))
	table.Row("images", humanize.Comma(int64(features.Shape[0])))
	table.Row("image size", fmt.Sprintf("%dx%d", features.Shape[1], features.Shape[2]))
	table.Row("features bytes", humanize.Bytes(uint64(len(features.Data))))
	fmt.Println(table.Render())

	var counts []int
	for _, label := range labels {
		if label < 0 {
			return errors.Errorf("invalid negative label %d in %q", label, archivePath)
		}
		for int(label) >= len(counts) {
			counts = append(counts, 0)
		}
		counts[label]++
	}
	fmt.Println(titleStyle.Render("Classes"))
	table = newPlainTable(lipgloss.Right, lipgloss.Left, lipgloss.Right)
	table.Headers("label", "class", "images", "%")
	for label, count := range counts {
		name := "-"
		if label < len(classes) {
			name = classes[label]
		}
		share := 100 * float64(count) / float64(max(len(labels), 1))
		table.Row(strconv.Itoa(label), name, humanize.Comma(int64(count)), fmt.Sprintf("%.1f", share))
	}
	fmt.Println(table.Render())
	return nil
}
