// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/ganprep/pkg/dataset"
	"github.com/gomlx/ganprep/pkg/npy"
	"github.com/gomlx/ganprep/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	config := dataset.DefaultConfig()
	var compression string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a dataset archive from a directory of images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if config.DataDir, err = fsutil.RequireDir(config.DataDir); err != nil {
				return errors.WithMessage(err, "invalid --data")
			}
			if config.Output, err = fsutil.ResolvePath(config.Output); err != nil {
				return err
			}
			if config.TempDir != "" {
				if config.TempDir, err = fsutil.RequireDir(config.TempDir); err != nil {
					return errors.WithMessage(err, "invalid --tmp")
				}
			}
			if config.Compression, err = npy.ParseCompression(compression); err != nil {
				return err
			}
			if exists, err := fsutil.FileExists(config.Output); err != nil {
				return err
			} else if exists {
				return errors.Errorf("output %q already exists", config.Output)
			}

			result, err := dataset.Create(config)
			if err != nil {
				return err
			}
			printCreateResult(result)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&config.DataDir, "data", "", "Directory with one subdirectory of images per class.")
	flags.StringVar(&config.Output, "output", "dataset.npz", "Path of the .npz archive to create.")
	flags.IntVar(&config.ImageSize, "size", config.ImageSize, "Side of the square images stored. Smaller images are skipped.")
	flags.IntVar(&config.Parallelism, "parallelism", config.Parallelism,
		"Number of images processed concurrently. 0 processes them sequentially.")
	flags.StringVar(&compression, "compression", config.Compression.String(),
		`Compression of the archive entries: "none" (can be memory-mapped) or "deflate".`)
	flags.StringVar(&config.TempDir, "tmp", "", "Directory for the temporary files. Defaults to the system's.")
	flags.BoolVar(&config.Verbose, "progress", true, "Display a progress bar.")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func printCreateResult(result *dataset.Result) {
	fmt.Println(titleStyle.Render("Dataset created"))
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Row("output", result.Output)
	table.Row("classes", humanize.Comma(int64(len(result.Classes))))
	table.Row("images found", humanize.Comma(int64(result.Discovered)))
	table.Row("images stored", humanize.Comma(int64(result.Kept)))
	table.Row("too small", humanize.Comma(int64(result.TooSmall)))
	table.Row("failed", humanize.Comma(int64(result.Failed)))
	fmt.Println(table.Render())
}
