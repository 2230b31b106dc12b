// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// ganprep builds GAN training datasets from directories of images, and inspects or samples them.
//
// Usage:
//
//	ganprep create --data=~/images --output=dataset.npz --size=128
//	ganprep inspect dataset.npz
//	ganprep sample --batch=16 --out=/tmp/samples dataset.npz
//	ganprep devices --batch=64
package main

import (
	"context"
	"flag"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var rootCmd = &cobra.Command{
	Use:   "ganprep",
	Short: "Build and inspect GAN image datasets",
	Long: `ganprep converts a directory of labeled images into a NumPy .npz dataset for GAN training.

The data directory must hold one subdirectory per class, each with JPEG or PNG images. Images are
center-cropped to a square and resized, and stored in the "features" (uint8, [N, size, size, 3])
and "labels" (int32, [N]) arrays of the archive.`,
	SilenceUsage: true,
}

func init() {
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
	rootCmd.AddCommand(newCreateCmd(), newInspectCmd(), newSampleCmd(), newDevicesCmd())
}

func main() {
	defer klog.Flush()
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}
