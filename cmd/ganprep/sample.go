// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gomlx/ganprep/pkg/dataset"
	"github.com/gomlx/ganprep/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newSampleCmd() *cobra.Command {
	var (
		batchSize int
		seed      uint64
		outDir    string
		useMmap   bool
	)
	cmd := &cobra.Command{
		Use:   "sample ARCHIVE",
		Short: "Save a random batch of a dataset archive as PNG images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archivePath, err := fsutil.ResolvePath(args[0])
			if err != nil {
				return err
			}
			if outDir, err = fsutil.ResolvePath(outDir); err != nil {
				return err
			}
			options := []dataset.SamplerOption{dataset.WithSeed(seed)}
			if useMmap {
				options = append(options, dataset.WithMemoryMap())
			}
			sampler, err := dataset.NewSampler(archivePath, batchSize, options...)
			if err != nil {
				return err
			}
			defer func() { _ = sampler.Close() }()
			return saveBatch(sampler, outDir)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&batchSize, "batch", 16, "Number of images to sample.")
	flags.Uint64Var(&seed, "seed", 0, "Random seed.")
	flags.StringVar(&outDir, "out", "samples", "Directory where to save the images.")
	flags.BoolVar(&useMmap, "mmap", false, "Memory-map the archive instead of reading it. Requires an uncompressed archive.")
	return cmd
}

// saveBatch yields one batch, and saves its images after undoing the preprocessing.
func saveBatch(sampler *dataset.Sampler, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %q", outDir)
	}
	batch, err := sampler.Yield()
	if err != nil {
		return err
	}
	size := sampler.ImageSize()
	imageLen := size * size * dataset.NumChannels
	pixels := dataset.Postprocess(batch.Images)
	for ii, label := range batch.Labels {
		img := rgbToNRGBA(pixels[ii*imageLen:(ii+1)*imageLen], size)
		imgPath := filepath.Join(outDir, fmt.Sprintf("sample_%03d_label_%d.png", ii, label))
		if err := imaging.Save(img, imgPath); err != nil {
			return errors.Wrapf(err, "failed to save %q", imgPath)
		}
	}
	klog.Infof("Saved %d images to %q", len(batch.Labels), outDir)
	return nil
}

func rgbToNRGBA(rgb []uint8, size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for ii := range size * size {
		copy(img.Pix[4*ii:4*ii+3], rgb[3*ii:3*ii+3])
		img.Pix[4*ii+3] = 0xFF
	}
	return img
}
