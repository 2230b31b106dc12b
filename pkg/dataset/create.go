// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/ganprep/internal/workerspool"
	"github.com/gomlx/ganprep/pkg/npy"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// DefaultImageSize is the default side of the square images in the dataset.
const DefaultImageSize = 256

// Config for Create.
type Config struct {
	// DataDir holds one subdirectory of images per class.
	DataDir string

	// Output is the path of the `.npz` archive to create.
	Output string

	// ImageSize is the side of the square images stored. Smaller images are skipped.
	ImageSize int

	// Parallelism is the number of images processed concurrently. If 0 images are processed
	// sequentially.
	Parallelism int

	// Compression of the archive entries.
	Compression npy.Compression

	// TempDir where the temporary backing files are created. Defaults to os.TempDir().
	TempDir string

	// Verbose displays a progress bar.
	Verbose bool
}

// DefaultConfig returns a Config with the default values, without DataDir or Output.
func DefaultConfig() *Config {
	return &Config{
		ImageSize:   DefaultImageSize,
		Parallelism: runtime.NumCPU(),
		Compression: npy.NoCompression,
	}
}

// Result of Create.
type Result struct {
	// Output is the path of the archive created.
	Output string

	// Discovered is the number of image files found, Kept the number stored in the archive.
	Discovered, Kept int

	// TooSmall and Failed count the skipped images: TooSmall for images smaller than the
	// target size, Failed for files that could not be read or decoded.
	TooSmall, Failed int

	// Classes are the class names, indexed by label.
	Classes []string
}

// Create builds the dataset described by config: it discovers the images in config.DataDir,
// crops and resizes them in parallel, and writes them to the `.npz` archive config.Output.
//
// Images that are too small or can't be decoded are logged and skipped. Any other error aborts
// the creation, and no archive is left behind. The temporary backing files are always removed.
//
// The order of the images in the archive is not deterministic.
func Create(config *Config) (*Result, error) {
	if config.DataDir == "" || config.Output == "" {
		return nil, errors.New("dataset.Config requires DataDir and Output")
	}
	if config.ImageSize <= 0 {
		return nil, errors.Errorf("invalid image size %d", config.ImageSize)
	}
	discovery, err := Discover(config.DataDir)
	if err != nil {
		return nil, err
	}
	numFiles := discovery.Len()
	klog.Infof("Found %d images in %d classes in %q", numFiles, len(discovery.Classes), config.DataDir)

	store, err := NewStore(config.TempDir, numFiles, config.ImageSize)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			klog.Errorf("Failed to clean up dataset store: %+v", err)
		}
	}()

	var bar *progressbar.ProgressBar
	if config.Verbose {
		bar = progressbar.NewOptions(numFiles,
			progressbar.OptionSetDescription("Preprocessing"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}

	var tooSmall, failed atomic.Int64
	var putErr atomic.Pointer[error]
	start := time.Now()
	pool := workerspool.New().SetMaxParallelism(config.Parallelism)
	pool.Map(numFiles, func(idx int) {
		if bar != nil {
			defer func() { _ = bar.Add(1) }()
		}
		imgPath := discovery.Files[idx]
		img, err := LoadCropResize(imgPath, config.ImageSize)
		if err != nil {
			if errors.Is(err, ErrImageTooSmall) {
				tooSmall.Add(1)
				klog.Warningf("Skipping: %v", err)
			} else {
				failed.Add(1)
				klog.Warningf("Skipping %q: %v", imgPath, err)
			}
			return
		}
		if _, err = store.Put(img, discovery.Labels[idx]); err != nil {
			putErr.CompareAndSwap(nil, &err)
		}
	})
	if bar != nil {
		_ = bar.Close()
	}
	if errPtr := putErr.Load(); errPtr != nil {
		return nil, *errPtr
	}

	kept, err := store.Finalize()
	if err != nil {
		return nil, err
	}
	klog.Infof("Processed %d images in %s: %d kept, %d too small, %d failed", numFiles,
		time.Since(start).Round(time.Millisecond), kept, tooSmall.Load(), failed.Load())

	output, err := Package(store, config.Output, config.Compression)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(output); err == nil {
		klog.Infof("Wrote %q (%s)", output, humanize.Bytes(uint64(info.Size())))
	}
	return &Result{
		Output:     output,
		Discovered: numFiles,
		Kept:       kept,
		TooSmall:   int(tooSmall.Load()),
		Failed:     int(failed.Load()),
		Classes:    discovery.Classes,
	}, nil
}
