// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dataset builds GAN training datasets from directories of images, and samples batches from them.
//
// A dataset is created from a root directory holding one subdirectory per class: every JPEG and PNG
// image is center-cropped to a square, resized, and stored in a `.npz` archive with two arrays,
// "features" (uint8, shaped `[N, size, size, 3]`) and "labels" (int32, shaped `[N]`).
//
// The order of the images in the archive is not the order in which they were discovered:
// images are processed in parallel and stored in the order they finish.
package dataset

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrNoImagesFound is returned by Discover if the root directory has no images.
var ErrNoImagesFound = errors.New("no image files found")

// ImageExtensions scanned by Discover, in scan order. Each is checked in upper-case and then lower-case.
var ImageExtensions = []string{"jpg", "jpeg", "png"}

// Discovery lists the image files found under a root directory, and their labels.
type Discovery struct {
	// Files and Labels have the same length: Labels[i] is the class of Files[i].
	Files  []string
	Labels []int32

	// Classes are the names of the subdirectories, indexed by label.
	Classes []string
}

// Len returns the number of image files discovered.
func (d *Discovery) Len() int { return len(d.Files) }

// Discover lists the images in the immediate subdirectories of rootDir, one class per subdirectory.
//
// Subdirectories are visited in sorted order and the label of each is its rank among the ones that
// hold at least one image: a subdirectory without images is not a class, and doesn't shift the labels
// of the following ones, so labels are not the rank among all subdirectories.
// Within a subdirectory, files are grouped by extension (see ImageExtensions, upper-case first),
// sorted by name within each group.
// Symbolic links are followed, both for subdirectories and for image files.
// Hidden files and directories are ignored, as are nested subdirectories.
//
// It returns an error wrapping ErrNoImagesFound if nothing is found.
func Discover(rootDir string) (*Discovery, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list data directory %q", rootDir)
	}
	d := &Discovery{}
	for _, entry := range entries { // os.ReadDir returns entries sorted by name.
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		subDir := filepath.Join(rootDir, entry.Name())
		if !isEntryKind(subDir, entry, os.FileMode.IsDir) {
			continue
		}
		files, err := listImages(subDir)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			klog.V(1).Infof("No images in %q, it won't be used as a class", subDir)
			continue
		}
		label := int32(len(d.Classes))
		d.Classes = append(d.Classes, entry.Name())
		d.Files = append(d.Files, files...)
		for range files {
			d.Labels = append(d.Labels, label)
		}
	}
	if len(d.Files) == 0 {
		return nil, errors.Wrapf(ErrNoImagesFound, "in %q", rootDir)
	}
	return d, nil
}

// listImages returns the image files in dir, grouped by extension in ImageExtensions order.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list class directory %q", dir)
	}
	var names []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if isEntryKind(filepath.Join(dir, entry.Name()), entry, os.FileMode.IsRegular) {
			names = append(names, entry.Name())
		}
	}

	var files []string
	seen := make(map[string]bool)
	for _, ext := range ImageExtensions {
		for _, suffix := range []string{"." + strings.ToUpper(ext), "." + strings.ToLower(ext)} {
			var group []string
			for _, name := range names {
				if strings.HasSuffix(name, suffix) && !seen[name] {
					seen[name] = true
					group = append(group, filepath.Join(dir, name))
				}
			}
			slices.Sort(group)
			files = append(files, group...)
		}
	}
	return files, nil
}

// isEntryKind reports whether entry, with symbolic links resolved, satisfies kind.
// Broken links are logged and reported as false.
func isEntryKind(entryPath string, entry os.DirEntry, kind func(os.FileMode) bool) bool {
	if entry.Type()&os.ModeSymlink == 0 {
		return kind(entry.Type())
	}
	info, err := os.Stat(entryPath)
	if err != nil {
		klog.Warningf("Ignoring %q: %v", entryPath, err)
		return false
	}
	return kind(info.Mode())
}
