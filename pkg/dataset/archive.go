// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"github.com/gomlx/ganprep/pkg/npy"
	"github.com/pkg/errors"
)

const (
	// FeaturesKey is the name of the images array in the dataset archive.
	FeaturesKey = "features"

	// LabelsKey is the name of the labels array in the dataset archive.
	LabelsKey = "labels"
)

// Package writes the arrays of a finalized store to a `.npz` archive at outPath and returns outPath.
//
// If it fails, the partially written archive is removed. The store is left untouched: it is up to
// the caller to close it.
func Package(store *Store, outPath string, compression npy.Compression) (string, error) {
	entries, err := store.Entries()
	if err != nil {
		return "", errors.WithMessagef(err, "while packaging %q", outPath)
	}
	if err = npy.WriteNpz(outPath, compression, entries...); err != nil {
		return "", err
	}
	return outPath, nil
}

// Load reads the features and labels of the dataset archive at archivePath into memory.
// features is shaped `[N, size, size, 3]` and labels `[N]`.
func Load(archivePath string) (features *npy.Array, labels []int32, err error) {
	arrays, err := npy.ReadNpz(archivePath)
	if err != nil {
		return nil, nil, err
	}
	return splitArrays(archivePath, arrays)
}

// splitArrays validates the arrays of a dataset archive.
func splitArrays(archivePath string, arrays map[string]*npy.Array) (features *npy.Array, labels []int32, err error) {
	features, labelsArr := arrays[FeaturesKey], arrays[LabelsKey]
	if features == nil || labelsArr == nil {
		return nil, nil, errors.Errorf("archive %q must have %q and %q arrays", archivePath, FeaturesKey, LabelsKey)
	}
	if _, err = features.AsUint8(); err != nil {
		return nil, nil, errors.WithMessagef(err, "invalid %q in %q", FeaturesKey, archivePath)
	}
	if len(features.Shape) != 4 || features.Shape[1] != features.Shape[2] || features.Shape[3] != NumChannels {
		return nil, nil, errors.Errorf("invalid %q shape %v in %q, expected [N, size, size, %d]",
			FeaturesKey, features.Shape, archivePath, NumChannels)
	}
	if labels, err = labelsArr.AsInt32(); err != nil {
		return nil, nil, errors.WithMessagef(err, "invalid %q in %q", LabelsKey, archivePath)
	}
	if len(labels) != features.Shape[0] {
		return nil, nil, errors.Errorf("archive %q has %d images but %d labels", archivePath, features.Shape[0], len(labels))
	}
	return features, labels, nil
}
