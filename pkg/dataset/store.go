// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/ganprep/pkg/npy"
	"github.com/gomlx/ganprep/pkg/support/xsync"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Store holds the "features" and "labels" arrays of a dataset under construction, in two temporary
// memory-mapped `.npy` files.
//
// Both are allocated for the maximum number of images up-front. Concurrent Put calls each reserve
// a distinct slot and write to it without further locking. Once all Put calls have returned,
// Finalize truncates both files to the number of slots used.
type Store struct {
	size     int
	features *npy.MappedArray
	labels   *npy.MappedArray
	slots    *xsync.SlotAllocator
}

// NewStore creates the backing files in dir (os.TempDir() if empty) with room for capacity images
// of size x size pixels.
//
// Store.Close must always be called, it removes the backing files.
func NewStore(dir string, capacity, size int) (s *Store, err error) {
	if capacity <= 0 || size <= 0 {
		return nil, errors.Errorf("invalid store capacity %d or image size %d", capacity, size)
	}
	if dir == "" {
		dir = os.TempDir()
	}
	prefix := filepath.Join(dir, "ganprep-"+uuid.NewString())
	s = &Store{size: size, slots: xsync.NewSlotAllocator()}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()
	s.features, err = npy.CreateMapped(prefix+"-features.npy", dtypes.Uint8, capacity, size, size, NumChannels)
	if err != nil {
		return
	}
	s.labels, err = npy.CreateMapped(prefix+"-labels.npy", dtypes.Int32, capacity)
	if err != nil {
		return
	}
	klog.V(1).Infof("Allocated store for %d images of %dx%d in %q (%s)", capacity, size, size, prefix,
		humanize.Bytes(uint64(s.features.FileLen()+s.labels.FileLen())))
	return
}

// Capacity is the maximum number of images the store can hold.
func (s *Store) Capacity() int { return s.labels.Rows() }

// Used returns the number of slots reserved so far.
func (s *Store) Used() int { return s.slots.Count() }

// Put reserves the next free slot and writes img (shaped `[size, size, 3]`) and label to it.
// It returns the slot index.
//
// It is safe to call Put concurrently, but not concurrently with Finalize.
func (s *Store) Put(img []byte, label int32) (int, error) {
	if len(img) != s.features.RowBytes() {
		return -1, errors.Errorf("image has %d bytes, store requires %dx%dx%d=%d",
			len(img), s.size, s.size, NumChannels, s.features.RowBytes())
	}
	slot := s.slots.Reserve()
	if slot >= s.Capacity() {
		return -1, errors.Errorf("store is full, capacity is %d images", s.Capacity())
	}
	copy(s.features.Row(slot), img)
	binary.LittleEndian.PutUint32(s.labels.Row(slot), uint32(label))
	return slot, nil
}

// Finalize rewrites the headers of the backing files and truncates them to the number of slots used,
// which it returns. It must be called only once, after all Put calls have returned.
//
// On failure the store contents are undefined: it should be closed and discarded.
func (s *Store) Finalize() (used int, err error) {
	used = min(s.slots.Count(), s.Capacity())
	if err = s.features.Finalize(used); err != nil {
		return 0, err
	}
	if err = s.labels.Finalize(used); err != nil {
		return 0, err
	}
	klog.V(1).Infof("Store finalized with %d images (capacity %d)", used, s.Capacity())
	return used, nil
}

// Entries returns the `.npz` entries "features" and "labels" of a finalized store.
func (s *Store) Entries() ([]npy.Entry, error) {
	featuresReader, err := s.features.NewReader()
	if err != nil {
		return nil, err
	}
	labelsReader, err := s.labels.NewReader()
	if err != nil {
		return nil, err
	}
	return []npy.Entry{{Name: FeaturesKey, Reader: featuresReader}, {Name: LabelsKey, Reader: labelsReader}}, nil
}

// Paths of the backing files.
func (s *Store) Paths() []string {
	var paths []string
	for _, m := range []*npy.MappedArray{s.features, s.labels} {
		if m != nil {
			paths = append(paths, m.Path())
		}
	}
	return paths
}

// Close unmaps and removes the backing files. It is safe to call more than once.
func (s *Store) Close() error {
	var firstErr error
	for _, m := range []*npy.MappedArray{s.features, s.labels} {
		if m == nil {
			continue
		}
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := os.Remove(m.Path()); err != nil && !os.IsNotExist(err) {
			klog.Errorf("Failed to remove temporary file %q: %+v", m.Path(), err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "failed to remove temporary file %q", m.Path())
			}
		}
	}
	return firstErr
}
