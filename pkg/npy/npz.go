// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package npy

import (
	"bytes"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Compression used for the entries of a `.npz` archive.
type Compression int

const (
	// NoCompression stores the entries as is, like numpy.savez. Stored archives can be memory-mapped
	// with MapNpz.
	NoCompression Compression = iota

	// Deflate compresses the entries, like numpy.savez_compressed.
	Deflate
)

// String implements fmt.Stringer.
func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case Deflate:
		return "deflate"
	}
	return "unknown"
}

// ParseCompression converts the output of Compression.String back to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "none", "store":
		return NoCompression, nil
	case "deflate":
		return Deflate, nil
	}
	return NoCompression, errors.Errorf("unknown npz compression %q, valid values are \"none\" and \"deflate\"", name)
}

// Entry of a `.npz` archive: Reader yields a complete `.npy` file (header and data), and it
// is stored as "<Name>.npy".
type Entry struct {
	Name   string
	Reader io.Reader
}

// ArrayEntry returns an Entry that encodes arr.
func ArrayEntry(name string, arr *Array) (Entry, error) {
	var buf bytes.Buffer
	if err := WriteNpy(&buf, arr); err != nil {
		return Entry{}, errors.WithMessagef(err, "while encoding %q", name)
	}
	return Entry{Name: name, Reader: &buf}, nil
}

// WriteNpz writes the entries, in order, to a new `.npz` archive at filePath.
//
// Entries larger than 4GiB are supported (zip64). If it fails, the partially written archive is removed.
func WriteNpz(filePath string, compression Compression, entries ...Entry) (err error) {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npz file %q", filePath)
	}
	defer func() {
		if err == nil {
			return
		}
		_ = f.Close()
		if rmErr := os.Remove(filePath); rmErr != nil && !os.IsNotExist(rmErr) {
			klog.Errorf("Failed to remove partial archive %q: %+v", filePath, rmErr)
		}
	}()

	zipWriter := zip.NewWriter(f)
	method := zip.Store
	if compression == Deflate {
		method = zip.Deflate
		zipWriter.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, flate.DefaultCompression)
		})
	}
	for _, entry := range entries {
		npyName := entry.Name + ".npy"
		var w io.Writer
		w, err = zipWriter.CreateHeader(&zip.FileHeader{Name: npyName, Method: method})
		if err != nil {
			return errors.Wrapf(err, "failed to create %q in .npz archive", npyName)
		}
		if _, err = io.Copy(w, entry.Reader); err != nil {
			return errors.Wrapf(err, "failed to write %q to .npz archive %q", npyName, filePath)
		}
	}
	if err = zipWriter.Close(); err != nil {
		return errors.Wrapf(err, "failed to close .npz archive %q", filePath)
	}
	if err = f.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync .npz archive %q", filePath)
	}
	return errors.Wrapf(f.Close(), "failed to close .npz file %q", filePath)
}

// ReadNpz reads all `.npy` entries of a `.npz` archive, keyed by their name without the ".npy" suffix.
func ReadNpz(filePath string) (map[string]*Array, error) {
	zipReader, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npz file %q", filePath)
	}
	defer func() { _ = zipReader.Close() }()

	results := make(map[string]*Array)
	for _, f := range zipReader.File {
		name, ok, err := entryName(f.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %q within .npz", f.Name)
		}
		arr, err := ReadNpy(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to read %q from .npz %q", f.Name, filePath)
		}
		results[name] = arr
	}
	return results, nil
}

// entryName validates a zip entry name and returns the array name, or ok=false if it is not a `.npy` entry.
func entryName(zipName string) (name string, ok bool, err error) {
	cleanPath := path.Clean(zipName)
	if path.IsAbs(cleanPath) || strings.HasPrefix(cleanPath, "..") {
		return "", false, errors.Errorf("invalid (malicious?) path in .npz archive: %q (normalized to %q)",
			zipName, cleanPath)
	}
	if !strings.HasSuffix(cleanPath, ".npy") {
		return "", false, nil
	}
	return strings.TrimSuffix(cleanPath, ".npy"), true, nil
}

// MappedNpz is a read-only memory-mapping of an uncompressed `.npz` archive.
// The Data of its Arrays alias the mapping and are only valid until Close.
type MappedNpz struct {
	Arrays  map[string]*Array
	mapping []byte
}

// MapNpz memory-maps the `.npz` archive at filePath, without reading the array data.
// All `.npy` entries must be stored uncompressed and in C order.
func MapNpz(filePath string) (*MappedNpz, error) {
	zipReader, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npz file %q", filePath)
	}
	defer func() { _ = zipReader.Close() }()

	type located struct {
		header Header
		offset int64
	}
	entries := make(map[string]located)
	for _, f := range zipReader.File {
		name, ok, err := entryName(f.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if f.Method != zip.Store {
			return nil, errors.Errorf("entry %q of %q is compressed, it can't be memory-mapped", f.Name, filePath)
		}
		offset, err := f.DataOffset()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to locate %q within %q", f.Name, filePath)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %q within .npz", f.Name)
		}
		h, headerLen, err := ReadHeader(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.WithMessagef(err, "while reading header of %q in %q", f.Name, filePath)
		}
		if h.FortranOrder && len(h.Shape) > 1 {
			return nil, errors.Errorf("entry %q of %q is in Fortran order, it can't be memory-mapped", f.Name, filePath)
		}
		if int64(headerLen)+h.DataLen() != int64(f.UncompressedSize64) {
			return nil, errors.Errorf("entry %q of %q has %d bytes, header %s requires %d",
				f.Name, filePath, f.UncompressedSize64, h, int64(headerLen)+h.DataLen())
		}
		entries[name] = located{header: h, offset: offset + int64(headerLen)}
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", filePath)
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %q", filePath)
	}
	mapping, err := mmapReadOnly(file, int(info.Size()))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to memory-map %q", filePath)
	}
	m := &MappedNpz{Arrays: make(map[string]*Array, len(entries)), mapping: mapping}
	for name, e := range entries {
		m.Arrays[name] = &Array{
			DType: e.header.DType,
			Shape: e.header.Shape,
			Data:  mapping[e.offset : e.offset+e.header.DataLen()],
		}
	}
	return m, nil
}

// Close unmaps the archive. The arrays are no longer valid afterward.
func (m *MappedNpz) Close() error {
	if m.mapping == nil {
		return nil
	}
	err := munmap(m.mapping)
	m.mapping = nil
	m.Arrays = nil
	return errors.Wrapf(err, "failed to unmap .npz")
}
