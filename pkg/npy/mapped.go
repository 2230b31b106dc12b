// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package npy

import (
	"io"
	"os"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MappedArray is a `.npy` file whose data section is memory-mapped for writing.
//
// It is created at its maximum size, its rows (indexed by the leading axis) can be written
// concurrently as long as no two writers share a row, and it is shrunk with Finalize once all
// writers are done.
type MappedArray struct {
	path      string
	file      *os.File
	header    Header
	headerLen int
	rowBytes  int
	mapping   []byte
	data      []byte
	finalized bool
}

// CreateMapped creates (or truncates) the file at path as a `.npy` of the given dtype and shape,
// and maps its data section read-write. The shape must have at least one axis.
//
// The new data section is zero-filled.
func CreateMapped(path string, dtype dtypes.DType, shape ...int) (m *MappedArray, err error) {
	if len(shape) == 0 {
		return nil, errors.Errorf("CreateMapped(%q) requires at least one axis", path)
	}
	h := Header{DType: dtype, Shape: slices.Clone(shape)}
	preamble, err := h.Encode(0)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create mapped npy file %q", path)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(path)
		}
	}()

	m = &MappedArray{
		path:      path,
		file:      f,
		header:    h,
		headerLen: len(preamble),
		rowBytes:  int(Header{DType: dtype, Shape: shape[1:]}.DataLen()),
	}
	if _, err = f.WriteAt(preamble, 0); err != nil {
		return nil, errors.Wrapf(err, "failed to write npy header to %q", path)
	}
	fileLen := m.FileLen()
	if err = f.Truncate(fileLen); err != nil {
		return nil, errors.Wrapf(err, "failed to allocate %d bytes for %q", fileLen, path)
	}
	m.mapping, err = mmapReadWrite(f, int(fileLen))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to memory-map %q", path)
	}
	m.data = m.mapping[m.headerLen:]
	return m, nil
}

// Path of the backing file.
func (m *MappedArray) Path() string { return m.path }

// Header returns the current header: after Finalize its leading dimension is the truncated one.
func (m *MappedArray) Header() Header {
	h := m.header
	h.Shape = slices.Clone(h.Shape)
	return h
}

// Rows is the size of the leading axis.
func (m *MappedArray) Rows() int { return m.header.Shape[0] }

// RowBytes is the number of bytes of each row (one index of the leading axis).
func (m *MappedArray) RowBytes() int { return m.rowBytes }

// Bytes returns the mapped data section. It is nil after Finalize or Close.
func (m *MappedArray) Bytes() []byte { return m.data }

// Row returns the mapped bytes of row i. It is safe to write to different rows concurrently.
func (m *MappedArray) Row(i int) []byte {
	return m.data[i*m.rowBytes : (i+1)*m.rowBytes]
}

// Finalize flushes and unmaps the data, rewrites the header in place with the leading
// dimension set to numRows, and truncates the file to hold exactly numRows rows.
//
// The header keeps its original encoded length, so the data offset doesn't change.
// If it fails the file contents are undefined and should be discarded.
func (m *MappedArray) Finalize(numRows int) error {
	if m.finalized || m.mapping == nil {
		return errors.Errorf("MappedArray %q already finalized or closed", m.path)
	}
	if numRows < 0 || numRows > m.Rows() {
		return errors.Errorf("cannot finalize %q to %d rows, it has capacity for %d", m.path, numRows, m.Rows())
	}
	m.finalized = true
	if err := msync(m.mapping); err != nil {
		return errors.Wrapf(err, "failed to flush mapped %q", m.path)
	}
	err := munmap(m.mapping)
	m.mapping, m.data = nil, nil
	if err != nil {
		return errors.Wrapf(err, "failed to unmap %q", m.path)
	}

	m.header.Shape[0] = numRows
	preamble, err := m.header.Encode(m.headerLen)
	if err != nil {
		return errors.WithMessagef(err, "while rewriting header of %q", m.path)
	}
	if _, err = m.file.WriteAt(preamble, 0); err != nil {
		return errors.Wrapf(err, "failed to rewrite header of %q", m.path)
	}
	if err = m.file.Truncate(m.FileLen()); err != nil {
		return errors.Wrapf(err, "failed to truncate %q to %d rows", m.path, numRows)
	}
	return errors.Wrapf(m.file.Sync(), "failed to sync %q", m.path)
}

// FileLen is the length of the `.npy` file for the current header.
func (m *MappedArray) FileLen() int64 {
	return int64(m.headerLen) + m.header.DataLen()
}

// NewReader returns a reader over the whole finalized `.npy` file, header included.
func (m *MappedArray) NewReader() (io.Reader, error) {
	if !m.finalized || m.file == nil {
		return nil, errors.Errorf("MappedArray %q must be finalized before reading it", m.path)
	}
	return io.NewSectionReader(m.file, 0, m.FileLen()), nil
}

// Close unmaps (if still mapped) and closes the backing file. It doesn't remove it.
// It is idempotent.
func (m *MappedArray) Close() error {
	var firstErr error
	if m.mapping != nil {
		firstErr = errors.Wrapf(munmap(m.mapping), "failed to unmap %q", m.path)
		m.mapping, m.data = nil, nil
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "failed to close %q", m.path)
			} else {
				klog.Errorf("Failed to close %q: %+v", m.path, err)
			}
		}
		m.file = nil
	}
	return firstErr
}
