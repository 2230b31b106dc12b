// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package npy

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Array is a dense array in row-major (C) order, with its raw little-endian bytes.
type Array struct {
	DType dtypes.DType
	Shape []int
	Data  []byte
}

// Header returns the `.npy` header describing the array.
func (a *Array) Header() Header {
	return Header{DType: a.DType, Shape: a.Shape}
}

// Size returns the number of elements in the array.
func (a *Array) Size() int {
	return a.Header().Size()
}

// AsUint8 returns the data as []uint8, without copying.
func (a *Array) AsUint8() ([]uint8, error) {
	if a.DType != dtypes.Uint8 {
		return nil, errors.Errorf("array has dtype %s, not Uint8", a.DType)
	}
	return a.Data, nil
}

// AsInt32 decodes the data as []int32.
func (a *Array) AsInt32() ([]int32, error) {
	if a.DType != dtypes.Int32 {
		return nil, errors.Errorf("array has dtype %s, not Int32", a.DType)
	}
	values := make([]int32, a.Size())
	for ii := range values {
		values[ii] = int32(binary.LittleEndian.Uint32(a.Data[4*ii:]))
	}
	return values, nil
}

// AsFloat32 decodes the data as []float32.
func (a *Array) AsFloat32() ([]float32, error) {
	if a.DType != dtypes.F32 {
		return nil, errors.Errorf("array has dtype %s, not Float32", a.DType)
	}
	values := make([]float32, a.Size())
	for ii := range values {
		values[ii] = math.Float32frombits(binary.LittleEndian.Uint32(a.Data[4*ii:]))
	}
	return values, nil
}

// FromInt32 creates an Int32 array with the given values and shape.
// If no shape is given, the array is 1D.
func FromInt32(values []int32, shape ...int) *Array {
	if len(shape) == 0 {
		shape = []int{len(values)}
	}
	data := make([]byte, 4*len(values))
	for ii, v := range values {
		binary.LittleEndian.PutUint32(data[4*ii:], uint32(v))
	}
	return &Array{DType: dtypes.Int32, Shape: shape, Data: data}
}

// FromUint8 creates a Uint8 array that aliases values.
func FromUint8(values []uint8, shape ...int) *Array {
	if len(shape) == 0 {
		shape = []int{len(values)}
	}
	return &Array{DType: dtypes.Uint8, Shape: shape, Data: values}
}

// ReadNpyFile reads a `.npy` file.
func ReadNpyFile(filePath string) (*Array, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npy file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	arr, err := ReadNpy(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "while reading %q", filePath)
	}
	return arr, nil
}

// ReadNpy reads a `.npy` file from r. Fortran ordered data is converted to row-major order.
func ReadNpy(r io.Reader) (*Array, error) {
	h, _, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	data := make([]byte, h.DataLen())
	if _, err = io.ReadFull(r, data); err != nil {
		return nil, errors.Wrapf(err, "failed to read npy data for %s (expected %d bytes)", h, len(data))
	}
	if h.FortranOrder && len(h.Shape) > 1 {
		cData := make([]byte, len(data))
		if err = FortranToCLayout(h.DType.Size(), h.Shape, data, cData); err != nil {
			return nil, err
		}
		data = cData
	}
	return &Array{DType: h.DType, Shape: h.Shape, Data: data}, nil
}

// WriteNpy writes arr to w in `.npy` format.
func WriteNpy(w io.Writer, arr *Array) error {
	h := arr.Header()
	if int64(len(arr.Data)) != h.DataLen() {
		return errors.Errorf("array %s should have %d bytes of data, got %d", h, h.DataLen(), len(arr.Data))
	}
	preamble, err := h.Encode(0)
	if err != nil {
		return err
	}
	if _, err = w.Write(preamble); err != nil {
		return errors.Wrapf(err, "failed to write npy header")
	}
	if _, err = w.Write(arr.Data); err != nil {
		return errors.Wrapf(err, "failed to write npy data")
	}
	return nil
}

// WriteNpyFile writes arr to a new `.npy` file.
func WriteNpyFile(filePath string, arr *Array) error {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npy file %q", filePath)
	}
	if err = WriteNpy(f, arr); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "failed to close %q", filePath)
}

// FortranToCLayout copies fortranData (column-major) into cData (row-major) for the given dimensions.
func FortranToCLayout(dtypeSize int, dims []int, fortranData []byte, cData []byte) error {
	if dtypeSize <= 0 {
		return errors.Errorf("dtypeSize must be positive, got %d", dtypeSize)
	}
	totalElements := 1
	for _, d := range dims {
		totalElements *= d
	}
	expectedBytes := totalElements * dtypeSize
	if len(fortranData) != expectedBytes {
		return errors.Errorf("fortranData has incorrect size: got %d bytes, want %d", len(fortranData), expectedBytes)
	}
	if len(cData) != expectedBytes {
		return errors.Errorf("cData has incorrect size: got %d bytes, want %d", len(cData), expectedBytes)
	}

	coordinates := make([]int, len(dims))
	for cIndex := range totalElements {
		tempIndex := cIndex
		for i := len(dims) - 1; i >= 0; i-- {
			coordinates[i] = tempIndex % dims[i]
			tempIndex /= dims[i]
		}
		fortranIndex, multiplier := 0, 1
		for i, dim := range dims {
			fortranIndex += coordinates[i] * multiplier
			multiplier *= dim
		}
		copy(cData[cIndex*dtypeSize:(cIndex+1)*dtypeSize], fortranData[fortranIndex*dtypeSize:])
	}
	return nil
}
