// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package npy reads and writes NumPy's `.npy` and `.npz` formats, including `.npy` files that are
// memory-mapped for in-place writing and later truncated.
//
// Only little-endian data is supported.
package npy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Magic string every `.npy` file starts with.
const Magic = "\x93NUMPY"

// headerAlign is the alignment of the data section, same as NumPy's ARRAY_ALIGN.
const headerAlign = 64

// Header describes the array stored in a `.npy` file.
type Header struct {
	DType        dtypes.DType
	FortranOrder bool
	Shape        []int
}

// Size returns the number of elements described by the header.
func (h Header) Size() int {
	size := 1
	for _, dim := range h.Shape {
		size *= dim
	}
	return size
}

// DataLen returns the number of bytes of the data section.
func (h Header) DataLen() int64 {
	return int64(h.Size()) * int64(h.DType.Size())
}

// String implements fmt.Stringer.
func (h Header) String() string {
	return fmt.Sprintf("(%s)%v", h.DType, h.Shape)
}

// dict returns the Python dictionary literal stored in the header.
func (h Header) dict() (string, error) {
	descr, err := DescrFromDType(h.DType)
	if err != nil {
		return "", err
	}
	var shapeTuple string
	switch len(h.Shape) {
	case 0:
		shapeTuple = "()"
	case 1:
		shapeTuple = fmt.Sprintf("(%d,)", h.Shape[0])
	default:
		dimsStr := make([]string, len(h.Shape))
		for i, dim := range h.Shape {
			dimsStr[i] = strconv.Itoa(dim)
		}
		shapeTuple = fmt.Sprintf("(%s)", strings.Join(dimsStr, ", "))
	}
	fortran := "False"
	if h.FortranOrder {
		fortran = "True"
	}
	return fmt.Sprintf("{'descr': '%s', 'fortran_order': %s, 'shape': %s, }", descr, fortran, shapeTuple), nil
}

// Encode returns the full preamble (magic, version, header length and padded header) of a `.npy` file.
//
// If encodedLen is 0, the header is padded with spaces so the data section starts on a 64-byte
// boundary. Otherwise, it is padded to exactly encodedLen bytes, which is used to rewrite a header
// in place: it fails if the header doesn't fit.
func (h Header) Encode(encodedLen int) ([]byte, error) {
	dict, err := h.dict()
	if err != nil {
		return nil, err
	}

	// Version 1.0 stores the header length in 2 bytes, version 2.0 in 4.
	major, lenBytes := byte(1), 2
	if len(dict)+1+len(Magic)+2+lenBytes > 0xFFFF {
		major, lenBytes = 2, 4
	}
	preambleLen := len(Magic) + 2 + lenBytes
	minLen := preambleLen + len(dict) + 1 // +1 for the terminating newline.
	total := encodedLen
	if total == 0 {
		total = (minLen + headerAlign - 1) / headerAlign * headerAlign
	} else if total < minLen {
		return nil, errors.Errorf("npy header for %s needs %d bytes, only %d available", h, minLen, total)
	}
	if major == 1 && total-preambleLen > 0xFFFF {
		return nil, errors.Errorf("npy header length %d doesn't fit version 1.0", total-preambleLen)
	}

	buf := bytes.NewBuffer(make([]byte, 0, total))
	buf.WriteString(Magic)
	buf.Write([]byte{major, 0})
	if lenBytes == 2 {
		_ = binary.Write(buf, binary.LittleEndian, uint16(total-preambleLen))
	} else {
		_ = binary.Write(buf, binary.LittleEndian, uint32(total-preambleLen))
	}
	buf.WriteString(dict)
	for buf.Len() < total-1 {
		buf.WriteByte(' ')
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ReadHeader reads and parses the preamble of a `.npy` file. It returns the header and
// the number of bytes consumed, that is, the offset of the data section.
func ReadHeader(r io.Reader) (h Header, encodedLen int, err error) {
	magic := make([]byte, len(Magic)+2)
	if _, err = io.ReadFull(r, magic); err != nil {
		err = errors.Wrapf(err, "failed to read npy magic string and version")
		return
	}
	if string(magic[:len(Magic)]) != Magic {
		err = errors.Errorf("invalid npy file format: magic string mismatch")
		return
	}
	major := magic[len(Magic)]
	var headerLen int
	switch major {
	case 1:
		var l uint16
		if err = binary.Read(r, binary.LittleEndian, &l); err != nil {
			err = errors.Wrapf(err, "failed to read npy header length (v1.0)")
			return
		}
		headerLen = int(l)
		encodedLen = len(magic) + 2
	case 2, 3:
		var l uint32
		if err = binary.Read(r, binary.LittleEndian, &l); err != nil {
			err = errors.Wrapf(err, "failed to read npy header length (v%d.0)", major)
			return
		}
		headerLen = int(l)
		encodedLen = len(magic) + 4
	default:
		err = errors.Errorf("unsupported npy version: %d.%d", major, magic[len(Magic)+1])
		return
	}

	headerBytes := make([]byte, headerLen)
	if _, err = io.ReadFull(r, headerBytes); err != nil {
		err = errors.Wrapf(err, "failed to read npy header (%d bytes)", headerLen)
		return
	}
	encodedLen += headerLen
	h, err = parseHeader(string(headerBytes))
	return
}

var (
	reDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// parseHeader extracts dtype, shape, and fortran_order from the header dictionary.
// Example: "{'descr': '<f4', 'fortran_order': False, 'shape': (1, 2, 3), }"
func parseHeader(header string) (h Header, err error) {
	mDescr := reDescr.FindStringSubmatch(header)
	if len(mDescr) < 2 {
		err = errors.Errorf("could not find 'descr' in npy header: %q", header)
		return
	}
	if h.DType, err = DTypeFromDescr(mDescr[1]); err != nil {
		return
	}

	mFortran := reFortran.FindStringSubmatch(header)
	if len(mFortran) < 2 {
		err = errors.Errorf("could not find 'fortran_order' in npy header: %q", header)
		return
	}
	h.FortranOrder = mFortran[1] == "True"

	mShape := reShape.FindStringSubmatch(header)
	if len(mShape) < 2 {
		err = errors.Errorf("could not find 'shape' in npy header: %q", header)
		return
	}
	h.Shape = []int{}
	for _, p := range strings.Split(mShape[1], ",") {
		p = strings.TrimSpace(p)
		if p == "" { // Trailing comma, as in "(10,)", or scalar "()".
			continue
		}
		dim, pErr := strconv.Atoi(p)
		if pErr != nil {
			err = errors.Wrapf(pErr, "invalid shape value %q in npy header", p)
			return
		}
		if dim < 0 {
			err = errors.Errorf("negative dimension %d in npy header", dim)
			return
		}
		h.Shape = append(h.Shape, dim)
	}
	return
}

// DescrFromDType returns the NumPy type descriptor for dtype, little-endian for multi-byte types.
func DescrFromDType(dtype dtypes.DType) (string, error) {
	switch dtype {
	case dtypes.Bool:
		return "|b1", nil
	case dtypes.Int8:
		return "|i1", nil
	case dtypes.Uint8:
		return "|u1", nil
	case dtypes.Int16:
		return "<i2", nil
	case dtypes.Uint16:
		return "<u2", nil
	case dtypes.Int32:
		return "<i4", nil
	case dtypes.Uint32:
		return "<u4", nil
	case dtypes.Int64:
		return "<i8", nil
	case dtypes.Uint64:
		return "<u8", nil
	case dtypes.Float16:
		return "<f2", nil
	case dtypes.F32:
		return "<f4", nil
	case dtypes.F64:
		return "<f8", nil
	default:
		return "", errors.Errorf("dtype %s not supported in npy files", dtype)
	}
}

// DTypeFromDescr converts a NumPy type descriptor to a dtypes.DType.
// Big-endian descriptors are rejected.
func DTypeFromDescr(descr string) (dtypes.DType, error) {
	if strings.HasPrefix(descr, ">") {
		return dtypes.InvalidDType, errors.Errorf("big-endian npy dtype %q not supported", descr)
	}
	switch strings.TrimLeft(descr, "<|=") {
	case "b1", "?":
		return dtypes.Bool, nil
	case "i1":
		return dtypes.Int8, nil
	case "u1":
		return dtypes.Uint8, nil
	case "i2":
		return dtypes.Int16, nil
	case "u2":
		return dtypes.Uint16, nil
	case "i4":
		return dtypes.Int32, nil
	case "u4":
		return dtypes.Uint32, nil
	case "i8":
		return dtypes.Int64, nil
	case "u8":
		return dtypes.Uint64, nil
	case "f2":
		return dtypes.Float16, nil
	case "f4":
		return dtypes.F32, nil
	case "f8":
		return dtypes.F64, nil
	default:
		return dtypes.InvalidDType, errors.Errorf("unsupported npy dtype %q", descr)
	}
}
