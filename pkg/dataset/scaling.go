// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

// Preprocess converts pixel values in [0, 255] to float32 values in [-1, 1].
func Preprocess(pixels []uint8) []float32 {
	values := make([]float32, len(pixels))
	for ii, p := range pixels {
		values[ii] = float32(p)/127.5 - 1
	}
	return values
}

// Postprocess is the inverse of Preprocess: it converts values in [-1, 1] back to pixel values.
// Values out of range are clipped, and fractional pixel values are truncated.
func Postprocess(values []float32) []uint8 {
	pixels := make([]uint8, len(values))
	for ii, v := range values {
		p := min(max(v*127.5+127.5, 0), 255)
		pixels[ii] = uint8(p)
	}
	return pixels
}
