package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreprocess(t *testing.T) {
	values := Preprocess([]uint8{0, 255, 51})
	assert.InDelta(t, -1.0, values[0], 1e-6)
	assert.InDelta(t, 1.0, values[1], 1e-6)
	assert.InDelta(t, -0.6, values[2], 1e-6)
}

func TestPostprocess(t *testing.T) {
	assert.Equal(t, []uint8{0, 255, 0, 255, 127}, Postprocess([]float32{-1, 1, -3, 2.5, 0}))

	// Round trip is within truncation error.
	pixels := make([]uint8, 256)
	for ii := range pixels {
		pixels[ii] = uint8(ii)
	}
	for ii, p := range Postprocess(Preprocess(pixels)) {
		assert.InDelta(t, ii, int(p), 1)
	}
}
