package dataset

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

func TestCropBox(t *testing.T) {
	assert.Equal(t, image.Rect(0, 50, 100, 150), CropBox(image.Rect(0, 0, 100, 200)))
	assert.Equal(t, image.Rect(50, 0, 150, 100), CropBox(image.Rect(0, 0, 200, 100)))
	assert.Equal(t, image.Rect(25, 0, 75, 50), CropBox(image.Rect(0, 0, 101, 50)))
	assert.Equal(t, image.Rect(10, 10, 74, 74), CropBox(image.Rect(10, 10, 74, 74)))
}

// pixelAt returns the RGB pixel at (x, y) of a [size, size, 3] image.
func pixelAt(rgb []byte, size, x, y int) [3]byte {
	pos := (y*size + x) * NumChannels
	return [3]byte{rgb[pos], rgb[pos+1], rgb[pos+2]}
}

func TestTransform(t *testing.T) {
	// Portrait 100x200: the rows outside [50, 150) are cropped away.
	img := solidImage(100, 200, red)
	for y := 50; y < 150; y++ {
		c := green
		if y >= 100 {
			c = blue
		}
		for x := range 100 {
			img.SetNRGBA(x, y, c)
		}
	}
	rgb, err := Transform(img, 50)
	require.NoError(t, err)
	require.Len(t, rgb, 50*50*3)
	for y := range 50 {
		want := [3]byte{0, 255, 0}
		if y >= 25 {
			want = [3]byte{0, 0, 255}
		}
		for _, x := range []int{0, 17, 49} {
			require.Equalf(t, want, pixelAt(rgb, 50, x, y), "pixel (%d, %d)", x, y)
		}
	}

	// Already the target size: unchanged.
	square := solidImage(8, 8, red)
	square.SetNRGBA(3, 5, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	rgb, err = Transform(square, 8)
	require.NoError(t, err)
	assert.Equal(t, [3]byte{1, 2, 3}, pixelAt(rgb, 8, 3, 5))
	assert.Equal(t, [3]byte{255, 0, 0}, pixelAt(rgb, 8, 0, 0))

	_, err = Transform(square, 0)
	require.Error(t, err)
}

func TestTransform_TooSmall(t *testing.T) {
	_, err := Transform(solidImage(300, 255, red), 256)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrImageTooSmall))
	var tooSmall *ImageTooSmallError
	require.True(t, errors.As(err, &tooSmall))
	assert.Equal(t, 300, tooSmall.Width)
	assert.Equal(t, 255, tooSmall.Height)
}

func TestLoadCropResize(t *testing.T) {
	dir := t.TempDir()
	imgPath := saveImage(t, dir, "blue.png", solidImage(64, 48, blue))
	rgb, err := LoadCropResize(imgPath, 16)
	require.NoError(t, err)
	require.Len(t, rgb, 16*16*3)
	assert.Equal(t, [3]byte{0, 0, 255}, pixelAt(rgb, 16, 7, 9))

	jpgPath := saveImage(t, dir, "small.jpg", solidImage(20, 40, green))
	_, err = LoadCropResize(jpgPath, 32)
	var tooSmall *ImageTooSmallError
	require.True(t, errors.As(err, &tooSmall))
	assert.Equal(t, jpgPath, tooSmall.Path)

	brokenPath := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(brokenPath, []byte("not a png"), 0o644))
	_, err = LoadCropResize(brokenPath, 16)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrImageTooSmall))
}

func TestLoadCropResize_Idempotent(t *testing.T) {
	const width, height, size = 301, 257, 64
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x*y + 7), A: 255})
		}
	}
	imgPath := saveImage(t, t.TempDir(), "gradient.jpg", img)

	first, err := LoadCropResize(imgPath, size)
	require.NoError(t, err)
	require.Len(t, first, size*size*NumChannels)
	second, err := LoadCropResize(imgPath, size)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
