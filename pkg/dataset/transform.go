// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// NumChannels of the stored images: R, G and B.
const NumChannels = 3

// ErrImageTooSmall matches (with errors.Is) any *ImageTooSmallError.
var ErrImageTooSmall = errors.New("image too small")

// ImageTooSmallError is returned when the shorter side of an image is smaller than the target size.
type ImageTooSmallError struct {
	Path          string
	Width, Height int
	Size          int
}

// Error implements error.
func (e *ImageTooSmallError) Error() string {
	return fmt.Sprintf("image %q is %dx%d, its shorter side is smaller than %d", e.Path, e.Width, e.Height, e.Size)
}

// Is allows errors.Is(err, ErrImageTooSmall).
func (e *ImageTooSmallError) Is(target error) bool {
	return target == ErrImageTooSmall
}

// CropBox returns the largest square centered along the longer axis of bounds.
// The offset along the longer axis is `(longer - shorter) / 2`, rounded down.
func CropBox(bounds image.Rectangle) image.Rectangle {
	width, height := bounds.Dx(), bounds.Dy()
	if width > height {
		x0 := bounds.Min.X + (width-height)/2
		return image.Rect(x0, bounds.Min.Y, x0+height, bounds.Max.Y)
	}
	y0 := bounds.Min.Y + (height-width)/2
	return image.Rect(bounds.Min.X, y0, bounds.Max.X, y0+width)
}

// Transform crops img to a centered square (see CropBox) and resizes it to size x size,
// averaging the area of the source pixels covered by each target pixel.
//
// It returns the pixels as `[size, size, 3]` bytes in row-major order, with channels R, G, B.
// The alpha channel is dropped.
// It fails with an *ImageTooSmallError if the shorter side of img is smaller than size.
func Transform(img image.Image, size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid target image size %d", size)
	}
	bounds := img.Bounds()
	if min(bounds.Dx(), bounds.Dy()) < size {
		return nil, &ImageTooSmallError{Width: bounds.Dx(), Height: bounds.Dy(), Size: size}
	}
	cropped := imaging.Crop(img, CropBox(bounds))
	resized := imaging.Resize(cropped, size, size, imaging.Box)
	return nrgbaToRGB(resized), nil
}

// nrgbaToRGB packs the R,G,B channels of img.
func nrgbaToRGB(img *image.NRGBA) []byte {
	width, height := img.Rect.Dx(), img.Rect.Dy()
	rgb := make([]byte, width*height*NumChannels)
	pos := 0
	for y := range height {
		row := img.Pix[y*img.Stride : y*img.Stride+4*width]
		for x := range width {
			copy(rgb[pos:pos+NumChannels], row[4*x:4*x+NumChannels])
			pos += NumChannels
		}
	}
	return rgb
}

// LoadCropResize decodes the JPEG or PNG image at imagePath and applies Transform.
//
// The EXIF orientation of JPEG files is honored. If the image is too small, the
// *ImageTooSmallError returned holds imagePath.
func LoadCropResize(imagePath string, size int) ([]byte, error) {
	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %q", imagePath)
	}
	rgb, err := Transform(img, size)
	if err != nil {
		var tooSmall *ImageTooSmallError
		if errors.As(err, &tooSmall) {
			tooSmall.Path = imagePath
			return nil, tooSmall
		}
		return nil, errors.WithMessagef(err, "while transforming %q", imagePath)
	}
	return rgb, nil
}
