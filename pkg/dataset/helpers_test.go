package dataset

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/janpfeifer/must"
)

// solidImage returns a width x height image filled with c.
func solidImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// saveImage saves img to dir/name (format by extension), creating dir if needed, and returns its path.
func saveImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	must.M(os.MkdirAll(dir, 0o755))
	imgPath := filepath.Join(dir, name)
	must.M(imaging.Save(img, imgPath))
	return imgPath
}

// touch creates an empty file.
func touch(t *testing.T, filePath string) {
	t.Helper()
	must.M(os.MkdirAll(filepath.Dir(filePath), 0o755))
	must.M(os.WriteFile(filePath, nil, 0o644))
}
