package main

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	root := t.TempDir()
	for ii, class := range []string{"apples", "pears"} {
		must.M(os.MkdirAll(filepath.Join(root, class), 0o755))
		img := image.NewNRGBA(image.Rect(0, 0, 24, 20))
		for y := range 20 {
			for x := range 24 {
				img.SetNRGBA(x, y, color.NRGBA{R: uint8(100 * ii), G: 50, B: 200, A: 255})
			}
		}
		must.M(imaging.Save(img, filepath.Join(root, class, "img.png")))
	}
	archivePath := filepath.Join(t.TempDir(), "out.npz")
	samplesDir := filepath.Join(t.TempDir(), "samples")

	run := func(args ...string) error {
		rootCmd.SetArgs(args)
		return rootCmd.ExecuteContext(context.Background())
	}
	require.NoError(t, run("create", "--data", root, "--output", archivePath, "--size", "8", "--progress=false"))
	require.Error(t, run("create", "--data", root, "--output", archivePath, "--size", "8"), "output exists")
	require.NoError(t, run("inspect", "--data", root, archivePath))
	require.NoError(t, run("sample", "--batch", "3", "--mmap", "--out", samplesDir, archivePath))
	entries, err := os.ReadDir(samplesDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRGBToNRGBA(t *testing.T) {
	img := rgbToNRGBA([]uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 2)
	assert.Equal(t, color.NRGBA{R: 10, G: 11, B: 12, A: 255}, img.NRGBAAt(1, 1))
}
