package dataset

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/ganprep/pkg/npy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestData creates two classes under a new root directory: "catA" with 3 valid images and
// "catB" with 2 valid images, one undersized image and one corrupt file.
// It returns the root and the color of each valid image mapped to its label.
func createTestData(t *testing.T, size int) (root string, colorToLabel map[[3]byte]int32) {
	root = t.TempDir()
	colorToLabel = make(map[[3]byte]int32)
	add := func(class string, label int32, name string, c color.NRGBA) {
		saveImage(t, filepath.Join(root, class), name, solidImage(size+7, 2*size, c))
		colorToLabel[[3]byte{c.R, c.G, c.B}] = label
	}
	add("catA", 0, "a0.png", color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	add("catA", 0, "a1.png", color.NRGBA{R: 10, G: 200, B: 10, A: 255})
	add("catA", 0, "a2.png", color.NRGBA{R: 10, G: 10, B: 200, A: 255})
	add("catB", 1, "b0.png", color.NRGBA{R: 100, G: 100, B: 0, A: 255})
	add("catB", 1, "b1.png", color.NRGBA{R: 0, G: 100, B: 100, A: 255})
	saveImage(t, filepath.Join(root, "catB"), "small.png", solidImage(size-1, 3*size, red))
	require.NoError(t, os.WriteFile(filepath.Join(root, "catB", "corrupt.png"), []byte("garbage"), 0o644))
	return
}

func TestCreate(t *testing.T) {
	const size = 16
	root, colorToLabel := createTestData(t, size)
	for _, compression := range []npy.Compression{npy.NoCompression, npy.Deflate} {
		for _, parallelism := range []int{0, 1, 4} {
			tmpDir := t.TempDir()
			config := DefaultConfig()
			config.DataDir = root
			config.Output = filepath.Join(t.TempDir(), "out.npz")
			config.ImageSize = size
			config.Parallelism = parallelism
			config.Compression = compression
			config.TempDir = tmpDir

			result, err := Create(config)
			require.NoError(t, err)
			assert.Equal(t, config.Output, result.Output)
			assert.Equal(t, 7, result.Discovered)
			assert.Equal(t, 5, result.Kept)
			assert.Equal(t, 1, result.TooSmall)
			assert.Equal(t, 1, result.Failed)
			assert.Equal(t, []string{"catA", "catB"}, result.Classes)

			// Temporary files removed.
			entries, err := os.ReadDir(tmpDir)
			require.NoError(t, err)
			assert.Empty(t, entries)

			features, labels, err := Load(result.Output)
			require.NoError(t, err)
			assert.Equal(t, []int{5, size, size, 3}, features.Shape)
			assert.ElementsMatch(t, []int32{0, 0, 0, 1, 1}, labels)

			seen := make(map[[3]byte]int32)
			imgBytes := size * size * NumChannels
			for ii, label := range labels {
				img := features.Data[ii*imgBytes : (ii+1)*imgBytes]
				c := pixelAt(img, size, 0, 0)
				require.Equal(t, c, pixelAt(img, size, size-1, size-1))
				seen[c] = label
			}
			assert.Equal(t, colorToLabel, seen)
		}
	}
}

func TestCreate_Errors(t *testing.T) {
	config := DefaultConfig()
	_, err := Create(config)
	require.Error(t, err)

	config.DataDir = t.TempDir()
	config.Output = filepath.Join(t.TempDir(), "out.npz")
	_, err = Create(config)
	require.ErrorIs(t, err, ErrNoImagesFound)
	_, statErr := os.Stat(config.Output)
	assert.True(t, os.IsNotExist(statErr))

	// Output directory doesn't exist: no archive, and the temporary files are removed.
	root, _ := createTestData(t, 8)
	tmpDir := t.TempDir()
	config.DataDir = root
	config.ImageSize = 8
	config.TempDir = tmpDir
	config.Output = filepath.Join(t.TempDir(), "missing", "out.npz")
	_, err = Create(config)
	require.Error(t, err)
	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
