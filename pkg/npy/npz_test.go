package npy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestNpz(t *testing.T, compression Compression) (string, *Array, *Array) {
	features := FromUint8([]uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 2, 2, 1, 3)
	labels := FromInt32([]int32{3, -1})
	featuresEntry, err := ArrayEntry("features", features)
	require.NoError(t, err)
	labelsEntry, err := ArrayEntry("labels", labels)
	require.NoError(t, err)
	filePath := filepath.Join(t.TempDir(), "data.npz")
	require.NoError(t, WriteNpz(filePath, compression, featuresEntry, labelsEntry))
	return filePath, features, labels
}

func TestNpz_RoundTrip(t *testing.T) {
	for _, compression := range []Compression{NoCompression, Deflate} {
		t.Run(compression.String(), func(t *testing.T) {
			filePath, features, labels := writeTestNpz(t, compression)
			arrays, err := ReadNpz(filePath)
			require.NoError(t, err)
			require.Len(t, arrays, 2)
			assert.Equal(t, features, arrays["features"])
			assert.Equal(t, labels.Data, arrays["labels"].Data)
			values, err := arrays["labels"].AsInt32()
			require.NoError(t, err)
			assert.Equal(t, []int32{3, -1}, values)
			_, err = arrays["labels"].AsUint8()
			require.Error(t, err)
		})
	}
}

func TestMapNpz(t *testing.T) {
	filePath, features, labels := writeTestNpz(t, NoCompression)
	m, err := MapNpz(filePath)
	require.NoError(t, err)
	assert.Equal(t, features.Data, m.Arrays["features"].Data)
	assert.Equal(t, []int{2, 2, 1, 3}, m.Arrays["features"].Shape)
	assert.Equal(t, labels.Data, m.Arrays["labels"].Data)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	// Compressed archives can't be mapped.
	filePath, _, _ = writeTestNpz(t, Deflate)
	_, err = MapNpz(filePath)
	require.Error(t, err)
}

func TestWriteNpz_RemovesPartialFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "bad.npz")
	err := WriteNpz(filePath, NoCompression, Entry{Name: "broken", Reader: failingReader{}})
	require.Error(t, err)
	_, statErr := os.Stat(filePath)
	assert.True(t, os.IsNotExist(statErr))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, os.ErrClosed }

func TestFortranOrder(t *testing.T) {
	// 2x3 int8 matrix [[1,2,3],[4,5,6]] stored column-major.
	h := Header{DType: dtypes.Int8, FortranOrder: true, Shape: []int{2, 3}}
	preamble, err := h.Encode(0)
	require.NoError(t, err)
	filePath := filepath.Join(t.TempDir(), "f.npy")
	require.NoError(t, os.WriteFile(filePath, append(preamble, 1, 4, 2, 5, 3, 6), 0o644))
	arr, err := ReadNpyFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, arr.Data)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("Deflate")
	require.NoError(t, err)
	assert.Equal(t, Deflate, c)
	c, err = ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, NoCompression, c)
	_, err = ParseCompression("lz4")
	require.Error(t, err)
}
