package vision

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(w, h int) Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	return Frame{Image: img}
}

func TestCrop_AppliesPadding(t *testing.T) {
	f := testFrame(640, 480)
	d := Detection{ClassName: "person", X1: 100, Y1: 100, X2: 200, Y2: 200}

	crop, err := Crop(f, d)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(50, 50, 250, 250), crop.Bounds())
}

func TestCrop_ClampsToFrameBounds(t *testing.T) {
	f := testFrame(640, 480)
	d := Detection{ClassName: "person", X1: 10, Y1: 10, X2: 630, Y2: 470}

	crop, err := Crop(f, d)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 640, 480), crop.Bounds())
}

func TestCrop_OutsideFrame(t *testing.T) {
	f := testFrame(640, 480)
	d := Detection{ClassName: "person", X1: 900, Y1: 900, X2: 1000, Y2: 1000}

	_, err := Crop(f, d)
	assert.Error(t, err)
}

func TestCrop_EmptyFrame(t *testing.T) {
	_, err := Crop(Frame{}, Detection{X2: 10, Y2: 10})
	assert.Error(t, err)
}

func writeTestImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestFileCamera_CyclesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, filepath.Join(dir, "b.png"))
	writeTestImage(t, filepath.Join(dir, "a.png"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	cam, err := NewFileCamera(dir)
	require.NoError(t, err)
	defer cam.Close()

	for i := 0; i < 5; i++ {
		frame, err := cam.Capture()
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 8, 8), frame.Bounds())
	}
}

func TestFileCamera_EmptyDir(t *testing.T) {
	_, err := NewFileCamera(t.TempDir())
	assert.Error(t, err)
}

func TestNopDetector(t *testing.T) {
	dets, err := NopDetector{}.Detect(testFrame(8, 8))
	require.NoError(t, err)
	assert.Empty(t, dets)
}
