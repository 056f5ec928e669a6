// Package vision defines the capture and detection interfaces the
// alert pipeline consumes, plus file-backed implementations usable
// without camera hardware.
package vision

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "image/jpeg"
	_ "image/png"
)

// Detection is one recognized object in a frame, with pixel-space
// bounding box corners.
type Detection struct {
	ClassName  string
	ClassID    int
	Confidence float64
	X1, Y1     int
	X2, Y2     int
}

// Frame is a captured image.
type Frame struct {
	Image image.Image
}

// Bounds returns the frame's pixel bounds.
func (f Frame) Bounds() image.Rectangle {
	if f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// Camera produces frames.
type Camera interface {
	Capture() (Frame, error)
	Close() error
}

// Detector finds objects of interest in a frame.
type Detector interface {
	Detect(f Frame) ([]Detection, error)
}

// cropPaddingPx is added on every side of a detection box when
// extracting evidence crops.
const cropPaddingPx = 50

// Crop extracts the detection's region from the frame with padding,
// clamped to the frame bounds.
func Crop(f Frame, d Detection) (image.Image, error) {
	if f.Image == nil {
		return nil, fmt.Errorf("empty frame")
	}
	b := f.Image.Bounds()
	r := image.Rect(d.X1-cropPaddingPx, d.Y1-cropPaddingPx, d.X2+cropPaddingPx, d.Y2+cropPaddingPx).Intersect(b)
	if r.Empty() {
		return nil, fmt.Errorf("detection box outside frame bounds")
	}
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	si, ok := f.Image.(subImager)
	if !ok {
		return nil, fmt.Errorf("frame image %T does not support cropping", f.Image)
	}
	return si.SubImage(r), nil
}

// FileCamera replays image files from a directory in name order,
// looping when exhausted. Useful for bench runs and tests.
type FileCamera struct {
	mu    sync.Mutex
	paths []string
	next  int
}

func NewFileCamera(dir string) (*FileCamera, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	sort.Strings(paths)
	return &FileCamera{paths: paths}, nil
}

func (c *FileCamera) Capture() (Frame, error) {
	c.mu.Lock()
	path := c.paths[c.next]
	c.next = (c.next + 1) % len(c.paths)
	c.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return Frame{}, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return Frame{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Frame{Image: img}, nil
}

func (c *FileCamera) Close() error { return nil }

// NopDetector reports no detections. It stands in when no model is
// configured.
type NopDetector struct{}

func (NopDetector) Detect(Frame) ([]Detection, error) { return nil, nil }
