package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	// Decoders for uploaded stills.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Image is a static-image source. Every frame is the whole image.
type Image struct {
	img   image.Image
	path  string
	owned bool

	mu     sync.Mutex
	closed bool
}

// NewImage wraps an already decoded image.
func NewImage(img image.Image) *Image {
	return &Image{img: img}
}

// OpenImage decodes the image at path. When owned is true the file is
// removed on Close; use it for uploads the source takes over.
func OpenImage(path string, owned bool) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DeviceError{Device: path, Err: err}
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		if owned {
			os.Remove(path)
		}
		return nil, &DeviceError{Device: path, Err: fmt.Errorf("decode: %w", err)}
	}

	return &Image{img: img, path: path, owned: owned}, nil
}

// Kind returns KindImage.
func (s *Image) Kind() Kind {
	return KindImage
}

// Frame returns the image.
func (s *Image) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.img, nil
}

// Close releases the image and removes an owned file.
func (s *Image) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.img = nil
	if s.owned && s.path != "" {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("camera: release %s: %w", s.path, err)
		}
	}
	return nil
}

// Verify Image implements Source at compile time.
var _ Source = (*Image)(nil)
