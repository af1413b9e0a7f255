package opencv

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"gocv.io/x/gocv"
)

// Video is a seekable video-file source. It keeps a playback clock;
// Frame returns the frame at the current position and loops at the end.
type Video struct {
	path     string
	owned    bool
	vc       *gocv.VideoCapture
	mat      gocv.Mat
	duration time.Duration

	mu      sync.Mutex
	offset  time.Duration // Position when the clock last started or stopped
	started time.Time     // Zero while paused
	closed  bool

	now func() time.Time
}

// OpenVideo opens the video at path and starts playback at 0. When owned
// is true the file is removed on Close.
func OpenVideo(path string, owned bool) (*Video, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		if vc != nil {
			vc.Close()
		}
		if owned {
			os.Remove(path)
		}
		return nil, &camera.DeviceError{Device: path, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		if owned {
			os.Remove(path)
		}
		return nil, &camera.DeviceError{Device: path, Err: fmt.Errorf("not a readable video")}
	}

	var duration time.Duration
	if fps := vc.Get(gocv.VideoCaptureFPS); fps > 0 {
		frames := vc.Get(gocv.VideoCaptureFrameCount)
		duration = time.Duration(frames / fps * float64(time.Second))
	}

	v := &Video{
		path:     path,
		owned:    owned,
		vc:       vc,
		mat:      gocv.NewMat(),
		duration: duration,
		now:      time.Now,
	}
	v.started = v.now()
	return v, nil
}

// Kind returns camera.KindVideo.
func (v *Video) Kind() camera.Kind {
	return camera.KindVideo
}

// Duration returns the video length, or 0 when the container does not
// report one.
func (v *Video) Duration() time.Duration {
	return v.duration
}

// Position returns the current playback position.
func (v *Video) Position() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position()
}

func (v *Video) position() time.Duration {
	pos := v.offset
	if !v.started.IsZero() {
		pos += v.now().Sub(v.started)
	}
	if v.duration > 0 {
		pos %= v.duration
	}
	return pos
}

// Playing reports whether the playback clock is running.
func (v *Video) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.started.IsZero()
}

// Play resumes playback from the current position.
func (v *Video) Play() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.started.IsZero() {
		v.started = v.now()
	}
}

// Pause freezes the current position.
func (v *Video) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.started.IsZero() {
		v.offset = v.position()
		v.started = time.Time{}
	}
}

// Seek moves playback to pos, keeping the play/pause state.
func (v *Video) Seek(pos time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	v.offset = pos
	if !v.started.IsZero() {
		v.started = v.now()
	}
}

// Frame decodes the frame at the current playback position.
func (v *Video) Frame(ctx context.Context) (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, camera.ErrClosed
	}

	pos := v.position()
	v.vc.Set(gocv.VideoCapturePosMsec, float64(pos.Milliseconds()))
	if ok := v.vc.Read(&v.mat); !ok || v.mat.Empty() {
		// Past the last decodable frame; wrap around.
		v.vc.Set(gocv.VideoCapturePosMsec, 0)
		if ok := v.vc.Read(&v.mat); !ok || v.mat.Empty() {
			return nil, camera.ErrNoFrame
		}
	}

	img, err := v.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("camera: convert frame: %w", err)
	}
	return img, nil
}

// Close releases the decoder and removes an owned file.
func (v *Video) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true

	v.mat.Close()
	err := v.vc.Close()
	if v.owned {
		if rerr := os.Remove(v.path); rerr != nil && !os.IsNotExist(rerr) && err == nil {
			err = rerr
		}
	}
	return err
}

// Verify Video implements camera.Source and camera.Player at compile time.
var (
	_ camera.Source = (*Video)(nil)
	_ camera.Player = (*Video)(nil)
)
