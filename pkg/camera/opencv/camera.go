// Package opencv provides device- and file-backed frame sources built on
// gocv. It needs OpenCV at build time; the rest of moodcam does not.
package opencv

import (
	"context"
	"image"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"gocv.io/x/gocv"
)

// retryDelay is how long the grab loop waits after a failed read.
const retryDelay = 50 * time.Millisecond

// Camera is a live camera source. A background loop keeps decoding the
// device so Frame always returns the most recent frame without waiting.
type Camera struct {
	cfg    camera.Config
	vc     *gocv.VideoCapture
	logger *slog.Logger

	frameMu sync.RWMutex
	latest  image.Image

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// OpenCamera opens the device in cfg and starts decoding. Failure to
// acquire the device is a camera.DeviceError.
func OpenCamera(cfg camera.Config, logger *slog.Logger) (*Camera, error) {
	device := strconv.Itoa(cfg.Device)
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, &camera.DeviceError{Device: device, Err: validationError(errs)}
	}
	if logger == nil {
		logger = slog.Default()
	}

	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		if vc != nil {
			vc.Close()
		}
		return nil, &camera.DeviceError{Device: device, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &camera.DeviceError{Device: device}
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	c := &Camera{
		cfg:    cfg,
		vc:     vc,
		logger: logger.With("component", "camera.live", "device", cfg.Device),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.grabLoop()

	c.logger.Info("camera opened", "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return c, nil
}

// grabLoop is the only goroutine that touches vc until Close.
func (c *Camera) grabLoop() {
	defer close(c.done)

	mat := gocv.NewMat()
	defer mat.Close()

	failures := 0
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		if ok := c.vc.Read(&mat); !ok || mat.Empty() {
			failures++
			if failures == 20 {
				c.logger.Warn("camera produced no frames", "attempts", failures)
			}
			select {
			case <-c.stop:
				return
			case <-time.After(retryDelay):
			}
			continue
		}
		failures = 0

		img, err := mat.ToImage()
		if err != nil {
			c.logger.Debug("frame conversion failed", "error", err)
			continue
		}

		c.frameMu.Lock()
		c.latest = img
		c.frameMu.Unlock()
	}
}

// Kind returns camera.KindLive.
func (c *Camera) Kind() camera.Kind {
	return camera.KindLive
}

// Frame returns the most recently decoded frame, or camera.ErrNoFrame
// before the first decode.
func (c *Camera) Frame(ctx context.Context) (image.Image, error) {
	select {
	case <-c.stop:
		return nil, camera.ErrClosed
	default:
	}

	c.frameMu.RLock()
	defer c.frameMu.RUnlock()
	if c.latest == nil {
		return nil, camera.ErrNoFrame
	}
	return c.latest, nil
}

// Close stops decoding and releases the device.
func (c *Camera) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		err = c.vc.Close()
		c.logger.Info("camera released")
	})
	return err
}

// Verify Camera implements camera.Source at compile time.
var _ camera.Source = (*Camera)(nil)
