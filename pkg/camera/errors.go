package camera

import (
	"errors"
	"fmt"
)

// Sentinel errors for frame sources.
var (
	// ErrNoSource is returned when no source is active.
	ErrNoSource = errors.New("camera: no active source")

	// ErrNoFrame is returned when a source has not produced a frame yet.
	ErrNoFrame = errors.New("camera: no frame available")

	// ErrClosed is returned by a source after Close.
	ErrClosed = errors.New("camera: source closed")

	// ErrDeviceUnavailable is wrapped by every DeviceError.
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	// ErrUnsupportedMedia is returned for media types that are neither
	// image nor video.
	ErrUnsupportedMedia = errors.New("camera: unsupported media type")
)

// DeviceError reports that a camera or media source could not be
// acquired: permission denied, no hardware, device busy, unreadable file.
type DeviceError struct {
	// Device names the device index or file path.
	Device string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("camera: device %s unavailable: %v", e.Device, e.Err)
	}
	return fmt.Sprintf("camera: device %s unavailable", e.Device)
}

// Unwrap returns the cause.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDeviceUnavailable) true for every DeviceError.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}
