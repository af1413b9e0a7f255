package capture

import (
	"errors"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/inference"
	"github.com/teslashibe/go-moodcam/pkg/vision"
)

// ErrClosed is returned by operations on a closed Scheduler.
var ErrClosed = errors.New("capture: scheduler closed")

// Banner messages for failures outside the classification client.
const (
	DeviceMessage     = "The camera or media source is unavailable. Check that it is connected and not in use, then try again."
	PreprocessMessage = "The captured frame could not be processed. Please try again."
)

// Message returns the user-facing text for a capture failure.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, camera.ErrDeviceUnavailable), errors.Is(err, camera.ErrClosed):
		return DeviceMessage
	case errors.Is(err, vision.ErrEmptyImage):
		return PreprocessMessage
	default:
		return inference.Message(err)
	}
}
