package opencv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/camera"
)

func TestOpenVideoMissingFile(t *testing.T) {
	_, err := OpenVideo("/nonexistent/clip.mp4", false)
	if err == nil {
		t.Fatal("expected error for missing video")
	}
	if !errors.Is(err, camera.ErrDeviceUnavailable) {
		t.Errorf("expected DeviceError, got %v", err)
	}
}

func TestOpenVideoOwnedGarbageRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload.mp4")
	if err := os.WriteFile(path, []byte("not a video"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenVideo(path, true); err == nil {
		t.Fatal("expected error for garbage video")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("owned upload should be removed when it cannot be opened")
	}
}

func TestOpenMediaUnsupported(t *testing.T) {
	_, err := OpenMedia("file.txt", "text/plain", false)
	if !errors.Is(err, camera.ErrUnsupportedMedia) {
		t.Errorf("expected ErrUnsupportedMedia, got %v", err)
	}
}

func TestOpenMediaErrorReturnsNilSource(t *testing.T) {
	src, err := OpenMedia(filepath.Join(t.TempDir(), "missing.png"), "image/png", false)
	if err == nil {
		t.Fatal("expected error for missing image")
	}
	if src != nil {
		t.Errorf("source = %#v, want nil interface", src)
	}
}

func TestOpenMediaUnsupportedRemovesOwned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(path, []byte("hi"), 0o644)

	if _, err := OpenMedia(path, "text/plain", true); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("owned upload should be removed")
	}
}

func TestOpenCameraInvalidConfig(t *testing.T) {
	cfg := camera.DefaultConfig()
	cfg.Width = 10

	_, err := OpenCamera(cfg, nil)
	if !errors.Is(err, camera.ErrDeviceUnavailable) {
		t.Errorf("expected DeviceError for invalid config, got %v", err)
	}
}

// TestCameraLive needs a real camera; it is skipped unless
// MOODCAM_TEST_CAMERA is set.
func TestCameraLive(t *testing.T) {
	if os.Getenv("MOODCAM_TEST_CAMERA") == "" {
		t.Skip("MOODCAM_TEST_CAMERA not set, skipping hardware test")
	}

	cam, err := OpenCamera(camera.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("OpenCamera failed: %v", err)
	}
	defer cam.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		img, err := cam.Frame(context.Background())
		if err == nil {
			if img.Bounds().Empty() {
				t.Error("expected non-empty frame")
			}
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Error("no frame within 5s")
}

func TestVideoClock(t *testing.T) {
	now := time.Unix(0, 0)
	v := &Video{duration: 10 * time.Second, now: func() time.Time { return now }}
	v.started = now

	now = now.Add(3 * time.Second)
	if got := v.Position(); got != 3*time.Second {
		t.Errorf("expected 3s, got %s", got)
	}

	v.Pause()
	now = now.Add(5 * time.Second)
	if got := v.Position(); got != 3*time.Second {
		t.Errorf("paused position should hold at 3s, got %s", got)
	}
	if v.Playing() {
		t.Error("expected paused")
	}

	v.Seek(9 * time.Second)
	v.Play()
	now = now.Add(2 * time.Second)
	if got := v.Position(); got != time.Second {
		t.Errorf("expected loop to 1s, got %s", got)
	}
}
