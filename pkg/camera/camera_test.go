package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// fakeSource records Close calls.
type fakeSource struct {
	kind   Kind
	closed int
	err    error
}

func (f *fakeSource) Kind() Kind { return f.kind }

func (f *fakeSource) Frame(ctx context.Context) (image.Image, error) {
	if f.closed > 0 {
		return nil, ErrClosed
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (f *fakeSource) Close() error {
	f.closed++
	return f.err
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestManagerNoSource(t *testing.T) {
	m := NewManager()

	if _, err := m.Frame(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
	if _, ok := m.Kind(); ok {
		t.Error("expected no kind without a source")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close on empty manager failed: %v", err)
	}
}

func TestManagerActivateReleasesPrevious(t *testing.T) {
	m := NewManager()
	first := &fakeSource{kind: KindLive}
	second := &fakeSource{kind: KindImage}

	var switched []Source
	m.OnSwitch = func(next Source) { switched = append(switched, next) }

	if err := m.Activate(first); err != nil {
		t.Fatal(err)
	}
	if err := m.Activate(second); err != nil {
		t.Fatal(err)
	}

	if first.closed != 1 {
		t.Errorf("previous source should be closed once, got %d", first.closed)
	}
	if second.closed != 0 {
		t.Error("active source should stay open")
	}
	if kind, _ := m.Kind(); kind != KindImage {
		t.Errorf("expected image kind, got %s", kind)
	}
	if len(switched) != 2 || switched[1] != second {
		t.Errorf("unexpected switch callbacks: %v", switched)
	}

	if _, err := m.Frame(context.Background()); err != nil {
		t.Errorf("Frame failed: %v", err)
	}
}

func TestManagerActivateSameSource(t *testing.T) {
	m := NewManager()
	src := &fakeSource{}
	m.Activate(src)
	m.Activate(src)
	if src.closed != 0 {
		t.Error("re-activating the same source must not close it")
	}
}

func TestManagerActivateCloseError(t *testing.T) {
	m := NewManager()
	m.Activate(&fakeSource{err: errors.New("busy")})

	next := &fakeSource{}
	if err := m.Activate(next); err == nil {
		t.Error("expected release error")
	}
	if m.Active() != next {
		t.Error("next source should be active despite release error")
	}
}

func TestManagerCloseIdempotent(t *testing.T) {
	m := NewManager()
	src := &fakeSource{}
	m.Activate(src)

	m.Close()
	m.Close()

	if src.closed != 1 {
		t.Errorf("expected one close, got %d", src.closed)
	}
	if m.Active() != nil {
		t.Error("expected no active source after Close")
	}
}

func TestManagerDeactivate(t *testing.T) {
	m := NewManager()
	src := &fakeSource{}
	m.Activate(src)

	if err := m.Deactivate(); err != nil {
		t.Fatal(err)
	}
	if src.closed != 1 || m.Active() != nil {
		t.Error("Deactivate should release and clear the source")
	}
}

func TestMediaKind(t *testing.T) {
	tests := []struct {
		ct      string
		want    Kind
		wantErr bool
	}{
		{"image/jpeg", KindImage, false},
		{"IMAGE/PNG", KindImage, false},
		{"video/mp4", KindVideo, false},
		{"video/webm; codecs=vp9", KindVideo, false},
		{"application/pdf", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := MediaKind(tt.ct)
		if (err != nil) != tt.wantErr {
			t.Errorf("MediaKind(%q) error = %v, wantErr %v", tt.ct, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("MediaKind(%q) = %s, want %s", tt.ct, got, tt.want)
		}
	}
}

func TestOpenImageOwned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload.png")
	writePNG(t, path, 20, 10)

	src, err := OpenImage(path, true)
	if err != nil {
		t.Fatalf("OpenImage failed: %v", err)
	}
	if src.Kind() != KindImage {
		t.Errorf("unexpected kind %s", src.Kind())
	}

	img, err := src.Frame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 10 {
		t.Errorf("unexpected size %v", img.Bounds())
	}

	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("owned file should be removed on Close")
	}
	if _, err := src.Frame(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
}

func TestOpenImageNotOwnedKeepsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.png")
	writePNG(t, path, 8, 8)

	src, err := OpenImage(path, false)
	if err != nil {
		t.Fatal(err)
	}
	src.Close()

	if _, err := os.Stat(path); err != nil {
		t.Error("file not owned by the source should be kept")
	}
}

func TestOpenImageErrors(t *testing.T) {
	if _, err := OpenImage("/nonexistent/x.png", false); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected DeviceError for missing file, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.png")
	os.WriteFile(path, []byte("nope"), 0o600)
	if _, err := OpenImage(path, true); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected DeviceError for undecodable file, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("owned undecodable upload should be removed")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config should be valid: %v", errs)
	}

	bad := Config{Device: -1, Width: 10, Height: 10, Framerate: 0}
	if errs := bad.Validate(); len(errs) != 4 {
		t.Errorf("expected 4 errors, got %v", errs)
	}
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name, 1)
		if cfg == nil {
			t.Fatalf("preset %s missing", name)
		}
		if cfg.Device != 1 {
			t.Errorf("preset %s should take the device index", name)
		}
		if errs := cfg.Validate(); len(errs) != 0 {
			t.Errorf("preset %s invalid: %v", name, errs)
		}
	}
	if GetPreset("8k", 0) != nil {
		t.Error("unknown preset should be nil")
	}
}
