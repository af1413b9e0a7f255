// Package camera provides the frame sources moodcam captures from.
//
// A Source yields one still frame per call from a live device, a static
// image or a seekable video. Manager owns whichever source is active and
// releases it when another one takes over. Device-backed sources live in
// the opencv subpackage; this package stays pure Go.
package camera

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"
)

// Kind identifies what a Source is backed by.
type Kind int

const (
	// KindLive is a live camera; frames reflect the latest decode.
	KindLive Kind = iota
	// KindImage is a static image; every frame is the whole image.
	KindImage
	// KindVideo is a seekable video; frames reflect the playback position.
	KindVideo
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindLive:
		return "live"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// IsMedia reports whether the kind is an uploaded or file-backed asset.
func (k Kind) IsMedia() bool {
	return k == KindImage || k == KindVideo
}

// Source produces still frames.
type Source interface {
	// Kind reports what backs the source.
	Kind() Kind

	// Frame returns a snapshot of the current frame. The returned image
	// must not be modified by the caller.
	Frame(ctx context.Context) (image.Image, error)

	// Close releases the underlying device or file. Safe to call twice.
	Close() error
}

// Player is implemented by sources with a playback position.
type Player interface {
	Duration() time.Duration
	Position() time.Duration
	Playing() bool
	Play()
	Pause()
	Seek(pos time.Duration)
}

// MediaKind classifies a declared media type as image or video.
func MediaKind(contentType string) (Kind, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return KindImage, nil
	case strings.HasPrefix(ct, "video/"):
		return KindVideo, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMedia, contentType)
	}
}
