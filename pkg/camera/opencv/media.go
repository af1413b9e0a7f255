package opencv

import (
	"errors"
	"os"
	"strings"

	"github.com/teslashibe/go-moodcam/pkg/camera"
)

// OpenMedia opens path as an image or video source depending on the
// declared media type. Owned files are removed when the source closes,
// or right away if it cannot be opened.
func OpenMedia(path, contentType string, owned bool) (camera.Source, error) {
	kind, err := camera.MediaKind(contentType)
	if err != nil {
		if owned {
			os.Remove(path)
		}
		return nil, err
	}
	if kind == camera.KindImage {
		img, err := camera.OpenImage(path, owned)
		if err != nil {
			return nil, err
		}
		return img, nil
	}
	v, err := OpenVideo(path, owned)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func validationError(errs []string) error {
	return errors.New(strings.Join(errs, "; "))
}
