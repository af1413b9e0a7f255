// Package inference classifies facial emotion in a frame by calling a
// hosted Gemini model.
//
// The remote model is a black box behind a single request/response call:
// a JPEG frame plus instructions go out, a JSON observation comes back.
// Two backends implement the Classifier interface: GenAI uses the
// google.golang.org/genai SDK, REST speaks the generateContent endpoint
// directly. Neither retries; retry policy belongs to the caller.
//
// Example usage:
//
//	c, _ := inference.New(ctx, inference.BackendGenAI,
//	    inference.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	)
//	defer c.Close()
//
//	obs, err := c.Classify(ctx, payload)
//	switch {
//	case errors.Is(err, inference.ErrTransport):
//	    // network or service failure
//	case errors.Is(err, inference.ErrMalformedResponse):
//	    // the model replied with something unusable
//	}
package inference

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/vision"
)

// Backend names accepted by New.
const (
	BackendGenAI = "genai"
	BackendREST  = "rest"
)

// Classifier turns an encoded frame into an emotion observation.
type Classifier interface {
	// Classify sends img to the remote model. On success the observation
	// is normalized and stamped with the local receipt time. Errors wrap
	// ErrTransport or ErrMalformedResponse.
	Classify(ctx context.Context, img *vision.Payload) (*emotions.Observation, error)

	// Close releases any resources held by the classifier.
	Close() error
}

// New creates the classifier for the named backend.
func New(ctx context.Context, backend string, opts ...Option) (Classifier, error) {
	switch backend {
	case BackendGenAI, "":
		return NewGenAI(ctx, opts...)
	case BackendREST:
		return NewREST(ctx, opts...)
	default:
		return nil, fmt.Errorf("inference: unknown backend %q", backend)
	}
}
