package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-moodcam/internal/httpc"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/vision"
	"google.golang.org/genai"
)

const providerGenAI = "genai"

// GenAI classifies frames through the google.golang.org/genai SDK.
type GenAI struct {
	client *genai.Client
	http   *http.Client
	config *Config
	logger *slog.Logger
}

// NewGenAI creates a GenAI classifier. An API key is required.
func NewGenAI(ctx context.Context, opts ...Option) (*GenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if cfg.BaseURL != "" && cfg.BaseURL != DefaultBaseURL {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("inference [%s]: create client: %w", providerGenAI, err)
	}

	return &GenAI{
		client: client,
		http:   hc,
		config: cfg,
		logger: cfg.Logger.With("component", "inference.genai"),
	}, nil
}

// Classify implements Classifier.
func (g *GenAI) Classify(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, ErrEmptyImage
	}
	start := time.Now()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(Instructions()),
			genai.NewPartFromBytes(img.Data, img.MIMEType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(g.config.Temperature)),
		MaxOutputTokens:  int32(g.config.MaxTokens),
		ResponseMIMEType: "application/json",
		ResponseSchema:   Schema(),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, config)
	if err != nil {
		return nil, genaiTransportError(err)
	}

	text := resp.Text()
	obs, err := ParseObservation(text, g.config.Now())
	if err != nil {
		return nil, malformed(providerGenAI, err)
	}

	g.logger.Debug("classified frame",
		"emotion", obs.PrimaryEmotion,
		"confidence", obs.Confidence,
		"face", obs.FaceDetected,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return obs, nil
}

// Close releases idle connections.
func (g *GenAI) Close() error {
	g.http.CloseIdleConnections()
	return nil
}

// genaiTransportError maps an SDK error to a TransportError, keeping the
// remote status and message when the SDK surfaced them.
func genaiTransportError(err error) error {
	te := &TransportError{Provider: providerGenAI, Err: err}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		te.StatusCode, te.Message = apiErr.Code, apiErr.Message
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		te.StatusCode, te.Message = apiErrPtr.Code, apiErrPtr.Message
	}
	return te
}
