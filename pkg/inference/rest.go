package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-moodcam/internal/httpc"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/vision"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
)

const providerREST = "gemini"

// generativeLanguageScope is the OAuth scope for the Gemini API.
const generativeLanguageScope = "https://www.googleapis.com/auth/generative-language"

// REST classifies frames by calling the generateContent endpoint
// directly. It authenticates with an API key, or with an OAuth2 bearer
// token when no key is configured.
type REST struct {
	config *Config
	tokens oauth2.TokenSource
	http   *http.Client
	logger *slog.Logger
}

// NewREST creates a REST classifier. Without an API key or token source
// it falls back to Application Default Credentials, and returns
// ErrNoAPIKey when none are found.
func NewREST(ctx context.Context, opts ...Option) (*REST, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	tokens := cfg.TokenSource
	if cfg.APIKey == "" && tokens == nil {
		ts, err := google.DefaultTokenSource(ctx, generativeLanguageScope)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoAPIKey, err)
		}
		tokens = ts
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}

	return &REST{
		config: cfg,
		tokens: tokens,
		http:   hc,
		logger: cfg.Logger.With("component", "inference.rest"),
	}, nil
}

// Classify implements Classifier.
func (r *REST) Classify(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, ErrEmptyImage
	}
	start := time.Now()

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role": "user",
				"parts": []map[string]interface{}{
					{"text": Instructions()},
					{
						"inline_data": map[string]string{
							"mime_type": img.MIMEType,
							"data":      img.Base64(),
						},
					},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":      r.config.Temperature,
			"maxOutputTokens":  r.config.MaxTokens,
			"responseMimeType": "application/json",
			"responseSchema":   Schema(),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("inference [%s]: encode request: %w", providerREST, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(r.config.BaseURL, "/"), r.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Provider: providerREST, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := r.authorize(httpReq); err != nil {
		return nil, &TransportError{Provider: providerREST, Err: err}
	}

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Provider: providerREST, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, r.parseError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Provider: providerREST, StatusCode: resp.StatusCode, Err: err}
	}

	var result geminiResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &MalformedResponseError{Provider: providerREST, Raw: truncate(string(raw), 500), Err: err}
	}
	if result.Error.Message != "" {
		return nil, &TransportError{
			Provider:   providerREST,
			StatusCode: result.Error.Code,
			Message:    result.Error.Message,
		}
	}

	text := result.text()
	if text == "" {
		reason := "no response content"
		if result.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + result.PromptFeedback.BlockReason
		}
		return nil, &MalformedResponseError{Provider: providerREST, Raw: truncate(string(raw), 500), Err: errors.New(reason)}
	}

	obs, err := ParseObservation(text, r.config.Now())
	if err != nil {
		return nil, malformed(providerREST, err)
	}

	r.logger.Debug("classified frame",
		"emotion", obs.PrimaryEmotion,
		"confidence", obs.Confidence,
		"face", obs.FaceDetected,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return obs, nil
}

// Close releases idle connections.
func (r *REST) Close() error {
	r.http.CloseIdleConnections()
	return nil
}

// authorize sets the API key header, or a bearer token from the token
// source.
func (r *REST) authorize(req *http.Request) error {
	if r.config.APIKey != "" {
		req.Header.Set("x-goog-api-key", r.config.APIKey)
		return nil
	}
	tok, err := r.tokens.Token()
	if err != nil {
		return fmt.Errorf("fetch token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

// parseError converts a non-200 response into a TransportError,
// keeping the service's own message when the body is a Google API error.
func (r *REST) parseError(resp *http.Response) error {
	err := googleapi.CheckResponse(resp)
	if err == nil {
		err = fmt.Errorf("unexpected status %s", resp.Status)
	}

	message := ""
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		message = gerr.Message
		if message == "" {
			err = fmt.Errorf("%s", truncate(strings.TrimSpace(gerr.Body), 200))
		}
	}

	return &TransportError{
		Provider:   providerREST,
		StatusCode: resp.StatusCode,
		Message:    message,
		Err:        err,
	}
}

// geminiResponse is the generateContent response format.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// text concatenates the text parts of the first candidate.
func (g *geminiResponse) text() string {
	if len(g.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range g.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}
