package inference

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Config holds classifier configuration.
type Config struct {
	// Connection
	BaseURL     string             // REST base URL; GenAI only overrides when set
	APIKey      string             // Gemini API key
	TokenSource oauth2.TokenSource // REST bearer auth when no API key is set

	// Model
	Model       string
	MaxTokens   int
	Temperature float64

	// Transport
	Timeout    time.Duration
	HTTPClient *http.Client // Overrides the client built from Timeout

	// Observability
	Logger *slog.Logger

	// Now stamps observations on receipt.
	Now func() time.Time
}

// Option is a functional option for configuring classifiers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
// Example: "https://generativelanguage.googleapis.com/v1beta"
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithTokenSource sets an OAuth2 token source for the REST backend.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Config) { c.TokenSource = ts }
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens sets the response token limit.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithClock sets the receipt-time clock.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}

// DefaultBaseURL is the public Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// DefaultConfig returns sensible defaults for Gemini.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		MaxTokens:   1024,
		Temperature: 0.2,
		Timeout:     30 * time.Second,
		Logger:      slog.Default(),
		Now:         time.Now,
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
