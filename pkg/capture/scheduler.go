// Package capture decides when frames are captured and runs them through
// the preprocess and classify pipeline into the session state.
//
// At most one capture is in flight at any time. A trigger that arrives
// while one is running is ignored, whether it comes from a caller or
// from the auto-mode timer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-moodcam/internal/log"
	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/inference"
	"github.com/teslashibe/go-moodcam/pkg/session"
	"github.com/teslashibe/go-moodcam/pkg/vision"
)

// Default auto-mode periods.
const (
	DefaultLiveInterval     = 2500 * time.Millisecond
	DefaultLiveSlowInterval = 5 * time.Second
	DefaultMediaInterval    = 2500 * time.Millisecond
)

// Config configures a Scheduler.
type Config struct {
	// Preprocess bounds the uploaded frame.
	Preprocess vision.Options

	// Auto-mode periods by source kind. LiveSlowInterval applies to live
	// sources when auto mode is enabled with slow set.
	LiveInterval     time.Duration
	LiveSlowInterval time.Duration
	MediaInterval    time.Duration

	// NewTicker creates the auto-mode ticker. Defaults to NewTicker.
	NewTicker TickerFunc

	// OnObservation is called after an observation is applied to the
	// session, outside any lock.
	OnObservation func(sessionID string, obs emotions.Observation)

	Logger *slog.Logger
}

// DefaultConfig returns the reference cadence and preprocessing.
func DefaultConfig() Config {
	return Config{
		Preprocess:       vision.DefaultOptions(),
		LiveInterval:     DefaultLiveInterval,
		LiveSlowInterval: DefaultLiveSlowInterval,
		MediaInterval:    DefaultMediaInterval,
		NewTicker:        NewTicker,
		Logger:           slog.Default(),
	}
}

// Scheduler coordinates the frame source, classifier and session state.
// It owns the source manager and releases it on Close.
type Scheduler struct {
	sources    *camera.Manager
	classifier inference.Classifier
	state      *session.State
	config     Config
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	capturing  bool
	slow       bool
	autoCancel context.CancelFunc
	closed     bool
}

// New creates a scheduler. Zero fields in cfg take their defaults.
func New(sources *camera.Manager, classifier inference.Classifier, state *session.State, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.Preprocess.MaxWidth <= 0 {
		cfg.Preprocess.MaxWidth = def.Preprocess.MaxWidth
	}
	if cfg.Preprocess.Quality <= 0 {
		cfg.Preprocess.Quality = def.Preprocess.Quality
	}
	if cfg.LiveInterval <= 0 {
		cfg.LiveInterval = def.LiveInterval
	}
	if cfg.LiveSlowInterval <= 0 {
		cfg.LiveSlowInterval = def.LiveSlowInterval
	}
	if cfg.MediaInterval <= 0 {
		cfg.MediaInterval = def.MediaInterval
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = def.NewTicker
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sources:    sources,
		classifier: classifier,
		state:      state,
		config:     cfg,
		logger:     cfg.Logger.With("component", "capture.scheduler"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// State returns the session state the scheduler writes to.
func (s *Scheduler) State() *session.State {
	return s.state
}

// Sources returns the source manager.
func (s *Scheduler) Sources() *camera.Manager {
	return s.sources
}

// Capturing reports whether a capture is in flight.
func (s *Scheduler) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing
}

// Trigger captures one frame and classifies it, blocking until the
// result is applied. It returns false without error when a capture is
// already in flight or there is no frame to take. Failures are recorded
// in the session and also returned.
func (s *Scheduler) Trigger(ctx context.Context) (bool, error) {
	j, ok, err := s.begin(ctx, false)
	if !ok || err != nil {
		return ok, err
	}
	defer s.release()

	return true, s.run(ctx, j)
}

// TriggerAsync starts a capture in the background on the scheduler's
// own context. It reports whether a capture was started.
func (s *Scheduler) TriggerAsync() bool {
	j, ok, err := s.begin(s.ctx, true)
	if !ok || err != nil {
		return false
	}

	go func() {
		defer s.wg.Done()
		defer s.release()
		s.run(s.ctx, j)
	}()
	return true
}

// begin takes the single-flight slot, grabs a frame and opens a session
// capture. The frame, generation and session id are taken under s.mu so
// a source switch cannot fall between them. When async is set the
// capture is counted in s.wg before the lock is released.
func (s *Scheduler) begin(ctx context.Context, async bool) (job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return job{}, false, ErrClosed
	}
	if s.capturing {
		s.logger.Debug("capture in flight, trigger ignored")
		return job{}, false, nil
	}

	img, err := s.sources.Frame(ctx)
	if errors.Is(err, camera.ErrNoSource) || errors.Is(err, camera.ErrNoFrame) {
		s.logger.Debug("no frame available", "reason", err)
		return job{}, false, nil
	}

	s.capturing = true
	if async {
		s.wg.Add(1)
	}
	return job{
		gen:       s.state.BeginCapture(),
		sessionID: s.state.SessionID(),
		frame:     frameResult{img: img, err: err},
	}, true, nil
}

// release frees the single-flight slot.
func (s *Scheduler) release() {
	s.mu.Lock()
	s.capturing = false
	s.mu.Unlock()
}

// run preprocesses and classifies a frame and records the outcome.
func (s *Scheduler) run(ctx context.Context, j job) error {
	start := time.Now()

	if j.frame.err != nil {
		return s.fail(j.gen, fmt.Errorf("capture: grab frame: %w", j.frame.err))
	}

	payload, err := vision.Preprocess(j.frame.img, s.config.Preprocess)
	if err != nil {
		return s.fail(j.gen, fmt.Errorf("capture: preprocess: %w", err))
	}

	obs, err := s.classifier.Classify(ctx, payload)
	if err != nil {
		return s.fail(j.gen, fmt.Errorf("capture: classify: %w", err))
	}

	if err := s.state.CompleteCapture(j.gen, *obs); err != nil {
		if errors.Is(err, session.ErrStale) {
			s.logger.Debug("discarding stale result", "generation", j.gen)
			return nil
		}
		return err
	}

	s.logger.Info("observation",
		"emotion", obs.PrimaryEmotion,
		"confidence", obs.Confidence,
		"face", obs.FaceDetected,
		"bytes", len(payload.Data),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	if s.config.OnObservation != nil {
		s.config.OnObservation(j.sessionID, *obs)
	}
	return nil
}

// fail records err in the session and stops the auto timer. Both
// happen under s.mu, so SetAuto cannot restart the timer in between.
// Failures from a previous generation are dropped.
func (s *Scheduler) fail(gen uint64, err error) error {
	s.mu.Lock()
	serr := s.state.FailCapture(gen, Message(err))
	if serr == nil {
		s.stopAutoLocked()
	}
	s.mu.Unlock()

	if errors.Is(serr, session.ErrStale) {
		s.logger.Debug("discarding stale failure", "generation", gen, "error", err)
		return nil
	}

	s.logger.Error("capture failed", log.Err(err))
	return err
}

// SetAuto turns auto mode on or off. slow selects the longer live
// period. Turning it off cancels the pending tick immediately.
func (s *Scheduler) SetAuto(enabled, slow bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.slow = slow
	s.stopAutoLocked()
	if enabled {
		s.startAutoLocked()
	}
	s.state.SetAutoMode(enabled)
	return nil
}

// SwitchSource activates src, releasing the previous source, and starts
// a new session generation. A capture still in flight resolves as
// stale. The pending auto tick is cancelled; if auto mode is still on,
// the timer restarts at the period for the new source. A nil src
// deactivates the current source.
func (s *Scheduler) SwitchSource(src camera.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		if src != nil {
			src.Close()
		}
		return ErrClosed
	}

	s.stopAutoLocked()
	err := s.sources.Activate(src)
	gen := s.state.ResetSession()

	kind := "none"
	if src != nil {
		kind = src.Kind().String()
	}
	s.logger.Info("source switched", "kind", kind, "generation", gen)

	if s.state.AutoMode() {
		s.startAutoLocked()
	}
	return err
}

// startAutoLocked launches the timer goroutine. s.mu must be held.
func (s *Scheduler) startAutoLocked() {
	interval := s.intervalLocked()
	ctx, cancel := context.WithCancel(s.ctx)
	s.autoCancel = cancel
	ticker := s.config.NewTicker(interval)

	s.logger.Debug("auto mode started", "interval", interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if ctx.Err() != nil {
					return
				}
				s.TriggerAsync()
			}
		}
	}()
}

// stopAutoLocked cancels the timer goroutine, if any. Idempotent. s.mu
// must be held.
func (s *Scheduler) stopAutoLocked() {
	if s.autoCancel == nil {
		return
	}
	s.autoCancel()
	s.autoCancel = nil
	s.logger.Debug("auto mode stopped")
}

// intervalLocked picks the auto period for the active source.
func (s *Scheduler) intervalLocked() time.Duration {
	kind, ok := s.sources.Kind()
	if ok && kind.IsMedia() {
		return s.config.MediaInterval
	}
	if s.slow {
		return s.config.LiveSlowInterval
	}
	return s.config.LiveInterval
}

// Close stops auto mode, waits for background captures and releases the
// active source. In-flight requests are cancelled. Idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopAutoLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return s.sources.Close()
}

// job is one capture between begin and its outcome.
type job struct {
	gen       uint64
	sessionID string
	frame     frameResult
}

// frameResult carries a grabbed frame, or the error grabbing it.
type frameResult struct {
	img image.Image
	err error
}
