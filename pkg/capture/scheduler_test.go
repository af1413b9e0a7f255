package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/inference"
	"github.com/teslashibe/go-moodcam/pkg/session"
	"github.com/teslashibe/go-moodcam/pkg/vision"
)

// fakeSource serves a fixed frame.
type fakeSource struct {
	kind   camera.Kind
	err    error
	closed atomic.Bool
}

func (f *fakeSource) Kind() camera.Kind { return f.kind }

func (f *fakeSource) Frame(ctx context.Context) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, 640, 480)), nil
}

func (f *fakeSource) Close() error {
	f.closed.Store(true)
	return nil
}

// manualTicker fires only when the test sends on c.
type manualTicker struct {
	interval time.Duration
	c        chan time.Time
	stopped  atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

// tickers records every ticker the scheduler creates.
type tickers struct {
	mu  sync.Mutex
	all []*manualTicker
}

func (tk *tickers) New(d time.Duration) Ticker {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	m := &manualTicker{interval: d, c: make(chan time.Time)}
	tk.all = append(tk.all, m)
	return m
}

func (tk *tickers) last(t *testing.T) *manualTicker {
	t.Helper()
	tk.mu.Lock()
	defer tk.mu.Unlock()
	if len(tk.all) == 0 {
		t.Fatal("no ticker created")
	}
	return tk.all[len(tk.all)-1]
}

func (tk *tickers) count() int {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	return len(tk.all)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func happy(desc string) *emotions.Observation {
	score := 0.8
	return &emotions.Observation{
		PrimaryEmotion:       emotions.Happy,
		Confidence:           0.9,
		SecondaryEmotions:    []emotions.SecondaryEmotion{},
		Description:          desc,
		Timestamp:            time.Now(),
		FaceDetected:         true,
		FaceRecognitionScore: &score,
	}
}

type harness struct {
	sched  *Scheduler
	state  *session.State
	mock   *inference.Mock
	ticks  *tickers
	source *fakeSource
}

func newHarness(t *testing.T, withSource bool) *harness {
	t.Helper()
	h := &harness{
		state: session.New(100),
		mock:  inference.NewMock(),
		ticks: &tickers{},
	}
	cfg := DefaultConfig()
	cfg.LiveInterval = 1 * time.Second
	cfg.LiveSlowInterval = 2 * time.Second
	cfg.MediaInterval = 3 * time.Second
	cfg.NewTicker = h.ticks.New
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr := camera.NewManager()
	if withSource {
		h.source = &fakeSource{kind: camera.KindLive}
		mgr.Activate(h.source)
	}
	h.sched = New(mgr, h.mock, h.state, cfg)
	t.Cleanup(func() { h.sched.Close() })
	return h
}

func TestTriggerSuccess(t *testing.T) {
	h := newHarness(t, true)

	var gotPayload *vision.Payload
	h.mock.ClassifyFunc = func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
		gotPayload = img
		return happy("x"), nil
	}

	ok, err := h.sched.Trigger(context.Background())
	if !ok || err != nil {
		t.Fatalf("Trigger = %v, %v", ok, err)
	}

	snap := h.state.Snapshot()
	if len(snap.History) != 1 || snap.Current == nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.IsAnalyzing || h.sched.Capturing() {
		t.Error("capture should be finished")
	}
	if gotPayload.Width != 512 || gotPayload.Height != 384 {
		t.Errorf("payload %dx%d, want 512x384", gotPayload.Width, gotPayload.Height)
	}
}

func TestTriggerNoSource(t *testing.T) {
	h := newHarness(t, false)

	ok, err := h.sched.Trigger(context.Background())
	if ok || err != nil {
		t.Fatalf("Trigger = %v, %v, want false, nil", ok, err)
	}
	if h.mock.CallCount("Classify") != 0 {
		t.Error("classifier should not be called without a source")
	}
	if h.state.Snapshot().IsAnalyzing {
		t.Error("no-op trigger should not mark analyzing")
	}
}

func TestTriggerNoFrameYet(t *testing.T) {
	h := newHarness(t, true)
	h.source.err = camera.ErrNoFrame

	ok, err := h.sched.Trigger(context.Background())
	if ok || err != nil {
		t.Fatalf("Trigger = %v, %v, want false, nil", ok, err)
	}
	if h.state.Snapshot().LastError != "" {
		t.Error("missing first frame is not an error")
	}
}

func TestSingleFlight(t *testing.T) {
	h := newHarness(t, true)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.mock.ClassifyFunc = func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
		close(entered)
		<-release
		return happy("x"), nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.sched.Trigger(context.Background())
		done <- err
	}()
	<-entered

	if !h.state.Snapshot().IsAnalyzing {
		t.Error("state should be analyzing while the request is in flight")
	}
	if ok, _ := h.sched.Trigger(context.Background()); ok {
		t.Error("second manual trigger should be ignored")
	}
	if h.sched.TriggerAsync() {
		t.Error("async trigger should be ignored")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if n := h.mock.CallCount("Classify"); n != 1 {
		t.Errorf("Classify called %d times, want 1", n)
	}
	if n := len(h.state.Snapshot().History); n != 1 {
		t.Errorf("len(History) = %d, want 1", n)
	}
}

func TestAutoModeTwoTicks(t *testing.T) {
	h := newHarness(t, true)

	var n atomic.Int32
	h.mock.ClassifyFunc = func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
		return happy(fmt.Sprint(n.Add(1))), nil
	}

	if err := h.sched.SetAuto(true, false); err != nil {
		t.Fatalf("SetAuto: %v", err)
	}
	if !h.state.AutoMode() {
		t.Fatal("auto mode should be on")
	}
	tk := h.ticks.last(t)
	if tk.interval != time.Second {
		t.Errorf("interval = %v, want live interval", tk.interval)
	}

	for i := 1; i <= 2; i++ {
		tk.c <- time.Now()
		waitFor(t, fmt.Sprintf("capture %d", i), func() bool {
			return len(h.state.Snapshot().History) == i && !h.sched.Capturing()
		})
	}

	snap := h.state.Snapshot()
	if len(snap.History) != 2 {
		t.Fatalf("len(History) = %d, want 2", len(snap.History))
	}
	if snap.History[0].Description != "1" || snap.History[1].Description != "2" {
		t.Errorf("history out of order: %q, %q", snap.History[0].Description, snap.History[1].Description)
	}
	if snap.Current == nil || snap.Current.Description != "2" {
		t.Errorf("Current = %+v, want the second observation", snap.Current)
	}
}

func TestSetAutoOffStopsTimer(t *testing.T) {
	h := newHarness(t, true)

	h.sched.SetAuto(true, true)
	tk := h.ticks.last(t)
	if tk.interval != 2*time.Second {
		t.Errorf("interval = %v, want slow live interval", tk.interval)
	}

	h.sched.SetAuto(false, false)
	waitFor(t, "ticker stop", tk.stopped.Load)
	if h.state.AutoMode() {
		t.Error("auto mode should be off")
	}

	// Stopping twice is harmless.
	if err := h.sched.SetAuto(false, false); err != nil {
		t.Errorf("SetAuto: %v", err)
	}
}

func TestTransportFailureDisablesAuto(t *testing.T) {
	h := newHarness(t, true)
	h.mock.ClassifyFunc = func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
		return nil, &inference.TransportError{Provider: "mock", StatusCode: 503, Message: "Service unavailable"}
	}

	h.sched.SetAuto(true, false)
	tk := h.ticks.last(t)
	tk.c <- time.Now()

	waitFor(t, "auto off", func() bool { return !h.state.AutoMode() && !h.sched.Capturing() })
	waitFor(t, "ticker stop", tk.stopped.Load)

	snap := h.state.Snapshot()
	if snap.LastError != "Service unavailable" {
		t.Errorf("LastError = %q", snap.LastError)
	}
	if snap.IsAnalyzing {
		t.Error("analyzing should be cleared")
	}

	// A fresh attempt clears the banner.
	h.mock.ClassifyFunc = func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
		return happy("ok"), nil
	}
	if _, err := h.sched.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if h.state.Snapshot().LastError != "" {
		t.Error("successful capture should leave no error")
	}
}

func TestMalformedFailure(t *testing.T) {
	h := newHarness(t, true)
	h.mock.ClassifyFunc = func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
		return nil, &inference.MalformedResponseError{Err: errors.New("not json")}
	}

	ok, err := h.sched.Trigger(context.Background())
	if !ok || !errors.Is(err, inference.ErrMalformedResponse) {
		t.Fatalf("Trigger = %v, %v", ok, err)
	}
	if got := h.state.Snapshot().LastError; got != inference.DefaultMalformedMessage {
		t.Errorf("LastError = %q", got)
	}
}

func TestDeviceFailure(t *testing.T) {
	h := newHarness(t, true)
	h.source.err = &camera.DeviceError{Device: "0", Err: errors.New("busy")}
	h.sched.SetAuto(true, false)

	ok, err := h.sched.Trigger(context.Background())
	if !ok || !errors.Is(err, camera.ErrDeviceUnavailable) {
		t.Fatalf("Trigger = %v, %v", ok, err)
	}
	snap := h.state.Snapshot()
	if snap.LastError != DeviceMessage {
		t.Errorf("LastError = %q", snap.LastError)
	}
	if snap.AutoMode {
		t.Error("device failure should turn auto mode off")
	}
	if h.mock.CallCount("Classify") != 0 {
		t.Error("classifier should not be called without a frame")
	}
}

func TestStaleResultOnSwitch(t *testing.T) {
	h := newHarness(t, true)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.mock.ClassifyFunc = func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
		close(entered)
		<-release
		return happy("late"), nil
	}

	if !h.sched.TriggerAsync() {
		t.Fatal("TriggerAsync should start a capture")
	}
	<-entered

	old := h.source
	next := &fakeSource{kind: camera.KindImage}
	if err := h.sched.SwitchSource(next); err != nil {
		t.Fatalf("SwitchSource: %v", err)
	}
	if !old.closed.Load() {
		t.Error("previous source should be released")
	}
	before := h.state.Snapshot()

	close(release)
	waitFor(t, "capture to resolve", func() bool { return !h.sched.Capturing() })

	after := h.state.Snapshot()
	if after.Current != nil || len(after.History) != 0 {
		t.Error("stale result must not reach the new session")
	}
	if after.LastError != "" {
		t.Errorf("stale result surfaced an error: %q", after.LastError)
	}
	if after.IsAnalyzing {
		t.Error("analyzing should clear once the stale request resolves")
	}
	if after.SessionID != before.SessionID {
		t.Error("stale result changed the session")
	}
}

func TestStaleFailureOnSwitchKeepsAuto(t *testing.T) {
	h := newHarness(t, true)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.mock.ClassifyFunc = func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
		close(entered)
		<-release
		return nil, &inference.TransportError{Provider: "mock", Message: "gone"}
	}

	h.sched.SetAuto(true, false)
	h.sched.TriggerAsync()
	<-entered
	h.sched.SwitchSource(&fakeSource{kind: camera.KindLive})

	close(release)
	waitFor(t, "capture to resolve", func() bool { return !h.sched.Capturing() })

	snap := h.state.Snapshot()
	if !snap.AutoMode || snap.LastError != "" {
		t.Errorf("stale failure leaked into the new session: %+v", snap)
	}
}

func TestSwitchSourceRestartsAutoTimer(t *testing.T) {
	h := newHarness(t, true)

	h.sched.SetAuto(true, false)
	first := h.ticks.last(t)

	h.sched.SwitchSource(&fakeSource{kind: camera.KindVideo})
	waitFor(t, "old ticker stop", first.stopped.Load)

	if h.ticks.count() != 2 {
		t.Fatalf("created %d tickers, want 2", h.ticks.count())
	}
	if got := h.ticks.last(t).interval; got != 3*time.Second {
		t.Errorf("interval = %v, want media interval", got)
	}
	if !h.state.AutoMode() {
		t.Error("switching source keeps auto mode")
	}
}

func TestSwitchSourceWithoutAuto(t *testing.T) {
	h := newHarness(t, true)
	h.sched.SwitchSource(&fakeSource{kind: camera.KindImage})
	if h.ticks.count() != 0 {
		t.Error("no timer should start when auto mode is off")
	}

	if err := h.sched.SwitchSource(nil); err != nil {
		t.Fatalf("SwitchSource(nil): %v", err)
	}
	if ok, _ := h.sched.Trigger(context.Background()); ok {
		t.Error("trigger with no source should be a no-op")
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, true)
	h.sched.SetAuto(true, false)
	tk := h.ticks.last(t)

	if err := h.sched.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.sched.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !h.source.closed.Load() {
		t.Error("Close should release the active source")
	}
	if !tk.stopped.Load() {
		t.Error("Close should stop the auto timer")
	}
	if _, err := h.sched.Trigger(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Trigger after Close = %v, want ErrClosed", err)
	}
	if err := h.sched.SetAuto(true, false); !errors.Is(err, ErrClosed) {
		t.Errorf("SetAuto after Close = %v, want ErrClosed", err)
	}
	src := &fakeSource{}
	if err := h.sched.SwitchSource(src); !errors.Is(err, ErrClosed) || !src.closed.Load() {
		t.Error("SwitchSource after Close should reject and release the source")
	}
}

func TestOnObservation(t *testing.T) {
	state := session.New(10)
	mgr := camera.NewManager()
	mgr.Activate(&fakeSource{})

	var gotID string
	var got emotions.Observation
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.OnObservation = func(id string, obs emotions.Observation) {
		gotID, got = id, obs
	}
	s := New(mgr, inference.NewMock(), state, cfg)
	defer s.Close()

	if _, err := s.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if gotID != state.SessionID() {
		t.Errorf("session id = %q, want %q", gotID, state.SessionID())
	}
	if got.PrimaryEmotion != emotions.Happy {
		t.Errorf("observation = %+v", got)
	}
}

func TestOnObservationUsesCaptureSession(t *testing.T) {
	h := newHarness(t, true)
	var gotID string
	h.sched.config.OnObservation = func(id string, obs emotions.Observation) {
		gotID = id
	}

	j, ok, err := h.sched.begin(context.Background(), false)
	if !ok || err != nil {
		t.Fatalf("begin: ok=%v err=%v", ok, err)
	}
	if j.sessionID != h.state.SessionID() {
		t.Fatalf("job session = %q, want %q", j.sessionID, h.state.SessionID())
	}

	// The hook must report the session the capture began in, not
	// whatever the state holds when the result lands.
	j.sessionID = "session-at-begin"
	err = h.sched.run(context.Background(), j)
	h.sched.release()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if gotID != "session-at-begin" {
		t.Errorf("OnObservation session = %q, want session-at-begin", gotID)
	}
}

// autoConsistent reports whether the auto timer runs exactly when the
// session says auto mode is on.
func autoConsistent(s *Scheduler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.autoCancel != nil) == s.state.AutoMode()
}

func TestFailureRacingSetAutoKeepsTimerConsistent(t *testing.T) {
	h := newHarness(t, true)
	h.mock.ClassifyFunc = func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
		return nil, &inference.TransportError{Provider: "gemini", StatusCode: 503}
	}

	stop := make(chan struct{})
	var inconsistent atomic.Bool
	checked := make(chan struct{})
	go func() {
		defer close(checked)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if !autoConsistent(h.sched) {
				inconsistent.Store(true)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.sched.SetAuto(true, false)
		}()
		go func() {
			defer wg.Done()
			h.sched.Trigger(context.Background())
		}()
		wg.Wait()
		if !autoConsistent(h.sched) {
			t.Fatalf("iteration %d: timer running=%v, auto mode=%v", i, h.sched.autoRunning(), h.state.AutoMode())
		}
	}
	close(stop)
	<-checked

	if inconsistent.Load() {
		t.Error("auto timer and auto mode disagreed during the run")
	}
}

func TestObserverMayCallScheduler(t *testing.T) {
	h := newHarness(t, true)

	var calls atomic.Int32
	h.state.OnChange(func(snap session.Snapshot) {
		h.sched.Capturing()
		calls.Add(1)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sched.SetAuto(true, false)
		h.sched.Trigger(context.Background())
		h.sched.SwitchSource(&fakeSource{kind: camera.KindLive})
		h.state.Flush()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock: observer calling back into the scheduler")
	}
	if calls.Load() == 0 {
		t.Error("observer never ran")
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"device", fmt.Errorf("grab: %w", &camera.DeviceError{Device: "0"}), DeviceMessage},
		{"closed source", camera.ErrClosed, DeviceMessage},
		{"empty frame", vision.ErrEmptyImage, PreprocessMessage},
		{"transport", &inference.TransportError{Message: "quota"}, "quota"},
		{"transport default", &inference.TransportError{}, inference.DefaultTransportMessage},
		{"malformed", &inference.MalformedResponseError{}, inference.DefaultMalformedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.err); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func (s *Scheduler) autoRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoCancel != nil
}
