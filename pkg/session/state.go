// Package session holds the authoritative state of a capture session:
// the current observation, a bounded history, and the analyzing, error
// and auto-mode flags.
//
// Every capture is tagged with the generation returned by BeginCapture.
// ResetSession starts a new generation; completions carrying an older
// one are stale and are discarded with ErrStale.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
)

// ErrStale is returned when a completion belongs to a previous
// generation. It is not a user-facing error.
var ErrStale = errors.New("session: stale result")

// Snapshot is a read-only copy of State.
type Snapshot struct {
	SessionID   string                 `json:"sessionId"`
	Generation  uint64                 `json:"generation"`
	Current     *emotions.Observation  `json:"currentObservation,omitempty"`
	History     []emotions.Observation `json:"history"`
	Capacity    int                    `json:"capacity"`
	IsAnalyzing bool                   `json:"isAnalyzing"`
	LastError   string                 `json:"lastError,omitempty"`
	AutoMode    bool                   `json:"autoModeEnabled"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// State is the single mutation point for session data. All methods are
// safe for concurrent use.
//
// Each mutation queues a snapshot while the lock is held. One dispatcher
// goroutine at a time delivers queued snapshots to the OnChange
// observers in mutation order, holding no locks, so observers may call
// back into State or into whatever component mutated it.
type State struct {
	mu        sync.Mutex
	gen       uint64
	sessionID string
	current   *emotions.Observation
	history   *History
	analyzing bool
	lastErr   string
	auto      bool
	updated   time.Time

	observers   []func(Snapshot)
	queue       []Snapshot
	dispatching bool
	idle        *sync.Cond
}

// New creates an empty state whose history holds capacity observations.
func New(capacity int) *State {
	s := &State{
		gen:       1,
		sessionID: uuid.NewString(),
		history:   NewHistory(capacity),
		updated:   time.Now(),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// OnChange registers fn to receive a snapshot after every mutation.
// Observers run on a dispatcher goroutine, one snapshot at a time, in
// the order the mutations happened. A slow observer delays later
// snapshots but never blocks a mutation.
func (s *State) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// BeginCapture marks a capture in flight, clears the last error and
// returns the current generation for the completion to quote.
func (s *State) BeginCapture() uint64 {
	s.mu.Lock()
	s.analyzing = true
	s.lastErr = ""
	gen := s.gen
	s.notifyLocked()
	return gen
}

// CompleteCapture records obs as current and appends it to the history.
// A stale gen only clears the analyzing flag and returns ErrStale.
func (s *State) CompleteCapture(gen uint64, obs emotions.Observation) error {
	s.mu.Lock()
	s.analyzing = false
	if gen != s.gen {
		s.notifyLocked()
		return ErrStale
	}
	s.current = &obs
	s.history.Push(obs)
	s.notifyLocked()
	return nil
}

// FailCapture records msg as the last error and turns auto mode off.
// A stale gen only clears the analyzing flag and returns ErrStale.
func (s *State) FailCapture(gen uint64, msg string) error {
	s.mu.Lock()
	s.analyzing = false
	if gen != s.gen {
		s.notifyLocked()
		return ErrStale
	}
	s.lastErr = msg
	s.auto = false
	s.notifyLocked()
	return nil
}

// ResetSession clears the history and current observation and starts a
// new generation. The error and auto-mode flags are kept, and so is the
// analyzing flag: a request still in flight resolves as stale.
func (s *State) ResetSession() uint64 {
	s.mu.Lock()
	s.gen++
	s.sessionID = uuid.NewString()
	s.current = nil
	s.history.Reset()
	gen := s.gen
	s.notifyLocked()
	return gen
}

// SetAutoMode sets the auto-mode flag.
func (s *State) SetAutoMode(enabled bool) {
	s.mu.Lock()
	if s.auto == enabled {
		s.mu.Unlock()
		return
	}
	s.auto = enabled
	s.notifyLocked()
}

// AutoMode reports whether auto mode is on.
func (s *State) AutoMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auto
}

// Analyzing reports whether a capture is in flight.
func (s *State) Analyzing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzing
}

// Generation returns the current generation.
func (s *State) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// SessionID returns the id of the current generation.
func (s *State) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:   s.sessionID,
		Generation:  s.gen,
		History:     s.history.Items(),
		Capacity:    s.history.Cap(),
		IsAnalyzing: s.analyzing,
		LastError:   s.lastErr,
		AutoMode:    s.auto,
		UpdatedAt:   s.updated,
	}
	if s.current != nil {
		cur := *s.current
		snap.Current = &cur
	}
	return snap
}

// Flush blocks until every snapshot queued so far has been delivered.
// It must not be called from an observer.
func (s *State) Flush() {
	s.mu.Lock()
	for s.dispatching {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// notifyLocked stamps the update, queues a snapshot for the observers
// and releases the lock. The caller must hold s.mu.
func (s *State) notifyLocked() {
	s.updated = time.Now()
	if len(s.observers) > 0 {
		s.queue = append(s.queue, s.snapshotLocked())
		if !s.dispatching {
			s.dispatching = true
			go s.dispatch()
		}
	}
	s.mu.Unlock()
}

// dispatch delivers queued snapshots until the queue is empty.
func (s *State) dispatch() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.queue = nil
			s.dispatching = false
			s.idle.Broadcast()
			s.mu.Unlock()
			return
		}
		snap := s.queue[0]
		s.queue[0] = Snapshot{}
		s.queue = s.queue[1:]
		observers := s.observers
		s.mu.Unlock()

		for _, fn := range observers {
			fn(snap)
		}
	}
}
