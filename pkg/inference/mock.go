package inference

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/vision"
)

// Mock implements Classifier for testing.
type Mock struct {
	// ClassifyFunc is called when Classify is invoked.
	ClassifyFunc func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
	Image  *vision.Payload
}

// NewMock creates a mock that reports a happy face.
func NewMock() *Mock {
	return &Mock{
		ClassifyFunc: func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
			score := 0.9
			return &emotions.Observation{
				PrimaryEmotion:       emotions.Happy,
				Confidence:           0.8,
				SecondaryEmotions:    []emotions.SecondaryEmotion{},
				Description:          "Mock smile",
				Timestamp:            time.Now(),
				FaceDetected:         true,
				FaceRecognitionScore: &score,
			}, nil
		},
	}
}

// Classify calls ClassifyFunc and records the call.
func (m *Mock) Classify(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
	m.record("Classify", img)
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, img)
	}
	return nil, &TransportError{Provider: "mock", Message: "no classifier configured"}
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close", nil)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// record adds a call to the tracking list.
func (m *Mock) record(method string, img *vision.Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Time:   time.Now(),
		Image:  img,
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		ClassifyFunc: func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
			return nil, err
		},
	}
}

// Sequence returns a mock that answers with obs in order and then keeps
// repeating the last one. Each call gets its own copy stamped with the
// current time.
func Sequence(obs ...emotions.Observation) *Mock {
	var (
		mu   sync.Mutex
		next int
	)
	return &Mock{
		ClassifyFunc: func(ctx context.Context, img *vision.Payload) (*emotions.Observation, error) {
			if err := ctx.Err(); err != nil {
				return nil, &TransportError{Provider: "mock", Err: err}
			}
			mu.Lock()
			defer mu.Unlock()
			if len(obs) == 0 {
				return nil, &MalformedResponseError{Provider: "mock", Err: ErrMalformedResponse}
			}
			o := obs[next]
			if next < len(obs)-1 {
				next++
			}
			o.SecondaryEmotions = append([]emotions.SecondaryEmotion(nil), o.SecondaryEmotions...)
			if o.BoundingBox != nil {
				box := *o.BoundingBox
				o.BoundingBox = &box
			}
			o.Timestamp = time.Now()
			o.Normalize()
			return &o, nil
		},
	}
}

// NoFaceMock returns a mock that never finds a face.
func NoFaceMock() *Mock {
	return Sequence(emotions.Observation{
		PrimaryEmotion: emotions.Neutral,
		Description:    "No face in view",
	})
}
