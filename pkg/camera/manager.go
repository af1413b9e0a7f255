package camera

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// Manager owns the active Source. At most one source is active; the
// previous one is closed before the next takes over.
type Manager struct {
	mu     sync.Mutex
	active Source

	// OnSwitch is called after the active source changes. next is nil
	// when the source was deactivated.
	OnSwitch func(next Source)
}

// NewManager creates a manager with no active source.
func NewManager() *Manager {
	return &Manager{}
}

// Activate closes the current source and makes src the active one.
// src is activated even when closing the previous source fails; the
// close error is returned.
func (m *Manager) Activate(src Source) error {
	m.mu.Lock()
	prev := m.active
	m.active = src
	callback := m.OnSwitch
	var err error
	if prev != nil && prev != src {
		if cerr := prev.Close(); cerr != nil {
			err = fmt.Errorf("camera: release previous source: %w", cerr)
		}
	}
	m.mu.Unlock()

	if callback != nil {
		callback(src)
	}
	return err
}

// Deactivate closes the current source, leaving none active.
func (m *Manager) Deactivate() error {
	return m.Activate(nil)
}

// Active returns the active source, or nil.
func (m *Manager) Active() Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Kind returns the kind of the active source.
func (m *Manager) Kind() (Kind, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0, false
	}
	return m.active.Kind(), true
}

// Frame captures from the active source. It returns ErrNoSource when
// nothing is active. The manager lock is held for the duration so the
// source cannot be closed mid-read.
func (m *Manager) Frame(ctx context.Context) (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoSource
	}
	return m.active.Frame(ctx)
}

// Close releases the active source. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	err := m.active.Close()
	m.active = nil
	return err
}
