// Package modal binds a scanning session to a host surface that is opened
// and closed by an isOpen flag, the way a scanner dialog is.
package modal

import (
	"context"
	"sync"

	"danfescan/pkg/capture"
	"danfescan/pkg/log"
	"danfescan/pkg/session"
)

// Modal drives a session from open/close transitions of its host.
type Modal struct {
	session     *session.Session
	constraints capture.Constraints
	onClose     func()

	mu      sync.Mutex
	open    bool
	mounted bool
}

// New binds s to a modal. onClose may be nil.
func New(s *session.Session, c capture.Constraints, onClose func()) *Modal {
	return &Modal{session: s, constraints: c, onClose: onClose, mounted: true}
}

// Open reports the last isOpen value.
func (m *Modal) Open() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// SetOpen applies an isOpen value. Only transitions act: false→true
// activates the session, true→false deactivates it. Repeated values are
// ignored, as is everything after Unmount.
func (m *Modal) SetOpen(open bool) {
	m.mu.Lock()
	if !m.mounted || m.open == open {
		m.mu.Unlock()
		return
	}
	m.open = open
	m.mu.Unlock()

	if !open {
		m.session.Deactivate()
		return
	}
	if err := m.session.Activate(context.Background(), m.constraints); err != nil {
		log.Debug("modal: open ignored: %v", err)
	}
}

// Reopen activates the session again while the modal stays open, after a
// detection closed it.
func (m *Modal) Reopen() error {
	m.mu.Lock()
	open := m.mounted && m.open
	m.mu.Unlock()
	if !open {
		return nil
	}
	return m.session.Activate(context.Background(), m.constraints)
}

// Dismiss is the user closing the modal: the scanner is stopped before the
// host is told.
func (m *Modal) Dismiss() {
	m.mu.Lock()
	m.open = false
	mounted := m.mounted
	m.mu.Unlock()

	m.session.Deactivate()
	if mounted && m.onClose != nil {
		m.onClose()
	}
}

// Unmount tears the session down for good.
func (m *Modal) Unmount() {
	m.mu.Lock()
	m.mounted = false
	m.open = false
	m.mu.Unlock()

	m.session.Teardown()
}
