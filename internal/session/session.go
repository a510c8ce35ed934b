// Package session holds the identity of the caller a client session acts
// for, and tells subscribers when it changes.
package session

import (
	"slices"
	"sync"

	"appointment-scheduler/internal/model"
)

// Listener receives the new principal, or nil after sign-out.
type Listener func(p *model.Principal)

type Session struct {
	mu        sync.RWMutex
	current   *model.Principal
	loading   bool
	nextID    int
	listeners []subscriber // ascending id
}

type subscriber struct {
	id int
	fn Listener
}

// New returns a session that is still resolving its principal.
func New() *Session {
	return &Session{loading: true}
}

// NewSignedIn returns a resolved session for p.
func NewSignedIn(p model.Principal) *Session {
	s := New()
	s.SignIn(p)
	return s
}

func (s *Session) Current() *model.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	p := *s.current
	return &p
}

// Loading is true until the first SignIn or SignOut.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Session) SignIn(p model.Principal) {
	s.set(&p)
}

func (s *Session) SignOut() {
	s.set(nil)
}

// Subscribe registers fn and returns a func that removes it. Listeners are
// notified in the order they subscribed.
func (s *Session) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.listeners = slices.DeleteFunc(s.listeners, func(sub subscriber) bool { return sub.id == id })
		s.mu.Unlock()
	}
}

func (s *Session) set(p *model.Principal) {
	s.mu.Lock()
	s.current = p
	s.loading = false
	fns := make([]Listener, 0, len(s.listeners))
	for _, sub := range s.listeners {
		fns = append(fns, sub.fn)
	}
	s.mu.Unlock()

	// listeners run outside the lock so they may read the session
	for _, fn := range fns {
		if p == nil {
			fn(nil)
			continue
		}
		cp := *p
		fn(&cp)
	}
}
