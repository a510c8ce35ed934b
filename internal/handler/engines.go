package handler

import (
	"sync"
	"time"

	"appointment-scheduler/internal/appointment"
	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/session"
)

type engineEntry struct {
	sess     *session.Session
	eng      *appointment.Engine
	lastUsed time.Time
}

// Engines keeps one session and engine per signed-in principal, so a
// principal's busy set and last view survive across requests.
type Engines struct {
	repo  appointment.Repository
	names appointment.Labeler
	opts  []appointment.Option
	now   func() time.Time

	mu sync.Mutex
	m  map[string]*engineEntry
}

func NewEngines(repo appointment.Repository, names appointment.Labeler, opts ...appointment.Option) *Engines {
	return &Engines{
		repo:  repo,
		names: names,
		opts:  opts,
		now:   time.Now,
		m:     make(map[string]*engineEntry),
	}
}

// For returns p's engine, creating it on first use. A changed display name
// re-signs the existing session in place.
func (r *Engines) For(p model.Principal) *appointment.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.m[p.ID]; ok {
		e.lastUsed = r.now()
		if cur := e.sess.Current(); cur == nil || cur.DisplayName != p.DisplayName {
			e.sess.SignIn(p)
		}
		return e.eng
	}
	sess := session.NewSignedIn(p)
	e := &engineEntry{
		sess:     sess,
		eng:      appointment.New(sess, r.repo, r.names, r.opts...),
		lastUsed: r.now(),
	}
	r.m[p.ID] = e
	return e.eng
}

// SignOut ends userID's session; its engine drops view and busy state.
func (r *Engines) SignOut(userID string) {
	r.mu.Lock()
	e, ok := r.m[userID]
	delete(r.m, userID)
	r.mu.Unlock()
	if ok {
		e.sess.SignOut()
		e.eng.Close()
	}
}

// Evict signs out every principal idle for longer than idle and returns how
// many were dropped.
func (r *Engines) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	var stale []string
	r.mu.Lock()
	for id, e := range r.m {
		if e.lastUsed.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()
	for _, id := range stale {
		r.SignOut(id)
	}
	return len(stale)
}

func (r *Engines) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
