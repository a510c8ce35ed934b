// Package directory resolves principals for display: a memoized id → name
// lookup used to label appointments, and the searchable list of other users.
package directory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"appointment-scheduler/internal/apperr"
	"appointment-scheduler/internal/model"
)

const (
	UnknownUser      = "Unknown User"
	UnknownScheduler = "Unknown Scheduler"
)

// resolveTimeout bounds one shared resolution, which outlives the caller
// that started it.
const resolveTimeout = 5 * time.Second

type UserGetter interface {
	UserByID(ctx context.Context, id string) (*model.User, error)
}

// Cache is a shared second level for resolved names.
type Cache interface {
	Get(ctx context.Context, id string) (name string, ok bool, err error)
	Set(ctx context.Context, id, name string) error
}

// MissRecorder counts lookups that fell back to a sentinel.
type MissRecorder interface {
	IncLookupMiss()
}

// Lookup is best-effort: hits are memoized, misses are never cached so a
// user created later still resolves.
type Lookup struct {
	users  UserGetter
	cache  Cache
	logger *slog.Logger
	misses MissRecorder

	mu    sync.RWMutex
	names map[string]string
	group singleflight.Group
}

type LookupOption func(*Lookup)

func WithCache(c Cache) LookupOption { return func(l *Lookup) { l.cache = c } }

func WithLogger(lg *slog.Logger) LookupOption { return func(l *Lookup) { l.logger = lg } }

func WithMissRecorder(r MissRecorder) LookupOption { return func(l *Lookup) { l.misses = r } }

func NewLookup(users UserGetter, opts ...LookupOption) *Lookup {
	l := &Lookup{
		users:  users,
		logger: slog.Default(),
		names:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DisplayName returns the name for id, or fallback when it cannot be resolved.
func (l *Lookup) DisplayName(ctx context.Context, id, fallback string) string {
	if id == "" {
		return fallback
	}
	l.mu.RLock()
	name, ok := l.names[id]
	l.mu.RUnlock()
	if ok {
		return name
	}

	// the flight is shared, so it must not end when the first caller goes away
	v, err, _ := l.group.Do(id, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return l.resolve(rctx, id)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			l.logger.DebugContext(ctx, "directory lookup miss", "principal_id", id)
		} else {
			l.logger.WarnContext(ctx, "directory lookup failed", "principal_id", id, "error", err)
		}
		if l.misses != nil {
			l.misses.IncLookupMiss()
		}
		return fallback
	}
	return v.(string)
}

func (l *Lookup) resolve(ctx context.Context, id string) (string, error) {
	if l.cache != nil {
		if name, ok, err := l.cache.Get(ctx, id); err != nil {
			l.logger.DebugContext(ctx, "name cache get failed", "principal_id", id, "error", err)
		} else if ok {
			l.remember(id, name)
			return name, nil
		}
	}

	u, err := l.users.UserByID(ctx, id)
	if err != nil {
		return "", err
	}
	if u.Name == "" {
		return "", apperr.NotFound("display name")
	}
	l.remember(id, u.Name)
	if l.cache != nil {
		if err := l.cache.Set(ctx, id, u.Name); err != nil {
			l.logger.DebugContext(ctx, "name cache set failed", "principal_id", id, "error", err)
		}
	}
	return u.Name, nil
}

func (l *Lookup) remember(id, name string) {
	l.mu.Lock()
	l.names[id] = name
	l.mu.Unlock()
}

// Forget drops every memoized name, e.g. after sign-out.
func (l *Lookup) Forget() {
	l.mu.Lock()
	l.names = make(map[string]string)
	l.mu.Unlock()
}
