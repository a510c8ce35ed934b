package store

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"appointment-scheduler/internal/apperr"
	"appointment-scheduler/internal/model"
)

var errUnavailable = errors.New("store unavailable")

// Memory is an in-process store with the same method set as Store. It backs
// tests and STORE_DRIVER=memory.
type Memory struct {
	mu           sync.RWMutex
	users        map[string]model.User
	appointments map[string]model.Appointment
	tokens       map[string]RefreshToken // by hash
	objects      map[string]Object
	publicURL    string

	failReads  atomic.Bool
	failWrites atomic.Bool
}

func NewMemory(publicURL string) *Memory {
	return &Memory{
		users:        make(map[string]model.User),
		appointments: make(map[string]model.Appointment),
		tokens:       make(map[string]RefreshToken),
		objects:      make(map[string]Object),
		publicURL:    strings.TrimRight(publicURL, "/"),
	}
}

// FailReads makes every read return a read error until reset.
func (m *Memory) FailReads(on bool) { m.failReads.Store(on) }

// FailWrites makes every write return a write error until reset.
func (m *Memory) FailWrites(on bool) { m.failWrites.Store(on) }

func (m *Memory) readGate(op string) error {
	if m.failReads.Load() {
		return apperr.Read(op, errUnavailable)
	}
	return nil
}

func (m *Memory) writeGate(op string) error {
	if m.failWrites.Load() {
		return apperr.Write(op, errUnavailable)
	}
	return nil
}

func (m *Memory) Ping(context.Context) error {
	return m.readGate("ping")
}

// users

func (m *Memory) CreateUser(_ context.Context, u *model.User) error {
	if err := m.writeGate("create user"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return apperr.Write("create user", ErrDuplicate)
	}
	for _, other := range m.users {
		if strings.EqualFold(other.Email, u.Email) {
			return apperr.Write("create user", ErrDuplicate)
		}
	}
	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.users[u.ID] = cp
	return nil
}

// DeleteUser drops a user record; appointments naming it are kept.
func (m *Memory) DeleteUser(id string) {
	m.mu.Lock()
	delete(m.users, id)
	m.mu.Unlock()
}

func (m *Memory) UserByEmail(_ context.Context, email string) (*model.User, error) {
	if err := m.readGate("user by email"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user by email")
}

func (m *Memory) UserByID(_ context.Context, id string) (*model.User, error) {
	if err := m.readGate("user by id"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user by id")
	}
	return &u, nil
}

func (m *Memory) ListUsers(context.Context) ([]model.User, error) {
	if err := m.readGate("list users"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		u.PasswordHash = ""
		out = append(out, u)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.User) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// appointments

func (m *Memory) CreateAppointment(_ context.Context, a *model.NewAppointment) (string, error) {
	if err := m.writeGate("create appointment"); err != nil {
		return "", err
	}
	rec := model.Appointment{
		ID:             uuid.New().String(),
		Title:          a.Title,
		Description:    a.Description,
		Date:           a.Date,
		Time:           a.Time,
		SchedulerID:    a.SchedulerID,
		CounterpartyID: a.CounterpartyID,
		Status:         a.Status,
		AudioURL:       a.AudioURL,
		CreatedAt:      a.CreatedAt,
	}
	if rec.Status == "" {
		rec.Status = model.StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.appointments[rec.ID] = rec
	m.mu.Unlock()
	return rec.ID, nil
}

func (m *Memory) ListByScheduler(_ context.Context, principalID string) ([]model.Appointment, error) {
	if err := m.readGate("list by scheduler"); err != nil {
		return nil, err
	}
	return m.listWhere(func(a *model.Appointment) bool { return a.SchedulerID == principalID }), nil
}

func (m *Memory) ListByCounterparty(_ context.Context, principalID string) ([]model.Appointment, error) {
	if err := m.readGate("list by counterparty"); err != nil {
		return nil, err
	}
	return m.listWhere(func(a *model.Appointment) bool { return a.CounterpartyID == principalID }), nil
}

func (m *Memory) listWhere(match func(*model.Appointment) bool) []model.Appointment {
	m.mu.RLock()
	out := []model.Appointment{}
	for _, a := range m.appointments {
		if match(&a) {
			out = append(out, a)
		}
	}
	m.mu.RUnlock()
	// same order as ORDER BY date, time; id keeps it deterministic
	slices.SortFunc(out, func(a, b model.Appointment) int {
		return cmp.Or(cmp.Compare(a.Date, b.Date), cmp.Compare(a.Time, b.Time), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (m *Memory) GetAppointment(_ context.Context, id string) (*model.Appointment, error) {
	if err := m.readGate("get appointment"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, apperr.NotFound("get appointment")
	}
	return &a, nil
}

func (m *Memory) SetStatus(_ context.Context, id string, st model.Status) error {
	if err := m.writeGate("set status"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return apperr.Write("set status", apperr.NotFound("appointment "+id))
	}
	a.Status = st
	m.appointments[id] = a
	return nil
}

// refresh tokens

func (m *Memory) CreateRefreshToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) (string, error) {
	if err := m.writeGate("create refresh token"); err != nil {
		return "", err
	}
	id := uuid.New().String()
	m.mu.Lock()
	m.tokens[tokenHash] = RefreshToken{ID: id, UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt, CreatedAt: time.Now()}
	m.mu.Unlock()
	return id, nil
}

func (m *Memory) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*RefreshToken, error) {
	if err := m.readGate("get refresh token"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.tokens[tokenHash]
	if !ok {
		return nil, apperr.NotFound("get refresh token")
	}
	return &rt, nil
}

func (m *Memory) RotateRefreshToken(_ context.Context, oldID, userID, newHash string, newExpiry time.Time) (string, error) {
	if err := m.writeGate("rotate refresh token"); err != nil {
		return "", err
	}
	newID := uuid.New().String()
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, rt := range m.tokens {
		if rt.ID != oldID {
			continue
		}
		if rt.Revoked {
			break
		}
		rt.Revoked = true
		rt.ReplacedBy = &newID
		m.tokens[hash] = rt
		m.tokens[newHash] = RefreshToken{ID: newID, UserID: userID, TokenHash: newHash, ExpiresAt: newExpiry, CreatedAt: time.Now()}
		return newID, nil
	}
	return "", apperr.Write("rotate refresh token", ErrTokenRevoked)
}

func (m *Memory) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	if err := m.writeGate("revoke refresh tokens"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, rt := range m.tokens {
		if rt.UserID == userID && !rt.Revoked {
			rt.Revoked = true
			m.tokens[hash] = rt
		}
	}
	return nil
}

// media

func (m *Memory) PutObject(_ context.Context, key, contentType string, data []byte) (string, error) {
	if err := m.writeGate("put object"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return "", apperr.Write("put object", ErrDuplicate)
	}
	m.objects[key] = Object{Key: key, ContentType: contentType, Data: slices.Clone(data), CreatedAt: time.Now()}
	return mediaURL(m.publicURL, key), nil
}

func (m *Memory) GetObject(_ context.Context, key string) (*Object, error) {
	if err := m.readGate("get object"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, apperr.NotFound("get object")
	}
	return &o, nil
}

// ObjectCount is the number of stored blobs.
func (m *Memory) ObjectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
