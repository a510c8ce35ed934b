// Package appointment decides which appointments a caller sees and which
// status transitions the caller may make.
package appointment

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"appointment-scheduler/internal/apperr"
	"appointment-scheduler/internal/directory"
	"appointment-scheduler/internal/metrics"
	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/session"
)

// Repository is the document store boundary. Implementations return
// apperr read/write errors; they do no authorization.
type Repository interface {
	CreateAppointment(ctx context.Context, a *model.NewAppointment) (string, error)
	ListByScheduler(ctx context.Context, principalID string) ([]model.Appointment, error)
	ListByCounterparty(ctx context.Context, principalID string) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	SetStatus(ctx context.Context, id string, status model.Status) error
}

// Labeler resolves principal ids to display names, never failing.
type Labeler interface {
	DisplayName(ctx context.Context, id, fallback string) string
}

const (
	DefaultActionTimeout = 10 * time.Second
	defaultLookupLimit   = 8
)

// Engine holds one client session's view of its appointments. All methods
// are safe for concurrent use.
type Engine struct {
	sess    *session.Session
	repo    Repository
	names   Labeler
	loc     *time.Location
	clock   func() time.Time
	timeout time.Duration
	limit   int
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu          sync.Mutex
	owner       string
	view        []Record
	busy        map[string]model.Action
	unsubscribe func()
}

type Option func(*Engine)

// WithLocation sets the zone scheduled instants are read in. Default time.Local.
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.clock = now } }

// WithActionTimeout bounds each transition's store calls.
func WithActionTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }

func WithLogger(lg *slog.Logger) Option { return func(e *Engine) { e.logger = lg } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func New(sess *session.Session, repo Repository, names Labeler, opts ...Option) *Engine {
	e := &Engine{
		sess:    sess,
		repo:    repo,
		names:   names,
		loc:     time.Local,
		clock:   time.Now,
		timeout: DefaultActionTimeout,
		limit:   defaultLookupLimit,
		logger:  slog.Default(),
		tracer:  otel.Tracer("appointment-scheduler/appointment"),
		busy:    make(map[string]model.Action),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.timeout <= 0 {
		e.timeout = DefaultActionTimeout
	}
	e.unsubscribe = sess.Subscribe(e.onSessionChange)
	return e
}

// Close detaches the engine from its session.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
}

func (e *Engine) onSessionChange(p *model.Principal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p != nil && p.ID == e.owner {
		return
	}
	e.owner = ""
	e.view = nil
	e.busy = make(map[string]model.Action)
}

func (e *Engine) caller() (*model.Principal, error) {
	p := e.sess.Current()
	if p == nil {
		return nil, apperr.Unauthenticated("not signed in")
	}
	return p, nil
}

// Refresh re-reads both sides of the caller's appointments, labels them and
// installs the result as the current view. On failure the previous view is
// kept.
func (e *Engine) Refresh(ctx context.Context) ([]Record, error) {
	p, err := e.caller()
	if err != nil {
		return nil, err
	}
	ctx, span := e.tracer.Start(ctx, "appointment.Refresh",
		trace.WithAttributes(attribute.String("principal.id", p.ID)))
	defer span.End()
	start := time.Now()

	var asScheduler, asCounterparty []model.Appointment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		asScheduler, err = e.repo.ListByScheduler(gctx, p.ID)
		return err
	})
	g.Go(func() error {
		var err error
		asCounterparty, err = e.repo.ListByCounterparty(gctx, p.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		if apperr.KindOf(err) != apperr.KindRead {
			err = apperr.Read("refresh", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		e.metrics.ObserveRefresh("error", time.Since(start))
		e.logger.WarnContext(ctx, "refresh failed, keeping previous view", "principal_id", p.ID, "error", err)
		return nil, err
	}

	// The two sets are disjoint only because scheduler != counterparty. If
	// that ever changes, de-duplicate by id here.
	all := make([]model.Appointment, 0, len(asScheduler)+len(asCounterparty))
	all = append(all, asScheduler...)
	all = append(all, asCounterparty...)

	records := make([]Record, len(all))
	lg := new(errgroup.Group)
	lg.SetLimit(e.limit)
	for i := range all {
		lg.Go(func() error {
			records[i] = e.label(ctx, p.ID, all[i])
			return nil
		})
	}
	_ = lg.Wait()
	sortRecords(records)

	e.mu.Lock()
	if cur := e.sess.Current(); cur != nil && cur.ID == p.ID {
		e.owner = p.ID
		e.view = records
	}
	e.mu.Unlock()

	span.SetAttributes(attribute.Int("appointments", len(records)))
	e.metrics.ObserveRefresh("ok", time.Since(start))
	return slices.Clone(records), nil
}

func (e *Engine) label(ctx context.Context, callerID string, a model.Appointment) Record {
	r := newRecord(callerID, a, e.loc)
	r.SchedulerName = e.names.DisplayName(ctx, a.SchedulerID, directory.UnknownScheduler)
	r.CounterpartyName = e.names.DisplayName(ctx, a.CounterpartyID, directory.UnknownUser)
	return r
}

// Get reads one appointment straight from the store. Appointments the caller
// is not party to are reported as not found.
func (e *Engine) Get(ctx context.Context, id string) (Record, error) {
	p, err := e.caller()
	if err != nil {
		return Record{}, err
	}
	a, err := e.repo.GetAppointment(ctx, id)
	if err != nil {
		if k := apperr.KindOf(err); k != apperr.KindNotFound && k != apperr.KindRead {
			err = apperr.Read("get appointment", err)
		}
		return Record{}, err
	}
	if !a.Involves(p.ID) {
		return Record{}, apperr.NotFound("appointment")
	}
	return e.label(ctx, p.ID, *a), nil
}

// View returns the last successfully refreshed records.
func (e *Engine) View() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.view)
}

// Visible filters the current view; now is sampled once per call.
func (e *Engine) Visible(window model.Window, term string) []Record {
	return Filter(e.View(), window, term, e.clock())
}

// Actions returns what the caller may do with r right now. Nothing is legal
// while an action on r is in flight.
func (e *Engine) Actions(r *Record) []model.Action {
	if e.Busy(r.ID) {
		return nil
	}
	return r.LegalActions(e.clock())
}

func (e *Engine) Busy(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.busy[id]
	return ok
}

// Cancel withdraws an appointment the caller scheduled.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	return e.transition(ctx, id, model.ActionCancel)
}

// Respond accepts or declines an appointment the caller was invited to.
func (e *Engine) Respond(ctx context.Context, id string, decision model.Status) error {
	switch decision {
	case model.StatusAccepted:
		return e.transition(ctx, id, model.ActionAccept)
	case model.StatusDeclined:
		return e.transition(ctx, id, model.ActionDecline)
	}
	return apperr.Validation("decision must be %q or %q", model.StatusAccepted, model.StatusDeclined)
}

func (e *Engine) transition(ctx context.Context, id string, action model.Action) error {
	p, err := e.caller()
	if err != nil {
		return err
	}
	if id == "" {
		return apperr.Validation("appointment id required")
	}
	if !e.markBusy(id, action) {
		return apperr.Busy(id)
	}
	defer e.clearBusy(id)

	ctx, span := e.tracer.Start(ctx, "appointment.Transition", trace.WithAttributes(
		attribute.String("appointment.id", id),
		attribute.String("action", string(action)),
	))
	defer span.End()

	if err := e.apply(ctx, p.ID, id, action); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
		return err
	}

	// mandatory re-read so the view follows the store, not a local guess
	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if _, err := e.Refresh(rctx); err != nil {
		e.logger.WarnContext(ctx, "refresh after transition failed", "appointment_id", id, "error", err)
	}
	return nil
}

// apply gates action against the stored record and writes the new status.
func (e *Engine) apply(ctx context.Context, callerID, id string, action model.Action) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	a, err := e.repo.GetAppointment(ctx, id)
	if err != nil {
		e.metrics.IncTransition(string(action), "error")
		// the row may be gone or the view stale; re-read before reporting
		e.refreshAfterFailure(ctx, id, err)
		return err
	}
	// hide appointments the caller is not party to
	if !a.Involves(callerID) {
		e.metrics.IncTransition(string(action), "rejected")
		return apperr.NotFound("appointment")
	}

	r := newRecord(callerID, *a, e.loc)
	now := e.clock()
	if !r.Allows(action, now) {
		e.metrics.IncTransition(string(action), "rejected")
		return apperr.Forbidden("%s", r.refusal(action, now))
	}

	if err := e.repo.SetStatus(ctx, id, action.Target()); err != nil {
		e.metrics.IncTransition(string(action), "error")
		if apperr.KindOf(err) != apperr.KindWrite {
			err = apperr.Write("set status", err)
		}
		// the store may have applied it anyway; re-read before reporting
		e.refreshAfterFailure(ctx, id, err)
		return err
	}
	e.metrics.IncTransition(string(action), "ok")
	e.logger.InfoContext(ctx, "appointment status changed",
		"appointment_id", id, "principal_id", callerID, "status", action.Target())
	return nil
}

// refreshAfterFailure reloads the view on a context detached from the
// caller's, which may already be spent.
func (e *Engine) refreshAfterFailure(ctx context.Context, id string, cause error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	if _, err := e.Refresh(rctx); err != nil {
		e.logger.DebugContext(ctx, "refresh after failed transition",
			"appointment_id", id, "cause", cause, "error", err)
	}
}

func (e *Engine) markBusy(id string, action model.Action) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.busy[id]; ok {
		return false
	}
	e.busy[id] = action
	return true
}

func (e *Engine) clearBusy(id string) {
	e.mu.Lock()
	delete(e.busy, id)
	e.mu.Unlock()
}
