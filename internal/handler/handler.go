// Package handler implements appointment.v1.ScheduleService on top of the
// appointment engine, the directory and the scheduling form. The REST
// transport calls the same methods.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"appointment-scheduler/internal/appointment"
	"appointment-scheduler/internal/apperr"
	"appointment-scheduler/internal/directory"
	"appointment-scheduler/internal/metrics"
	"appointment-scheduler/internal/middleware"
	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/rpc"
	"appointment-scheduler/internal/scheduling"
	"appointment-scheduler/internal/store"
)

// Store is everything the service needs from persistence. *store.Store and
// *store.Memory both satisfy it.
type Store interface {
	appointment.Repository
	directory.UserLister
	scheduling.ObjectStore

	CreateUser(ctx context.Context, u *model.User) error
	UserByEmail(ctx context.Context, email string) (*model.User, error)

	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*store.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, userID, newHash string, newExpiry time.Time) (string, error)
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

var _ rpc.ScheduleServiceServer = (*Handler)(nil)

type Handler struct {
	store   Store
	secret  string
	dir     *directory.Directory
	form    *scheduling.Form
	engines *Engines
	clock   func() time.Time
	logger  *slog.Logger
}

type Option func(*options)

type options struct {
	lookup     *directory.Lookup
	logger     *slog.Logger
	metrics    *metrics.Metrics
	clock      func() time.Time
	engineOpts []appointment.Option
}

// WithLookup shares a name lookup (e.g. one backed by Redis).
func WithLookup(l *directory.Lookup) Option { return func(o *options) { o.lookup = l } }

func WithLogger(lg *slog.Logger) Option { return func(o *options) { o.logger = lg } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.clock = now } }

// WithEngineOptions is passed to every per-principal engine.
func WithEngineOptions(opts ...appointment.Option) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

func New(st Store, secret string, opts ...Option) *Handler {
	o := options{logger: slog.Default(), clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.lookup == nil {
		o.lookup = directory.NewLookup(st,
			directory.WithLogger(o.logger), directory.WithMissRecorder(o.metrics))
	}

	engineOpts := append([]appointment.Option{
		appointment.WithLogger(o.logger),
		appointment.WithMetrics(o.metrics),
		appointment.WithClock(o.clock),
	}, o.engineOpts...)

	return &Handler{
		store:  st,
		secret: secret,
		dir:    directory.NewDirectory(st),
		form: scheduling.New(st, st,
			scheduling.WithLogger(o.logger),
			scheduling.WithMetrics(o.metrics),
			scheduling.WithClock(o.clock)),
		engines: NewEngines(st, o.lookup, engineOpts...),
		clock:   o.clock,
		logger:  o.logger,
	}
}

// Engines exposes the per-principal engine registry.
func (h *Handler) Engines() *Engines { return h.engines }

// caller returns the verified principal put on ctx by the auth middleware.
func caller(ctx context.Context) (model.Principal, error) {
	if p, ok := middleware.PrincipalFrom(ctx); ok && p.ID != "" {
		return p, nil
	}
	return model.Principal{}, status.Error(codes.Unauthenticated, "not signed in")
}

// toStatus maps an apperr kind onto a gRPC status with the user-facing text.
func (h *Handler) toStatus(ctx context.Context, op string, err error) error {
	if _, ok := status.FromError(err); ok && apperr.KindOf(err) == apperr.KindUnknown {
		return err
	}
	var code codes.Code
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		code = codes.InvalidArgument
	case apperr.KindRead, apperr.KindWrite:
		code = codes.Unavailable
	case apperr.KindForbidden:
		code = codes.PermissionDenied
	case apperr.KindNotFound:
		code = codes.NotFound
	case apperr.KindUnauthenticated:
		code = codes.Unauthenticated
	case apperr.KindBusy:
		code = codes.Aborted
	default:
		code = codes.Internal
	}
	if code == codes.Unavailable || code == codes.Internal {
		h.logger.WarnContext(ctx, op+" failed", "error", err)
	}
	return status.Error(code, apperr.Message(err))
}

// HTTPStatus is the REST equivalent of toStatus.
func HTTPStatus(err error) int {
	switch status.Code(err) {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
