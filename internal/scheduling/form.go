// Package scheduling validates a new appointment, stores its optional audio
// message and creates the record.
package scheduling

import (
	"context"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"appointment-scheduler/internal/apperr"
	"appointment-scheduler/internal/metrics"
	"appointment-scheduler/internal/model"
)

// MaxAudioBytes is the attachment ceiling (1 MiB).
const MaxAudioBytes = 1 << 20

type Creator interface {
	CreateAppointment(ctx context.Context, a *model.NewAppointment) (string, error)
}

// ObjectStore writes a blob and returns its durable URL.
type ObjectStore interface {
	PutObject(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Input is what the user typed.
type Input struct {
	Title          string
	Description    string
	Date           string
	Time           string
	CounterpartyID string
}

// Attachment is an optional recorded audio message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Form struct {
	repo    Creator
	objects ObjectStore
	clock   func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Form)

func WithClock(now func() time.Time) Option { return func(f *Form) { f.clock = now } }

func WithLogger(lg *slog.Logger) Option { return func(f *Form) { f.logger = lg } }

func WithMetrics(m *metrics.Metrics) Option { return func(f *Form) { f.metrics = m } }

func New(repo Creator, objects ObjectStore, opts ...Option) *Form {
	f := &Form{
		repo:    repo,
		objects: objects,
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Validate checks in without touching any store.
func Validate(schedulerID string, in Input, att *Attachment) error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Description) == "" ||
		in.Date == "" || in.Time == "" {
		return apperr.Validation("All fields are required.")
	}
	if in.CounterpartyID == "" {
		return apperr.Validation("Select a user to schedule with.")
	}
	if in.CounterpartyID == schedulerID {
		return apperr.Validation("You cannot schedule an appointment with yourself.")
	}
	if _, err := time.Parse(model.DateLayout, in.Date); err != nil {
		return apperr.Validation("Date must be YYYY-MM-DD.")
	}
	if _, ok := model.ParseInstant(in.Date, in.Time, time.UTC); !ok {
		return apperr.Validation("Time must be HH:MM.")
	}
	if att != nil {
		return validateAttachment(att)
	}
	return nil
}

func validateAttachment(att *Attachment) error {
	if len(att.Data) == 0 {
		return apperr.Validation("Audio file is empty.")
	}
	if len(att.Data) > MaxAudioBytes {
		return apperr.Validation("Audio file must be 1 MiB or smaller.")
	}
	mt, _, err := mime.ParseMediaType(att.ContentType)
	if err != nil || !strings.HasPrefix(mt, "audio/") {
		return apperr.Validation("Only audio files can be attached.")
	}
	return nil
}

// Submit validates, uploads the attachment if any, then creates the
// appointment as pending. Nothing is created when the upload fails.
func (f *Form) Submit(ctx context.Context, schedulerID string, in Input, att *Attachment) (string, error) {
	if err := Validate(schedulerID, in, att); err != nil {
		if att != nil {
			f.metrics.IncUpload("rejected")
		}
		return "", err
	}

	// store the zero-padded clock so (date, time) sorts as text
	if clock, ok := model.CanonicalTime(in.Time); ok {
		in.Time = clock
	}

	var audioURL string
	if att != nil {
		url, err := f.upload(ctx, att)
		if err != nil {
			f.metrics.IncUpload("error")
			f.logger.WarnContext(ctx, "audio upload failed", "scheduler_id", schedulerID, "error", err)
			return "", err
		}
		f.metrics.IncUpload("ok")
		audioURL = url
	}

	id, err := f.repo.CreateAppointment(ctx, &model.NewAppointment{
		Title:          in.Title,
		Description:    in.Description,
		Date:           in.Date,
		Time:           in.Time,
		SchedulerID:    schedulerID,
		CounterpartyID: in.CounterpartyID,
		Status:         model.StatusPending,
		AudioURL:       audioURL,
		CreatedAt:      f.clock(),
	})
	if err != nil {
		f.logger.WarnContext(ctx, "create appointment failed", "scheduler_id", schedulerID, "error", err)
		return "", err
	}
	f.logger.InfoContext(ctx, "appointment created",
		"appointment_id", id, "scheduler_id", schedulerID, "counterparty_id", in.CounterpartyID)
	return id, nil
}

func (f *Form) upload(ctx context.Context, att *Attachment) (string, error) {
	mt, _, _ := mime.ParseMediaType(att.ContentType)
	key := "audio/" + uuid.New().String() + extension(att.Filename, mt)
	url, err := f.objects.PutObject(ctx, key, mt, att.Data)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindWrite {
			err = apperr.Write("upload audio", err)
		}
		return "", err
	}
	return url, nil
}

func extension(filename, mediaType string) string {
	if ext := path.Ext(filename); len(ext) > 1 && len(ext) <= 6 && alnum(ext[1:]) {
		return strings.ToLower(ext)
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func alnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
