package appointment

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"appointment-scheduler/internal/model"
)

// Record is an appointment as one of its parties sees it.
type Record struct {
	model.Appointment
	Role             model.Role
	SchedulerName    string
	CounterpartyName string

	// Instant is the scheduled date+time; zero when Date/Time do not parse.
	Instant time.Time
}

func newRecord(callerID string, a model.Appointment, loc *time.Location) Record {
	r := Record{Appointment: a, Role: model.RoleCounterparty}
	if a.SchedulerID == callerID {
		r.Role = model.RoleScheduler
	}
	if t, ok := a.Instant(loc); ok {
		r.Instant = t
	}
	return r
}

// Upcoming reports whether the scheduled instant is strictly after now.
// A record without a parseable instant is neither upcoming nor past.
func (r *Record) Upcoming(now time.Time) bool {
	return !r.Instant.IsZero() && r.Instant.After(now)
}

func (r *Record) Past(now time.Time) bool {
	return !r.Instant.IsZero() && !r.Instant.After(now)
}

// OtherParty is the display name of whoever the caller is not.
func (r *Record) OtherParty() string {
	if r.Role == model.RoleScheduler {
		return r.CounterpartyName
	}
	return r.SchedulerName
}

// LegalActions is the gating table:
//
//	scheduler,    pending|accepted, future -> cancel
//	counterparty, pending                  -> accept, decline
//
// everything else has no action.
func (r *Record) LegalActions(now time.Time) []model.Action {
	switch r.Role {
	case model.RoleScheduler:
		if (r.Status == model.StatusPending || r.Status == model.StatusAccepted) && r.Upcoming(now) {
			return []model.Action{model.ActionCancel}
		}
	case model.RoleCounterparty:
		if r.Status == model.StatusPending {
			return []model.Action{model.ActionAccept, model.ActionDecline}
		}
	}
	return nil
}

// Allows reports whether action is legal for r at now.
func (r *Record) Allows(action model.Action, now time.Time) bool {
	return slices.Contains(r.LegalActions(now), action)
}

// refusal explains why action is not legal for r.
func (r *Record) refusal(action model.Action, now time.Time) string {
	switch action {
	case model.ActionCancel:
		switch {
		case r.Role != model.RoleScheduler:
			return "only the scheduler can cancel this appointment"
		case r.Status == model.StatusCancelled:
			return "appointment is already cancelled"
		case r.Status == model.StatusDeclined:
			return "a declined appointment cannot be cancelled"
		default:
			return "appointment time has passed"
		}
	case model.ActionAccept, model.ActionDecline:
		if r.Role != model.RoleCounterparty {
			return "only the invited user can respond to this appointment"
		}
		return "appointment is already " + string(r.Status)
	}
	return "unknown action " + string(action)
}

// Filter keeps the records inside window whose title or description contains
// term, case-insensitively. Order is preserved; the input is not modified.
func Filter(records []Record, window model.Window, term string, now time.Time) []Record {
	needle := strings.ToLower(term)
	out := make([]Record, 0, len(records))
	for i := range records {
		r := &records[i]
		switch window {
		case model.WindowUpcoming:
			if !r.Upcoming(now) {
				continue
			}
		case model.WindowPast:
			if !r.Past(now) {
				continue
			}
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(r.Title), needle) &&
			!strings.Contains(strings.ToLower(r.Description), needle) {
			continue
		}
		out = append(out, *r)
	}
	return out
}

// sortRecords orders by (date, time). Rows written with an unpadded hour
// compare by their canonical clock.
func sortRecords(rs []Record) {
	slices.SortStableFunc(rs, func(a, b Record) int {
		return cmp.Or(cmp.Compare(a.Date, b.Date), cmp.Compare(clockKey(a.Time), clockKey(b.Time)))
	})
}

func clockKey(clock string) string {
	if c, ok := model.CanonicalTime(clock); ok {
		if len(c) == len(model.TimeLayout) {
			c += ":00"
		}
		return c
	}
	return clock
}
