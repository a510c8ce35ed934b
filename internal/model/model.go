package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined, StatusCancelled:
		return true
	}
	return false
}

// Role is the caller's side of an appointment.
type Role string

const (
	RoleScheduler    Role = "scheduler"
	RoleCounterparty Role = "counterparty"
)

type Action string

const (
	ActionCancel  Action = "cancel"
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
)

// Target is the status an action moves an appointment to.
func (a Action) Target() Status {
	switch a {
	case ActionCancel:
		return StatusCancelled
	case ActionAccept:
		return StatusAccepted
	case ActionDecline:
		return StatusDeclined
	}
	return ""
}

// Window selects appointments relative to now.
type Window string

const (
	WindowAll      Window = "all"
	WindowUpcoming Window = "upcoming"
	WindowPast     Window = "past"
)

func ParseWindow(s string) (Window, bool) {
	switch Window(s) {
	case "", WindowAll:
		return WindowAll, true
	case WindowUpcoming, WindowPast:
		return Window(s), true
	}
	return "", false
}

type Principal struct {
	ID          string
	DisplayName string
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
}

func (u *User) Principal() Principal {
	return Principal{ID: u.ID, DisplayName: u.Name}
}

type Appointment struct {
	ID             string
	Title          string
	Description    string
	Date           string // YYYY-MM-DD
	Time           string // HH:MM
	SchedulerID    string
	CounterpartyID string
	Status         Status
	AudioURL       string
	CreatedAt      time.Time
}

// NewAppointment is the create payload; the store assigns the id.
type NewAppointment struct {
	Title          string
	Description    string
	Date           string
	Time           string
	SchedulerID    string
	CounterpartyID string
	Status         Status
	AudioURL       string
	CreatedAt      time.Time
}

// Involves reports whether id is one of the two parties.
func (a *Appointment) Involves(id string) bool {
	return id != "" && (a.SchedulerID == id || a.CounterpartyID == id)
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Instant parses Date and Time in loc. ok is false when either is malformed.
func (a *Appointment) Instant(loc *time.Location) (time.Time, bool) {
	return ParseInstant(a.Date, a.Time, loc)
}

func ParseInstant(date, clock string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	layout := DateLayout + " " + TimeLayout
	if len(clock) == len("15:04:05") || len(clock) == len("5:04:05") {
		layout += ":05"
	}
	t, err := time.ParseInLocation(layout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CanonicalTime zero-pads a parseable clock ("9:00" -> "09:00") so stored
// times order correctly as strings. Seconds are kept only when non-zero.
func CanonicalTime(clock string) (string, bool) {
	layout := TimeLayout
	if len(clock) == len("15:04:05") || len(clock) == len("5:04:05") {
		layout += ":05"
	}
	t, err := time.Parse(layout, clock)
	if err != nil {
		return "", false
	}
	if t.Second() != 0 {
		return t.Format(TimeLayout + ":05"), true
	}
	return t.Format(TimeLayout), true
}
