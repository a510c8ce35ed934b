package rpc

import (
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// auth

type RegisterRequest struct {
	Email    string
	Password string
	Name     string
}

func (m *RegisterRequest) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.Email)
	b = appendString(b, 2, m.Password)
	b = appendString(b, 3, m.Name)
	return b
}

func (m *RegisterRequest) UnmarshalWire(b []byte) error {
	*m = RegisterRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Email)
		case 2:
			return consumeString(typ, b, &m.Password)
		case 3:
			return consumeString(typ, b, &m.Name)
		}
		return 0
	})
}

type RegisterResponse struct {
	UserID string
	Token  string
}

func (m *RegisterResponse) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.UserID)
	b = appendString(b, 2, m.Token)
	return b
}

func (m *RegisterResponse) UnmarshalWire(b []byte) error {
	*m = RegisterResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &m.UserID)
		case 2:
			return consumeString(typ, b, &m.Token)
		}
		return 0
	})
}

type LoginRequest struct {
	Email    string
	Password string
}

func (m *LoginRequest) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.Email)
	b = appendString(b, 2, m.Password)
	return b
}

func (m *LoginRequest) UnmarshalWire(b []byte) error {
	*m = LoginRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Email)
		case 2:
			return consumeString(typ, b, &m.Password)
		}
		return 0
	})
}

type LoginResponse struct {
	Token        string
	UserID       string
	Name         string
	RefreshToken string
}

func (m *LoginResponse) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.Token)
	b = appendString(b, 2, m.UserID)
	b = appendString(b, 3, m.Name)
	b = appendString(b, 4, m.RefreshToken)
	return b
}

func (m *LoginResponse) UnmarshalWire(b []byte) error {
	*m = LoginResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Token)
		case 2:
			return consumeString(typ, b, &m.UserID)
		case 3:
			return consumeString(typ, b, &m.Name)
		case 4:
			return consumeString(typ, b, &m.RefreshToken)
		}
		return 0
	})
}

type RefreshTokenRequest struct {
	RefreshToken string
}

func (m *RefreshTokenRequest) MarshalWire() []byte {
	return appendString(nil, 1, m.RefreshToken)
}

func (m *RefreshTokenRequest) UnmarshalWire(b []byte) error {
	*m = RefreshTokenRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeString(typ, b, &m.RefreshToken)
		}
		return 0
	})
}

type RefreshTokenResponse struct {
	Token        string
	RefreshToken string
}

func (m *RefreshTokenResponse) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.Token)
	b = appendString(b, 2, m.RefreshToken)
	return b
}

func (m *RefreshTokenResponse) UnmarshalWire(b []byte) error {
	*m = RefreshTokenResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Token)
		case 2:
			return consumeString(typ, b, &m.RefreshToken)
		}
		return 0
	})
}

// Empty is used for Logout in both directions.
type Empty struct{}

func (*Empty) MarshalWire() []byte { return nil }

func (*Empty) UnmarshalWire(b []byte) error {
	return walk(b, func(protowire.Number, protowire.Type, []byte) int { return 0 })
}

// users

type User struct {
	ID   string
	Name string
}

func (m *User) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.Name)
	return b
}

func (m *User) UnmarshalWire(b []byte) error {
	*m = User{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &m.ID)
		case 2:
			return consumeString(typ, b, &m.Name)
		}
		return 0
	})
}

type ListUsersRequest struct {
	Search string
}

func (m *ListUsersRequest) MarshalWire() []byte {
	return appendString(nil, 1, m.Search)
}

func (m *ListUsersRequest) UnmarshalWire(b []byte) error {
	*m = ListUsersRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeString(typ, b, &m.Search)
		}
		return 0
	})
}

type ListUsersResponse struct {
	Users []*User
}

func (m *ListUsersResponse) MarshalWire() []byte {
	var b []byte
	for _, u := range m.Users {
		b = appendMessage(b, 1, u)
	}
	return b
}

func (m *ListUsersResponse) UnmarshalWire(b []byte) error {
	*m = ListUsersResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 {
			return 0
		}
		u := &User{}
		n := consumeMessage(typ, b, u)
		if n > 0 {
			m.Users = append(m.Users, u)
		}
		return n
	})
}

// appointments

type CreateAppointmentRequest struct {
	Title            string
	Description      string
	Date             string
	Time             string
	CounterpartyID   string
	AudioContentType string
	AudioData        []byte
	AudioFilename    string
}

func (m *CreateAppointmentRequest) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.Title)
	b = appendString(b, 2, m.Description)
	b = appendString(b, 3, m.Date)
	b = appendString(b, 4, m.Time)
	b = appendString(b, 5, m.CounterpartyID)
	b = appendString(b, 6, m.AudioContentType)
	b = appendBytes(b, 7, m.AudioData)
	b = appendString(b, 8, m.AudioFilename)
	return b
}

func (m *CreateAppointmentRequest) UnmarshalWire(b []byte) error {
	*m = CreateAppointmentRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Title)
		case 2:
			return consumeString(typ, b, &m.Description)
		case 3:
			return consumeString(typ, b, &m.Date)
		case 4:
			return consumeString(typ, b, &m.Time)
		case 5:
			return consumeString(typ, b, &m.CounterpartyID)
		case 6:
			return consumeString(typ, b, &m.AudioContentType)
		case 7:
			return consumeBytes(typ, b, &m.AudioData)
		case 8:
			return consumeString(typ, b, &m.AudioFilename)
		}
		return 0
	})
}

// IDMessage carries a single appointment id. CreateAppointment returns it;
// GetAppointment and CancelAppointment take it.
type IDMessage struct {
	ID string
}

func (m *IDMessage) MarshalWire() []byte {
	return appendString(nil, 1, m.ID)
}

func (m *IDMessage) UnmarshalWire(b []byte) error {
	*m = IDMessage{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeString(typ, b, &m.ID)
		}
		return 0
	})
}

type RespondAppointmentRequest struct {
	ID       string
	Decision string
}

func (m *RespondAppointmentRequest) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.Decision)
	return b
}

func (m *RespondAppointmentRequest) UnmarshalWire(b []byte) error {
	*m = RespondAppointmentRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &m.ID)
		case 2:
			return consumeString(typ, b, &m.Decision)
		}
		return 0
	})
}

type ListAppointmentsRequest struct {
	Window string
	Search string
}

func (m *ListAppointmentsRequest) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.Window)
	b = appendString(b, 2, m.Search)
	return b
}

func (m *ListAppointmentsRequest) UnmarshalWire(b []byte) error {
	*m = ListAppointmentsRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &m.Window)
		case 2:
			return consumeString(typ, b, &m.Search)
		}
		return 0
	})
}

// Appointment is one labelled record as the caller sees it, with the
// actions currently open to the caller.
type Appointment struct {
	ID               string
	Title            string
	Description      string
	Date             string
	Time             string
	SchedulerID      string
	CounterpartyID   string
	Status           string
	AudioURL         string
	Role             string
	SchedulerName    string
	CounterpartyName string
	Actions          []string
	Busy             bool
	CreatedAt        *timestamppb.Timestamp
}

func (m *Appointment) MarshalWire() []byte {
	var b []byte
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.Title)
	b = appendString(b, 3, m.Description)
	b = appendString(b, 4, m.Date)
	b = appendString(b, 5, m.Time)
	b = appendString(b, 6, m.SchedulerID)
	b = appendString(b, 7, m.CounterpartyID)
	b = appendString(b, 8, m.Status)
	b = appendString(b, 9, m.AudioURL)
	b = appendString(b, 10, m.Role)
	b = appendString(b, 11, m.SchedulerName)
	b = appendString(b, 12, m.CounterpartyName)
	for _, a := range m.Actions {
		b = protowire.AppendTag(b, 13, protowire.BytesType)
		b = protowire.AppendString(b, a)
	}
	b = appendBool(b, 14, m.Busy)
	b = appendTimestamp(b, 15, m.CreatedAt)
	return b
}

func (m *Appointment) UnmarshalWire(b []byte) error {
	*m = Appointment{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &m.ID)
		case 2:
			return consumeString(typ, b, &m.Title)
		case 3:
			return consumeString(typ, b, &m.Description)
		case 4:
			return consumeString(typ, b, &m.Date)
		case 5:
			return consumeString(typ, b, &m.Time)
		case 6:
			return consumeString(typ, b, &m.SchedulerID)
		case 7:
			return consumeString(typ, b, &m.CounterpartyID)
		case 8:
			return consumeString(typ, b, &m.Status)
		case 9:
			return consumeString(typ, b, &m.AudioURL)
		case 10:
			return consumeString(typ, b, &m.Role)
		case 11:
			return consumeString(typ, b, &m.SchedulerName)
		case 12:
			return consumeString(typ, b, &m.CounterpartyName)
		case 13:
			var a string
			n := consumeString(typ, b, &a)
			if n > 0 {
				m.Actions = append(m.Actions, a)
			}
			return n
		case 14:
			return consumeBool(typ, b, &m.Busy)
		case 15:
			return consumeTimestamp(typ, b, &m.CreatedAt)
		}
		return 0
	})
}

// AppointmentResponse wraps one appointment; it may be empty when the
// record could not be re-read after a transition.
type AppointmentResponse struct {
	Appointment *Appointment
}

func (m *AppointmentResponse) MarshalWire() []byte {
	if m.Appointment == nil {
		return nil
	}
	return appendMessage(nil, 1, m.Appointment)
}

func (m *AppointmentResponse) UnmarshalWire(b []byte) error {
	*m = AppointmentResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 {
			return 0
		}
		a := &Appointment{}
		n := consumeMessage(typ, b, a)
		if n > 0 {
			m.Appointment = a
		}
		return n
	})
}

type ListAppointmentsResponse struct {
	Appointments []*Appointment
}

func (m *ListAppointmentsResponse) MarshalWire() []byte {
	var b []byte
	for _, a := range m.Appointments {
		b = appendMessage(b, 1, a)
	}
	return b
}

func (m *ListAppointmentsResponse) UnmarshalWire(b []byte) error {
	*m = ListAppointmentsResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 {
			return 0
		}
		a := &Appointment{}
		n := consumeMessage(typ, b, a)
		if n > 0 {
			m.Appointments = append(m.Appointments, a)
		}
		return n
	})
}
