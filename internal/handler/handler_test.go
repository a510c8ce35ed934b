package handler_test

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"appointment-scheduler/internal/appointment"
	"appointment-scheduler/internal/handler"
	"appointment-scheduler/internal/middleware"
	"appointment-scheduler/internal/rpc"
	"appointment-scheduler/internal/scheduling"
	"appointment-scheduler/internal/store"
)

const secret = "handler-test-secret"

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type account struct {
	id      string
	token   string
	refresh string
}

type ServiceSuite struct {
	suite.Suite
	mem    *store.Memory
	h      *handler.Handler
	client *rpc.Client
	srv    *grpc.Server

	alice, bob, carol account
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.mem = store.NewMemory("http://media.test")
	s.h = handler.New(s.mem, secret,
		handler.WithClock(func() time.Time { return now }),
		handler.WithEngineOptions(appointment.WithLocation(time.UTC)),
	)

	lis := bufconn.Listen(4 << 20)
	s.srv = grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.ChainUnaryInterceptor(
			middleware.RateLimit(middleware.NewRateLimiter(1000, 1000)),
			middleware.Auth(secret),
		),
	)
	rpc.RegisterScheduleServiceServer(s.srv, s.h)
	go func() { _ = s.srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	s.Require().NoError(err)
	s.T().Cleanup(func() {
		conn.Close()
		s.srv.Stop()
	})
	s.client = rpc.NewClient(conn)

	s.alice = s.signUp("alice@example.com", "Alice")
	s.bob = s.signUp("bob@example.com", "Bob")
	s.carol = s.signUp("carol@example.com", "Carol")
}

func (s *ServiceSuite) signUp(email, name string) account {
	ctx := context.Background()
	reg, err := s.client.Register(ctx, &rpc.RegisterRequest{Email: email, Password: "password123", Name: name})
	s.Require().NoError(err)
	s.Require().NotEmpty(reg.Token)

	login, err := s.client.Login(ctx, &rpc.LoginRequest{Email: email, Password: "password123"})
	s.Require().NoError(err)
	s.Equal(reg.UserID, login.UserID)
	s.Equal(name, login.Name)
	s.Require().NotEmpty(login.RefreshToken)
	return account{id: login.UserID, token: login.Token, refresh: login.RefreshToken}
}

func as(a account) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+a.token)
}

func (s *ServiceSuite) schedule(from, to account, title string) string {
	resp, err := s.client.CreateAppointment(as(from), &rpc.CreateAppointmentRequest{
		Title:          title,
		Description:    "about " + title,
		Date:           "2026-10-17",
		Time:           "10:00",
		CounterpartyID: to.id,
	})
	s.Require().NoError(err)
	return resp.ID
}

func (s *ServiceSuite) requireCode(err error, code codes.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.Equal(code, status.Code(err), err.Error())
}

func (s *ServiceSuite) TestRegisterValidation() {
	ctx := context.Background()
	_, err := s.client.Register(ctx, &rpc.RegisterRequest{Email: "x@example.com", Password: "short", Name: "X"})
	s.requireCode(err, codes.InvalidArgument)

	_, err = s.client.Register(ctx, &rpc.RegisterRequest{Email: "x@example.com", Password: "password123"})
	s.requireCode(err, codes.InvalidArgument)

	// duplicate email does not say so
	_, err = s.client.Register(ctx, &rpc.RegisterRequest{Email: "alice@example.com", Password: "password123", Name: "A2"})
	s.requireCode(err, codes.AlreadyExists)
	s.Equal("registration failed", status.Convert(err).Message())
}

func (s *ServiceSuite) TestLoginRejectsBadCredentials() {
	ctx := context.Background()
	_, err := s.client.Login(ctx, &rpc.LoginRequest{Email: "alice@example.com", Password: "wrong-password"})
	s.requireCode(err, codes.Unauthenticated)

	_, err = s.client.Login(ctx, &rpc.LoginRequest{Email: "nobody@example.com", Password: "password123"})
	s.requireCode(err, codes.Unauthenticated)
	s.Equal("invalid credentials", status.Convert(err).Message())
}

func (s *ServiceSuite) TestProtectedMethodsNeedToken() {
	_, err := s.client.ListAppointments(context.Background(), &rpc.ListAppointmentsRequest{})
	s.requireCode(err, codes.Unauthenticated)

	bad := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer forged")
	_, err = s.client.ListUsers(bad, &rpc.ListUsersRequest{})
	s.requireCode(err, codes.Unauthenticated)
}

func (s *ServiceSuite) TestListUsersExcludesCaller() {
	resp, err := s.client.ListUsers(as(s.alice), &rpc.ListUsersRequest{})
	s.Require().NoError(err)
	s.Require().Len(resp.Users, 2)
	s.Equal("Bob", resp.Users[0].Name)
	s.Equal("Carol", resp.Users[1].Name)

	resp, err = s.client.ListUsers(as(s.alice), &rpc.ListUsersRequest{Search: "CAR"})
	s.Require().NoError(err)
	s.Require().Len(resp.Users, 1)
	s.Equal(s.carol.id, resp.Users[0].ID)
}

func (s *ServiceSuite) TestLifecycle() {
	id := s.schedule(s.alice, s.bob, "Sync")

	// Bob sees a pending invitation he can answer
	list, err := s.client.ListAppointments(as(s.bob), &rpc.ListAppointmentsRequest{Window: "upcoming"})
	s.Require().NoError(err)
	s.Require().Len(list.Appointments, 1)
	a := list.Appointments[0]
	s.Equal(id, a.ID)
	s.Equal("pending", a.Status)
	s.Equal("counterparty", a.Role)
	s.Equal("Alice", a.SchedulerName)
	s.Equal("Bob", a.CounterpartyName)
	s.Equal([]string{"accept", "decline"}, a.Actions)
	s.NotNil(a.CreatedAt)

	// Carol cannot see it
	list, err = s.client.ListAppointments(as(s.carol), &rpc.ListAppointmentsRequest{})
	s.Require().NoError(err)
	s.Empty(list.Appointments)
	_, err = s.client.GetAppointment(as(s.carol), &rpc.IDMessage{ID: id})
	s.requireCode(err, codes.NotFound)

	// Bob cannot cancel, Alice cannot respond
	_, err = s.client.CancelAppointment(as(s.bob), &rpc.IDMessage{ID: id})
	s.requireCode(err, codes.PermissionDenied)
	s.Equal("only the scheduler can cancel this appointment", status.Convert(err).Message())
	_, err = s.client.RespondAppointment(as(s.alice), &rpc.RespondAppointmentRequest{ID: id, Decision: "accepted"})
	s.requireCode(err, codes.PermissionDenied)

	resp, err := s.client.RespondAppointment(as(s.bob), &rpc.RespondAppointmentRequest{ID: id, Decision: "accepted"})
	s.Require().NoError(err)
	s.Require().NotNil(resp.Appointment)
	s.Equal("accepted", resp.Appointment.Status)
	s.Empty(resp.Appointment.Actions)

	got, err := s.client.GetAppointment(as(s.alice), &rpc.IDMessage{ID: id})
	s.Require().NoError(err)
	s.Equal("accepted", got.Appointment.Status)
	s.Equal([]string{"cancel"}, got.Appointment.Actions)

	resp, err = s.client.CancelAppointment(as(s.alice), &rpc.IDMessage{ID: id})
	s.Require().NoError(err)
	s.Equal("cancelled", resp.Appointment.Status)

	_, err = s.client.CancelAppointment(as(s.alice), &rpc.IDMessage{ID: id})
	s.requireCode(err, codes.PermissionDenied)
}

func (s *ServiceSuite) TestRespondRejectsUnknownDecision() {
	id := s.schedule(s.alice, s.bob, "Sync")
	_, err := s.client.RespondAppointment(as(s.bob), &rpc.RespondAppointmentRequest{ID: id, Decision: "maybe"})
	s.requireCode(err, codes.InvalidArgument)
}

func (s *ServiceSuite) TestCreateValidation() {
	base := rpc.CreateAppointmentRequest{
		Title: "Sync", Description: "x", Date: "2026-10-17", Time: "10:00", CounterpartyID: s.bob.id,
	}
	tests := []struct {
		name string
		mut  func(*rpc.CreateAppointmentRequest)
		msg  string
	}{
		{"missing title", func(r *rpc.CreateAppointmentRequest) { r.Title = "" }, "All fields are required."},
		{"self", func(r *rpc.CreateAppointmentRequest) { r.CounterpartyID = s.alice.id }, ""},
		{"unknown counterparty", func(r *rpc.CreateAppointmentRequest) { r.CounterpartyID = "ghost" }, "selected user does not exist"},
		{"oversized audio", func(r *rpc.CreateAppointmentRequest) {
			r.AudioContentType = "audio/mpeg"
			r.AudioData = bytes.Repeat([]byte{7}, scheduling.MaxAudioBytes+1)
		}, ""},
		{"not audio", func(r *rpc.CreateAppointmentRequest) {
			r.AudioContentType = "video/mp4"
			r.AudioData = []byte{1}
		}, "Only audio files can be attached."},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := base
			tt.mut(&req)
			_, err := s.client.CreateAppointment(as(s.alice), &req)
			s.requireCode(err, codes.InvalidArgument)
			if tt.msg != "" {
				s.Equal(tt.msg, status.Convert(err).Message())
			}
		})
	}
	s.Zero(s.mem.ObjectCount())
}

func (s *ServiceSuite) TestCreateWithAudio() {
	resp, err := s.client.CreateAppointment(as(s.alice), &rpc.CreateAppointmentRequest{
		Title: "Voice", Description: "listen", Date: "2026-10-17", Time: "11:00",
		CounterpartyID:   s.bob.id,
		AudioContentType: "audio/ogg",
		AudioFilename:    "note.ogg",
		AudioData:        []byte("OggS...."),
	})
	s.Require().NoError(err)

	got, err := s.client.GetAppointment(as(s.bob), &rpc.IDMessage{ID: resp.ID})
	s.Require().NoError(err)
	s.True(strings.HasPrefix(got.Appointment.AudioURL, "http://media.test/media/audio/"), got.Appointment.AudioURL)
	s.Equal(1, s.mem.ObjectCount())
}

func (s *ServiceSuite) TestListWindowAndSearch() {
	s.schedule(s.alice, s.bob, "Sync")
	s.schedule(s.bob, s.alice, "Lunch")

	list, err := s.client.ListAppointments(as(s.alice), &rpc.ListAppointmentsRequest{Search: "lunch"})
	s.Require().NoError(err)
	s.Require().Len(list.Appointments, 1)
	s.Equal("counterparty", list.Appointments[0].Role)

	list, err = s.client.ListAppointments(as(s.alice), &rpc.ListAppointmentsRequest{Window: "past"})
	s.Require().NoError(err)
	s.Empty(list.Appointments)

	_, err = s.client.ListAppointments(as(s.alice), &rpc.ListAppointmentsRequest{Window: "someday"})
	s.requireCode(err, codes.InvalidArgument)
}

func (s *ServiceSuite) TestStoreOutageIsGeneric() {
	s.schedule(s.alice, s.bob, "Sync")
	s.mem.FailReads(true)
	defer s.mem.FailReads(false)

	_, err := s.client.ListAppointments(as(s.alice), &rpc.ListAppointmentsRequest{})
	s.requireCode(err, codes.Unavailable)
	s.Equal("could not load data, please try again", status.Convert(err).Message())
}

func (s *ServiceSuite) TestRefreshTokenRotation() {
	ctx := context.Background()
	first, err := s.client.RefreshToken(ctx, &rpc.RefreshTokenRequest{RefreshToken: s.alice.refresh})
	s.Require().NoError(err)
	s.NotEmpty(first.Token)
	s.NotEqual(s.alice.refresh, first.RefreshToken)

	// the new access token works
	_, err = s.client.ListUsers(as(account{token: first.Token}), &rpc.ListUsersRequest{})
	s.Require().NoError(err)

	// replaying the rotated token revokes the whole family
	_, err = s.client.RefreshToken(ctx, &rpc.RefreshTokenRequest{RefreshToken: s.alice.refresh})
	s.requireCode(err, codes.Unauthenticated)
	_, err = s.client.RefreshToken(ctx, &rpc.RefreshTokenRequest{RefreshToken: first.RefreshToken})
	s.requireCode(err, codes.Unauthenticated)

	_, err = s.client.RefreshToken(ctx, &rpc.RefreshTokenRequest{RefreshToken: "garbage"})
	s.requireCode(err, codes.Unauthenticated)
}

func (s *ServiceSuite) TestLogout() {
	_, err := s.client.ListAppointments(as(s.bob), &rpc.ListAppointmentsRequest{})
	s.Require().NoError(err)
	s.Equal(1, s.h.Engines().Len())

	s.Require().NoError(s.client.Logout(as(s.bob)))
	s.Equal(0, s.h.Engines().Len())

	_, err = s.client.RefreshToken(context.Background(), &rpc.RefreshTokenRequest{RefreshToken: s.bob.refresh})
	s.requireCode(err, codes.Unauthenticated)

	err = s.client.Logout(context.Background())
	s.requireCode(err, codes.Unauthenticated)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code codes.Code
		want int
	}{
		{codes.InvalidArgument, 400},
		{codes.Unauthenticated, 401},
		{codes.PermissionDenied, 403},
		{codes.NotFound, 404},
		{codes.Aborted, 409},
		{codes.ResourceExhausted, 429},
		{codes.Unavailable, 503},
		{codes.Internal, 500},
	}
	for _, tt := range tests {
		if got := handler.HTTPStatus(status.Error(tt.code, "x")); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
