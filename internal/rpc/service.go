package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "appointment.v1.ScheduleService"

// FullMethod returns the gRPC path of the named method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

type ScheduleServiceServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*RefreshTokenResponse, error)
	Logout(context.Context, *Empty) (*Empty, error)
	ListUsers(context.Context, *ListUsersRequest) (*ListUsersResponse, error)
	CreateAppointment(context.Context, *CreateAppointmentRequest) (*IDMessage, error)
	GetAppointment(context.Context, *IDMessage) (*AppointmentResponse, error)
	ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
	CancelAppointment(context.Context, *IDMessage) (*AppointmentResponse, error)
	RespondAppointment(context.Context, *RespondAppointmentRequest) (*AppointmentResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScheduleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method("Register", ScheduleServiceServer.Register),
		method("Login", ScheduleServiceServer.Login),
		method("RefreshToken", ScheduleServiceServer.RefreshToken),
		method("Logout", ScheduleServiceServer.Logout),
		method("ListUsers", ScheduleServiceServer.ListUsers),
		method("CreateAppointment", ScheduleServiceServer.CreateAppointment),
		method("GetAppointment", ScheduleServiceServer.GetAppointment),
		method("ListAppointments", ScheduleServiceServer.ListAppointments),
		method("CancelAppointment", ScheduleServiceServer.CancelAppointment),
		method("RespondAppointment", ScheduleServiceServer.RespondAppointment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "appointment/v1/appointment.proto",
}

func RegisterScheduleServiceServer(s grpc.ServiceRegistrar, srv ScheduleServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Method looks up a unary method by its full path.
func Method(fullMethod string) (grpc.MethodDesc, bool) {
	for _, md := range ServiceDesc.Methods {
		if FullMethod(md.MethodName) == fullMethod {
			return md, true
		}
	}
	return grpc.MethodDesc{}, false
}

func method[T any, PT interface {
	*T
	Message
}, R Message](name string, call func(ScheduleServiceServer, context.Context, PT) (R, error)) grpc.MethodDesc {
	full := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PT(new(T))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ScheduleServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ScheduleServiceServer), ctx, req.(PT))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Client calls ScheduleService over any connection, forcing Codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[R any, PR interface {
	*R
	Message
}](ctx context.Context, cc grpc.ClientConnInterface, name string, in Message, opts []grpc.CallOption) (PR, error) {
	out := PR(new(R))
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	if err := cc.Invoke(ctx, FullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, "Register", in, opts)
}

func (c *Client) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, "Login", in, opts)
}

func (c *Client) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*RefreshTokenResponse, error) {
	return invoke[RefreshTokenResponse](ctx, c.cc, "RefreshToken", in, opts)
}

func (c *Client) Logout(ctx context.Context, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, "Logout", &Empty{}, opts)
	return err
}

func (c *Client) ListUsers(ctx context.Context, in *ListUsersRequest, opts ...grpc.CallOption) (*ListUsersResponse, error) {
	return invoke[ListUsersResponse](ctx, c.cc, "ListUsers", in, opts)
}

func (c *Client) CreateAppointment(ctx context.Context, in *CreateAppointmentRequest, opts ...grpc.CallOption) (*IDMessage, error) {
	return invoke[IDMessage](ctx, c.cc, "CreateAppointment", in, opts)
}

func (c *Client) GetAppointment(ctx context.Context, in *IDMessage, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, "GetAppointment", in, opts)
}

func (c *Client) ListAppointments(ctx context.Context, in *ListAppointmentsRequest, opts ...grpc.CallOption) (*ListAppointmentsResponse, error) {
	return invoke[ListAppointmentsResponse](ctx, c.cc, "ListAppointments", in, opts)
}

func (c *Client) CancelAppointment(ctx context.Context, in *IDMessage, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, "CancelAppointment", in, opts)
}

func (c *Client) RespondAppointment(ctx context.Context, in *RespondAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, "RespondAppointment", in, opts)
}
