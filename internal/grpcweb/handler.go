// Package grpcweb serves gRPC-Web requests from browsers by dispatching
// them straight into the service's method table.
package grpcweb

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"appointment-scheduler/internal/rpc"
)

// MaxBody matches the default gRPC receive limit.
const MaxBody = 4 << 20

// Bridge translates gRPC-Web (browser HTTP/1.1) into calls on srv, running
// them through the same interceptors as the native server.
type Bridge struct {
	srv         rpc.ScheduleServiceServer
	interceptor grpc.UnaryServerInterceptor
	logger      *slog.Logger
}

// New returns a bridge for srv. interceptor may be nil.
func New(srv rpc.ScheduleServiceServer, interceptor grpc.UnaryServerInterceptor, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{srv: srv, interceptor: interceptor, logger: logger}
}

// Handler returns an http.Handler that translates gRPC-Web → gRPC.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, X-Grpc-Web, X-User-Agent, Authorization, x-grpc-web")
		w.Header().Set("Access-Control-Expose-Headers",
			"Grpc-Status, Grpc-Message, Grpc-Status-Details-Bin, grpc-status, grpc-message")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ct := r.Header.Get("Content-Type")
		if !strings.HasPrefix(ct, "application/grpc-web") {
			http.Error(w, "not grpc-web", http.StatusUnsupportedMediaType)
			return
		}

		b.logger.DebugContext(r.Context(), "grpc-web call", "method", r.URL.Path)
		b.dispatch(w, r)
	})
}

func (b *Bridge) dispatch(w http.ResponseWriter, r *http.Request) {
	md, ok := rpc.Method(r.URL.Path)
	if !ok {
		writeError(w, codes.Unimplemented, "unknown method "+r.URL.Path)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBody+5))
	if err != nil {
		writeError(w, codes.ResourceExhausted, "request too large")
		return
	}
	payload, err := unframe(body)
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}

	// incoming metadata and peer, as the native transport would set them
	in := metadata.MD{}
	if vals := r.Header.Values("Authorization"); len(vals) > 0 {
		in.Set("authorization", vals...)
	}
	ctx := metadata.NewIncomingContext(r.Context(), in)
	ctx = peer.NewContext(ctx, &peer.Peer{Addr: remoteAddr(r.RemoteAddr)})

	dec := func(v any) error { return rpc.Codec{}.Unmarshal(payload, v) }
	resp, err := md.Handler(b.srv, ctx, dec, b.interceptor)
	if err != nil {
		st := status.Convert(err)
		if st.Code() == codes.Internal || st.Code() == codes.Unavailable {
			b.logger.WarnContext(ctx, "grpc-web error", "method", r.URL.Path, "code", st.Code(), "error", st.Message())
		}
		writeError(w, st.Code(), st.Message())
		return
	}
	data, err := rpc.Codec{}.Marshal(resp)
	if err != nil {
		writeError(w, codes.Internal, "encode response failed")
		return
	}
	writeSuccess(w, data)
}

// unframe returns the payload of the single data frame in body:
// 1-byte flag + 4-byte big-endian length + protobuf.
func unframe(body []byte) ([]byte, error) {
	if len(body) < 5 {
		return nil, fmt.Errorf("body too short")
	}
	if body[0]&0x80 != 0 {
		return nil, fmt.Errorf("expected a data frame")
	}
	msgLen := binary.BigEndian.Uint32(body[1:5])
	if uint64(msgLen)+5 > uint64(len(body)) {
		return nil, fmt.Errorf("incomplete frame")
	}
	return body[5 : 5+msgLen], nil
}

// remoteAddr is r.RemoteAddr as a net.Addr for the rate limiter.
type remoteAddr string

func (remoteAddr) Network() string  { return "tcp" }
func (a remoteAddr) String() string { return string(a) }

func frame(flag byte, data []byte) []byte {
	f := make([]byte, 5+len(data))
	f[0] = flag
	binary.BigEndian.PutUint32(f[1:5], uint32(len(data)))
	copy(f[5:], data)
	return f
}

func writeError(w http.ResponseWriter, code codes.Code, msg string) {
	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.WriteHeader(http.StatusOK)
	trailer := fmt.Sprintf("grpc-status:%d\r\ngrpc-message:%s\r\n", code, url.PathEscape(msg))
	w.Write(frame(0x80, []byte(trailer)))
}

func writeSuccess(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.WriteHeader(http.StatusOK)
	w.Write(frame(0x00, data))
	w.Write(frame(0x80, []byte("grpc-status:0\r\n")))
}
