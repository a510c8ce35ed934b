package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"appointment-scheduler/internal/auth"
	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/rpc"
)

type ctxKey string

const (
	UserIDKey    ctxKey = "uid"
	principalKey ctxKey = "principal"
)

// cookie names set by the REST login
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// skip auth for these
var open = map[string]bool{
	rpc.FullMethod("Register"):     true,
	rpc.FullMethod("Login"):        true,
	rpc.FullMethod("RefreshToken"): true,
}

// WithPrincipal stores the verified caller on ctx.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, p.ID)
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(model.Principal)
	return p, ok
}

// UserID returns the verified caller id, or "".
func UserID(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func Auth(secret string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if open[info.FullMethod] {
			return next(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		// token from Authorization: Bearer <jwt>
		raw := ""
		if vals := md.Get("authorization"); len(vals) > 0 {
			raw = strings.TrimPrefix(vals[0], "Bearer ")
		}
		if raw == "" {
			return nil, status.Error(codes.Unauthenticated, "no token")
		}

		claims, err := auth.ParseToken(raw, secret)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "bad token")
		}

		return next(WithPrincipal(ctx, claims.Principal()), req)
	}
}

// Chain composes interceptors so the first one runs outermost, the same
// order grpc.ChainUnaryInterceptor uses.
func Chain(ints ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		h := next
		for i := len(ints) - 1; i >= 0; i-- {
			in, inner := ints[i], h
			h = func(ctx context.Context, req any) (any, error) {
				return in(ctx, req, info, inner)
			}
		}
		return h(ctx, req)
	}
}

// BearerToken reads the access token from the Authorization header, falling
// back to the access_token cookie.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth rejects HTTP requests without a valid access token and puts
// the principal on the request context.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				unauthorized(w, "no token")
				return
			}
			claims, err := auth.ParseToken(raw, secret)
			if err != nil {
				unauthorized(w, "bad token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims.Principal())))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
