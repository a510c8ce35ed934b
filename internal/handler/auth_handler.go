package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"appointment-scheduler/internal/apperr"
	"appointment-scheduler/internal/auth"
	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/rpc"
	"appointment-scheduler/internal/store"
)

func (h *Handler) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	email := strings.TrimSpace(req.Email)
	name := strings.TrimSpace(req.Name)
	if email == "" || req.Password == "" || name == "" {
		return nil, status.Error(codes.InvalidArgument, "all fields required")
	}
	if len(req.Password) < auth.MinPasswordLen {
		return nil, status.Error(codes.InvalidArgument, "password too short")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}

	u := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		CreatedAt:    h.clock(),
	}

	if err := h.store.CreateUser(ctx, u); err != nil {
		// unique violation = dup email, but don't reveal that
		h.logger.InfoContext(ctx, "registration rejected", "error", err)
		return nil, status.Error(codes.AlreadyExists, "registration failed")
	}

	tok, err := auth.MakeToken(u.Principal(), h.secret)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}

	h.logger.InfoContext(ctx, "user registered", "user_id", u.ID)
	return &rpc.RegisterResponse{UserID: u.ID, Token: tok}, nil
}

func (h *Handler) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.LoginResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password required")
	}

	u, err := h.store.UserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindRead {
			return nil, h.toStatus(ctx, "login", err)
		}
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}

	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}

	tok, err := auth.MakeToken(u.Principal(), h.secret)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	refresh, err := h.issueRefreshToken(ctx, u.ID)
	if err != nil {
		return nil, h.toStatus(ctx, "login", err)
	}

	h.logger.InfoContext(ctx, "user signed in", "user_id", u.ID)
	return &rpc.LoginResponse{Token: tok, UserID: u.ID, Name: u.Name, RefreshToken: refresh}, nil
}

func (h *Handler) issueRefreshToken(ctx context.Context, userID string) (string, error) {
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return "", err
	}
	if _, err := h.store.CreateRefreshToken(ctx, userID, hash, h.clock().Add(auth.RefreshTTL)); err != nil {
		return "", err
	}
	return raw, nil
}

// RefreshToken exchanges a refresh token for a new access/refresh pair. A
// token presented after it was rotated revokes every token of its user.
func (h *Handler) RefreshToken(ctx context.Context, req *rpc.RefreshTokenRequest) (*rpc.RefreshTokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh token required")
	}

	rt, err := h.store.GetRefreshTokenByHash(ctx, auth.HashRefreshToken(req.RefreshToken))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindRead {
			return nil, h.toStatus(ctx, "refresh token", err)
		}
		return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
	}

	if rt.Revoked {
		h.logger.WarnContext(ctx, "refresh token reuse detected", "user_id", rt.UserID)
		if err := h.store.RevokeAllRefreshTokens(ctx, rt.UserID); err != nil {
			h.logger.WarnContext(ctx, "revoke after reuse failed", "user_id", rt.UserID, "error", err)
		}
		h.engines.SignOut(rt.UserID)
		return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
	}
	if !rt.Usable(h.clock()) {
		return nil, status.Error(codes.Unauthenticated, "refresh token expired")
	}

	u, err := h.store.UserByID(ctx, rt.UserID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
		}
		return nil, h.toStatus(ctx, "refresh token", err)
	}

	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	if _, err := h.store.RotateRefreshToken(ctx, rt.ID, rt.UserID, hash, h.clock().Add(auth.RefreshTTL)); err != nil {
		// lost a race with another rotation of the same token
		if errors.Is(err, store.ErrTokenRevoked) {
			return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
		}
		return nil, h.toStatus(ctx, "refresh token", err)
	}

	tok, err := auth.MakeToken(u.Principal(), h.secret)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return &rpc.RefreshTokenResponse{Token: tok, RefreshToken: raw}, nil
}

// Logout revokes the caller's refresh tokens and ends its session.
func (h *Handler) Logout(ctx context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.store.RevokeAllRefreshTokens(ctx, p.ID); err != nil {
		return nil, h.toStatus(ctx, "logout", err)
	}
	h.engines.SignOut(p.ID)
	h.logger.InfoContext(ctx, "user signed out", "user_id", p.ID)
	return &rpc.Empty{}, nil
}
