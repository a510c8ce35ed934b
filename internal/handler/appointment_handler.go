package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"appointment-scheduler/internal/appointment"
	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/rpc"
	"appointment-scheduler/internal/scheduling"
)

func (h *Handler) ListUsers(ctx context.Context, req *rpc.ListUsersRequest) (*rpc.ListUsersResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	users, err := h.dir.List(ctx, p.ID, req.Search)
	if err != nil {
		return nil, h.toStatus(ctx, "list users", err)
	}
	resp := &rpc.ListUsersResponse{Users: make([]*rpc.User, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, &rpc.User{ID: u.ID, Name: u.DisplayName})
	}
	return resp, nil
}

func (h *Handler) CreateAppointment(ctx context.Context, req *rpc.CreateAppointmentRequest) (*rpc.IDMessage, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	in := scheduling.Input{
		Title:          req.Title,
		Description:    req.Description,
		Date:           req.Date,
		Time:           req.Time,
		CounterpartyID: req.CounterpartyID,
	}
	var att *scheduling.Attachment
	if len(req.AudioData) > 0 || req.AudioContentType != "" {
		att = &scheduling.Attachment{
			Filename:    req.AudioFilename,
			ContentType: req.AudioContentType,
			Data:        req.AudioData,
		}
	}

	if err := scheduling.Validate(p.ID, in, att); err != nil {
		return nil, h.toStatus(ctx, "create appointment", err)
	}
	// the counterparty must be a real user
	if _, err := h.dir.Select(ctx, p.ID, in.CounterpartyID); err != nil {
		return nil, h.toStatus(ctx, "create appointment", err)
	}

	id, err := h.form.Submit(ctx, p.ID, in, att)
	if err != nil {
		return nil, h.toStatus(ctx, "create appointment", err)
	}
	return &rpc.IDMessage{ID: id}, nil
}

func (h *Handler) GetAppointment(ctx context.Context, req *rpc.IDMessage) (*rpc.AppointmentResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id required")
	}
	eng := h.engines.For(p)
	r, err := eng.Get(ctx, req.ID)
	if err != nil {
		return nil, h.toStatus(ctx, "get appointment", err)
	}
	return &rpc.AppointmentResponse{Appointment: toRPC(eng, &r)}, nil
}

// ListAppointments refreshes the caller's view and returns the part of it
// matching window and search.
func (h *Handler) ListAppointments(ctx context.Context, req *rpc.ListAppointmentsRequest) (*rpc.ListAppointmentsResponse, error) {
	eng, records, err := h.visible(ctx, req.Window, req.Search)
	if err != nil {
		return nil, err
	}
	resp := &rpc.ListAppointmentsResponse{Appointments: make([]*rpc.Appointment, 0, len(records))}
	for i := range records {
		resp.Appointments = append(resp.Appointments, toRPC(eng, &records[i]))
	}
	return resp, nil
}

// Visible is ListAppointments without the wire conversion, for exports.
func (h *Handler) Visible(ctx context.Context, window, search string) ([]appointment.Record, error) {
	_, records, err := h.visible(ctx, window, search)
	return records, err
}

func (h *Handler) visible(ctx context.Context, window, search string) (*appointment.Engine, []appointment.Record, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, nil, err
	}
	w, ok := model.ParseWindow(window)
	if !ok {
		return nil, nil, status.Errorf(codes.InvalidArgument, "unknown window %q", window)
	}

	eng := h.engines.For(p)
	if _, err := eng.Refresh(ctx); err != nil {
		return nil, nil, h.toStatus(ctx, "list appointments", err)
	}
	return eng, eng.Visible(w, search), nil
}

func (h *Handler) CancelAppointment(ctx context.Context, req *rpc.IDMessage) (*rpc.AppointmentResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	eng := h.engines.For(p)
	if err := eng.Cancel(ctx, req.ID); err != nil {
		return nil, h.toStatus(ctx, "cancel appointment", err)
	}
	return afterTransition(eng, req.ID), nil
}

func (h *Handler) RespondAppointment(ctx context.Context, req *rpc.RespondAppointmentRequest) (*rpc.AppointmentResponse, error) {
	p, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	eng := h.engines.For(p)
	if err := eng.Respond(ctx, req.ID, model.Status(req.Decision)); err != nil {
		return nil, h.toStatus(ctx, "respond appointment", err)
	}
	return afterTransition(eng, req.ID), nil
}

// afterTransition picks id out of the view the transition refreshed. The
// response is empty if that refresh failed.
func afterTransition(eng *appointment.Engine, id string) *rpc.AppointmentResponse {
	view := eng.View()
	for i := range view {
		if view[i].ID == id {
			return &rpc.AppointmentResponse{Appointment: toRPC(eng, &view[i])}
		}
	}
	return &rpc.AppointmentResponse{}
}

func toRPC(eng *appointment.Engine, r *appointment.Record) *rpc.Appointment {
	actions := eng.Actions(r)
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return &rpc.Appointment{
		ID:               r.ID,
		Title:            r.Title,
		Description:      r.Description,
		Date:             r.Date,
		Time:             r.Time,
		SchedulerID:      r.SchedulerID,
		CounterpartyID:   r.CounterpartyID,
		Status:           string(r.Status),
		AudioURL:         r.AudioURL,
		Role:             string(r.Role),
		SchedulerName:    r.SchedulerName,
		CounterpartyName: r.CounterpartyName,
		Actions:          names,
		Busy:             eng.Busy(r.ID),
		CreatedAt:        rpc.Timestamp(r.CreatedAt),
	}
}
