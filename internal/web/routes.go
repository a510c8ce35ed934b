package web

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"appointment-scheduler/internal/auth"
	"appointment-scheduler/internal/calendar"
	"appointment-scheduler/internal/middleware"
	"appointment-scheduler/internal/rpc"
	"appointment-scheduler/internal/scheduling"
)

// multipart overhead allowed on top of the audio limit
const formSlack = 1 << 20

type appointmentJSON struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Date             string    `json:"date"`
	Time             string    `json:"time"`
	SchedulerID      string    `json:"scheduler_id"`
	CounterpartyID   string    `json:"counterparty_id"`
	Status           string    `json:"status"`
	AudioURL         string    `json:"audio_url,omitempty"`
	Role             string    `json:"role"`
	SchedulerName    string    `json:"scheduler_name"`
	CounterpartyName string    `json:"counterparty_name"`
	Actions          []string  `json:"actions"`
	Busy             bool      `json:"busy"`
	CreatedAt        time.Time `json:"created_at"`
}

func fromRPC(a *rpc.Appointment) appointmentJSON {
	out := appointmentJSON{
		ID:               a.ID,
		Title:            a.Title,
		Description:      a.Description,
		Date:             a.Date,
		Time:             a.Time,
		SchedulerID:      a.SchedulerID,
		CounterpartyID:   a.CounterpartyID,
		Status:           a.Status,
		AudioURL:         a.AudioURL,
		Role:             a.Role,
		SchedulerName:    a.SchedulerName,
		CounterpartyName: a.CounterpartyName,
		Actions:          a.Actions,
		Busy:             a.Busy,
	}
	if out.Actions == nil {
		out.Actions = []string{}
	}
	if a.CreatedAt != nil {
		out.CreatedAt = a.CreatedAt.AsTime()
	}
	return out
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(v)
}

// auth

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	resp, err := s.h.Register(r.Context(), &rpc.RegisterRequest{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": resp.UserID, "token": resp.Token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	resp, err := s.h.Login(r.Context(), &rpc.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		writeError(w, err)
		return
	}
	s.setAuthCookies(w, resp.Token, resp.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]string{
		"token":         resp.Token,
		"refresh_token": resp.RefreshToken,
		"user_id":       resp.UserID,
		"name":          resp.Name,
	})
}

// handleRefresh takes the refresh token from the body, falling back to the
// refresh cookie.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil && err != io.EOF {
			badRequest(w, "invalid request body")
			return
		}
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(middleware.RefreshCookie); err == nil {
			req.RefreshToken = c.Value
		}
	}
	resp, err := s.h.RefreshToken(r.Context(), &rpc.RefreshTokenRequest{RefreshToken: req.RefreshToken})
	if err != nil {
		writeError(w, err)
		return
	}
	s.setAuthCookies(w, resp.Token, resp.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]string{"token": resp.Token, "refresh_token": resp.RefreshToken})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, err := s.h.Logout(r.Context(), &rpc.Empty{}); err != nil {
		writeError(w, err)
		return
	}
	s.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setAuthCookies(w http.ResponseWriter, access, refresh string) {
	now := s.clock()
	http.SetCookie(w, &http.Cookie{
		Name: middleware.AccessCookie, Value: access, Path: "/",
		Expires: now.Add(auth.AccessTTL), MaxAge: int(auth.AccessTTL.Seconds()),
		HttpOnly: true, Secure: s.secure, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: middleware.RefreshCookie, Value: refresh, Path: "/auth",
		Expires: now.Add(auth.RefreshTTL), MaxAge: int(auth.RefreshTTL.Seconds()),
		HttpOnly: true, Secure: s.secure, SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: middleware.AccessCookie, Path: "/", MaxAge: -1, HttpOnly: true, Secure: s.secure})
	http.SetCookie(w, &http.Cookie{Name: middleware.RefreshCookie, Path: "/auth", MaxAge: -1, HttpOnly: true, Secure: s.secure})
}

// api

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	resp, err := s.h.ListUsers(r.Context(), &rpc.ListUsersRequest{Search: r.URL.Query().Get("q")})
	if err != nil {
		writeError(w, err)
		return
	}
	type userJSON struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	out := make([]userJSON, 0, len(resp.Users))
	for _, u := range resp.Users {
		out = append(out, userJSON{ID: u.ID, Name: u.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.h.ListAppointments(r.Context(), &rpc.ListAppointmentsRequest{Window: q.Get("window"), Search: q.Get("q")})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]appointmentJSON, 0, len(resp.Appointments))
	for _, a := range resp.Appointments {
		out = append(out, fromRPC(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateAppointment accepts either JSON or a multipart form whose
// optional "audio" part is the attachment.
func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	req := &rpc.CreateAppointmentRequest{}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mt == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, scheduling.MaxAudioBytes+formSlack)
		if err := r.ParseMultipartForm(scheduling.MaxAudioBytes + formSlack); err != nil {
			badRequest(w, "invalid form")
			return
		}
		req.Title = r.FormValue("title")
		req.Description = r.FormValue("description")
		req.Date = r.FormValue("date")
		req.Time = r.FormValue("time")
		req.CounterpartyID = r.FormValue("counterparty_id")

		if f, fh, err := r.FormFile("audio"); err == nil {
			defer f.Close()
			// one byte over the limit is enough for validation to reject it
			data, err := io.ReadAll(io.LimitReader(f, scheduling.MaxAudioBytes+1))
			if err != nil {
				badRequest(w, "invalid audio")
				return
			}
			req.AudioData = data
			req.AudioFilename = fh.Filename
			req.AudioContentType = fh.Header.Get("Content-Type")
		}
	} else {
		var body struct {
			Title          string `json:"title"`
			Description    string `json:"description"`
			Date           string `json:"date"`
			Time           string `json:"time"`
			CounterpartyID string `json:"counterparty_id"`
		}
		if err := decode(r, &body); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		req.Title, req.Description = body.Title, body.Description
		req.Date, req.Time = body.Date, body.Time
		req.CounterpartyID = body.CounterpartyID
	}

	resp, err := s.h.CreateAppointment(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": resp.ID})
}

func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	resp, err := s.h.GetAppointment(r.Context(), &rpc.IDMessage{ID: chi.URLParam(r, "id")})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromRPC(resp.Appointment))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	resp, err := s.h.CancelAppointment(r.Context(), &rpc.IDMessage{ID: chi.URLParam(r, "id")})
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeTransition(w, resp)
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Decision string `json:"decision"`
	}
	if err := decode(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	resp, err := s.h.RespondAppointment(r.Context(), &rpc.RespondAppointmentRequest{
		ID:       chi.URLParam(r, "id"),
		Decision: strings.ToLower(strings.TrimSpace(body.Decision)),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeTransition(w, resp)
}

// writeTransition answers 204 when the refreshed view no longer holds the
// appointment.
func (s *Server) writeTransition(w http.ResponseWriter, resp *rpc.AppointmentResponse) {
	if resp.Appointment == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, fromRPC(resp.Appointment))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := s.h.Visible(r.Context(), q.Get("window"), q.Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="appointments.ics"`)
	_, _ = io.WriteString(w, calendar.Export(records, s.clock()))
}
