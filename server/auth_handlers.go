package server

import (
	"net/http"

	"github.com/stokaro/trustboard/core/apperr"
	"github.com/stokaro/trustboard/session"
)

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) error {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	u, err := s.deps.Auth.Register(r.Context(), in.Username, in.Email, in.Password)
	if err != nil {
		return err
	}
	return s.startSession(w, r, u)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) error {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	u, err := s.deps.Auth.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		return err
	}
	return s.startSession(w, r, u)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u session.User) error {
	if err := s.deps.Sessions.Start(w, r, u); err != nil {
		return apperr.Internal(err)
	}
	s.ok(w, envelope{"user": u})
	return nil
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) error {
	if err := s.deps.Sessions.Destroy(w, r); err != nil {
		return apperr.Internal(err)
	}
	s.ok(w, nil)
	return nil
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) error {
	if u, ok := currentUser(r); ok {
		s.ok(w, envelope{"user": u})
		return nil
	}
	s.ok(w, envelope{"user": nil})
	return nil
}

func (s *Server) requestReset(w http.ResponseWriter, r *http.Request) error {
	var in struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	res, err := s.deps.Auth.RequestPasswordReset(r.Context(), in.Email, requestOrigin(r))
	if err != nil {
		return err
	}
	body := envelope{"message": res.Message}
	if res.Token != "" {
		body["resetUrl"] = res.ResetURL
		body["token"] = res.Token
	}
	s.ok(w, body)
	return nil
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) error {
	var in struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	msg, err := s.deps.Auth.RedeemPasswordReset(r.Context(), in.Token, in.Password)
	if err != nil {
		return err
	}
	s.ok(w, envelope{"message": msg})
	return nil
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) error {
	var in struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	u, _ := currentUser(r)
	msg, err := s.deps.Auth.ChangePassword(r.Context(), u.ID, in.CurrentPassword, in.NewPassword)
	if err != nil {
		return err
	}
	s.ok(w, envelope{"message": msg})
	return nil
}
