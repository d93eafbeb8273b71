package server

import (
	"encoding/json"
	"io"
	"net/http"

	"elib/internal/app"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req app.RegisterInput
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	token, err := s.app.Register(r.Context(), req)
	if err != nil {
		s.audit(r, "auth.register", "fail", "reason", app.KindOf(err).String())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.register", "success")
	writeJSON(w, http.StatusCreated, map[string]string{"accessToken": token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req app.LoginInput
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	token, err := s.app.Login(r.Context(), req)
	if err != nil {
		s.audit(r, "auth.login", "fail", "reason", app.KindOf(err).String())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success")
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.app.Logout(r.Context(), token); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.logout", "success", "user_id", callerID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
