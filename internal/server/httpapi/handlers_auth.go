package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/services"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func authEnvelope(res *services.AuthResult) envelope {
	return envelope{
		"token":     res.Token,
		"expiresAt": res.ExpiresAt.Unix(),
		"user":      toUserPayload(res.User),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.ErrorBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" || strings.TrimSpace(req.Email) == "" {
		writeError(w, common.ErrorBadRequest, "Required fields: username, password, email")
		return
	}

	res, err := s.users.Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		msg := ""
		if errors.Is(err, common.ErrorConflict) {
			msg = "Username already taken"
		}
		writeError(w, err, msg)
		return
	}

	writeOK(w, http.StatusCreated, authEnvelope(res))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.ErrorBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, common.ErrorBadRequest, "Required fields: username, password")
		return
	}

	res, err := s.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		msg := ""
		if errors.Is(err, common.ErrorUnauthorized) {
			msg = "Invalid username or password"
		}
		writeError(w, err, msg)
		return
	}

	writeOK(w, http.StatusOK, authEnvelope(res))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, envelope{"user": toUserPayload(currentUser(r))})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Logout(r.Context(), extractBearer(r)); err != nil {
		writeError(w, err, "")
		return
	}
	writeOK(w, http.StatusOK, nil)
}
