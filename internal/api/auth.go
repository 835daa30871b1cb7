package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/nerrad567/dtu-hub/internal/auth"
)

// tokenRequest is the body of POST /token.
type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleToken exchanges the operator credentials for a bearer token. It
// accepts a JSON body or an OAuth2-style password form.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // empty type falls through to form parsing
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeBadRequest(w, "invalid form body")
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	token, err := s.authn.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Warn("login failed", "username", req.Username, "remote", clientIP(r))
			writeUnauthorized(w, "invalid username or password")
			return
		}
		s.logger.Error("login error", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, token)
}
